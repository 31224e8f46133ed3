package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/CodeHalwell/MyGPT/domain/persistence"
)

// SessionRepository implements persistence.SessionRepository
type SessionRepository struct {
	db *gorm.DB
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *gorm.DB) persistence.SessionRepository {
	return &SessionRepository{db: db}
}

// Create creates a new session record
func (r *SessionRepository) Create(ctx context.Context, entity *persistence.SessionRecord) error {
	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return fmt.Errorf("failed to create session record: %w", err)
	}
	return nil
}

// Update updates an existing session record
func (r *SessionRepository) Update(ctx context.Context, entity *persistence.SessionRecord) error {
	if err := r.db.WithContext(ctx).Save(entity).Error; err != nil {
		return fmt.Errorf("failed to update session record: %w", err)
	}
	return nil
}

// FindByID finds a session record by ID
func (r *SessionRepository) FindByID(ctx context.Context, id uuid.UUID) (*persistence.SessionRecord, error) {
	var record persistence.SessionRecord
	if err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("session record not found: %w", err)
		}
		return nil, fmt.Errorf("failed to find session record: %w", err)
	}
	return &record, nil
}

// FindByIDWithRelations finds a session record with its metrics and feedback
func (r *SessionRepository) FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*persistence.SessionRecord, error) {
	var record persistence.SessionRecord
	if err := r.db.WithContext(ctx).Preload("Metrics").Preload("Feedback").First(&record, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("session record not found: %w", err)
		}
		return nil, fmt.Errorf("failed to find session record with relations: %w", err)
	}
	return &record, nil
}

// FindByStatus finds session records by status
func (r *SessionRepository) FindByStatus(ctx context.Context, status persistence.SessionStatus, limit int) ([]*persistence.SessionRecord, error) {
	var records []*persistence.SessionRecord
	query := r.db.WithContext(ctx).Where("status = ?", status).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to find session records by status: %w", err)
	}
	return records, nil
}

// FindByProvider finds session records served by the given provider
func (r *SessionRepository) FindByProvider(ctx context.Context, provider string, limit int) ([]*persistence.SessionRecord, error) {
	var records []*persistence.SessionRecord
	query := r.db.WithContext(ctx).Where("provider = ?", provider).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to find session records by provider: %w", err)
	}
	return records, nil
}

// FindRecent finds recent session records
func (r *SessionRepository) FindRecent(ctx context.Context, limit int) ([]*persistence.SessionRecord, error) {
	var records []*persistence.SessionRecord
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to find recent session records: %w", err)
	}
	return records, nil
}

// UpdateStatus updates the status of a session record
func (r *SessionRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status persistence.SessionStatus) error {
	result := r.db.WithContext(ctx).Model(&persistence.SessionRecord{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to update session status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("session record not found for status update")
	}
	return nil
}

// Delete deletes a session record
func (r *SessionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&persistence.SessionRecord{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete session record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("session record not found for deletion")
	}
	return nil
}

// FindSimilar returns completed sessions ordered by cosine similarity of
// their embeddings to the query vector. Uses the hnsw index on sessions.
func (r *SessionRepository) FindSimilar(ctx context.Context, embedding []float32, limit int) ([]*persistence.SimilarSession, error) {
	if len(embedding) == 0 {
		return nil, fmt.Errorf("empty query embedding")
	}
	if limit <= 0 {
		limit = 10
	}

	vector := pgvector.NewVector(embedding)

	type row struct {
		persistence.SessionRecord
		Similarity float64 `gorm:"column:similarity"`
	}

	var rows []row
	err := r.db.WithContext(ctx).Raw(`
		SELECT
			s.*,
			1 - (s.embedding <=> ?) as similarity
		FROM sessions s
		WHERE s.embedding IS NOT NULL
			AND s.status = 'completed'
		ORDER BY similarity DESC
		LIMIT ?`,
		vector, limit,
	).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query similar sessions: %w", err)
	}

	results := make([]*persistence.SimilarSession, len(rows))
	for i := range rows {
		record := rows[i].SessionRecord
		results[i] = &persistence.SimilarSession{
			Session:    &record,
			Similarity: rows[i].Similarity,
		}
	}
	return results, nil
}
