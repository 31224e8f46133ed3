package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/CodeHalwell/MyGPT/domain/persistence"
)

// FeedbackRepository implements persistence.FeedbackRepository
type FeedbackRepository struct {
	db *gorm.DB
}

// NewFeedbackRepository creates a new feedback repository
func NewFeedbackRepository(db *gorm.DB) persistence.FeedbackRepository {
	return &FeedbackRepository{db: db}
}

// Create creates a new feedback record
func (r *FeedbackRepository) Create(ctx context.Context, entity *persistence.SessionFeedback) error {
	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return fmt.Errorf("failed to create feedback record: %w", err)
	}
	return nil
}

// Update updates an existing feedback record
func (r *FeedbackRepository) Update(ctx context.Context, entity *persistence.SessionFeedback) error {
	if err := r.db.WithContext(ctx).Save(entity).Error; err != nil {
		return fmt.Errorf("failed to update feedback record: %w", err)
	}
	return nil
}

// FindByID finds a feedback record by ID
func (r *FeedbackRepository) FindByID(ctx context.Context, id uuid.UUID) (*persistence.SessionFeedback, error) {
	var record persistence.SessionFeedback
	if err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("feedback record not found: %w", err)
		}
		return nil, fmt.Errorf("failed to find feedback record: %w", err)
	}
	return &record, nil
}

// FindBySessionID finds feedback records by session ID
func (r *FeedbackRepository) FindBySessionID(ctx context.Context, sessionID uuid.UUID) ([]*persistence.SessionFeedback, error) {
	var records []*persistence.SessionFeedback
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("created_at DESC").Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to find feedback records by session ID: %w", err)
	}
	return records, nil
}

// GetAverageScore returns the average feedback score, optionally scoped
// to a single session.
func (r *FeedbackRepository) GetAverageScore(ctx context.Context, sessionID *uuid.UUID) (float64, error) {
	query := r.db.WithContext(ctx).Model(&persistence.SessionFeedback{}).Select("COALESCE(AVG(score), 0)")
	if sessionID != nil {
		query = query.Where("session_id = ?", *sessionID)
	}

	var avg float64
	if err := query.Scan(&avg).Error; err != nil {
		return 0, fmt.Errorf("failed to get average feedback score: %w", err)
	}
	return avg, nil
}

// FindRecentFeedback finds the most recent feedback records
func (r *FeedbackRepository) FindRecentFeedback(ctx context.Context, limit int) ([]*persistence.SessionFeedback, error) {
	var records []*persistence.SessionFeedback
	query := r.db.WithContext(ctx).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&records).Error; err != nil {
		return nil, fmt.Errorf("failed to find recent feedback records: %w", err)
	}
	return records, nil
}

// Delete deletes a feedback record
func (r *FeedbackRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&persistence.SessionFeedback{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete feedback record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("feedback record not found for deletion")
	}
	return nil
}
