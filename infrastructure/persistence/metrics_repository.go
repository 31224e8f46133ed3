package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/CodeHalwell/MyGPT/domain/persistence"
)

// MetricsRepository implements persistence.MetricsRepository
type MetricsRepository struct {
	db *gorm.DB
}

// NewMetricsRepository creates a new metrics repository
func NewMetricsRepository(db *gorm.DB) persistence.MetricsRepository {
	return &MetricsRepository{db: db}
}

// Create creates a new metrics record
func (r *MetricsRepository) Create(ctx context.Context, entity *persistence.SessionMetrics) error {
	if err := r.db.WithContext(ctx).Create(entity).Error; err != nil {
		return fmt.Errorf("failed to create metrics record: %w", err)
	}
	return nil
}

// Update updates an existing metrics record
func (r *MetricsRepository) Update(ctx context.Context, entity *persistence.SessionMetrics) error {
	if err := r.db.WithContext(ctx).Save(entity).Error; err != nil {
		return fmt.Errorf("failed to update metrics record: %w", err)
	}
	return nil
}

// FindByID finds a metrics record by ID
func (r *MetricsRepository) FindByID(ctx context.Context, id uuid.UUID) (*persistence.SessionMetrics, error) {
	var record persistence.SessionMetrics
	if err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("metrics record not found: %w", err)
		}
		return nil, fmt.Errorf("failed to find metrics record: %w", err)
	}
	return &record, nil
}

// FindBySessionID finds metrics by session ID
func (r *MetricsRepository) FindBySessionID(ctx context.Context, sessionID uuid.UUID) (*persistence.SessionMetrics, error) {
	var record persistence.SessionMetrics
	if err := r.db.WithContext(ctx).First(&record, "session_id = ?", sessionID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("metrics record not found for session: %w", err)
		}
		return nil, fmt.Errorf("failed to find metrics record by session ID: %w", err)
	}
	return &record, nil
}

// CreateOrUpdate creates a new metrics record or updates the existing one
func (r *MetricsRepository) CreateOrUpdate(ctx context.Context, metrics *persistence.SessionMetrics) error {
	db := r.db.WithContext(ctx)

	var existing persistence.SessionMetrics
	err := db.First(&existing, "session_id = ?", metrics.SessionID).Error

	if err == gorm.ErrRecordNotFound {
		if err := db.Create(metrics).Error; err != nil {
			return fmt.Errorf("failed to create metrics record: %w", err)
		}
		return nil
	} else if err != nil {
		return fmt.Errorf("failed to check existing metrics: %w", err)
	}

	existing.DeltaCount = metrics.DeltaCount
	existing.CharCount = metrics.CharCount
	existing.LatencyMs = metrics.LatencyMs

	if err := db.Save(&existing).Error; err != nil {
		return fmt.Errorf("failed to update existing metrics: %w", err)
	}

	// Copy back the ID for the caller
	metrics.ID = existing.ID
	return nil
}

// GetAggregatedMetrics returns aggregated metrics across sessions
func (r *MetricsRepository) GetAggregatedMetrics(ctx context.Context, limit int) (*persistence.AggregatedMetrics, error) {
	db := r.db.WithContext(ctx)

	var result struct {
		TotalSessions    int64   `json:"total_sessions"`
		AverageDeltas    float64 `json:"average_deltas"`
		AverageChars     float64 `json:"average_chars"`
		AverageLatencyMs float64 `json:"average_latency_ms"`
		TotalChars       int64   `json:"total_chars"`
	}

	query := db.Model(&persistence.SessionMetrics{}).
		Select(`
			COUNT(*) as total_sessions,
			COALESCE(AVG(delta_count), 0) as average_deltas,
			COALESCE(AVG(char_count), 0) as average_chars,
			COALESCE(AVG(latency_ms), 0) as average_latency_ms,
			COALESCE(SUM(char_count), 0) as total_chars
		`)

	if limit > 0 {
		subQuery := db.Model(&persistence.SessionMetrics{}).
			Select("session_id").
			Order("created_at DESC").
			Limit(limit)
		query = query.Where("session_id IN (?)", subQuery)
	}

	if err := query.Scan(&result).Error; err != nil {
		return nil, fmt.Errorf("failed to get aggregated metrics: %w", err)
	}

	var avgFeedback float64
	feedbackQuery := db.Model(&persistence.SessionFeedback{}).
		Select("COALESCE(AVG(score), 0)")

	if limit > 0 {
		subQuery := db.Model(&persistence.SessionMetrics{}).
			Select("session_id").
			Order("created_at DESC").
			Limit(limit)
		feedbackQuery = feedbackQuery.Where("session_id IN (?)", subQuery)
	}

	if err := feedbackQuery.Scan(&avgFeedback).Error; err != nil {
		return nil, fmt.Errorf("failed to get average feedback: %w", err)
	}

	return &persistence.AggregatedMetrics{
		TotalSessions:    result.TotalSessions,
		AverageDeltas:    result.AverageDeltas,
		AverageChars:     result.AverageChars,
		AverageLatencyMs: result.AverageLatencyMs,
		AverageFeedback:  avgFeedback,
		TotalChars:       result.TotalChars,
	}, nil
}

// Delete deletes a metrics record
func (r *MetricsRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&persistence.SessionMetrics{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete metrics record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("metrics record not found for deletion")
	}
	return nil
}
