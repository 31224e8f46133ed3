package persistence

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the generic repository interface using Go generics
type Repository[T any] interface {
	Create(ctx context.Context, entity *T) error
	Update(ctx context.Context, entity *T) error
	FindByID(ctx context.Context, id uuid.UUID) (*T, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// SessionRepository defines operations specific to session records
type SessionRepository interface {
	Repository[SessionRecord]

	FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*SessionRecord, error)
	FindByStatus(ctx context.Context, status SessionStatus, limit int) ([]*SessionRecord, error)
	FindByProvider(ctx context.Context, provider string, limit int) ([]*SessionRecord, error)
	FindRecent(ctx context.Context, limit int) ([]*SessionRecord, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status SessionStatus) error

	// FindSimilar returns completed sessions ordered by cosine similarity
	// of their request embeddings to the query vector.
	FindSimilar(ctx context.Context, embedding []float32, limit int) ([]*SimilarSession, error)
}

// SimilarSession pairs a session with its similarity to a query embedding
type SimilarSession struct {
	Session    *SessionRecord `json:"session"`
	Similarity float64        `json:"similarity"`
}

// MetricsRepository defines operations for session metrics
type MetricsRepository interface {
	Repository[SessionMetrics]

	FindBySessionID(ctx context.Context, sessionID uuid.UUID) (*SessionMetrics, error)
	CreateOrUpdate(ctx context.Context, metrics *SessionMetrics) error
	GetAggregatedMetrics(ctx context.Context, limit int) (*AggregatedMetrics, error)
}

// FeedbackRepository defines operations for session feedback
type FeedbackRepository interface {
	Repository[SessionFeedback]

	FindBySessionID(ctx context.Context, sessionID uuid.UUID) ([]*SessionFeedback, error)
	GetAverageScore(ctx context.Context, sessionID *uuid.UUID) (float64, error)
	FindRecentFeedback(ctx context.Context, limit int) ([]*SessionFeedback, error)
}

// EventProcessor defines the interface for processing persistence events asynchronously
type EventProcessor interface {
	// Start begins processing events from the channel
	Start(ctx context.Context) error

	// Stop gracefully shuts down the event processor
	Stop() error

	// ProcessEvent sends an event to be processed asynchronously
	ProcessEvent(event interface{}) error

	// Health returns the health status of the processor
	Health() ProcessorHealth
}

// ProcessorHealth represents the health status of the event processor
type ProcessorHealth struct {
	IsRunning      bool  `json:"is_running"`
	QueueSize      int   `json:"queue_size"`
	ProcessedCount int64 `json:"processed_count"`
	ErrorCount     int64 `json:"error_count"`
}

// AggregatedMetrics represents aggregated delivery metrics
type AggregatedMetrics struct {
	TotalSessions    int64   `json:"total_sessions"`
	AverageDeltas    float64 `json:"average_deltas"`
	AverageChars     float64 `json:"average_chars"`
	AverageLatencyMs float64 `json:"average_latency_ms"`
	AverageFeedback  float64 `json:"average_feedback"`
	TotalChars       int64   `json:"total_chars"`
}

// DatabaseManager defines the interface for database management operations
type DatabaseManager interface {
	// Connect establishes database connection
	Connect(ctx context.Context, dsn string) error

	// Close closes the database connection
	Close() error

	// Migrate runs database migrations
	Migrate() error

	// Health checks database connectivity
	Health(ctx context.Context) error

	// GetRepositories returns initialized repositories
	GetRepositories() (SessionRepository, MetricsRepository, FeedbackRepository)
}

// SessionTracker defines the interface for tracking exchanges through their lifecycle
type SessionTracker interface {
	// StartTracking begins tracking a new exchange
	StartTracking(ctx context.Context, sessionID uuid.UUID, requestData []byte, provider, model string, isStreaming bool) error

	// CompleteTracking finalizes tracking with the produced text
	CompleteTracking(ctx context.Context, sessionID uuid.UUID, responseText string, usedFallback bool, metrics SessionMetrics) error

	// FailTracking marks an exchange as failed
	FailTracking(ctx context.Context, sessionID uuid.UUID, errorMsg string) error

	// SubmitFeedback adds feedback for an exchange
	SubmitFeedback(ctx context.Context, sessionID uuid.UUID, feedbackText string, score float64) error

	// UpdateEmbedding updates the embedding for an exchange
	UpdateEmbedding(ctx context.Context, sessionID uuid.UUID, embedding []float32) error
}
