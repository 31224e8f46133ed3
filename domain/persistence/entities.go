package persistence

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

// SessionRecord stores one chat exchange: the conversation sent in, the
// text produced, and which provider and model served it.
type SessionRecord struct {
	ID           uuid.UUID        `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	RequestData  json.RawMessage  `gorm:"type:jsonb;not null" json:"request_data"`
	ResponseText string           `gorm:"type:text" json:"response_text,omitempty"`
	Provider     string           `gorm:"type:varchar(50);not null;index" json:"provider"`
	Model        string           `gorm:"type:varchar(255);not null;index" json:"model"`
	IsStreaming  bool             `gorm:"default:false;index" json:"is_streaming"`
	UsedFallback bool             `gorm:"default:false" json:"used_fallback"`
	Status       SessionStatus    `gorm:"type:varchar(50);not null;default:'pending';index" json:"status"`
	Embedding    *pgvector.Vector `gorm:"type:vector(384)" json:"embedding,omitempty"`
	CreatedAt    time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time        `gorm:"autoUpdateTime" json:"updated_at"`

	// Relations
	Metrics  *SessionMetrics   `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"metrics,omitempty"`
	Feedback []SessionFeedback `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"feedback,omitempty"`
}

// SessionStatus represents the lifecycle state of a session record
type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
)

// SessionMetrics stores latency and size metrics for each exchange
type SessionMetrics struct {
	ID         uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	SessionID  uuid.UUID `gorm:"type:uuid;not null;index" json:"session_id"`
	DeltaCount int       `gorm:"default:0" json:"delta_count"`
	CharCount  int       `gorm:"default:0" json:"char_count"`
	LatencyMs  int64     `gorm:"default:0" json:"latency_ms"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// SessionFeedback stores user feedback for each exchange
type SessionFeedback struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	SessionID    uuid.UUID `gorm:"type:uuid;not null;index" json:"session_id"`
	FeedbackText string    `gorm:"type:text" json:"feedback_text"`
	Score        float64   `gorm:"type:decimal(3,2);check:score >= 0 AND score <= 1" json:"score"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// BeforeCreate hook for SessionRecord
func (r *SessionRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	// pgvector rejects zero-length vectors, store NULL instead
	if r.Embedding != nil && len(r.Embedding.Slice()) == 0 {
		r.Embedding = nil
	}
	return nil
}

// BeforeUpdate hook for SessionRecord
func (r *SessionRecord) BeforeUpdate(tx *gorm.DB) error {
	if r.Embedding != nil && len(r.Embedding.Slice()) == 0 {
		r.Embedding = nil
	}
	return nil
}

// BeforeCreate hook for SessionMetrics
func (m *SessionMetrics) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// BeforeCreate hook for SessionFeedback
func (f *SessionFeedback) BeforeCreate(tx *gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

func (SessionRecord) TableName() string { return "sessions" }

func (SessionMetrics) TableName() string { return "session_metrics" }

func (SessionFeedback) TableName() string { return "session_feedback" }

// PersistenceEvent represents events that can be processed asynchronously
type PersistenceEvent[T any] struct {
	Type EventType `json:"type"`
	Data T         `json:"data"`
}

// EventType represents the type of persistence event
type EventType string

const (
	EventTypeCreateSession  EventType = "create_session"
	EventTypeUpdateSession  EventType = "update_session"
	EventTypeCreateMetrics  EventType = "create_metrics"
	EventTypeCreateFeedback EventType = "create_feedback"
)

// CreateSessionEvent data for creating a new session record
type CreateSessionEvent struct {
	SessionID   uuid.UUID       `json:"session_id"`
	RequestData json.RawMessage `json:"request_data"`
	Provider    string          `json:"provider"`
	Model       string          `json:"model"`
	IsStreaming bool            `json:"is_streaming"`
}

// UpdateSessionEvent data for recording the produced text and outcome
type UpdateSessionEvent struct {
	SessionID    uuid.UUID     `json:"session_id"`
	ResponseText string        `json:"response_text"`
	UsedFallback bool          `json:"used_fallback"`
	Status       SessionStatus `json:"status"`
}

// CreateMetricsEvent data for creating session metrics
type CreateMetricsEvent struct {
	SessionID  uuid.UUID `json:"session_id"`
	DeltaCount int       `json:"delta_count"`
	CharCount  int       `json:"char_count"`
	LatencyMs  int64     `json:"latency_ms"`
}

// CreateFeedbackEvent data for creating session feedback
type CreateFeedbackEvent struct {
	SessionID    uuid.UUID `json:"session_id"`
	FeedbackText string    `json:"feedback_text"`
	Score        float64   `json:"score"`
}
