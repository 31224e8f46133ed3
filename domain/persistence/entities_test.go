package persistence

import (
	"testing"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestTableNames(t *testing.T) {
	assert.Equal(t, "sessions", SessionRecord{}.TableName())
	assert.Equal(t, "session_metrics", SessionMetrics{}.TableName())
	assert.Equal(t, "session_feedback", SessionFeedback{}.TableName())
}

func TestSessionStatus_Constants(t *testing.T) {
	assert.Equal(t, SessionStatus("pending"), SessionStatusPending)
	assert.Equal(t, SessionStatus("completed"), SessionStatusCompleted)
	assert.Equal(t, SessionStatus("failed"), SessionStatusFailed)
}

func TestEventType_Constants(t *testing.T) {
	assert.Equal(t, EventType("create_session"), EventTypeCreateSession)
	assert.Equal(t, EventType("update_session"), EventTypeUpdateSession)
	assert.Equal(t, EventType("create_metrics"), EventTypeCreateMetrics)
	assert.Equal(t, EventType("create_feedback"), EventTypeCreateFeedback)
}

func TestPersistenceEvent_GenericType(t *testing.T) {
	sessionEvent := PersistenceEvent[CreateSessionEvent]{
		Type: EventTypeCreateSession,
		Data: CreateSessionEvent{
			SessionID:   uuid.New(),
			RequestData: []byte(`{"messages":[]}`),
			Provider:    "openai",
			Model:       "gpt-4o",
			IsStreaming: true,
		},
	}

	assert.Equal(t, EventTypeCreateSession, sessionEvent.Type)
	assert.NotEqual(t, uuid.Nil, sessionEvent.Data.SessionID)
	assert.Equal(t, "openai", sessionEvent.Data.Provider)
	assert.Equal(t, "gpt-4o", sessionEvent.Data.Model)
	assert.True(t, sessionEvent.Data.IsStreaming)

	metricsEvent := PersistenceEvent[CreateMetricsEvent]{
		Type: EventTypeCreateMetrics,
		Data: CreateMetricsEvent{
			SessionID:  uuid.New(),
			DeltaCount: 42,
			CharCount:  1000,
			LatencyMs:  500,
		},
	}

	assert.Equal(t, EventTypeCreateMetrics, metricsEvent.Type)
	assert.Equal(t, 42, metricsEvent.Data.DeltaCount)
	assert.Equal(t, 1000, metricsEvent.Data.CharCount)
	assert.Equal(t, int64(500), metricsEvent.Data.LatencyMs)

	feedbackEvent := PersistenceEvent[CreateFeedbackEvent]{
		Type: EventTypeCreateFeedback,
		Data: CreateFeedbackEvent{
			SessionID:    uuid.New(),
			FeedbackText: "Great response!",
			Score:        0.9,
		},
	}

	assert.Equal(t, EventTypeCreateFeedback, feedbackEvent.Type)
	assert.Equal(t, "Great response!", feedbackEvent.Data.FeedbackText)
	assert.Equal(t, 0.9, feedbackEvent.Data.Score)
}

func TestSessionRecord_BeforeCreate(t *testing.T) {
	tests := []struct {
		name      string
		embedding *pgvector.Vector
		wantNil   bool
	}{
		{
			name:      "nil embedding remains nil",
			embedding: nil,
			wantNil:   true,
		},
		{
			name:      "empty embedding vector becomes nil",
			embedding: &pgvector.Vector{},
			wantNil:   true,
		},
		{
			name:      "valid embedding vector remains unchanged",
			embedding: func() *pgvector.Vector { v := pgvector.NewVector([]float32{0.1, 0.2, 0.3}); return &v }(),
			wantNil:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := &SessionRecord{ID: uuid.Nil, Embedding: tt.embedding}

			err := record.BeforeCreate(&gorm.DB{})
			assert.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, record.ID)

			if tt.wantNil {
				assert.Nil(t, record.Embedding)
			} else {
				assert.NotNil(t, record.Embedding)
				assert.Equal(t, tt.embedding.Slice(), record.Embedding.Slice())
			}
		})
	}
}

func TestSessionRecord_BeforeCreate_KeepsExistingID(t *testing.T) {
	id := uuid.New()
	record := &SessionRecord{ID: id}

	err := record.BeforeCreate(&gorm.DB{})

	assert.NoError(t, err)
	assert.Equal(t, id, record.ID)
}

func TestSessionRecord_BeforeUpdate(t *testing.T) {
	record := &SessionRecord{Embedding: &pgvector.Vector{}}

	err := record.BeforeUpdate(&gorm.DB{})

	assert.NoError(t, err)
	assert.Nil(t, record.Embedding)
}

func TestSessionFeedback_ScoreRange(t *testing.T) {
	sessionID := uuid.New()
	for _, score := range []float64{0.0, 0.25, 0.5, 0.75, 1.0} {
		feedback := SessionFeedback{
			SessionID:    sessionID,
			FeedbackText: "Test feedback",
			Score:        score,
		}
		assert.True(t, feedback.Score >= 0.0 && feedback.Score <= 1.0)
	}
}
