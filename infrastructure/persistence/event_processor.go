package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/sirupsen/logrus"

	"github.com/CodeHalwell/MyGPT/domain/persistence"
)

// EventProcessor implements persistence.EventProcessor. Writes happen off
// the streaming hot path: the dispatcher enqueues events and a worker pool
// drains them into the repositories.
type EventProcessor struct {
	sessionRepo  persistence.SessionRepository
	metricsRepo  persistence.MetricsRepository
	feedbackRepo persistence.FeedbackRepository
	eventChan    chan any
	workerCount  int
	bufferSize   int

	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	isRunning      atomic.Bool
	processedCount atomic.Int64
	errorCount     atomic.Int64

	lastProcessedTime atomic.Value
}

// NewEventProcessor creates a new event processor
func NewEventProcessor(
	sessionRepo persistence.SessionRepository,
	metricsRepo persistence.MetricsRepository,
	feedbackRepo persistence.FeedbackRepository,
	workerCount int,
	bufferSize int,
) *EventProcessor {
	if workerCount <= 0 {
		workerCount = 5
	}
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	return &EventProcessor{
		sessionRepo:  sessionRepo,
		metricsRepo:  metricsRepo,
		feedbackRepo: feedbackRepo,
		eventChan:    make(chan any, bufferSize),
		workerCount:  workerCount,
		bufferSize:   bufferSize,
	}
}

// Start begins processing events from the channel
func (ep *EventProcessor) Start(ctx context.Context) error {
	if ep.isRunning.Load() {
		return fmt.Errorf("event processor is already running")
	}

	ep.ctx, ep.cancel = context.WithCancel(ctx)
	ep.isRunning.Store(true)
	ep.lastProcessedTime.Store(time.Now())

	for i := 0; i < ep.workerCount; i++ {
		ep.wg.Add(1)
		go ep.worker(i)
	}

	logrus.WithFields(logrus.Fields{
		"worker_count": ep.workerCount,
		"buffer_size":  ep.bufferSize,
	}).Info("Event processor started")

	return nil
}

// Stop gracefully shuts down the event processor. The event channel is
// never closed: detached tracking goroutines may still call ProcessEvent
// during the shutdown window, and a send on a closed channel would panic.
// Producers are fenced by clearing isRunning first; workers drain whatever
// is buffered and exit on the cancelled context.
func (ep *EventProcessor) Stop() error {
	if !ep.isRunning.CompareAndSwap(true, false) {
		return nil
	}

	logrus.Info("Stopping event processor...")

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logrus.Info("Event processor stopped gracefully")
	case <-time.After(30 * time.Second):
		logrus.Warn("Event processor stop timed out")
	}

	return nil
}

// ProcessEvent sends an event to be processed asynchronously
func (ep *EventProcessor) ProcessEvent(event interface{}) error {
	if !ep.isRunning.Load() {
		return fmt.Errorf("event processor is not running")
	}

	select {
	case ep.eventChan <- event:
		return nil
	case <-ep.ctx.Done():
		return fmt.Errorf("event processor is shutting down")
	default:
		// Channel is full, drop rather than block the streaming path
		ep.errorCount.Add(1)
		logrus.Warn("Event processor queue is full, dropping event")
		return fmt.Errorf("event processor queue is full")
	}
}

// Health returns the health status of the processor
func (ep *EventProcessor) Health() persistence.ProcessorHealth {
	return persistence.ProcessorHealth{
		IsRunning:      ep.isRunning.Load(),
		QueueSize:      len(ep.eventChan),
		ProcessedCount: ep.processedCount.Load(),
		ErrorCount:     ep.errorCount.Load(),
	}
}

func (ep *EventProcessor) worker(workerID int) {
	defer ep.wg.Done()

	logger := logrus.WithField("worker_id", workerID)
	logger.Info("Event processor worker started")

	for {
		select {
		case event := <-ep.eventChan:
			ep.handleEvent(event, logger)

		case <-ep.ctx.Done():
			ep.drain(logger)
			return
		}
	}
}

// drain empties whatever is already buffered at shutdown so accepted
// events still reach the repositories.
func (ep *EventProcessor) drain(logger *logrus.Entry) {
	for {
		select {
		case event := <-ep.eventChan:
			ep.handleEvent(event, logger)
		default:
			logger.Info("Worker stopping")
			return
		}
	}
}

// handleEvent runs one event with its own timeout, detached from the
// processor context so draining still works after cancellation.
func (ep *EventProcessor) handleEvent(event any, logger *logrus.Entry) {
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ep.ctx), 10*time.Second)
	defer cancel()

	if err := ep.processEvent(opCtx, event); err != nil {
		ep.errorCount.Add(1)
		logger.WithError(err).Error("Failed to process event")
	} else {
		ep.processedCount.Add(1)
		ep.lastProcessedTime.Store(time.Now())
	}
}

func (ep *EventProcessor) processEvent(ctx context.Context, event interface{}) error {
	switch e := event.(type) {
	case persistence.PersistenceEvent[persistence.CreateSessionEvent]:
		return ep.handleCreateSession(ctx, e.Data)
	case persistence.PersistenceEvent[persistence.UpdateSessionEvent]:
		return ep.handleUpdateSession(ctx, e.Data)
	case persistence.PersistenceEvent[persistence.CreateMetricsEvent]:
		return ep.handleCreateMetrics(ctx, e.Data)
	case persistence.PersistenceEvent[persistence.CreateFeedbackEvent]:
		return ep.handleCreateFeedback(ctx, e.Data)

	case persistence.CreateSessionEvent:
		return ep.handleCreateSession(ctx, e)
	case persistence.UpdateSessionEvent:
		return ep.handleUpdateSession(ctx, e)
	case persistence.CreateMetricsEvent:
		return ep.handleCreateMetrics(ctx, e)
	case persistence.CreateFeedbackEvent:
		return ep.handleCreateFeedback(ctx, e)

	default:
		return fmt.Errorf("unknown event type: %T", event)
	}
}

func (ep *EventProcessor) handleCreateSession(ctx context.Context, event persistence.CreateSessionEvent) error {
	record := &persistence.SessionRecord{
		ID:          event.SessionID,
		RequestData: event.RequestData,
		Provider:    event.Provider,
		Model:       event.Model,
		IsStreaming: event.IsStreaming,
		Status:      persistence.SessionStatusPending,
		Embedding:   nil, // Set later once the embedding is generated
	}

	if err := ep.sessionRepo.Create(ctx, record); err != nil {
		return fmt.Errorf("failed to create session record: %w", err)
	}
	return nil
}

func (ep *EventProcessor) handleUpdateSession(ctx context.Context, event persistence.UpdateSessionEvent) error {
	record, err := ep.sessionRepo.FindByID(ctx, event.SessionID)
	if err != nil {
		return fmt.Errorf("failed to find session for update: %w", err)
	}

	record.ResponseText = event.ResponseText
	record.UsedFallback = event.UsedFallback
	record.Status = event.Status

	return ep.sessionRepo.Update(ctx, record)
}

// UpdateSessionEmbedding updates the embedding for an existing session
func (ep *EventProcessor) UpdateSessionEmbedding(ctx context.Context, sessionID uuid.UUID, embedding []float32) error {
	record, err := ep.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to find session for embedding update: %w", err)
	}

	if len(embedding) > 0 {
		vector := pgvector.NewVector(embedding)
		record.Embedding = &vector
	} else {
		record.Embedding = nil
	}

	return ep.sessionRepo.Update(ctx, record)
}

// handleCreateMetrics creates or updates session metrics. The session row
// is written by another worker, so retry briefly when it is not there yet.
func (ep *EventProcessor) handleCreateMetrics(ctx context.Context, event persistence.CreateMetricsEvent) error {
	if err := ep.awaitSession(ctx, event.SessionID); err != nil {
		logrus.WithError(err).WithField("session_id", event.SessionID).Warn("Cannot create metrics: session not found after retries")
		return fmt.Errorf("cannot create metrics for non-existent session: %w", err)
	}

	metrics := &persistence.SessionMetrics{
		SessionID:  event.SessionID,
		DeltaCount: event.DeltaCount,
		CharCount:  event.CharCount,
		LatencyMs:  event.LatencyMs,
	}

	return ep.metricsRepo.CreateOrUpdate(ctx, metrics)
}

func (ep *EventProcessor) handleCreateFeedback(ctx context.Context, event persistence.CreateFeedbackEvent) error {
	if err := ep.awaitSession(ctx, event.SessionID); err != nil {
		logrus.WithError(err).WithField("session_id", event.SessionID).Warn("Cannot create feedback: session not found after retries")
		return fmt.Errorf("cannot create feedback for non-existent session: %w", err)
	}

	feedback := &persistence.SessionFeedback{
		SessionID:    event.SessionID,
		FeedbackText: event.FeedbackText,
		Score:        event.Score,
	}

	return ep.feedbackRepo.Create(ctx, feedback)
}

func (ep *EventProcessor) awaitSession(ctx context.Context, sessionID uuid.UUID) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		_, err = ep.sessionRepo.FindByID(ctx, sessionID)
		if err == nil {
			return nil
		}
		if !strings.Contains(err.Error(), "record not found") {
			return err
		}
		logrus.WithError(err).WithFields(logrus.Fields{
			"session_id": sessionID,
			"attempt":    attempt + 1,
		}).Warn("Session not found yet, retrying...")
		time.Sleep(time.Duration(attempt+1) * 200 * time.Millisecond)
	}
	return err
}

// SessionTracker implements persistence.SessionTracker using the event processor
type SessionTracker struct {
	processor persistence.EventProcessor
}

// NewSessionTracker creates a new session tracker
func NewSessionTracker(processor persistence.EventProcessor) persistence.SessionTracker {
	return &SessionTracker{processor: processor}
}

// StartTracking begins tracking a new exchange
func (st *SessionTracker) StartTracking(ctx context.Context, sessionID uuid.UUID, requestData []byte, provider, model string, isStreaming bool) error {
	event := persistence.CreateSessionEvent{
		SessionID:   sessionID,
		RequestData: json.RawMessage(requestData),
		Provider:    provider,
		Model:       model,
		IsStreaming: isStreaming,
	}
	return st.processor.ProcessEvent(event)
}

// CompleteTracking finalizes tracking with the produced text
func (st *SessionTracker) CompleteTracking(ctx context.Context, sessionID uuid.UUID, responseText string, usedFallback bool, metrics persistence.SessionMetrics) error {
	updateEvent := persistence.UpdateSessionEvent{
		SessionID:    sessionID,
		ResponseText: responseText,
		UsedFallback: usedFallback,
		Status:       persistence.SessionStatusCompleted,
	}
	if err := st.processor.ProcessEvent(updateEvent); err != nil {
		return fmt.Errorf("failed to process update session event: %w", err)
	}

	metricsEvent := persistence.CreateMetricsEvent{
		SessionID:  sessionID,
		DeltaCount: metrics.DeltaCount,
		CharCount:  metrics.CharCount,
		LatencyMs:  metrics.LatencyMs,
	}
	if err := st.processor.ProcessEvent(metricsEvent); err != nil {
		return fmt.Errorf("failed to process create metrics event: %w", err)
	}

	return nil
}

// FailTracking marks an exchange as failed
func (st *SessionTracker) FailTracking(ctx context.Context, sessionID uuid.UUID, errorMsg string) error {
	event := persistence.UpdateSessionEvent{
		SessionID:    sessionID,
		ResponseText: errorMsg,
		Status:       persistence.SessionStatusFailed,
	}
	return st.processor.ProcessEvent(event)
}

// SubmitFeedback adds feedback for an exchange
func (st *SessionTracker) SubmitFeedback(ctx context.Context, sessionID uuid.UUID, feedbackText string, score float64) error {
	event := persistence.CreateFeedbackEvent{
		SessionID:    sessionID,
		FeedbackText: feedbackText,
		Score:        score,
	}
	return st.processor.ProcessEvent(event)
}

// UpdateEmbedding updates the embedding for an exchange
func (st *SessionTracker) UpdateEmbedding(ctx context.Context, sessionID uuid.UUID, embedding []float32) error {
	if ep, ok := st.processor.(*EventProcessor); ok {
		return ep.UpdateSessionEmbedding(ctx, sessionID, embedding)
	}
	return fmt.Errorf("processor does not support embedding updates")
}
