// Package chat orchestrates streaming and completion use cases: adapter
// selection, fence rechunking, single-level fallback and session tracking.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/CodeHalwell/MyGPT/domain/chat"
	"github.com/CodeHalwell/MyGPT/domain/embedding"
	"github.com/CodeHalwell/MyGPT/domain/model"
	"github.com/CodeHalwell/MyGPT/domain/persistence"
	"github.com/CodeHalwell/MyGPT/internal/fence"
)

const (
	titlePrompt = "Summarize the conversation so far in a concise title of at most 50 characters. Respond with the title only, without quotes."
	tagsPrompt  = "Suggest at most five lowercase keyword tags for the conversation so far. Use hyphens instead of spaces and respond with the tags separated by commas, nothing else."

	defaultTitle  = "New Chat"
	maxTitleRunes = 50
	maxTags       = 5

	// Native model used when a request is rerouted to OpenAI because the
	// requested provider holds no credential or failed mid-stream.
	recoveryModel = "gpt-4o"
)

// Service orchestrates chat use cases across the registered adapters.
type Service struct {
	adapters map[model.Provider]chat.Adapter
	fallback chat.Adapter
	tracker  persistence.SessionTracker
	embedder embedding.Service
	logger   *logrus.Logger
}

func NewService(adapters map[model.Provider]chat.Adapter, fallback chat.Adapter, tracker persistence.SessionTracker, embedder embedding.Service, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		adapters: adapters,
		fallback: fallback,
		tracker:  tracker,
		embedder: embedder,
		logger:   logger,
	}
}

// NewServiceWithoutTracking creates a service with session tracking and
// embedding disabled.
func NewServiceWithoutTracking(adapters map[model.Provider]chat.Adapter, fallback chat.Adapter, logger *logrus.Logger) *Service {
	return NewService(adapters, fallback, nil, nil, logger)
}

// selection is the outcome of resolving a user-facing model identifier
// against the adapters that actually hold credentials.
type selection struct {
	adapter chat.Adapter
	native  string
	live    bool // false when only the null fallback was left
	reroute bool // true when the requested provider could not serve
}

func (s *Service) selectAdapter(modelID string) selection {
	provider := model.ResolveProvider(modelID)
	native := model.ResolveNativeModel(modelID)

	if a, ok := s.adapters[provider]; ok && a.Available() {
		return selection{adapter: a, native: native, live: true}
	}
	if provider != model.ProviderOpenAI {
		if a, ok := s.adapters[model.ProviderOpenAI]; ok && a.Available() {
			return selection{adapter: a, native: recoveryModel, live: true, reroute: true}
		}
	}
	return selection{adapter: s.fallback, native: native, reroute: true}
}

// recoveryAdapter picks where the remainder of a broken stream goes: OpenAI
// when it is available and not the adapter that just failed, otherwise the
// null fallback.
func (s *Service) recoveryAdapter(failed chat.Adapter) (chat.Adapter, string) {
	if a, ok := s.adapters[model.ProviderOpenAI]; ok && a.Available() && a != failed {
		return a, recoveryModel
	}
	return s.fallback, ""
}

// sinkError marks an error as originating from the caller's delta handler
// rather than from a provider. Sink errors never trigger fallback; the
// consumer is gone and producing more text is pointless.
type sinkError struct {
	err error
}

func (e *sinkError) Error() string { return e.err.Error() }
func (e *sinkError) Unwrap() error { return e.err }

// Stream resolves the request to an adapter and relays the response to
// onDelta, rechunked so code fences never arrive split. On a mid-stream
// provider failure the remaining output switches to OpenAI once; a second
// failure terminates the stream. Output already delivered stands either way.
func (s *Service) Stream(ctx context.Context, req *chat.Request, onDelta chat.DeltaHandler) error {
	if err := chat.ValidateMessages(req.Messages); err != nil {
		return err
	}

	sel := s.selectAdapter(req.Model)
	sessionID := sessionIDFromContext(ctx)
	startTime := time.Now()

	s.trackStart(ctx, sessionID, req, sel.adapter.Name(), sel.native, true)

	filter := fence.New()
	var deltaCount, charCount int
	var transcript strings.Builder

	emit := func(unit string) error {
		deltaCount++
		charCount += len(unit)
		transcript.WriteString(unit)
		if err := onDelta(unit); err != nil {
			return &sinkError{err: err}
		}
		return nil
	}
	handler := func(delta string) error {
		for _, unit := range filter.Push(delta) {
			if err := emit(unit); err != nil {
				return err
			}
		}
		return nil
	}

	usedFallback := sel.reroute
	err := sel.adapter.Stream(ctx, req.Messages, sel.native, handler)
	if err != nil {
		var sink *sinkError
		if errors.As(err, &sink) {
			s.trackFail(ctx, sessionID, sink.err.Error())
			return sink.err
		}
		if ctx.Err() != nil {
			s.trackFail(ctx, sessionID, ctx.Err().Error())
			return ctx.Err()
		}

		s.logger.WithFields(logrus.Fields{
			"provider": sel.adapter.Name(),
			"model":    sel.native,
			"session":  sessionID,
		}).WithError(err).Warn("Provider stream failed, switching to fallback")

		usedFallback = true
		next, nextModel := s.recoveryAdapter(sel.adapter)
		if err := next.Stream(ctx, req.Messages, nextModel, handler); err != nil {
			if errors.As(err, &sink) {
				s.trackFail(ctx, sessionID, sink.err.Error())
				return sink.err
			}
			s.trackFail(ctx, sessionID, err.Error())
			return err
		}
	}

	if rest := filter.Flush(); rest != "" {
		if err := emit(rest); err != nil {
			var sink *sinkError
			errors.As(err, &sink)
			s.trackFail(ctx, sessionID, sink.err.Error())
			return sink.err
		}
	}

	s.trackComplete(ctx, sessionID, req.Messages, transcript.String(), usedFallback, persistence.SessionMetrics{
		DeltaCount: deltaCount,
		CharCount:  charCount,
		LatencyMs:  time.Since(startTime).Milliseconds(),
	})
	return nil
}

// Complete resolves the request to an adapter and returns the whole
// response at once, rerouting to OpenAI on a provider error.
func (s *Service) Complete(ctx context.Context, req *chat.Request) (*chat.Completion, error) {
	if err := chat.ValidateMessages(req.Messages); err != nil {
		return nil, err
	}

	sel := s.selectAdapter(req.Model)
	text, err := sel.adapter.Complete(ctx, req.Messages, sel.native)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"provider": sel.adapter.Name(),
			"model":    sel.native,
		}).WithError(err).Warn("Provider completion failed, switching to fallback")

		next, nextModel := s.recoveryAdapter(sel.adapter)
		text, err = next.Complete(ctx, req.Messages, nextModel)
		if err != nil {
			return nil, err
		}
		sel.adapter, sel.native = next, nextModel
	}

	return &chat.Completion{
		Content:  text,
		Model:    sel.native,
		Provider: sel.adapter.Name(),
	}, nil
}

// SummarizeTitle asks the resolved provider for a short chat title. It
// never fails: when no provider can serve, the first user message stands
// in, truncated, or "New Chat" when there is none.
func (s *Service) SummarizeTitle(ctx context.Context, messages []chat.Message, modelID string) string {
	sel := s.selectAdapter(modelID)
	if !sel.live {
		return fallbackTitle(messages)
	}

	title, err := sel.adapter.Complete(ctx, withPrompt(messages, titlePrompt), sel.native)
	if err != nil {
		s.logger.WithError(err).Warn("Title summarization failed, using first message")
		return fallbackTitle(messages)
	}
	title = strings.Trim(strings.TrimSpace(title), "\"'")
	if title == "" || strings.HasPrefix(title, "Error:") {
		return fallbackTitle(messages)
	}
	return truncateRunes(title, maxTitleRunes)
}

// SuggestTags asks the resolved provider for lowercase keyword tags. When
// no provider can serve, a fixed vocabulary scan of the user's own messages
// keeps the result deterministic.
func (s *Service) SuggestTags(ctx context.Context, messages []chat.Message, modelID string) []string {
	sel := s.selectAdapter(modelID)
	if !sel.live {
		return fallbackTags(messages)
	}

	raw, err := sel.adapter.Complete(ctx, withPrompt(messages, tagsPrompt), sel.native)
	if err != nil {
		s.logger.WithError(err).Warn("Tag suggestion failed, using vocabulary scan")
		return fallbackTags(messages)
	}
	if strings.HasPrefix(strings.TrimSpace(raw), "Error:") {
		return fallbackTags(messages)
	}
	if tags := parseTags(raw); len(tags) > 0 {
		return tags
	}
	return fallbackTags(messages)
}

// withPrompt appends an instruction as a trailing user message without
// mutating the caller's slice.
func withPrompt(messages []chat.Message, prompt string) []chat.Message {
	out := make([]chat.Message, 0, len(messages)+1)
	out = append(out, messages...)
	out = append(out, chat.Message{Role: chat.RoleUser, Content: prompt})
	return out
}

func fallbackTitle(messages []chat.Message) string {
	for _, msg := range messages {
		if msg.Role != chat.RoleUser {
			continue
		}
		if t := strings.TrimSpace(msg.Content); t != "" {
			return truncateRunes(t, maxTitleRunes)
		}
	}
	return defaultTitle
}

// tagVocabulary drives the deterministic fallback when no provider is
// reachable. Ordered so repeated calls yield identical tag lists.
var tagVocabulary = []struct {
	needle string
	tag    string
}{
	{"python", "python"},
	{"javascript", "javascript"},
	{"code", "coding"},
	{"data", "data"},
	{"web", "web"},
}

func fallbackTags(messages []chat.Message) []string {
	var b strings.Builder
	for _, msg := range messages {
		if msg.Role == chat.RoleUser {
			b.WriteString(strings.ToLower(msg.Content))
			b.WriteByte('\n')
		}
	}
	text := b.String()

	var tags []string
	for _, entry := range tagVocabulary {
		if strings.Contains(text, entry.needle) {
			tags = append(tags, entry.tag)
		}
	}
	if len(tags) == 0 {
		return []string{"general"}
	}
	return tags
}

func parseTags(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n' || r == ';'
	})

	seen := make(map[string]bool, len(fields))
	var tags []string
	for _, f := range fields {
		tag := strings.ToLower(strings.TrimSpace(f))
		tag = strings.Trim(tag, "#.\"'`")
		tag = strings.ReplaceAll(tag, " ", "-")
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
		if len(tags) == maxTags {
			break
		}
	}
	return tags
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// sessionIDFromContext reuses the request id the HTTP middleware stored in
// the context so session records line up with access logs; outside an HTTP
// request a fresh id is minted.
func sessionIDFromContext(ctx context.Context) uuid.UUID {
	if raw, ok := ctx.Value("request_id").(string); ok {
		if id, err := uuid.Parse(raw); err == nil {
			return id
		}
	}
	return uuid.New()
}

// Tracking helpers run in goroutines detached from the request context so a
// client disconnect never loses the record. A nil tracker disables all of
// them.

func (s *Service) trackStart(ctx context.Context, sessionID uuid.UUID, req *chat.Request, provider, nativeModel string, streaming bool) {
	if s.tracker == nil {
		return
	}
	go func() {
		data, err := json.Marshal(req)
		if err != nil {
			s.logger.WithError(err).Warn("Failed to serialize request for tracking")
			return
		}
		opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.tracker.StartTracking(opCtx, sessionID, data, provider, nativeModel, streaming); err != nil {
			s.logger.WithError(err).WithField("session", sessionID).Warn("Failed to start session tracking")
		}
	}()
}

func (s *Service) trackComplete(ctx context.Context, sessionID uuid.UUID, messages []chat.Message, responseText string, usedFallback bool, metrics persistence.SessionMetrics) {
	if s.tracker == nil {
		return
	}
	go func() {
		opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.tracker.CompleteTracking(opCtx, sessionID, responseText, usedFallback, metrics); err != nil {
			s.logger.WithError(err).WithField("session", sessionID).Warn("Failed to complete session tracking")
		}
	}()

	if s.embedder == nil {
		return
	}
	go func() {
		embedCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		vector, err := s.embedder.EmbedMessages(embedCtx, messages)
		if err != nil || len(vector) == 0 {
			if err != nil {
				s.logger.WithError(err).WithField("session", sessionID).Debug("Failed to embed session transcript")
			}
			return
		}
		if err := s.tracker.UpdateEmbedding(embedCtx, sessionID, vector); err != nil {
			s.logger.WithError(err).WithField("session", sessionID).Warn("Failed to store session embedding")
		}
	}()
}

func (s *Service) trackFail(ctx context.Context, sessionID uuid.UUID, errorMsg string) {
	if s.tracker == nil {
		return
	}
	go func() {
		opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := s.tracker.FailTracking(opCtx, sessionID, errorMsg); err != nil {
			s.logger.WithError(err).WithField("session", sessionID).Warn("Failed to record session failure")
		}
	}()
}
