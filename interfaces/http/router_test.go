package httpiface

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/CodeHalwell/MyGPT/domain/chat"
)

// stubService scripts the application surface so handler behavior can be
// asserted without real adapters.
type stubService struct {
	deltas      []string
	streamErr   error
	completion  *domain.Completion
	completeErr error
	title       string
	tags        []string

	lastModel    string
	ctxRequestID string
}

func (s *stubService) Stream(ctx context.Context, req *domain.Request, onDelta domain.DeltaHandler) error {
	s.lastModel = req.Model
	if id, ok := ctx.Value("request_id").(string); ok {
		s.ctxRequestID = id
	}
	for _, d := range s.deltas {
		if err := onDelta(d); err != nil {
			return err
		}
	}
	return s.streamErr
}

func (s *stubService) Complete(_ context.Context, req *domain.Request) (*domain.Completion, error) {
	s.lastModel = req.Model
	return s.completion, s.completeErr
}

func (s *stubService) SummarizeTitle(_ context.Context, _ []domain.Message, modelID string) string {
	s.lastModel = modelID
	return s.title
}

func (s *stubService) SuggestTags(_ context.Context, _ []domain.Message, modelID string) []string {
	s.lastModel = modelID
	return s.tags
}

func postJSON(t *testing.T, engine http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, _ := http.NewRequest("POST", path, bytes.NewBuffer(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestNewRouter(t *testing.T) {
	service := &stubService{}
	corsOrigins := []string{"https://example.com", "https://test.com"}

	router := NewRouter(service, corsOrigins)

	assert.NotNil(t, router)
	assert.Equal(t, corsOrigins, router.corsOrigins)
	assert.Nil(t, router.tracker)
}

func TestSetupRoutes(t *testing.T) {
	router := NewRouter(&stubService{}, []string{"*"})

	engine := router.SetupRoutes()
	require.NotNil(t, engine)

	routePaths := make([]string, 0)
	for _, route := range engine.Routes() {
		routePaths = append(routePaths, route.Path)
	}

	assert.Contains(t, routePaths, "/live")
	assert.Contains(t, routePaths, "/ready")
	assert.Contains(t, routePaths, "/health")
	assert.Contains(t, routePaths, "/v1/chat/stream")
	assert.Contains(t, routePaths, "/v1/chat/completions")
	assert.Contains(t, routePaths, "/v1/chat/title")
	assert.Contains(t, routePaths, "/v1/chat/tags")
	// Observability routes need persistence wiring
	assert.NotContains(t, routePaths, "/v1/feedback")
}

func TestHealthCheck(t *testing.T) {
	engine := NewRouter(&stubService{}, []string{"*"}).SetupRoutes()

	req, _ := http.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "healthy", response["status"])
	assert.Equal(t, "mygpt-stream-core", response["service"])
	assert.NotEmpty(t, response["timestamp"])

	checks, ok := response["checks"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "ok", checks["api"])
}

func TestLivenessAndReadiness(t *testing.T) {
	engine := NewRouter(&stubService{}, []string{"*"}).SetupRoutes()

	for _, path := range []string{"/live", "/ready"} {
		req, _ := http.NewRequest("GET", path, nil)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestChatStreamSSE(t *testing.T) {
	service := &stubService{deltas: []string{"Hello ", "world"}}
	engine := NewRouter(service, []string{"*"}).SetupRoutes()

	w := postJSON(t, engine, "/v1/chat/stream", domain.Request{
		Messages: []domain.Message{{Role: "user", Content: "hi"}},
		Model:    "gpt-4o",
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")

	body := w.Body.String()
	assert.Contains(t, body, `data: {"delta":"Hello "}`+"\n\n")
	assert.Contains(t, body, `data: {"delta":"world"}`+"\n\n")
	assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"))
	assert.Equal(t, "gpt-4o", service.lastModel)
}

func TestChatStreamCarriesRequestID(t *testing.T) {
	service := &stubService{deltas: []string{"x"}}
	engine := NewRouter(service, []string{"*"}).SetupRoutes()

	requestID := "550e8400-e29b-41d4-a716-446655440000"
	data, _ := json.Marshal(domain.Request{
		Messages: []domain.Message{{Role: "user", Content: "hi"}},
	})
	req, _ := http.NewRequest("POST", "/v1/chat/stream", bytes.NewBuffer(data))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, requestID, w.Header().Get("X-Request-ID"))
	assert.Equal(t, requestID, service.ctxRequestID)
}

func TestRequestIDGeneratedWhenAbsent(t *testing.T) {
	service := &stubService{deltas: []string{"x"}}
	engine := NewRouter(service, []string{"*"}).SetupRoutes()

	w := postJSON(t, engine, "/v1/chat/stream", domain.Request{
		Messages: []domain.Message{{Role: "user", Content: "hi"}},
	})

	generated := w.Header().Get("X-Request-ID")
	_, err := uuid.Parse(generated)
	assert.NoError(t, err)
	assert.Equal(t, generated, service.ctxRequestID)
}

func TestRequestIDNonUUIDReplaced(t *testing.T) {
	service := &stubService{deltas: []string{"x"}}
	engine := NewRouter(service, []string{"*"}).SetupRoutes()

	data, _ := json.Marshal(domain.Request{
		Messages: []domain.Message{{Role: "user", Content: "hi"}},
	})
	req, _ := http.NewRequest("POST", "/v1/chat/stream", bytes.NewBuffer(data))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", "not-a-uuid")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, "not-a-uuid", w.Header().Get("X-Client-Request-ID"))
	_, err := uuid.Parse(w.Header().Get("X-Request-ID"))
	assert.NoError(t, err)
}

func TestChatStreamInvalidBody(t *testing.T) {
	engine := NewRouter(&stubService{}, []string{"*"}).SetupRoutes()

	req, _ := http.NewRequest("POST", "/v1/chat/stream", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatStreamEmptyMessages(t *testing.T) {
	engine := NewRouter(&stubService{}, []string{"*"}).SetupRoutes()

	w := postJSON(t, engine, "/v1/chat/stream", domain.Request{Model: "gpt-4o"})

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp domain.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "messages cannot be empty", resp.Error)
}

func TestChatCompletionsSuccess(t *testing.T) {
	service := &stubService{
		completion: &domain.Completion{
			Content:  "Hello there!",
			Model:    "gpt-4o",
			Provider: "openai",
		},
	}
	engine := NewRouter(service, []string{"*"}).SetupRoutes()

	w := postJSON(t, engine, "/v1/chat/completions", domain.Request{
		Messages: []domain.Message{{Role: "user", Content: "Hello"}},
		Model:    "gpt-4o",
	})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp domain.Completion
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Hello there!", resp.Content)
	assert.Equal(t, "openai", resp.Provider)
}

func TestChatCompletionsServiceError(t *testing.T) {
	service := &stubService{completeErr: errors.New("all providers down")}
	engine := NewRouter(service, []string{"*"}).SetupRoutes()

	w := postJSON(t, engine, "/v1/chat/completions", domain.Request{
		Messages: []domain.Message{{Role: "user", Content: "Hello"}},
	})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestChatTitle(t *testing.T) {
	service := &stubService{title: "Database Indexing Basics"}
	engine := NewRouter(service, []string{"*"}).SetupRoutes()

	w := postJSON(t, engine, "/v1/chat/title", domain.Request{
		Messages: []domain.Message{{Role: "user", Content: "How do indexes work?"}},
		Model:    "claude-sonnet-4",
	})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp domain.TitleResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Database Indexing Basics", resp.Title)
	assert.Equal(t, "claude-sonnet-4", service.lastModel)
}

func TestChatTags(t *testing.T) {
	service := &stubService{tags: []string{"python", "coding"}}
	engine := NewRouter(service, []string{"*"}).SetupRoutes()

	w := postJSON(t, engine, "/v1/chat/tags", domain.Request{
		Messages: []domain.Message{{Role: "user", Content: "Fix my Python code"}},
	})

	assert.Equal(t, http.StatusOK, w.Code)

	var resp domain.TagsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, []string{"python", "coding"}, resp.Tags)
}

func TestCORSPreflight(t *testing.T) {
	engine := NewRouter(&stubService{}, []string{"*"}).SetupRoutes()

	req, _ := http.NewRequest("OPTIONS", "/v1/chat/stream", nil)
	req.Header.Set("Origin", "https://example.com")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), "POST")
}

func TestCORSRejectsUnknownOrigin(t *testing.T) {
	engine := NewRouter(&stubService{}, []string{"https://app.example.com"}).SetupRoutes()

	req, _ := http.NewRequest("GET", "/live", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
