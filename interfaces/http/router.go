// Package httpiface exposes the streaming core over HTTP: an SSE relay for
// chat streams, synchronous completion/title/tag endpoints and the probe
// endpoints a load balancer needs.
package httpiface

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	domain "github.com/CodeHalwell/MyGPT/domain/chat"
	"github.com/CodeHalwell/MyGPT/domain/persistence"
)

// ChatService is the application surface the router relays to.
type ChatService interface {
	Stream(ctx context.Context, req *domain.Request, onDelta domain.DeltaHandler) error
	Complete(ctx context.Context, req *domain.Request) (*domain.Completion, error)
	SummarizeTitle(ctx context.Context, messages []domain.Message, modelID string) string
	SuggestTags(ctx context.Context, messages []domain.Message, modelID string) []string
}

// EmbeddingProbe is the slice of the embedding service the health endpoints
// need.
type EmbeddingProbe interface {
	Health(ctx context.Context) error
	Readiness(ctx context.Context) error
}

type Router struct {
	service     ChatService
	corsOrigins []string
	tracker     persistence.SessionTracker
	metricsRepo persistence.MetricsRepository
	sessionRepo persistence.SessionRepository
	dbManager   persistence.DatabaseManager
	processor   persistence.EventProcessor
	embedProbe  EmbeddingProbe
}

func NewRouter(service ChatService, corsOrigins []string) *Router {
	return &Router{
		service:     service,
		corsOrigins: corsOrigins,
	}
}

// NewRouterWithPersistence creates a router that also serves the feedback
// and session observability endpoints.
func NewRouterWithPersistence(
	service ChatService,
	corsOrigins []string,
	tracker persistence.SessionTracker,
	metricsRepo persistence.MetricsRepository,
	sessionRepo persistence.SessionRepository,
	dbManager persistence.DatabaseManager,
	processor persistence.EventProcessor,
	embedProbe EmbeddingProbe,
) *Router {
	return &Router{
		service:     service,
		corsOrigins: corsOrigins,
		tracker:     tracker,
		metricsRepo: metricsRepo,
		sessionRepo: sessionRepo,
		dbManager:   dbManager,
		processor:   processor,
		embedProbe:  embedProbe,
	}
}

func (r *Router) SetupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(r.corsMiddleware())

	// Probe endpoints stay outside the request-id middleware so monitoring
	// tools need no special headers.
	router.GET("/live", r.liveness)
	router.GET("/ready", r.readiness)
	router.GET("/health", r.healthCheck)

	api := router.Group("/v1")
	api.Use(r.requestIDMiddleware())
	api.POST("/chat/stream", r.chatStream)
	api.POST("/chat/completions", r.chatCompletions)
	api.POST("/chat/title", r.chatTitle)
	api.POST("/chat/tags", r.chatTags)

	if r.tracker != nil && r.metricsRepo != nil && r.sessionRepo != nil {
		api.POST("/feedback", r.submitFeedback)
		api.GET("/metrics/:session-id", r.getSessionMetrics)
		api.GET("/metrics", r.getAggregatedMetrics)
		api.GET("/sessions/:session-id", r.getSession)
	}

	return router
}

func (r *Router) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqOrigin := c.GetHeader("Origin")
		if reqOrigin == "" {
			c.Header("Access-Control-Allow-Origin", strings.Join(r.corsOrigins, ", "))
		} else {
			allowOrigin := ""
			if len(r.corsOrigins) == 1 && r.corsOrigins[0] == "*" {
				allowOrigin = "*"
			} else {
				for _, allowed := range r.corsOrigins {
					if allowed == reqOrigin {
						allowOrigin = reqOrigin
						break
					}
				}
			}
			if allowOrigin != "" {
				c.Header("Access-Control-Allow-Origin", allowOrigin)
			}
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// requestIDMiddleware assigns every request a UUID so session records line
// up with access logs. Browsers calling the chat endpoints rarely send one,
// so an absent or unparseable X-Request-ID is replaced rather than
// rejected.
func (r *Router) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.New()
		if header := c.GetHeader("X-Request-ID"); header != "" {
			if parsed, err := uuid.Parse(header); err == nil {
				requestID = parsed
			} else {
				c.Header("X-Client-Request-ID", header)
			}
		}

		c.Header("X-Request-ID", requestID.String())
		c.Set("request_id", requestID.String())
		c.Next()
	}
}

// requestContext copies the gin-scoped request id into the context handed
// to the application layer.
func requestContext(c *gin.Context) context.Context {
	ctx := c.Request.Context()
	if requestID, exists := c.Get("request_id"); exists {
		ctx = context.WithValue(ctx, "request_id", requestID)
	}
	return ctx
}

func (r *Router) healthCheck(c *gin.Context) {
	checks := gin.H{
		"api": "ok",
	}
	overallOK := true

	if r.dbManager != nil {
		if err := r.dbManager.Health(c.Request.Context()); err != nil {
			checks["db"] = gin.H{"ok": false, "error": err.Error()}
			overallOK = false
		} else {
			checks["db"] = gin.H{"ok": true}
		}
	}

	if r.processor != nil {
		ph := r.processor.Health()
		checks["processor"] = ph
		if !ph.IsRunning {
			overallOK = false
		}
	}

	if r.embedProbe != nil {
		if err := r.embedProbe.Health(c.Request.Context()); err != nil {
			checks["embedding_service"] = gin.H{"ok": false, "error": err.Error()}
			overallOK = false
		} else {
			checks["embedding_service"] = gin.H{"ok": true}
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !overallOK {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"service":   "mygpt-stream-core",
		"version":   "1.0.0",
		"checks":    checks,
	})
}

// liveness probe: process is up and serving HTTP
func (r *Router) liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// readiness probe: dependencies healthy and ready to serve traffic
func (r *Router) readiness(c *gin.Context) {
	checks := gin.H{}
	ready := true

	if r.dbManager != nil {
		if err := r.dbManager.Health(c.Request.Context()); err != nil {
			checks["db"] = gin.H{"ok": false, "error": err.Error()}
			ready = false
		} else {
			checks["db"] = gin.H{"ok": true}
		}
	}

	if r.processor != nil {
		ph := r.processor.Health()
		checks["processor"] = ph
		if !ph.IsRunning {
			ready = false
		}
	}

	if r.embedProbe != nil {
		if err := r.embedProbe.Readiness(c.Request.Context()); err != nil {
			checks["embedding_service"] = gin.H{"ok": false, "error": err.Error()}
			ready = false
		} else {
			checks["embedding_service"] = gin.H{"ok": true}
		}
	}

	status := "ready"
	code := http.StatusOK
	if !ready {
		status = "not_ready"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":    status,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks":    checks,
	})
}

// streamEvent is one SSE payload: a single normalized delta.
type streamEvent struct {
	Delta string `json:"delta"`
}

func (r *Router) chatStream(c *gin.Context) {
	var req domain.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Error("Failed to bind stream request")
		c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "Invalid request format"})
		return
	}
	if err := domain.ValidateMessages(req.Messages); err != nil {
		c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: err.Error()})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, domain.ErrorResponse{Error: "Streaming not supported by server"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)

	err := r.service.Stream(requestContext(c), &req, func(delta string) error {
		data, err := json.Marshal(streamEvent{Delta: delta})
		if err != nil {
			return err
		}
		if _, err := c.Writer.Write([]byte("data: ")); err != nil {
			return err
		}
		if _, err := c.Writer.Write(data); err != nil {
			return err
		}
		if _, err := c.Writer.Write([]byte("\n\n")); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		// Headers are already out; the broken stream is the only signal
		// left to the client.
		logrus.WithError(err).Error("Streaming failed")
		return
	}

	c.Writer.Write([]byte("data: [DONE]\n\n"))
	flusher.Flush()
}

func (r *Router) chatCompletions(c *gin.Context) {
	var req domain.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Error("Failed to bind completion request")
		c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "Invalid request format"})
		return
	}

	resp, err := r.service.Complete(requestContext(c), &req)
	if err != nil {
		logrus.WithError(err).Error("Failed to process completion")
		c.JSON(http.StatusInternalServerError, domain.ErrorResponse{Error: "Failed to process request"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (r *Router) chatTitle(c *gin.Context) {
	var req domain.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "Invalid request format"})
		return
	}
	if len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "Messages cannot be empty"})
		return
	}

	title := r.service.SummarizeTitle(requestContext(c), req.Messages, req.Model)
	c.JSON(http.StatusOK, domain.TitleResponse{Title: title})
}

func (r *Router) chatTags(c *gin.Context) {
	var req domain.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "Invalid request format"})
		return
	}
	if len(req.Messages) == 0 {
		c.JSON(http.StatusBadRequest, domain.ErrorResponse{Error: "Messages cannot be empty"})
		return
	}

	tags := r.service.SuggestTags(requestContext(c), req.Messages, req.Model)
	c.JSON(http.StatusOK, domain.TagsResponse{Tags: tags})
}

// FeedbackRequest represents the structure for feedback submission
type FeedbackRequest struct {
	SessionID    string  `json:"session_id" binding:"required"`
	FeedbackText string  `json:"feedback_text"`
	Score        float64 `json:"score" binding:"min=0,max=1"`
}

func (r *Router) submitFeedback(c *gin.Context) {
	var req FeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format", "details": err.Error()})
		return
	}

	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID format"})
		return
	}

	go func(parentCtx context.Context) {
		opCtx, cancel := context.WithTimeout(context.WithoutCancel(parentCtx), 5*time.Second)
		defer cancel()
		if err := r.tracker.SubmitFeedback(opCtx, sessionID, req.FeedbackText, req.Score); err != nil {
			logrus.WithError(err).Errorf("Failed to submit feedback for session %s", sessionID)
		}
	}(c.Request.Context())

	c.JSON(http.StatusAccepted, gin.H{
		"message":    "Feedback submitted successfully",
		"session_id": req.SessionID,
	})
}

func (r *Router) getSessionMetrics(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("session-id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID format"})
		return
	}

	metrics, err := r.metricsRepo.FindBySessionID(c.Request.Context(), sessionID)
	if err != nil {
		logrus.WithError(err).Errorf("Failed to get metrics for session %s", sessionID)
		c.JSON(http.StatusNotFound, gin.H{"error": "Metrics not found for the specified session"})
		return
	}
	c.JSON(http.StatusOK, metrics)
}

func (r *Router) getAggregatedMetrics(c *gin.Context) {
	limitStr := c.DefaultQuery("limit", "1000")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
		return
	}

	metrics, err := r.metricsRepo.GetAggregatedMetrics(c.Request.Context(), limit)
	if err != nil {
		logrus.WithError(err).Error("Failed to get aggregated metrics")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve aggregated metrics"})
		return
	}
	c.JSON(http.StatusOK, metrics)
}

func (r *Router) getSession(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("session-id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session ID format"})
		return
	}

	record, err := r.sessionRepo.FindByIDWithRelations(c.Request.Context(), sessionID)
	if err != nil {
		logrus.WithError(err).Errorf("Failed to get session %s", sessionID)
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	c.JSON(http.StatusOK, record)
}
