package embedding

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/CodeHalwell/MyGPT/domain/chat"
	"github.com/CodeHalwell/MyGPT/domain/embedding"
)

// HTTPService implements embedding.Service against an external embedding
// endpoint that exposes /embed, /health and /ready.
type HTTPService struct {
	config         embedding.Config
	serviceURL     string
	httpClient     *http.Client
	workers        chan struct{} // Semaphore for concurrent requests
	cache          *lru.Cache[string, []float32]
	mu             sync.RWMutex
	initialized    bool
	closed         bool
	circuitBreaker *gobreaker.CircuitBreaker
	rng            *rand.Rand
	rngMutex       sync.Mutex
}

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Embedding  []float32 `json:"embedding"`
	Dimensions int       `json:"dimensions"`
	ModelName  string    `json:"model_name"`
}

// NewHTTPService creates a new HTTP-based embedding service and verifies
// the endpoint is reachable before returning.
func NewHTTPService(config embedding.Config) (*HTTPService, error) {
	if config.ServiceURL == "" {
		return nil, fmt.Errorf("embedding service URL is required")
	}
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = 4
	}
	if config.MaxTextLength <= 0 {
		config.MaxTextLength = 8192
	}
	if config.InferenceTimeout <= 0 {
		config.InferenceTimeout = 5000 // 5 seconds
	}
	if config.CacheSize <= 0 {
		config.CacheSize = 1000
	}

	transport := &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   100,
		MaxConnsPerHost:       100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}

	cache, err := lru.New[string, []float32](config.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	cbSettings := gobreaker.Settings{
		Name:        "embedding-service",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{
				"service": name,
				"from":    from,
				"to":      to,
			}).Warn("Embedding service circuit breaker state changed")
		},
	}

	service := &HTTPService{
		config:     config,
		serviceURL: config.ServiceURL,
		httpClient: &http.Client{
			Timeout:   time.Duration(config.InferenceTimeout) * time.Millisecond,
			Transport: transport,
		},
		workers:        make(chan struct{}, config.MaxWorkers),
		cache:          cache,
		circuitBreaker: gobreaker.NewCircuitBreaker(cbSettings),
		rng:            rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := service.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize HTTP embedding service: %w", err)
	}
	return service, nil
}

func (s *HTTPService) initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.initialized {
		return nil
	}

	logrus.WithField("service_url", s.serviceURL).Info("Initializing HTTP embedding service")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.probe(ctx, "/health"); err != nil {
		return err
	}

	s.initialized = true
	logrus.Info("HTTP embedding service initialized successfully")
	return nil
}

// Embed generates an embedding for the given text
func (s *HTTPService) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := s.checkState(); err != nil {
		return nil, err
	}

	if len(text) > s.config.MaxTextLength {
		logrus.WithField("original_length", len(text)).Warn("Text truncated to maximum length")
		text = text[:s.config.MaxTextLength]
	}

	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("empty text provided")
	}

	cacheKey := s.getCacheKey(text)
	if cached, ok := s.cache.Get(cacheKey); ok {
		return cached, nil
	}

	// Acquire worker semaphore
	select {
	case s.workers <- struct{}{}:
		defer func() { <-s.workers }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	inferenceCtx, cancel := context.WithTimeout(ctx, time.Duration(s.config.InferenceTimeout)*time.Millisecond)
	defer cancel()

	vec, err := s.generateEmbedding(inferenceCtx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}

	s.cache.Add(cacheKey, vec)
	return vec, nil
}

// EmbedMessages generates an embedding for a conversation
func (s *HTTPService) EmbedMessages(ctx context.Context, messages []chat.Message) ([]float32, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("no messages provided")
	}

	var textParts []string
	for _, msg := range messages {
		textParts = append(textParts, fmt.Sprintf("%s: %s", msg.Role, msg.Content))
	}
	return s.Embed(ctx, strings.Join(textParts, "\n"))
}

// BatchEmbed generates embeddings for multiple texts with parallel processing
func (s *HTTPService) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}

	maxBatchSize := 50
	if len(texts) > maxBatchSize {
		return nil, fmt.Errorf("batch size %d exceeds maximum %d", len(texts), maxBatchSize)
	}

	type result struct {
		index     int
		embedding []float32
		err       error
	}

	results := make([][]float32, len(texts))
	resultChan := make(chan result, len(texts))

	for i, text := range texts {
		go func(index int, text string) {
			vec, err := s.Embed(ctx, text)
			resultChan <- result{index: index, embedding: vec, err: err}
		}(i, text)
	}

	for i := 0; i < len(texts); i++ {
		select {
		case res := <-resultChan:
			if res.err != nil {
				return nil, fmt.Errorf("failed to embed text at index %d: %w", res.index, res.err)
			}
			results[res.index] = res.embedding
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return results, nil
}

// generateEmbedding runs the HTTP call through the circuit breaker with
// retries and exponential backoff.
func (s *HTTPService) generateEmbedding(ctx context.Context, text string) ([]float32, error) {
	maxRetries := 3
	var lastErr error

	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			s.rngMutex.Lock()
			base := time.Duration(math.Pow(2, float64(attempt-1))) * 100 * time.Millisecond
			jitter := time.Duration(s.rng.Intn(50)) * time.Millisecond
			s.rngMutex.Unlock()

			backoff := base + jitter
			logrus.WithFields(logrus.Fields{
				"attempt": attempt + 1,
				"backoff": backoff,
			}).Debug("Retrying embedding generation after backoff")

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, err := s.circuitBreaker.Execute(func() (interface{}, error) {
			return s.doEmbeddingRequest(ctx, text)
		})
		if err != nil {
			lastErr = err
			if err == gobreaker.ErrOpenState {
				logrus.Warn("Embedding service circuit breaker is open, failing fast")
				return nil, fmt.Errorf("embedding service circuit breaker open: %w", err)
			}
			logrus.WithFields(logrus.Fields{
				"attempt": attempt + 1,
				"error":   err,
			}).Debug("Embedding generation attempt failed")
			continue
		}

		return result.([]float32), nil
	}

	return nil, fmt.Errorf("embedding generation failed after %d attempts: %w", maxRetries, lastErr)
}

func (s *HTTPService) doEmbeddingRequest(ctx context.Context, text string) ([]float32, error) {
	jsonData, err := json.Marshal(embedRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serviceURL+"/embed", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding service returned status %d", resp.StatusCode)
	}

	var embedResp embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return embedResp.Embedding, nil
}

// GetDimensions returns the dimensionality of embeddings
func (s *HTTPService) GetDimensions() int {
	return 384 // all-MiniLM-L6-v2 dimensions
}

// Health checks if the embedding service is healthy
func (s *HTTPService) Health(ctx context.Context) error {
	return s.checkEndpoint("/health")
}

// Readiness checks if the embedding service is ready to serve requests
func (s *HTTPService) Readiness(ctx context.Context) error {
	return s.checkEndpoint("/ready")
}

func (s *HTTPService) checkState() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("HTTP embedding service is closed")
	}
	if !s.initialized {
		return fmt.Errorf("HTTP embedding service not initialized")
	}
	return nil
}

func (s *HTTPService) checkEndpoint(path string) error {
	if err := s.checkState(); err != nil {
		return err
	}

	_, err := s.circuitBreaker.Execute(func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return nil, s.probe(ctx, path)
	})
	if err == gobreaker.ErrOpenState {
		return fmt.Errorf("embedding service circuit breaker is open")
	}
	return err
}

func (s *HTTPService) probe(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.serviceURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", path, err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach embedding service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("embedding service %s check failed with status: %d", path, resp.StatusCode)
	}
	return nil
}

// Close releases resources
func (s *HTTPService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	s.httpClient.CloseIdleConnections()

	logrus.Info("HTTP embedding service closed")
	return nil
}

func (s *HTTPService) getCacheKey(text string) string {
	hash := sha256.Sum256([]byte(text))
	return hex.EncodeToString(hash[:16])
}
