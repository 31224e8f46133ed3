package embedding

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/CodeHalwell/MyGPT/domain/chat"
	"github.com/CodeHalwell/MyGPT/domain/embedding"
)

// LocalService implements embedding.Service with deterministic hash-based
// vectors. It needs no external model, which makes it the default for
// development and the fallback when no embedding endpoint is configured.
// Vectors are stable per input so similarity lookups stay repeatable.
type LocalService struct {
	config      embedding.Config
	workers     chan struct{} // Semaphore for worker pool
	cache       *lru.Cache[string, []float32]
	mu          sync.RWMutex
	initialized bool
	closed      bool
}

// NewLocalService creates a new local embedding service
func NewLocalService(config embedding.Config) (*LocalService, error) {
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

	cache, err := lru.New[string, []float32](config.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}

	service := &LocalService{
		config:  config,
		workers: make(chan struct{}, config.MaxWorkers),
		cache:   cache,
	}

	service.mu.Lock()
	service.initialized = true
	service.mu.Unlock()
	logrus.Info("Local embedding service initialized")

	return service, nil
}

// Embed generates a deterministic embedding for the given text
func (s *LocalService) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := s.checkHealth(); err != nil {
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
func (s *LocalService) EmbedMessages(ctx context.Context, messages []chat.Message) ([]float32, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("no messages provided")
	}

	// Concatenate messages with role prefixes
	var textParts []string
	for _, msg := range messages {
		textParts = append(textParts, fmt.Sprintf("%s: %s", msg.Role, msg.Content))
	}

	return s.Embed(ctx, strings.Join(textParts, "\n"))
}

// BatchEmbed generates embeddings for multiple texts with parallel processing
func (s *LocalService) BatchEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("no texts provided")
	}

	maxBatchSize := 100
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

// generateEmbedding derives a stable 384-dimension vector from the text hash
func (s *LocalService) generateEmbedding(ctx context.Context, text string) ([]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	hash := sha256.Sum256([]byte(text))
	vec := make([]float32, 384)
	for i := 0; i < 384; i++ {
		vec[i] = float32(hash[i%32]) / 255.0
	}

	logrus.WithField("text_length", len(text)).Debug("Generated local embedding")
	return vec, nil
}

// GetDimensions returns the dimensionality of embeddings
func (s *LocalService) GetDimensions() int {
	return 384 // matches all-MiniLM-L6-v2
}

// Health checks if the embedding service is healthy
func (s *LocalService) Health(ctx context.Context) error {
	return s.checkHealth()
}

// Readiness checks if the embedding service is ready to serve requests
func (s *LocalService) Readiness(ctx context.Context) error {
	return s.checkHealth()
}

func (s *LocalService) checkHealth() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("local embedding service is closed")
	}
	if !s.initialized {
		return fmt.Errorf("local embedding service not initialized")
	}
	return nil
}

// Close releases resources
func (s *LocalService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	logrus.Info("Local embedding service closed")
	return nil
}

func (s *LocalService) getCacheKey(text string) string {
	hash := sha256.Sum256([]byte(text))
	return fmt.Sprintf("local_%x", hash[:16])
}
