package embedding

import (
	"context"

	"github.com/CodeHalwell/MyGPT/domain/chat"
)

// Service defines the interface for text embedding generation
type Service interface {
	// Embed generates an embedding for the given text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedMessages generates an embedding for a conversation
	EmbedMessages(ctx context.Context, messages []chat.Message) ([]float32, error)

	// BatchEmbed generates embeddings for multiple texts
	BatchEmbed(ctx context.Context, texts []string) ([][]float32, error)

	// GetDimensions returns the dimensionality of embeddings
	GetDimensions() int

	// Health checks if the embedding service is healthy
	Health(ctx context.Context) error

	// Readiness checks if the embedding service is ready to serve requests
	Readiness(ctx context.Context) error

	// Close releases resources
	Close() error
}

// Config holds configuration for the embedding service
type Config struct {
	ServiceURL       string // Base URL of the embedding HTTP service
	MaxWorkers       int    // Number of concurrent inference requests
	MaxTextLength    int    // Maximum text length to process
	InferenceTimeout int    // Timeout in milliseconds
	CacheSize        int    // LRU cache size for embeddings
}
