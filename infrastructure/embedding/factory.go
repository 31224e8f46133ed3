package embedding

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/CodeHalwell/MyGPT/domain/embedding"
)

// ServiceType represents the type of embedding service to use
type ServiceType string

const (
	// LocalType derives embeddings from a deterministic hash
	LocalType ServiceType = "local"
	// HTTPType calls an external embedding endpoint
	HTTPType ServiceType = "http"
)

// NewService creates an embedding service based on the configured type
func NewService(serviceType ServiceType, config embedding.Config) (embedding.Service, error) {
	logrus.WithField("service_type", serviceType).Info("Creating embedding service")

	switch serviceType {
	case LocalType:
		return NewLocalService(config)
	case HTTPType:
		if config.ServiceURL == "" {
			return nil, fmt.Errorf("service URL is required for HTTP embedding service")
		}
		return NewHTTPService(config)
	default:
		return nil, fmt.Errorf("unsupported embedding service type: %s", serviceType)
	}
}

// SupportedTypes returns all supported embedding service types
func SupportedTypes() []ServiceType {
	return []ServiceType{LocalType, HTTPType}
}

// IsValidType checks if the given service type is valid
func IsValidType(serviceType ServiceType) bool {
	for _, validType := range SupportedTypes() {
		if validType == serviceType {
			return true
		}
	}
	return false
}

// DefaultType returns the default embedding service type
func DefaultType() ServiceType {
	return LocalType
}
