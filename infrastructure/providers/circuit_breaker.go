package providers

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/CodeHalwell/MyGPT/domain/chat"
)

// CircuitBreakerConfig holds configuration for circuit breaker behavior
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled" json:"enabled"`
	FailureThreshold uint32        `yaml:"failure_threshold" json:"failure_threshold"`
	SuccessThreshold uint32        `yaml:"success_threshold" json:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
	MaxRequests      uint32        `yaml:"max_requests" json:"max_requests"`
}

// DefaultCircuitBreakerConfig returns sensible defaults for circuit breaker configuration
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 5,                // Open after 5 consecutive failures
		SuccessThreshold: 2,                // Close after 2 successes in half-open state
		Timeout:          60 * time.Second, // Stay open for 60 seconds
		MaxRequests:      3,                // Allow max 3 requests in half-open state
	}
}

// CircuitBreakerAdapter wraps a provider adapter with circuit breaker
// functionality. It maintains separate circuit breakers per native model
// for granular failure isolation: one misbehaving model does not blind
// the dispatcher to the provider's other models.
type CircuitBreakerAdapter struct {
	inner    chat.Adapter
	config   CircuitBreakerConfig
	breakers map[string]*gobreaker.CircuitBreaker
	mutex    sync.RWMutex
}

// NewCircuitBreakerAdapter creates a circuit breaker wrapper around an adapter
func NewCircuitBreakerAdapter(inner chat.Adapter, config CircuitBreakerConfig) *CircuitBreakerAdapter {
	return &CircuitBreakerAdapter{
		inner:    inner,
		config:   config,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (c *CircuitBreakerAdapter) Name() string { return c.inner.Name() }

func (c *CircuitBreakerAdapter) Available() bool { return c.inner.Available() }

// Stream runs the streaming call through the model's circuit breaker.
// Unavailable adapters bypass the breaker; their apology path never fails
// and must not count against the model.
func (c *CircuitBreakerAdapter) Stream(ctx context.Context, messages []chat.Message, nativeModel string, onDelta chat.DeltaHandler) error {
	if !c.config.Enabled || !c.inner.Available() {
		return c.inner.Stream(ctx, messages, nativeModel, onDelta)
	}

	breaker := c.getOrCreateBreaker(nativeModel)
	_, err := breaker.Execute(func() (interface{}, error) {
		return nil, c.inner.Stream(ctx, messages, nativeModel, onDelta)
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		logrus.WithFields(logrus.Fields{
			"provider": c.inner.Name(),
			"model":    nativeModel,
			"state":    breaker.State(),
		}).Warn("Circuit breaker is open for streaming, failing fast")
		return fmt.Errorf("circuit breaker open for model %s: streaming requests are being rejected to prevent cascade failures", nativeModel)
	}
	return err
}

// Complete runs the non-streaming call through the model's circuit breaker.
func (c *CircuitBreakerAdapter) Complete(ctx context.Context, messages []chat.Message, nativeModel string) (string, error) {
	if !c.config.Enabled || !c.inner.Available() {
		return c.inner.Complete(ctx, messages, nativeModel)
	}

	breaker := c.getOrCreateBreaker(nativeModel)
	result, err := breaker.Execute(func() (interface{}, error) {
		return c.inner.Complete(ctx, messages, nativeModel)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			logrus.WithFields(logrus.Fields{
				"provider": c.inner.Name(),
				"model":    nativeModel,
				"state":    breaker.State(),
			}).Warn("Circuit breaker is open, failing fast")
			return "", fmt.Errorf("circuit breaker open for model %s: requests are being rejected to prevent cascade failures", nativeModel)
		}
		return "", err
	}
	return result.(string), nil
}

// GetCircuitStates returns the current state of all circuit breakers for monitoring
func (c *CircuitBreakerAdapter) GetCircuitStates() map[string]gobreaker.State {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	states := make(map[string]gobreaker.State, len(c.breakers))
	for model, breaker := range c.breakers {
		states[model] = breaker.State()
	}
	return states
}

// getOrCreateBreaker gets or creates a circuit breaker for the specified model
func (c *CircuitBreakerAdapter) getOrCreateBreaker(nativeModel string) *gobreaker.CircuitBreaker {
	key := breakerKey(nativeModel)

	c.mutex.RLock()
	if breaker, exists := c.breakers[key]; exists {
		c.mutex.RUnlock()
		return breaker
	}
	c.mutex.RUnlock()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	// Double-check pattern: another goroutine might have created it while we waited
	if breaker, exists := c.breakers[key]; exists {
		return breaker
	}

	settings := gobreaker.Settings{
		Name:        fmt.Sprintf("llm-model-%s", key),
		MaxRequests: c.config.MaxRequests,
		Interval:    0, // No automatic clearing of counts (we rely on timeout)
		Timeout:     c.config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= c.config.FailureThreshold &&
				counts.TotalFailures >= c.config.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{
				"provider":   c.inner.Name(),
				"model":      key,
				"from_state": from,
				"to_state":   to,
			}).Info("Circuit breaker state changed")
		},
	}

	breaker := gobreaker.NewCircuitBreaker(settings)
	c.breakers[key] = breaker

	logrus.WithField("model", key).Info("Created new circuit breaker for model")
	return breaker
}

func breakerKey(nativeModel string) string {
	if nativeModel == "" {
		return "default"
	}
	key := strings.ToLower(strings.ReplaceAll(nativeModel, "/", "-"))
	return strings.ReplaceAll(key, ".", "-")
}

var _ chat.Adapter = (*CircuitBreakerAdapter)(nil)
