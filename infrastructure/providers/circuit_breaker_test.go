package providers

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeHalwell/MyGPT/domain/chat"
)

type stubAdapter struct {
	name      string
	available bool
	streamErr error
	deltas    []string
	calls     int
}

func (s *stubAdapter) Name() string    { return s.name }
func (s *stubAdapter) Available() bool { return s.available }

func (s *stubAdapter) Stream(ctx context.Context, _ []chat.Message, _ string, onDelta chat.DeltaHandler) error {
	s.calls++
	if s.streamErr != nil {
		return s.streamErr
	}
	for _, d := range s.deltas {
		if err := onDelta(d); err != nil {
			return err
		}
	}
	return nil
}

func (s *stubAdapter) Complete(ctx context.Context, _ []chat.Message, _ string) (string, error) {
	s.calls++
	if s.streamErr != nil {
		return "", s.streamErr
	}
	var out string
	for _, d := range s.deltas {
		out += d
	}
	return out, nil
}

func testBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 3,
		SuccessThreshold: 1,
		Timeout:          50 * time.Millisecond,
		MaxRequests:      1,
	}
}

func TestCircuitBreaker_PassThroughOnSuccess(t *testing.T) {
	stub := &stubAdapter{name: "stub", available: true, deltas: []string{"a", "b"}}
	cb := NewCircuitBreakerAdapter(stub, testBreakerConfig())

	var got []string
	err := cb.Stream(context.Background(), nil, "gpt-4o", func(d string) error {
		got = append(got, d)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
}

func TestCircuitBreaker_OpensAfterRepeatedFailures(t *testing.T) {
	stub := &stubAdapter{name: "stub", available: true, streamErr: fmt.Errorf("upstream down")}
	cb := NewCircuitBreakerAdapter(stub, testBreakerConfig())

	for i := 0; i < 3; i++ {
		err := cb.Stream(context.Background(), nil, "gpt-4o", func(string) error { return nil })
		require.Error(t, err)
	}

	// Breaker is now open: the adapter must not be invoked again.
	callsBefore := stub.calls
	err := cb.Stream(context.Background(), nil, "gpt-4o", func(string) error { return nil })

	require.Error(t, err)
	assert.Contains(t, err.Error(), "circuit breaker open")
	assert.Equal(t, callsBefore, stub.calls)

	states := cb.GetCircuitStates()
	assert.Equal(t, gobreaker.StateOpen, states["gpt-4o"])
}

func TestCircuitBreaker_IsolatesModels(t *testing.T) {
	stub := &stubAdapter{name: "stub", available: true, streamErr: fmt.Errorf("upstream down")}
	cb := NewCircuitBreakerAdapter(stub, testBreakerConfig())

	for i := 0; i < 3; i++ {
		_ = cb.Stream(context.Background(), nil, "gpt-4o", func(string) error { return nil })
	}

	// A different model gets a fresh breaker and still reaches the adapter.
	stub.streamErr = nil
	stub.deltas = []string{"ok"}
	err := cb.Stream(context.Background(), nil, "gpt-4o-mini", func(string) error { return nil })

	assert.NoError(t, err)
}

func TestCircuitBreaker_RecoversAfterTimeout(t *testing.T) {
	stub := &stubAdapter{name: "stub", available: true, streamErr: fmt.Errorf("upstream down")}
	cfg := testBreakerConfig()
	cb := NewCircuitBreakerAdapter(stub, cfg)

	for i := 0; i < 3; i++ {
		_ = cb.Stream(context.Background(), nil, "gpt-4o", func(string) error { return nil })
	}

	time.Sleep(cfg.Timeout + 20*time.Millisecond)

	stub.streamErr = nil
	stub.deltas = []string{"recovered"}
	var got string
	err := cb.Stream(context.Background(), nil, "gpt-4o", func(d string) error {
		got += d
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, "recovered", got)
}

func TestCircuitBreaker_DisabledPassesThrough(t *testing.T) {
	stub := &stubAdapter{name: "stub", available: true, streamErr: fmt.Errorf("upstream down")}
	cfg := testBreakerConfig()
	cfg.Enabled = false
	cb := NewCircuitBreakerAdapter(stub, cfg)

	for i := 0; i < 10; i++ {
		err := cb.Stream(context.Background(), nil, "gpt-4o", func(string) error { return nil })
		require.Error(t, err)
		assert.NotContains(t, err.Error(), "circuit breaker")
	}
	assert.Equal(t, 10, stub.calls)
}

func TestCircuitBreaker_UnavailableAdapterBypassesBreaker(t *testing.T) {
	stub := &stubAdapter{name: "stub", available: false, deltas: []string{"apology"}}
	cb := NewCircuitBreakerAdapter(stub, testBreakerConfig())

	err := cb.Stream(context.Background(), nil, "gpt-4o", func(string) error { return nil })

	require.NoError(t, err)
	assert.Empty(t, cb.GetCircuitStates())
}

func TestCircuitBreaker_Complete(t *testing.T) {
	stub := &stubAdapter{name: "stub", available: true, deltas: []string{"full text"}}
	cb := NewCircuitBreakerAdapter(stub, testBreakerConfig())

	out, err := cb.Complete(context.Background(), nil, "gpt-4o")

	require.NoError(t, err)
	assert.Equal(t, "full text", out)
}

func TestBreakerKey(t *testing.T) {
	assert.Equal(t, "default", breakerKey(""))
	assert.Equal(t, "gpt-4o", breakerKey("gpt-4o"))
	assert.Equal(t, "codestral-25-01", breakerKey("codestral-25.01"))
	assert.Equal(t, "org-model", breakerKey("Org/Model"))
}
