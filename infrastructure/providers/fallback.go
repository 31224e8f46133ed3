package providers

import (
	"context"

	"github.com/CodeHalwell/MyGPT/domain/chat"
)

// Fallback is the adapter of last resort. It never talks to a network; it
// streams the apology sentence so every request resolves to visible text.
type Fallback struct{}

func NewFallback() *Fallback { return &Fallback{} }

func (f *Fallback) Name() string { return "fallback" }

// Available always reports true so the dispatcher can rely on the fallback
// as a terminal choice.
func (f *Fallback) Available() bool { return true }

func (f *Fallback) Stream(ctx context.Context, _ []chat.Message, _ string, onDelta chat.DeltaHandler) error {
	return streamApology(ctx, onDelta)
}

func (f *Fallback) Complete(_ context.Context, _ []chat.Message, _ string) (string, error) {
	return UnavailableCompletion, nil
}
