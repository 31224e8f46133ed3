package chat

import "context"

// DeltaHandler receives incremental text fragments in emission order.
// Returning an error aborts the stream; the adapter must release any open
// network resources before returning.
type DeltaHandler func(delta string) error

// Adapter abstracts one provider's chat API behind a uniform streaming and
// completion surface. Implementations surface fragments as soon as the
// provider emits them and never buffer: rechunking is the fence filter's
// job.
//
// Streams are finite and not restartable. Partial output already delivered
// before a mid-stream error stands; it is never retracted.
type Adapter interface {
	// Name identifies the adapter for logging and tracking.
	Name() string

	// Available reports whether the adapter holds a usable credential.
	Available() bool

	// Stream delivers the response to onDelta fragment by fragment and
	// returns when the provider closes the stream or fails.
	Stream(ctx context.Context, messages []Message, nativeModel string, onDelta DeltaHandler) error

	// Complete returns the whole response at once, for summarization and
	// tagging use cases.
	Complete(ctx context.Context, messages []Message, nativeModel string) (string, error)
}
