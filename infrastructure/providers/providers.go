// Package providers contains one adapter per upstream LLM vendor, each
// normalizing that vendor's streaming chat API into plain text deltas
// behind the chat.Adapter port.
package providers

import (
	"context"
	"net/http"
	"time"

	"github.com/CodeHalwell/MyGPT/domain/chat"
)

// ApologyMessage is streamed character by character when no provider can
// serve a request. The user always receives some text, never an error.
const ApologyMessage = "I apologize, but the AI service is currently unavailable. Please check your API keys and try again later."

// UnavailableCompletion is the fixed result of a non-streaming call when no
// provider is configured.
const UnavailableCompletion = "Error: The AI service is currently unavailable. Please check your API keys and try again later."

// fenceInstruction is injected as the system message whenever the caller
// did not supply one. It shapes how models format code blocks so the fence
// filter downstream has well-formed markers to work with; downstream code
// still defends against malformed output.
const fenceInstruction = `You are a helpful assistant that answers queries professionally. When providing code examples:
1. Always start with triple backticks and the language name on its own line
2. Put the code on the next line after the language specification
3. Put the closing triple backticks on a new line
4. Format your response like this:

Here's how you can do it:

` + "```python" + `
def example():
    pass
` + "```" + `

Never put code on the same line as the backticks or language specification.`

// withSystemInstruction prepends the fence-formatting instruction unless
// the conversation already carries a system message.
func withSystemInstruction(messages []chat.Message) []chat.Message {
	if chat.HasSystemMessage(messages) {
		return messages
	}
	out := make([]chat.Message, 0, len(messages)+1)
	out = append(out, chat.Message{Role: chat.RoleSystem, Content: fenceInstruction})
	out = append(out, messages...)
	return out
}

// splitSystem separates the system prompt from the conversational turns,
// for providers that take the system instruction as a dedicated parameter
// rather than an in-band message.
func splitSystem(messages []chat.Message) (string, []chat.Message) {
	system := "You are a helpful assistant that answers queries professionally."
	rest := make([]chat.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == chat.RoleSystem {
			system = msg.Content
			continue
		}
		rest = append(rest, msg)
	}
	return system, rest
}

// newStreamingClient builds an HTTP client suited to long-lived streamed
// responses: timeouts apply to the dial, TLS handshake and response
// headers, never to the body read. No overall client timeout; a stream
// lives until the provider closes it or the request context cancels.
func newStreamingClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   50,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 120 * time.Second,
		},
	}
}

// streamApology yields the apology sentence character by character,
// matching the cadence of a real stream so the consumer's rendering path
// behaves identically.
func streamApology(ctx context.Context, onDelta chat.DeltaHandler) error {
	for _, r := range ApologyMessage {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := onDelta(string(r)); err != nil {
			return err
		}
	}
	return nil
}
