package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"google.golang.org/genai"

	"github.com/CodeHalwell/MyGPT/domain/chat"
)

const (
	googleTemperature = 0.7
	googleMaxTokens   = 4000
)

// Google streams completions from the Gemini API through the official SDK.
type Google struct {
	client *genai.Client
	logger *logrus.Logger
}

// NewGoogle builds the adapter. A blank key or a failed client handshake
// both yield an unavailable adapter; construction never fails the process.
func NewGoogle(ctx context.Context, apiKey string, logger *logrus.Logger) *Google {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if strings.TrimSpace(apiKey) == "" {
		return &Google{logger: logger}
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		logger.WithError(err).WithField("provider", "google").Warn("Client initialization failed, adapter disabled")
		return &Google{logger: logger}
	}
	return &Google{client: client, logger: logger}
}

func (p *Google) Name() string { return "google" }

func (p *Google) Available() bool { return p.client != nil }

func (p *Google) Stream(ctx context.Context, messages []chat.Message, nativeModel string, onDelta chat.DeltaHandler) error {
	if !p.Available() {
		return streamApology(ctx, onDelta)
	}

	contents, cfg := buildGeminiRequest(messages)

	emitted := ""
	for resp, err := range p.client.Models.GenerateContentStream(ctx, nativeModel, contents, cfg) {
		if err != nil {
			return fmt.Errorf("google: stream failed: %w", err)
		}
		text := geminiVisibleText(resp)
		if text == "" {
			continue
		}
		var delta string
		delta, emitted = geminiDelta(emitted, text)
		if delta == "" {
			continue
		}
		if err := onDelta(delta); err != nil {
			return err
		}
	}
	return nil
}

func (p *Google) Complete(ctx context.Context, messages []chat.Message, nativeModel string) (string, error) {
	if !p.Available() {
		return UnavailableCompletion, nil
	}

	contents, cfg := buildGeminiRequest(messages)
	resp, err := p.client.Models.GenerateContent(ctx, nativeModel, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("google: generate failed: %w", err)
	}
	return geminiVisibleText(resp), nil
}

func buildGeminiRequest(messages []chat.Message) ([]*genai.Content, *genai.GenerateContentConfig) {
	system, rest := splitSystem(withSystemInstruction(messages))

	contents := make([]*genai.Content, 0, len(rest))
	for _, msg := range rest {
		role := genai.RoleUser
		if msg.Role == chat.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: system}}},
		Temperature:       genai.Ptr(float32(googleTemperature)),
		MaxOutputTokens:   googleMaxTokens,
	}
	return contents, cfg
}

// geminiDelta reduces one chunk's visible text to its not-yet-emitted
// tail. Some Gemini responses repeat the full accumulated text in each
// chunk instead of just the new fragment; stripping the emitted prefix
// keeps downstream consumers on true deltas either way.
func geminiDelta(emitted, text string) (delta, next string) {
	if strings.HasPrefix(text, emitted) {
		return text[len(emitted):], text
	}
	return text, emitted + text
}

func geminiVisibleText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought || part.Text == "" {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String()
}

var _ chat.Adapter = (*Google)(nil)
