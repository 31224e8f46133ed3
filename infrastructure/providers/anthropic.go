package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/CodeHalwell/MyGPT/domain/chat"
)

const (
	anthropicAPIURL     = "https://api.anthropic.com/v1/messages"
	anthropicAPIVersion = "2023-06-01"
	anthropicMaxTokens  = 4000
)

// Anthropic speaks the Messages API directly. There is no official Go SDK
// in use here; the wire format is small enough to handle by hand.
type Anthropic struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewAnthropic(apiKey string, logger *logrus.Logger) *Anthropic {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Anthropic{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: anthropicAPIURL,
		// No client timeout, streamed responses can be long-lived.
		// Cancellation comes from the request context.
		httpClient: newStreamingClient(),
		logger:     logger,
	}
}

func (p *Anthropic) Name() string { return "anthropic" }

func (p *Anthropic) Available() bool { return p.apiKey != "" }

type anthropicRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	System    string             `json:"system,omitempty"`
	MaxTokens int                `json:"max_tokens"`
	Stream    bool               `json:"stream,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicResponse struct {
	Content []anthropicContent `json:"content"`
	Model   string             `json:"model"`
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta *struct {
		Type string `json:"type,omitempty"`
		Text string `json:"text,omitempty"`
	} `json:"delta,omitempty"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *Anthropic) Stream(ctx context.Context, messages []chat.Message, nativeModel string, onDelta chat.DeltaHandler) error {
	if !p.Available() {
		return streamApology(ctx, onDelta)
	}

	body, err := p.send(ctx, messages, nativeModel, true)
	if err != nil {
		return err
	}
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data: "))

		var event anthropicStreamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue
		}

		switch event.Type {
		case "content_block_delta":
			if event.Delta != nil && event.Delta.Type == "text_delta" && event.Delta.Text != "" {
				if err := onDelta(event.Delta.Text); err != nil {
					return err
				}
			}
		case "error":
			if event.Error != nil {
				return fmt.Errorf("anthropic: stream error %s: %s", event.Error.Type, event.Error.Message)
			}
			return fmt.Errorf("anthropic: stream error")
		case "message_stop":
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("anthropic: read stream: %w", err)
	}
	return nil
}

func (p *Anthropic) Complete(ctx context.Context, messages []chat.Message, nativeModel string) (string, error) {
	if !p.Available() {
		return UnavailableCompletion, nil
	}

	body, err := p.send(ctx, messages, nativeModel, false)
	if err != nil {
		return "", err
	}
	defer body.Close()

	var resp anthropicResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return "", fmt.Errorf("anthropic: decode response: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

func (p *Anthropic) send(ctx context.Context, messages []chat.Message, nativeModel string, stream bool) (io.ReadCloser, error) {
	system, rest := splitSystem(withSystemInstruction(messages))

	converted := make([]anthropicMessage, 0, len(rest))
	for _, msg := range rest {
		converted = append(converted, anthropicMessage{Role: string(msg.Role), Content: msg.Content})
	}

	payload, err := json.Marshal(anthropicRequest{
		Model:     nativeModel,
		Messages:  converted,
		System:    system,
		MaxTokens: anthropicMaxTokens,
		Stream:    stream,
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("anthropic: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic: request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		p.logger.WithFields(logrus.Fields{
			"provider": "anthropic",
			"status":   resp.StatusCode,
			"model":    nativeModel,
		}).Error("API request rejected")
		return nil, fmt.Errorf("anthropic: API error %d: %s", resp.StatusCode, string(errBody))
	}
	return resp.Body, nil
}

var _ chat.Adapter = (*Anthropic)(nil)
