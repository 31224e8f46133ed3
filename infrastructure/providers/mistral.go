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
	mistralBaseURL   = "https://api.mistral.ai/v1"
	mistralMaxTokens = 4000
)

// Mistral talks the OpenAI-compatible chat completions endpoint of the
// Mistral platform directly over SSE.
type Mistral struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewMistral(apiKey string, logger *logrus.Logger) *Mistral {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Mistral{
		apiKey:  strings.TrimSpace(apiKey),
		baseURL: mistralBaseURL,
		// No client timeout, streamed responses can be long-lived.
		// Cancellation comes from the request context.
		httpClient: newStreamingClient(),
		logger:     logger,
	}
}

func (p *Mistral) Name() string { return "mistral" }

func (p *Mistral) Available() bool { return p.apiKey != "" }

type mistralRequest struct {
	Model     string           `json:"model"`
	Messages  []mistralMessage `json:"messages"`
	MaxTokens int              `json:"max_tokens,omitempty"`
	Stream    bool             `json:"stream,omitempty"`
}

type mistralMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type mistralStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

type mistralResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *Mistral) Stream(ctx context.Context, messages []chat.Message, nativeModel string, onDelta chat.DeltaHandler) error {
	if !p.Available() {
		return streamApology(ctx, onDelta)
	}

	resp, err := p.post(ctx, messages, nativeModel, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("mistral: stream read: %w", err)
		}
		if len(line) < 6 || string(line[:6]) != "data: " {
			continue
		}
		payload := bytes.TrimSpace(line[6:])
		if bytes.Equal(payload, []byte("[DONE]")) {
			return nil
		}
		var chunk mistralStreamChunk
		if err := json.Unmarshal(payload, &chunk); err != nil {
			p.logger.WithFields(logrus.Fields{
				"provider": "mistral",
				"model":    nativeModel,
			}).Error("Failed to decode streaming chunk")
			return fmt.Errorf("mistral: decode chunk: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			if err := onDelta(delta); err != nil {
				return err
			}
		}
	}
}

func (p *Mistral) Complete(ctx context.Context, messages []chat.Message, nativeModel string) (string, error) {
	if !p.Available() {
		return UnavailableCompletion, nil
	}

	resp, err := p.post(ctx, messages, nativeModel, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out mistralResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("mistral: decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("mistral: empty response for model %s", nativeModel)
	}
	return out.Choices[0].Message.Content, nil
}

func (p *Mistral) post(ctx context.Context, messages []chat.Message, nativeModel string, stream bool) (*http.Response, error) {
	converted := make([]mistralMessage, 0, len(messages)+1)
	for _, msg := range withSystemInstruction(messages) {
		converted = append(converted, mistralMessage{Role: string(msg.Role), Content: msg.Content})
	}

	payload, err := json.Marshal(mistralRequest{
		Model:     nativeModel,
		Messages:  converted,
		MaxTokens: mistralMaxTokens,
		Stream:    stream,
	})
	if err != nil {
		return nil, fmt.Errorf("mistral: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewBuffer(payload))
	if err != nil {
		return nil, fmt.Errorf("mistral: new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("mistral: do: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		p.logger.WithFields(logrus.Fields{
			"provider": "mistral",
			"status":   resp.StatusCode,
			"model":    nativeModel,
		}).Error("API request rejected")
		return nil, fmt.Errorf("mistral: api error: status %d, model %s: %s", resp.StatusCode, nativeModel, string(body))
	}
	return resp, nil
}

var _ chat.Adapter = (*Mistral)(nil)
