package providers

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/CodeHalwell/MyGPT/domain/chat"
)

// OpenAI streams chat completions from the OpenAI API via the official SDK.
type OpenAI struct {
	client    openai.Client
	available bool
}

// NewOpenAI builds the adapter. A blank API key yields an unavailable
// adapter that serves the apology text instead of failing construction.
func NewOpenAI(apiKey string) *OpenAI {
	if strings.TrimSpace(apiKey) == "" {
		return &OpenAI{}
	}
	client := openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(newStreamingClient()),
	)
	return &OpenAI{client: client, available: true}
}

func (p *OpenAI) Name() string { return "openai" }

func (p *OpenAI) Available() bool { return p.available }

func (p *OpenAI) Stream(ctx context.Context, messages []chat.Message, nativeModel string, onDelta chat.DeltaHandler) error {
	if !p.available {
		return streamApology(ctx, onDelta)
	}

	params, err := buildOpenAIParams(messages, nativeModel)
	if err != nil {
		return err
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			if err := onDelta(delta); err != nil {
				return err
			}
		}
	}
	return stream.Err()
}

func (p *OpenAI) Complete(ctx context.Context, messages []chat.Message, nativeModel string) (string, error) {
	if !p.available {
		return UnavailableCompletion, nil
	}

	params, err := buildOpenAIParams(messages, nativeModel)
	if err != nil {
		return "", err
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: empty response for model %s", nativeModel)
	}
	return resp.Choices[0].Message.Content, nil
}

func buildOpenAIParams(messages []chat.Message, nativeModel string) (openai.ChatCompletionNewParams, error) {
	converted := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	for _, msg := range withSystemInstruction(messages) {
		param, err := toOpenAIMessage(msg)
		if err != nil {
			return openai.ChatCompletionNewParams{}, err
		}
		converted = append(converted, param)
	}
	return openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(nativeModel),
		Messages: converted,
	}, nil
}

func toOpenAIMessage(msg chat.Message) (openai.ChatCompletionMessageParamUnion, error) {
	switch msg.Role {
	case chat.RoleSystem:
		return openai.SystemMessage(msg.Content), nil
	case chat.RoleUser:
		return openai.UserMessage(msg.Content), nil
	case chat.RoleAssistant:
		return openai.AssistantMessage(msg.Content), nil
	default:
		return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("openai: unsupported role %q", msg.Role)
	}
}

var _ chat.Adapter = (*OpenAI)(nil)
