package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/genai"
)

func TestGeminiDelta(t *testing.T) {
	tests := []struct {
		name       string
		chunks     []string
		wantDeltas []string
		wantFinal  string
	}{
		{
			name:       "true delta stream passes through",
			chunks:     []string{"Hello", ", ", "world", "!"},
			wantDeltas: []string{"Hello", ", ", "world", "!"},
			wantFinal:  "Hello, world!",
		},
		{
			name:       "cumulative stream is reduced to tails",
			chunks:     []string{"Hello", "Hello, ", "Hello, world", "Hello, world!"},
			wantDeltas: []string{"Hello", ", ", "world", "!"},
			wantFinal:  "Hello, world!",
		},
		{
			name:       "repeated identical chunk yields empty delta",
			chunks:     []string{"Hello", "Hello", "Hello there"},
			wantDeltas: []string{"Hello", "", " there"},
			wantFinal:  "Hello there",
		},
		{
			name:       "switch from cumulative to true deltas",
			chunks:     []string{"Hi", "Hi there", ", friend"},
			wantDeltas: []string{"Hi", " there", ", friend"},
			wantFinal:  "Hi there, friend",
		},
		{
			name:       "non prefix chunk is taken verbatim",
			chunks:     []string{"alpha", "beta"},
			wantDeltas: []string{"alpha", "beta"},
			wantFinal:  "alphabeta",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			emitted := ""
			var got []string
			for _, chunk := range tt.chunks {
				var delta string
				delta, emitted = geminiDelta(emitted, chunk)
				got = append(got, delta)
			}
			assert.Equal(t, tt.wantDeltas, got)
			assert.Equal(t, tt.wantFinal, emitted)
		})
	}
}

func TestGeminiVisibleText(t *testing.T) {
	textPart := func(s string) *genai.Part { return &genai.Part{Text: s} }
	thoughtPart := func(s string) *genai.Part { return &genai.Part{Text: s, Thought: true} }

	tests := []struct {
		name string
		resp *genai.GenerateContentResponse
		want string
	}{
		{name: "nil response", resp: nil, want: ""},
		{
			name: "no candidates",
			resp: &genai.GenerateContentResponse{},
			want: "",
		},
		{
			name: "candidate without content",
			resp: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{}},
			},
			want: "",
		},
		{
			name: "text parts are concatenated",
			resp: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{
					Content: &genai.Content{Parts: []*genai.Part{
						textPart("Hello, "), textPart("world"),
					}},
				}},
			},
			want: "Hello, world",
		},
		{
			name: "thought parts are skipped",
			resp: &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{
					Content: &genai.Content{Parts: []*genai.Part{
						thoughtPart("reasoning about the answer"),
						textPart("The answer is 4."),
						nil,
						textPart(""),
					}},
				}},
			},
			want: "The answer is 4.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, geminiVisibleText(tt.resp))
		})
	}
}
