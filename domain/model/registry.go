package model

import "strings"

// Provider is the closed set of upstream vendors the core can talk to.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGoogle    Provider = "google"
	ProviderMistral   Provider = "mistral"
)

// providerRules maps identifier substrings to providers, first match wins.
var providerRules = []struct {
	substrings []string
	provider   Provider
}{
	{[]string{"gpt", "o3"}, ProviderOpenAI},
	{[]string{"claude"}, ProviderAnthropic},
	{[]string{"gemini"}, ProviderGoogle},
	{[]string{"mistral", "pixtral", "codestral"}, ProviderMistral},
}

// nativeModels absorbs provider API lag: user-facing identifiers for models
// that are not generally available yet map to the closest model each
// provider actually serves. Identifiers not listed here pass through
// unchanged.
var nativeModels = map[string]string{
	// OpenAI
	"gpt-5":        "gpt-4o",
	"gpt-4.1":      "gpt-4o",
	"o3":           "gpt-4o",
	"o3-mini":      "gpt-4o-mini",
	"gpt-4o":       "gpt-4o",
	"gpt-4o-mini":  "gpt-4o-mini",
	"gpt-realtime": "gpt-4o",

	// Anthropic
	"claude-opus-4.1":            "claude-3-5-sonnet-20241022",
	"claude-sonnet-4":            "claude-3-5-sonnet-20241022",
	"claude-3.7-sonnet":          "claude-3-5-sonnet-20241022",
	"claude-3-5-sonnet-20241022": "claude-3-5-sonnet-20241022",
	"claude-3-5-haiku-20241022":  "claude-3-5-haiku-20241022",

	// Google
	"gemini-2.5-pro":   "gemini-1.5-pro",
	"gemini-2.5-flash": "gemini-1.5-flash",
	"gemini-2.0-flash": "gemini-1.5-flash",
	"gemini-1.5-pro":   "gemini-1.5-pro",
	"gemini-1.5-flash": "gemini-1.5-flash",

	// Mistral
	"mistral-large-24.11": "mistral-large-latest",
	"pixtral-large-2411":  "mistral-large-latest",
	"codestral-25.01":     "codestral-latest",
	"mistral-small-3.1":   "mistral-small-latest",
}

// ResolveProvider determines which provider serves a user-facing model
// identifier. Total over all strings: unknown identifiers resolve to
// OpenAI rather than failing.
func ResolveProvider(modelID string) Provider {
	for _, rule := range providerRules {
		for _, sub := range rule.substrings {
			if strings.Contains(modelID, sub) {
				return rule.provider
			}
		}
	}
	return ProviderOpenAI
}

// ResolveNativeModel translates a user-facing identifier into the model id
// the provider's API accepts today.
func ResolveNativeModel(modelID string) string {
	if native, ok := nativeModels[modelID]; ok {
		return native
	}
	return modelID
}
