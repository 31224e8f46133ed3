package chat

import "fmt"

// Core chat entities independent of frameworks and vendors

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of a conversation, oldest first. Immutable once
// constructed.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is what the surrounding web application hands to the streaming
// core: a persisted conversation plus the user-facing model identifier.
type Request struct {
	Messages []Message `json:"messages"`
	Model    string    `json:"model,omitempty"`
}

// Completion is the normalized result of a non-streaming call.
type Completion struct {
	Content  string `json:"content"`
	Model    string `json:"model"`
	Provider string `json:"provider"`
}

// TitleResponse carries a chat title produced by summarization.
type TitleResponse struct {
	Title string `json:"title"`
}

// TagsResponse carries suggested lowercase keyword tags.
type TagsResponse struct {
	Tags []string `json:"tags"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

const (
	maxMessages      = 100
	maxContentLength = 50000
)

// ValidateMessages checks a conversation for structural problems before it
// reaches any provider.
func ValidateMessages(messages []Message) error {
	if len(messages) == 0 {
		return fmt.Errorf("messages cannot be empty")
	}
	if len(messages) > maxMessages {
		return fmt.Errorf("too many messages: %d (max %d)", len(messages), maxMessages)
	}
	for i, msg := range messages {
		if msg.Role == "" {
			return fmt.Errorf("message %d: role cannot be empty", i)
		}
		if msg.Content == "" {
			return fmt.Errorf("message %d: content cannot be empty", i)
		}
		if len(msg.Content) > maxContentLength {
			return fmt.Errorf("message %d: content too long (%d chars, max %d)", i, len(msg.Content), maxContentLength)
		}
		if msg.Role != RoleUser && msg.Role != RoleAssistant && msg.Role != RoleSystem {
			return fmt.Errorf("message %d: invalid role '%s' (must be user, assistant, or system)", i, msg.Role)
		}
	}
	return nil
}

// HasSystemMessage reports whether the caller already supplied a system
// instruction, in which case adapters must not inject their own.
func HasSystemMessage(messages []Message) bool {
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			return true
		}
	}
	return false
}
