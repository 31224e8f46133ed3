package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateMessages_Valid(t *testing.T) {
	messages := []Message{
		{Role: RoleSystem, Content: "You are helpful."},
		{Role: RoleUser, Content: "Hello"},
		{Role: RoleAssistant, Content: "Hi there!"},
	}

	assert.NoError(t, ValidateMessages(messages))
}

func TestValidateMessages_Empty(t *testing.T) {
	err := ValidateMessages(nil)
	assert.Error(t, err)
	assert.Equal(t, "messages cannot be empty", err.Error())
}

func TestValidateMessages_TooMany(t *testing.T) {
	messages := make([]Message, 101)
	for i := range messages {
		messages[i] = Message{Role: RoleUser, Content: "hi"}
	}

	err := ValidateMessages(messages)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "too many messages")
}

func TestValidateMessages_InvalidRole(t *testing.T) {
	err := ValidateMessages([]Message{{Role: "robot", Content: "beep"}})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid role 'robot'")
}

func TestValidateMessages_EmptyContent(t *testing.T) {
	err := ValidateMessages([]Message{{Role: RoleUser, Content: ""}})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "content cannot be empty")
}

func TestValidateMessages_ContentTooLong(t *testing.T) {
	err := ValidateMessages([]Message{{Role: RoleUser, Content: strings.Repeat("a", 50001)}})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "content too long")
}

func TestHasSystemMessage(t *testing.T) {
	assert.False(t, HasSystemMessage([]Message{{Role: RoleUser, Content: "hi"}}))
	assert.True(t, HasSystemMessage([]Message{
		{Role: RoleUser, Content: "hi"},
		{Role: RoleSystem, Content: "be nice"},
	}))
}
