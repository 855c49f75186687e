package models

import (
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationMessage is one turn of the session transcript. Messages are
// append-only and never mutated after insertion.
type ConversationMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage stamps a turn with the current time in UTC.
func NewMessage(role Role, content string) ConversationMessage {
	return ConversationMessage{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// Classification is the outcome of running a raw payload through the transcript pipeline.
type Classification string

const (
	ClassNavigation     Classification = "navigation"
	ClassConversational Classification = "conversational"
	ClassDuplicate      Classification = "duplicate"
	ClassUnrecognized   Classification = "unrecognized"
)
