package domain

import "time"

// Role constants for message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single message in a conversation. Optimistic user messages
// carry a client-generated ULID that is never replaced; assistant messages
// get their server-assigned id when the completion event arrives.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	ModelUsed      string    `json:"model_used,omitempty"`
	TokenCount     int       `json:"token_count,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	IsStreaming    bool      `json:"is_streaming,omitempty"`
}

// Conversation is a titled thread of messages. A conversation with an empty
// ID is an unsaved placeholder; the server assigns the real id with the
// first completed exchange.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ConversationPage is one page of the conversation listing.
type ConversationPage struct {
	Conversations []Conversation `json:"conversations"`
	Total         int            `json:"total"`
	Offset        int            `json:"offset"`
}
