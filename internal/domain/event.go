package domain

import (
	"context"
	"encoding/json"
	"time"
)

// InboundKind identifies the kind of event delivered by the transport.
type InboundKind string

const (
	InboundToken    InboundKind = "token"
	InboundComplete InboundKind = "complete"
	InboundError    InboundKind = "error"
)

// InboundEvent is the typed envelope fed into the conversation store.
// Exactly one group of fields is meaningful per kind: Token for token
// events; MessageID, FullResponse and Actions for completions; Err and
// Code for errors. ConversationID may be empty on a global error.
type InboundEvent struct {
	Kind           InboundKind
	ConversationID string
	Token          string
	MessageID      string
	FullResponse   string
	ModelUsed      string
	TokenCount     int
	Actions        []Action
	Err            string
	Code           string
}

// EventType identifies the kind of event published on the bus.
type EventType string

const (
	EventConversationSelected EventType = "conversation.selected"
	EventConversationDeleted  EventType = "conversation.deleted"
	EventMessageSent          EventType = "message.sent"
	EventStreamStarted        EventType = "stream.started"
	EventStreamToken          EventType = "stream.token"
	EventStreamCompleted      EventType = "stream.completed"
	EventStreamError          EventType = "stream.error"
	EventActionStarted        EventType = "action.started"
	EventActionCompleted      EventType = "action.completed"
	EventActionFailed         EventType = "action.failed"
)

// Event is the envelope published on the event bus.
type Event struct {
	Type           EventType       `json:"type"`
	Timestamp      time.Time       `json:"timestamp"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// EventHandler is a callback invoked when an event is received.
type EventHandler func(ctx context.Context, event Event)

// EventBus provides a publish/subscribe mechanism for conversation events.
type EventBus interface {
	// Publish sends an event to all matching subscribers.
	Publish(ctx context.Context, event Event)
	// Subscribe registers a handler for a specific event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler EventHandler) func()
	// SubscribeAll registers a handler that receives every event.
	// Returns an unsubscribe function.
	SubscribeAll(handler EventHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}

// StreamCompletedPayload is the payload for EventStreamCompleted events.
type StreamCompletedPayload struct {
	MessageID string `json:"message_id"`
	Content   string `json:"content"`
	Actions   int    `json:"actions"`
}

// ActionFailedPayload is the payload for EventActionFailed events.
type ActionFailedPayload struct {
	Kind  string `json:"kind"`
	Error string `json:"error"`
}
