package transport

import (
	"encoding/json"

	"aria/internal/domain"
)

// FrameType identifies the kind of frame exchanged over the WebSocket
// connection with the assistant server.
type FrameType string

const (
	// Outbound.
	FrameTypeSend FrameType = "send"

	// Inbound.
	FrameTypeToken    FrameType = "token"
	FrameTypeComplete FrameType = "complete"
	FrameTypeError    FrameType = "error"
)

// Frame is the envelope for every message in either direction.
type Frame struct {
	Type    FrameType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// sendPayload is the outbound user message. ConversationID is null for a
// placeholder conversation that the server has not yet assigned an id.
type sendPayload struct {
	ConversationID *string `json:"conversation_id"`
	Message        string  `json:"message"`
}

type tokenPayload struct {
	ConversationID string `json:"conversation_id"`
	Token          string `json:"token"`
}

type completePayload struct {
	ConversationID string          `json:"conversation_id"`
	MessageID      string          `json:"message_id"`
	FullResponse   string          `json:"full_response"`
	ModelUsed      string          `json:"model_used,omitempty"`
	TokenCount     int             `json:"token_count,omitempty"`
	Actions        json.RawMessage `json:"actions,omitempty"`
}

type errorPayload struct {
	ConversationID string `json:"conversation_id,omitempty"`
	Error          string `json:"error"`
	Code           string `json:"code,omitempty"`
}

// decodeInbound converts a wire frame into the typed inbound event the
// store consumes. Unknown frame types and malformed payloads return ok=false
// so the read loop can skip them without dropping the connection.
func decodeInbound(f Frame) (domain.InboundEvent, bool) {
	switch f.Type {
	case FrameTypeToken:
		var p tokenPayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return domain.InboundEvent{}, false
		}
		return domain.InboundEvent{
			Kind:           domain.InboundToken,
			ConversationID: p.ConversationID,
			Token:          p.Token,
		}, true

	case FrameTypeComplete:
		var p completePayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return domain.InboundEvent{}, false
		}
		ev := domain.InboundEvent{
			Kind:           domain.InboundComplete,
			ConversationID: p.ConversationID,
			MessageID:      p.MessageID,
			FullResponse:   p.FullResponse,
			ModelUsed:      p.ModelUsed,
			TokenCount:     p.TokenCount,
		}
		if len(p.Actions) > 0 {
			actions, err := domain.DecodeActions(p.Actions)
			if err != nil {
				// A bad actions array must not lose the reply text.
				return ev, true
			}
			ev.Actions = actions
		}
		return ev, true

	case FrameTypeError:
		var p errorPayload
		if err := json.Unmarshal(f.Payload, &p); err != nil {
			return domain.InboundEvent{}, false
		}
		return domain.InboundEvent{
			Kind:           domain.InboundError,
			ConversationID: p.ConversationID,
			Err:            p.Error,
			Code:           p.Code,
		}, true
	}
	return domain.InboundEvent{}, false
}
