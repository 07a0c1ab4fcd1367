package usecase

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"aria/internal/domain"
)

// Status is the single global status of the conversation store.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusLoading   Status = "loading"
	StatusStreaming Status = "streaming"
	StatusError     Status = "error"
)

// Snapshot is a point-in-time copy of the store state for the rendering
// layer. Messages is a defensive copy; mutating it does not affect the store.
type Snapshot struct {
	Status         Status
	ActiveID       string
	Conversations  []domain.Conversation
	Messages       []domain.Message
	StreamBuffer   string
	PendingInput   string
	LastError      *domain.AssistantError
}

// ApplyResult reports what an inbound event did to the store. Actions is
// non-nil only for an applied completion and must be executed exactly once,
// in order, by the caller.
type ApplyResult struct {
	Applied bool
	Actions []domain.Action
	// AssignedID is the server-assigned conversation id when a completion
	// turned the placeholder conversation into a real one.
	AssignedID string
}

// Store owns conversation state: the conversation list, active conversation,
// message history, streaming buffer, status and last error. It performs no
// I/O; every mutation goes through one of its transition methods, and inbound
// transport events are applied through Apply.
//
// The streaming buffer belongs to the active conversation only. Events whose
// conversation id does not match the active stream are discarded, which is
// what prevents cross-conversation token leakage.
type Store struct {
	mu            sync.Mutex
	status        Status
	activeID      string // "" = unsaved placeholder conversation
	conversations []domain.Conversation
	messages      []domain.Message
	buffer        strings.Builder
	pendingInput  string
	lastErr       *domain.AssistantError

	streaming    bool
	streamConvID string // conversation the in-flight stream belongs to

	loadGen uint64 // generation counter for stale history-load discard

	now   func() time.Time
	newID func() string
}

// NewStore creates an idle, empty store.
func NewStore() *Store {
	return &Store{
		status: StatusIdle,
		now:    time.Now,
		newID:  newMessageID,
	}
}

func newMessageID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgs := make([]domain.Message, len(s.messages))
	copy(msgs, s.messages)
	convs := make([]domain.Conversation, len(s.conversations))
	copy(convs, s.conversations)

	var lastErr *domain.AssistantError
	if s.lastErr != nil {
		e := *s.lastErr
		lastErr = &e
	}

	return Snapshot{
		Status:        s.status,
		ActiveID:      s.activeID,
		Conversations: convs,
		Messages:      msgs,
		StreamBuffer:  s.buffer.String(),
		PendingInput:  s.pendingInput,
		LastError:     lastErr,
	}
}

// Select switches the active conversation. It clears the message list,
// streaming buffer and error, abandons any in-flight stream, and forces
// status back to idle. The returned generation must be passed to
// BeginHistoryLoad/CompleteHistoryLoad so a load that resolves after the
// user switched again is discarded.
func (s *Store) Select(conversationID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.activeID = conversationID
	s.messages = nil
	s.buffer.Reset()
	s.lastErr = nil
	s.status = StatusIdle
	s.streaming = false
	s.streamConvID = ""
	s.loadGen++
	return s.loadGen
}

// StartNewConversation clears the active id, message history, pending input
// and status without any network call. The placeholder becomes a real
// conversation only when the first completion arrives with a server id.
func (s *Store) StartNewConversation() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.activeID = ""
	s.messages = nil
	s.buffer.Reset()
	s.pendingInput = ""
	s.lastErr = nil
	s.status = StatusIdle
	s.streaming = false
	s.streamConvID = ""
	s.loadGen++
}

// BeginHistoryLoad marks the store as loading history for the given
// generation. Stale generations are ignored.
func (s *Store) BeginHistoryLoad(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.loadGen {
		return
	}
	s.status = StatusLoading
}

// CompleteHistoryLoad installs loaded messages if the generation is still
// current. Returns false when the load was stale and discarded.
//
// Messages appended while the load was in flight stay: a send admitted
// between BeginHistoryLoad and here has already placed its optimistic user
// message, and history is append-only, so the loaded messages are prepended
// rather than replacing the list. Streaming state is likewise untouched.
func (s *Store) CompleteHistoryLoad(gen uint64, msgs []domain.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.loadGen {
		return false
	}
	merged := make([]domain.Message, 0, len(msgs)+len(s.messages))
	merged = append(merged, msgs...)
	merged = append(merged, s.messages...)
	s.messages = merged
	if s.status == StatusLoading {
		s.status = StatusIdle
	}
	return true
}

// SetConversations replaces the cached conversation listing.
func (s *Store) SetConversations(convs []domain.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations = append([]domain.Conversation(nil), convs...)
}

// RemoveConversation drops a conversation from the cached listing.
func (s *Store) RemoveConversation(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.conversations {
		if c.ID == conversationID {
			s.conversations = append(s.conversations[:i], s.conversations[i+1:]...)
			return
		}
	}
}

// SetPendingInput records the text currently typed into the input field.
func (s *Store) SetPendingInput(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingInput = text
}

// ClearError dismisses the surfaced error. If the store was in the error
// state it returns to idle.
func (s *Store) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = nil
	if s.status == StatusError {
		s.status = StatusIdle
	}
}

// RecordActionError surfaces a non-fatal action failure as the current
// conversation error without disturbing the status machine. Last error wins.
func (s *Store) RecordActionError(err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = domain.NewAssistantError(err)
}

// Send admits an outbound user message. The message must be non-empty after
// trimming and the transport must be connected; otherwise the store is left
// untouched and no optimistic message exists. On admission the optimistic
// user message is appended immediately, streaming state starts for the
// active (possibly placeholder) conversation, and the caller then issues
// the transport send. Local apply before network confirmation is the whole
// point: the user sees their message without waiting on the round-trip.
func (s *Store) Send(message string, connected bool) (*domain.Message, error) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return nil, domain.ErrEmptyMessage
	}
	if !connected {
		return nil, domain.ErrTransportClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == StatusStreaming {
		return nil, domain.ErrStreamInFlight
	}

	msg := domain.Message{
		ID:             s.newID(),
		ConversationID: s.activeID,
		Role:           domain.RoleUser,
		Content:        trimmed,
		CreatedAt:      s.now(),
	}
	s.messages = append(s.messages, msg)

	s.status = StatusStreaming
	s.streaming = true
	s.streamConvID = s.activeID
	s.buffer.Reset()
	s.lastErr = nil

	return &msg, nil
}

// Apply feeds one inbound transport event through the streaming reducer.
// Token and completion events for any conversation other than the active
// stream are stale and leave the state unchanged. Error events without a
// conversation scope are treated as global and always apply.
func (s *Store) Apply(ev domain.InboundEvent) ApplyResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Kind {
	case domain.InboundToken:
		return s.receiveToken(ev)
	case domain.InboundComplete:
		return s.completeResponse(ev)
	case domain.InboundError:
		return s.handleError(ev)
	default:
		return ApplyResult{}
	}
}

// matchesStream reports whether an event's conversation id targets the
// in-flight stream. A placeholder stream (empty id) matches events that
// carry no conversation id yet.
func (s *Store) matchesStream(conversationID string) bool {
	return s.streaming && conversationID == s.streamConvID
}

func (s *Store) receiveToken(ev domain.InboundEvent) ApplyResult {
	if !s.matchesStream(ev.ConversationID) {
		return ApplyResult{}
	}
	// Append-only: the buffer is a sink, never reprocessed.
	s.buffer.WriteString(ev.Token)
	return ApplyResult{Applied: true}
}

func (s *Store) completeResponse(ev domain.InboundEvent) ApplyResult {
	// The streaming guard doubles as the duplicate-delivery guard: a second
	// completion for an already-finalized exchange finds streaming false
	// and falls through without appending anything.
	matches := s.matchesStream(ev.ConversationID)
	if !matches && s.streamConvID == "" && ev.ConversationID != "" && s.streaming {
		// Placeholder stream completed under its server-assigned id.
		matches = true
	}
	if !matches {
		return ApplyResult{}
	}

	var assigned string
	if s.activeID == "" && ev.ConversationID != "" {
		// Server-assigned id replaces the client placeholder. Conversation
		// ids are the only ids reconciled this way; message ids never are.
		s.activeID = ev.ConversationID
		assigned = ev.ConversationID
	}

	// fullResponse is authoritative; the accumulated buffer may differ if
	// tokens were coalesced or re-sent.
	s.messages = append(s.messages, domain.Message{
		ID:             ev.MessageID,
		ConversationID: s.activeID,
		Role:           domain.RoleAssistant,
		Content:        ev.FullResponse,
		ModelUsed:      ev.ModelUsed,
		TokenCount:     ev.TokenCount,
		CreatedAt:      s.now(),
	})

	s.buffer.Reset()
	s.pendingInput = ""
	s.status = StatusIdle
	s.streaming = false
	s.streamConvID = ""

	return ApplyResult{Applied: true, Actions: ev.Actions, AssignedID: assigned}
}

func (s *Store) handleError(ev domain.InboundEvent) ApplyResult {
	// A scoped error for another conversation is a stale/background error.
	if ev.ConversationID != "" && ev.ConversationID != s.activeID && !s.matchesStream(ev.ConversationID) {
		return ApplyResult{}
	}

	code := ev.Code
	if code == "" {
		code = string(domain.CodeAssistantUpstream)
	}
	s.lastErr = &domain.AssistantError{Message: ev.Err, Code: code}
	s.status = StatusError
	// Streaming is abandoned, not resumed; the partial buffer is never
	// promoted to a message.
	s.buffer.Reset()
	s.streaming = false
	s.streamConvID = ""

	return ApplyResult{Applied: true}
}
