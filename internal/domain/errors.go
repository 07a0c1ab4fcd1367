package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the assistant domain.
var (
	ErrNotFound        = fmt.Errorf("not found")
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrUnavailable     = fmt.Errorf("service unavailable")
	ErrTransportClosed = fmt.Errorf("transport not connected")
	ErrEmptyMessage    = fmt.Errorf("message is empty")
	ErrStreamInFlight  = fmt.Errorf("a response is still streaming")
	ErrStaleEvent      = fmt.Errorf("event for non-active conversation")

	ErrTrackNotFound        = fmt.Errorf("track: %w", ErrNotFound)
	ErrConversationNotFound = fmt.Errorf("conversation: %w", ErrNotFound)
	ErrPlaylistCreate       = fmt.Errorf("playlist creation failed")
	ErrPlaylistAttach       = fmt.Errorf("playlist created, but adding tracks failed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g. "Executor.PlayTrack")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ErrorCode is a machine-parseable error category surfaced alongside the
// user-visible error message.
type ErrorCode string

const (
	CodeUnknown            ErrorCode = "UNKNOWN"
	CodeNotFound           ErrorCode = "NOT_FOUND"
	CodeInvalidInput       ErrorCode = "INVALID_INPUT"
	CodeUnavailable        ErrorCode = "UNAVAILABLE"
	CodeTransportClosed    ErrorCode = "TRANSPORT_CLOSED"
	CodeTrackNotFound      ErrorCode = "TRACK_NOT_FOUND"
	CodePlaylistCreate     ErrorCode = "PLAYLIST_CREATE"
	CodePlaylistAttach     ErrorCode = "PLAYLIST_ATTACH"
	CodeConversationGone   ErrorCode = "CONVERSATION_NOT_FOUND"
	CodeStreamInFlight     ErrorCode = "STREAM_IN_FLIGHT"
	CodeAssistantUpstream  ErrorCode = "ASSISTANT_UPSTREAM"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
// Ordering matters only for specificity: specific sentinels are checked
// before the categories they wrap.
var errorCodeOrder = []struct {
	sentinel error
	code     ErrorCode
}{
	{ErrTrackNotFound, CodeTrackNotFound},
	{ErrConversationNotFound, CodeConversationGone},
	{ErrPlaylistAttach, CodePlaylistAttach},
	{ErrPlaylistCreate, CodePlaylistCreate},
	{ErrTransportClosed, CodeTransportClosed},
	{ErrStreamInFlight, CodeStreamInFlight},
	{ErrEmptyMessage, CodeInvalidInput},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrUnavailable, CodeUnavailable},
	{ErrNotFound, CodeNotFound},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It walks the error chain with errors.Is, matching the most specific
// sentinel first. Returns CodeUnknown if no sentinel matches.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	for _, entry := range errorCodeOrder {
		if errors.Is(err, entry.sentinel) {
			return entry.code
		}
	}
	return CodeUnknown
}

// AssistantError is the single surfaced error of the conversation store:
// last error wins, cleared explicitly or superseded by the next transition.
type AssistantError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// NewAssistantError builds an AssistantError from a Go error, deriving the
// machine code from the sentinel chain.
func NewAssistantError(err error) *AssistantError {
	if err == nil {
		return nil
	}
	return &AssistantError{
		Message: err.Error(),
		Code:    string(ErrorCodeOf(err)),
	}
}
