package domain

import (
	"fmt"
	"testing"
)

func TestErrorCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, CodeUnknown},
		{"track not found", ErrTrackNotFound, CodeTrackNotFound},
		{"wrapped track not found", fmt.Errorf("resolve: %w", ErrTrackNotFound), CodeTrackNotFound},
		{"plain not found", ErrNotFound, CodeNotFound},
		{"playlist attach", ErrPlaylistAttach, CodePlaylistAttach},
		{"transport closed", ErrTransportClosed, CodeTransportClosed},
		{"unrelated", fmt.Errorf("boom"), CodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ErrorCodeOf(tt.err); got != tt.want {
				t.Errorf("ErrorCodeOf(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorCodeSpecificityOverCategory(t *testing.T) {
	// ErrTrackNotFound wraps ErrNotFound; the specific code must win.
	err := NewDomainError("Executor.PlayTrack", ErrTrackNotFound, "id=t1")
	if got := ErrorCodeOf(err); got != CodeTrackNotFound {
		t.Errorf("got %s, want %s", got, CodeTrackNotFound)
	}
}

func TestNewAssistantError(t *testing.T) {
	ae := NewAssistantError(NewDomainError("Store.Send", ErrTransportClosed, ""))
	if ae == nil {
		t.Fatal("expected non-nil error")
	}
	if ae.Code != string(CodeTransportClosed) {
		t.Errorf("code = %s", ae.Code)
	}
	if ae.Message == "" {
		t.Error("message empty")
	}
	if NewAssistantError(nil) != nil {
		t.Error("nil error must map to nil")
	}
}

func TestDomainErrorFormat(t *testing.T) {
	e := NewDomainError("Catalog.GetTrack", ErrUnavailable, "status 503")
	want := "Catalog.GetTrack: status 503: service unavailable"
	if e.Error() != want {
		t.Errorf("Error() = %q, want %q", e.Error(), want)
	}
	e2 := NewDomainError("Catalog.GetTrack", ErrUnavailable, "")
	if e2.Error() != "Catalog.GetTrack: service unavailable" {
		t.Errorf("Error() = %q", e2.Error())
	}
}
