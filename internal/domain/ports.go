package domain

import "context"

// Track is a catalog track as resolved by the catalog collaborator.
type Track struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album,omitempty"`
	DurationMS int    `json:"duration_ms,omitempty"`
	ArtworkURL string `json:"artwork_url,omitempty"`
}

// Playlist is a user playlist created through the catalog collaborator.
type Playlist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Public      bool   `json:"public"`
}

// Transport delivers inbound assistant events and accepts outbound sends
// over a persistent connection.
type Transport interface {
	// Send submits a user message for the given conversation.
	// conversationID is empty for an unsaved placeholder conversation.
	Send(ctx context.Context, conversationID, message string) error
	// Connected reports whether the underlying connection is up.
	Connected() bool
	// Events returns the channel of inbound events. Closed when the
	// transport shuts down for good.
	Events() <-chan InboundEvent
}

// Catalog is the track/playlist backend invoked by actions. All calls are
// remote and may fail independently; GetTrack is batch-safe for concurrent
// callers.
type Catalog interface {
	GetTrack(ctx context.Context, id string) (*Track, error)
	GetSimilarTracks(ctx context.Context, id string, limit int) ([]Track, error)
	CreatePlaylist(ctx context.Context, name, description string, public bool) (*Playlist, error)
	AddTracksToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error
}

// History is the request/response collaborator for conversation listings
// and message history.
type History interface {
	ListConversations(ctx context.Context, limit, offset int) (*ConversationPage, error)
	ListMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)
	DeleteConversation(ctx context.Context, conversationID string) error
	DeleteAllConversations(ctx context.Context) error
}

// Player controls local playback: the current track slot and the play queue.
type Player interface {
	SetCurrent(track Track)
	Enqueue(tracks []Track)
	// ReplaceQueue swaps the whole queue and starts playing its head.
	ReplaceQueue(tracks []Track)
}

// Navigator is the rendering-layer hook for navigation side effects.
type Navigator interface {
	ShowSearch(query, resultType string)
	ShowPlaylist(playlistID string)
}

// Prefs persists the narrow UI-preference contract: which panel is open and
// which conversation was last active. Nothing else is persisted.
type Prefs interface {
	Load(ctx context.Context) (panelOpen bool, activeConversationID string, err error)
	Save(ctx context.Context, panelOpen bool, activeConversationID string) error
}
