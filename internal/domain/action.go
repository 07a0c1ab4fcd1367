package domain

import "encoding/json"

// ActionKind identifies an assistant-requested side effect.
type ActionKind string

const (
	ActionPlayTrack          ActionKind = "play_track"
	ActionAddToQueue         ActionKind = "add_to_queue"
	ActionCreatePlaylist     ActionKind = "create_playlist"
	ActionShowSearch         ActionKind = "show_search"
	ActionGetRecommendations ActionKind = "get_recommendations"
)

// Action is a structured side-effect instruction attached to a completed
// assistant reply. The kind is an open set: the assistant protocol may grow
// new kinds, so unrecognized values survive decoding and are skipped by the
// executor rather than rejected.
type Action struct {
	Kind        ActionKind `json:"type"`
	TrackID     string     `json:"track_id,omitempty"`
	TrackIDs    []string   `json:"track_ids,omitempty"`
	Name        string     `json:"name,omitempty"`
	Description string     `json:"description,omitempty"`
	Query       string     `json:"query,omitempty"`
	ResultType  string     `json:"result_type,omitempty"`
}

// Known reports whether the action kind is one the executor understands.
func (a Action) Known() bool {
	switch a.Kind {
	case ActionPlayTrack, ActionAddToQueue, ActionCreatePlaylist,
		ActionShowSearch, ActionGetRecommendations:
		return true
	}
	return false
}

// DecodeActions parses the actions array from a completion payload.
// A nil or empty payload yields no actions; malformed JSON is an error.
func DecodeActions(raw json.RawMessage) ([]Action, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var actions []Action
	if err := json.Unmarshal(raw, &actions); err != nil {
		return nil, WrapOp("decode actions", err)
	}
	return actions, nil
}
