package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"aria/internal/domain"
	"aria/internal/infra/tracer"
)

// defaultRecommendationLimit bounds the similar-tracks fetch.
const defaultRecommendationLimit = 20

// Executor consumes the ordered action list attached to a completed
// assistant reply. Actions run strictly sequentially; a failing action is
// caught, logged and surfaced through the error sink, and never prevents
// the remaining actions in the batch from running. Only the track lookups
// inside a single add_to_queue or get_recommendations action are concurrent.
type Executor struct {
	catalog domain.Catalog
	player  domain.Player
	nav     domain.Navigator
	bus     domain.EventBus
	logger  *slog.Logger

	recLimit int

	// onError receives non-fatal per-action failures (wired to
	// Store.RecordActionError by the orchestrator).
	onError func(error)
	// invalidatePlaylists is called after a playlist was created so cached
	// playlist listings outside this subsystem can refetch.
	invalidatePlaylists func()
}

// NewExecutor creates an action executor. bus may be nil.
func NewExecutor(catalog domain.Catalog, player domain.Player, nav domain.Navigator, bus domain.EventBus, logger *slog.Logger) *Executor {
	return &Executor{
		catalog:  catalog,
		player:   player,
		nav:      nav,
		bus:      bus,
		logger:   logger,
		recLimit: defaultRecommendationLimit,
	}
}

// SetErrorSink registers the sink for non-fatal action errors.
func (e *Executor) SetErrorSink(fn func(error)) { e.onError = fn }

// SetPlaylistInvalidator registers the playlist-listing invalidation hook.
func (e *Executor) SetPlaylistInvalidator(fn func()) { e.invalidatePlaylists = fn }

// Execute runs the batch in array order. Each action either completes or
// fails in isolation; the batch itself never fails.
func (e *Executor) Execute(ctx context.Context, conversationID string, actions []domain.Action) {
	if len(actions) == 0 {
		return
	}

	ctx, span := tracer.StartSpan(ctx, "actions.batch")
	span.SetAttributes(tracer.IntAttr("actions.count", len(actions)))
	defer span.End()

	for _, action := range actions {
		e.runOne(ctx, conversationID, action)
	}
}

// runOne executes a single action with panic isolation.
func (e *Executor) runOne(ctx context.Context, conversationID string, action domain.Action) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("action handler panicked",
				"action", string(action.Kind),
				"panic", r,
			)
			e.fail(ctx, conversationID, action, fmt.Errorf("action %s panicked: %v", action.Kind, r))
		}
	}()

	ctx, span := tracer.StartSpan(ctx, "actions."+string(action.Kind))
	defer span.End()

	e.publish(ctx, domain.EventActionStarted, conversationID, action, nil)

	var err error
	switch action.Kind {
	case domain.ActionPlayTrack:
		err = e.playTrack(ctx, action)
	case domain.ActionAddToQueue:
		err = e.addToQueue(ctx, action)
	case domain.ActionCreatePlaylist:
		err = e.createPlaylist(ctx, action)
	case domain.ActionShowSearch:
		e.nav.ShowSearch(action.Query, action.ResultType)
	case domain.ActionGetRecommendations:
		err = e.getRecommendations(ctx, action)
	default:
		// Forward compatibility: the assistant protocol may grow new
		// action kinds before this client learns them.
		e.logger.Warn("skipping unrecognized action", "action", string(action.Kind))
		return
	}

	if err != nil {
		tracer.RecordError(span, err)
		e.fail(ctx, conversationID, action, err)
		return
	}
	tracer.SetOK(span)
	e.publish(ctx, domain.EventActionCompleted, conversationID, action, nil)
}

func (e *Executor) fail(ctx context.Context, conversationID string, action domain.Action, err error) {
	e.logger.Warn("action failed",
		"action", string(action.Kind),
		"conversation_id", conversationID,
		"error", err,
	)
	if e.onError != nil {
		e.onError(err)
	}
	e.publish(ctx, domain.EventActionFailed, conversationID, action, err)
}

func (e *Executor) publish(ctx context.Context, eventType domain.EventType, conversationID string, action domain.Action, err error) {
	if e.bus == nil {
		return
	}
	payload := domain.ActionFailedPayload{Kind: string(action.Kind)}
	if err != nil {
		payload.Error = err.Error()
	}
	raw, merr := json.Marshal(payload)
	if merr != nil {
		return
	}
	e.bus.Publish(ctx, domain.Event{
		Type:           eventType,
		Timestamp:      time.Now(),
		ConversationID: conversationID,
		Payload:        raw,
	})
}

// playTrack resolves the track and makes it the current playback target.
func (e *Executor) playTrack(ctx context.Context, action domain.Action) error {
	if action.TrackID == "" {
		return domain.NewDomainError("Executor.PlayTrack", domain.ErrInvalidInput, "missing track_id")
	}
	track, err := e.catalog.GetTrack(ctx, action.TrackID)
	if err != nil {
		// Keep the cause: a catalog outage must not surface as not-found.
		return domain.NewDomainError("Executor.PlayTrack", err, action.TrackID)
	}
	e.player.SetCurrent(*track)
	return nil
}

// addToQueue resolves all listed tracks in parallel and appends the ones
// that resolved, preserving the original order. Partial resolution is
// success: failed lookups are logged and omitted, never fatal.
func (e *Executor) addToQueue(ctx context.Context, action domain.Action) error {
	if len(action.TrackIDs) == 0 {
		return nil
	}

	resolved := make([]*domain.Track, len(action.TrackIDs))
	var wg sync.WaitGroup
	for i, id := range action.TrackIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			track, err := e.catalog.GetTrack(ctx, id)
			if err != nil {
				e.logger.Warn("queue track lookup failed", "track_id", id, "error", err)
				return
			}
			resolved[i] = track
		}(i, id)
	}
	wg.Wait()

	tracks := make([]domain.Track, 0, len(action.TrackIDs))
	for _, t := range resolved {
		if t != nil {
			tracks = append(tracks, *t)
		}
	}
	if len(tracks) == 0 {
		return domain.NewDomainError("Executor.AddToQueue", domain.ErrTrackNotFound, "no tracks resolved")
	}
	e.player.Enqueue(tracks)
	return nil
}

// createPlaylist creates the playlist first and only then attempts to attach
// tracks. Attach failure is its own degraded-but-visible error: the playlist
// exists, the navigation still happens, and the error says so.
func (e *Executor) createPlaylist(ctx context.Context, action domain.Action) error {
	if action.Name == "" {
		return domain.NewDomainError("Executor.CreatePlaylist", domain.ErrInvalidInput, "missing name")
	}

	playlist, err := e.catalog.CreatePlaylist(ctx, action.Name, action.Description, false)
	if err != nil {
		return domain.NewDomainError("Executor.CreatePlaylist", domain.ErrPlaylistCreate, action.Name)
	}

	var attachErr error
	if len(action.TrackIDs) > 0 {
		if err := e.catalog.AddTracksToPlaylist(ctx, playlist.ID, action.TrackIDs); err != nil {
			attachErr = domain.NewDomainError("Executor.CreatePlaylist", domain.ErrPlaylistAttach, playlist.Name)
		}
	}

	if e.invalidatePlaylists != nil {
		e.invalidatePlaylists()
	}
	e.nav.ShowPlaylist(playlist.ID)
	return attachErr
}

// getRecommendations resolves the seed track and its similar tracks
// concurrently, then replaces the queue with seed-first ordering. When
// nothing resolves this is a silent no-op.
func (e *Executor) getRecommendations(ctx context.Context, action domain.Action) error {
	if action.TrackID == "" {
		return domain.NewDomainError("Executor.GetRecommendations", domain.ErrInvalidInput, "missing track_id")
	}

	var (
		wg      sync.WaitGroup
		seed    *domain.Track
		similar []domain.Track
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		track, err := e.catalog.GetTrack(ctx, action.TrackID)
		if err != nil {
			e.logger.Warn("recommendation seed lookup failed", "track_id", action.TrackID, "error", err)
			return
		}
		seed = track
	}()
	go func() {
		defer wg.Done()
		tracks, err := e.catalog.GetSimilarTracks(ctx, action.TrackID, e.recLimit)
		if err != nil {
			e.logger.Warn("similar tracks fetch failed", "track_id", action.TrackID, "error", err)
			return
		}
		similar = tracks
	}()
	wg.Wait()

	queue := make([]domain.Track, 0, len(similar)+1)
	if seed != nil {
		queue = append(queue, *seed)
	}
	queue = append(queue, similar...)
	if len(queue) == 0 {
		return nil
	}
	e.player.ReplaceQueue(queue)
	return nil
}
