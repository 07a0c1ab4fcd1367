// Package playback is the local playback target for executor actions: a
// current-track slot plus an ordered play queue.
package playback

import (
	"log/slog"
	"sync"

	"aria/internal/domain"
)

// Queue implements domain.Player in memory. The rendering layer reads it
// through Current/Upcoming; the executor writes it.
type Queue struct {
	mu       sync.Mutex
	current  *domain.Track
	upcoming []domain.Track
	logger   *slog.Logger
}

// New creates an empty queue.
func New(logger *slog.Logger) *Queue {
	return &Queue{logger: logger}
}

// SetCurrent implements domain.Player. The queue is untouched.
func (q *Queue) SetCurrent(track domain.Track) {
	q.mu.Lock()
	q.current = &track
	q.mu.Unlock()
	q.logger.Info("playing track", "track_id", track.ID, "title", track.Title)
}

// Enqueue implements domain.Player. Tracks are appended in the given order.
func (q *Queue) Enqueue(tracks []domain.Track) {
	if len(tracks) == 0 {
		return
	}
	q.mu.Lock()
	q.upcoming = append(q.upcoming, tracks...)
	q.mu.Unlock()
	q.logger.Info("queued tracks", "count", len(tracks))
}

// ReplaceQueue implements domain.Player: the first track starts playing,
// the rest become the new queue.
func (q *Queue) ReplaceQueue(tracks []domain.Track) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(tracks) == 0 {
		q.current = nil
		q.upcoming = nil
		return
	}
	head := tracks[0]
	q.current = &head
	q.upcoming = append([]domain.Track(nil), tracks[1:]...)
}

// Current returns the playing track, or nil.
func (q *Queue) Current() *domain.Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.current == nil {
		return nil
	}
	t := *q.current
	return &t
}

// Upcoming returns a copy of the queued tracks in play order.
func (q *Queue) Upcoming() []domain.Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.Track(nil), q.upcoming...)
}

var _ domain.Player = (*Queue)(nil)
