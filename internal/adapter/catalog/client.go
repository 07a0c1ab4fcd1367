// Package catalog is the HTTP client for the music catalog API: track
// lookup, similar-track queries, and playlist mutation. All calls pass
// through a circuit breaker so a failing catalog cannot cause retry storms
// from action batches.
package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker/v2"

	"aria/internal/domain"
	"aria/internal/infra/config"
	"aria/internal/infra/tracer"
)

// Circuit breaker defaults.
const (
	defaultMaxFailures uint32        = 5
	defaultOpenTimeout time.Duration = 30 * time.Second
	defaultInterval    time.Duration = 60 * time.Second
)

// Client talks to the catalog API. Safe for concurrent use; action batches
// resolve tracks in parallel through the same client.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[json.RawMessage]
	logger  *slog.Logger
}

// NewClient builds a catalog client from configuration.
func NewClient(cfg config.CatalogConfig, logger *slog.Logger) *Client {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultMaxFailures
	}
	openTimeout := cfg.OpenTimeout
	if openTimeout == 0 {
		openTimeout = defaultOpenTimeout
	}

	cb := gobreaker.NewCircuitBreaker[json.RawMessage](gobreaker.Settings{
		Name:        "catalog",
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    defaultInterval,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			// Not-found and bad-input responses are answers, not outages.
			return err == nil ||
				errors.Is(err, domain.ErrNotFound) ||
				errors.Is(err, domain.ErrInvalidInput)
		},
	})

	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		http: &http.Client{
			Transport: newPooledTransport(cfg.Timeout),
			Timeout:   cfg.Timeout,
		},
		breaker: cb,
		logger:  logger,
	}
}

// GetTrack implements domain.Catalog.
func (c *Client) GetTrack(ctx context.Context, id string) (*domain.Track, error) {
	if id == "" {
		return nil, domain.WrapOp("get track", domain.ErrInvalidInput)
	}
	ctx, span := tracer.StartSpan(ctx, "catalog.get_track")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("track_id", id))

	raw, err := c.do(ctx, http.MethodGet, "/v1/tracks/"+url.PathEscape(id), nil)
	if err != nil {
		tracer.RecordError(span, err)
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.WrapOp("get track", domain.ErrTrackNotFound)
		}
		return nil, domain.WrapOp("get track", err)
	}

	var track domain.Track
	if err := json.Unmarshal(raw, &track); err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp("get track", fmt.Errorf("decode track: %w", err))
	}
	tracer.SetOK(span)
	return &track, nil
}

// GetSimilarTracks implements domain.Catalog.
func (c *Client) GetSimilarTracks(ctx context.Context, id string, limit int) ([]domain.Track, error) {
	if id == "" {
		return nil, domain.WrapOp("get similar tracks", domain.ErrInvalidInput)
	}
	ctx, span := tracer.StartSpan(ctx, "catalog.similar_tracks")
	defer span.End()
	span.SetAttributes(
		tracer.StringAttr("track_id", id),
		tracer.IntAttr("limit", limit),
	)

	path := "/v1/tracks/" + url.PathEscape(id) + "/similar?limit=" + strconv.Itoa(limit)
	raw, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp("get similar tracks", err)
	}

	var tracks []domain.Track
	if err := json.Unmarshal(raw, &tracks); err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp("get similar tracks", fmt.Errorf("decode tracks: %w", err))
	}
	tracer.SetOK(span)
	return tracks, nil
}

// CreatePlaylist implements domain.Catalog.
func (c *Client) CreatePlaylist(ctx context.Context, name, description string, public bool) (*domain.Playlist, error) {
	if name == "" {
		return nil, domain.WrapOp("create playlist", domain.ErrInvalidInput)
	}
	ctx, span := tracer.StartSpan(ctx, "catalog.create_playlist")
	defer span.End()

	body := map[string]any{
		"name":        name,
		"description": description,
		"public":      public,
	}
	raw, err := c.do(ctx, http.MethodPost, "/v1/playlists", body)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp("create playlist", err)
	}

	var playlist domain.Playlist
	if err := json.Unmarshal(raw, &playlist); err != nil {
		tracer.RecordError(span, err)
		return nil, domain.WrapOp("create playlist", fmt.Errorf("decode playlist: %w", err))
	}
	tracer.SetOK(span)
	return &playlist, nil
}

// AddTracksToPlaylist implements domain.Catalog.
func (c *Client) AddTracksToPlaylist(ctx context.Context, playlistID string, trackIDs []string) error {
	if playlistID == "" || len(trackIDs) == 0 {
		return domain.WrapOp("add tracks to playlist", domain.ErrInvalidInput)
	}
	ctx, span := tracer.StartSpan(ctx, "catalog.add_playlist_tracks")
	defer span.End()
	span.SetAttributes(tracer.IntAttr("track_count", len(trackIDs)))

	body := map[string]any{"track_ids": trackIDs}
	path := "/v1/playlists/" + url.PathEscape(playlistID) + "/tracks"
	if _, err := c.do(ctx, http.MethodPost, path, body); err != nil {
		tracer.RecordError(span, err)
		return domain.WrapOp("add tracks to playlist", err)
	}
	tracer.SetOK(span)
	return nil
}

// do runs one request through the circuit breaker and returns the response
// body. Status codes are mapped onto domain sentinels so callers never see
// raw HTTP details.
func (c *Client) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
	raw, err := c.breaker.Execute(func() (json.RawMessage, error) {
		var reqBody io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return nil, fmt.Errorf("encode request: %w", err)
			}
			reqBody = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return data, nil
		case resp.StatusCode == http.StatusNotFound:
			return nil, domain.ErrNotFound
		case resp.StatusCode == http.StatusBadRequest:
			return nil, domain.ErrInvalidInput
		case resp.StatusCode >= 500:
			return nil, fmt.Errorf("%w: catalog returned %d", domain.ErrUnavailable, resp.StatusCode)
		default:
			return nil, fmt.Errorf("catalog returned %d", resp.StatusCode)
		}
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, fmt.Errorf("%w: circuit open", domain.ErrUnavailable)
	}
	return raw, err
}

// newPooledTransport returns an http.Transport sized for a small number of
// catalog hosts with concurrent track resolution.
func newPooledTransport(connTimeout time.Duration) *http.Transport {
	if connTimeout == 0 {
		connTimeout = 10 * time.Second
	}
	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   connTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: connTimeout,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       20,
		IdleConnTimeout:       120 * time.Second,
		ForceAttemptHTTP2:     true,
	}
}

var _ domain.Catalog = (*Client)(nil)
