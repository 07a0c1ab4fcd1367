// Package transport maintains the persistent WebSocket connection to the
// assistant server, turning wire frames into typed inbound events and
// user messages into outbound send frames.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"aria/internal/domain"
	"aria/internal/infra/config"
)

// eventBuffer bounds the inbound event queue. Tokens arrive at generation
// cadence, well under this in any realistic backlog.
const eventBuffer = 256

// Client is the websocket transport. One Run loop owns the connection:
// it dials, reads frames until the connection drops, then redials with
// paced backoff. Send may be called from any goroutine.
type Client struct {
	url         string
	token       string
	dialTimeout time.Duration
	backoffMin  time.Duration
	backoffMax  time.Duration
	limiter     *rate.Limiter
	logger      *slog.Logger

	events    chan domain.InboundEvent
	connected atomic.Bool

	mu sync.Mutex
	ws *websocket.Conn
}

// NewClient creates a transport client from configuration. Call Run to
// actually connect.
func NewClient(cfg config.AssistantConfig, logger *slog.Logger) *Client {
	burst := cfg.ReconnectBurst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		url:         cfg.URL,
		token:       cfg.Token,
		dialTimeout: cfg.DialTimeout,
		backoffMin:  cfg.ReconnectMin,
		backoffMax:  cfg.ReconnectMax,
		limiter:     rate.NewLimiter(rate.Every(cfg.ReconnectMin), burst),
		logger:      logger,
		events:      make(chan domain.InboundEvent, eventBuffer),
	}
}

// Events implements domain.Transport. The channel is closed when Run returns.
func (c *Client) Events() <-chan domain.InboundEvent { return c.events }

// Connected implements domain.Transport.
func (c *Client) Connected() bool { return c.connected.Load() }

// Send implements domain.Transport. conversationID may be empty for a
// placeholder conversation; it is sent as null so the server creates one.
func (c *Client) Send(ctx context.Context, conversationID, message string) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return domain.WrapOp("transport send", domain.ErrTransportClosed)
	}

	payload := sendPayload{Message: message}
	if conversationID != "" {
		payload.ConversationID = &conversationID
	}
	raw, err := marshalFrame(FrameTypeSend, payload)
	if err != nil {
		return domain.WrapOp("transport send", err)
	}
	if err := wsjson.Write(ctx, ws, raw); err != nil {
		return domain.WrapOp("transport send", fmt.Errorf("write frame: %w", err))
	}
	return nil
}

// Run dials and reads until ctx is cancelled, redialing on connection loss
// with exponential backoff between backoffMin and backoffMax. The events
// channel is closed on return.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.events)

	backoff := c.backoffMin
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return ctx.Err()
		}

		if err := c.connectAndRead(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("assistant connection lost",
				"error", err,
				"retry_in", backoff,
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, c.backoffMax)
			continue
		}
		// Read loop ended cleanly on a successful session; reconnect fast.
		backoff = c.backoffMin
	}
}

func (c *Client) connectAndRead(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, c.dialTimeout)
	url := c.url
	if c.token != "" {
		url += "?token=" + c.token
	}
	ws, _, err := websocket.Dial(dialCtx, url, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.url, err)
	}

	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
	c.connected.Store(true)
	c.logger.Info("assistant connected", "url", c.url)

	err = c.readLoop(ctx, ws)

	c.connected.Store(false)
	c.mu.Lock()
	c.ws = nil
	c.mu.Unlock()
	ws.Close(websocket.StatusNormalClosure, "")
	return err
}

func (c *Client) readLoop(ctx context.Context, ws *websocket.Conn) error {
	for {
		var frame Frame
		if err := wsjson.Read(ctx, ws, &frame); err != nil {
			return err
		}
		ev, ok := decodeInbound(frame)
		if !ok {
			c.logger.Warn("skipping unreadable frame", "type", string(frame.Type))
			continue
		}
		select {
		case c.events <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// marshalFrame builds a Frame with a JSON payload.
func marshalFrame(t FrameType, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: t, Payload: raw}, nil
}

var _ domain.Transport = (*Client)(nil)
