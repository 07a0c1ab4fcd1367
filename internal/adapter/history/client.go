// Package history is the HTTP client for the conversation history API:
// paged conversation listings, per-conversation message loads, and deletes.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"aria/internal/domain"
	"aria/internal/infra/config"
)

// Client talks to the history API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient builds a history client from configuration.
func NewClient(cfg config.HistoryConfig, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// ListConversations implements domain.History.
func (c *Client) ListConversations(ctx context.Context, limit, offset int) (*domain.ConversationPage, error) {
	path := "/v1/conversations?limit=" + strconv.Itoa(limit) + "&offset=" + strconv.Itoa(offset)
	raw, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, domain.WrapOp("list conversations", err)
	}

	var page domain.ConversationPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, domain.WrapOp("list conversations", fmt.Errorf("decode page: %w", err))
	}
	return &page, nil
}

// ListMessages implements domain.History. Messages are returned oldest
// first, ready for direct display.
func (c *Client) ListMessages(ctx context.Context, conversationID string, limit int) ([]domain.Message, error) {
	if conversationID == "" {
		return nil, domain.WrapOp("list messages", domain.ErrInvalidInput)
	}
	path := "/v1/conversations/" + url.PathEscape(conversationID) + "/messages?limit=" + strconv.Itoa(limit)
	raw, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.WrapOp("list messages", domain.ErrConversationNotFound)
		}
		return nil, domain.WrapOp("list messages", err)
	}

	var msgs []domain.Message
	if err := json.Unmarshal(raw, &msgs); err != nil {
		return nil, domain.WrapOp("list messages", fmt.Errorf("decode messages: %w", err))
	}
	return msgs, nil
}

// DeleteConversation implements domain.History.
func (c *Client) DeleteConversation(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return domain.WrapOp("delete conversation", domain.ErrInvalidInput)
	}
	path := "/v1/conversations/" + url.PathEscape(conversationID)
	if _, err := c.do(ctx, http.MethodDelete, path, nil); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.WrapOp("delete conversation", domain.ErrConversationNotFound)
		}
		return domain.WrapOp("delete conversation", err)
	}
	return nil
}

// DeleteAllConversations implements domain.History.
func (c *Client) DeleteAllConversations(ctx context.Context) error {
	if _, err := c.do(ctx, http.MethodDelete, "/v1/conversations", nil); err != nil {
		return domain.WrapOp("delete all conversations", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (json.RawMessage, error) {
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

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return data, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrNotFound
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: history returned %d", domain.ErrUnavailable, resp.StatusCode)
	default:
		return nil, fmt.Errorf("history returned %d", resp.StatusCode)
	}
}

var _ domain.History = (*Client)(nil)
