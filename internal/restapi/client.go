// Package restapi implements domain.MessagingAPI over the LMS REST
// endpoints. It is the authoritative fallback for everything the push
// channel delivers opportunistically.
package restapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"lmsync/internal/domain"
)

// Client talks to the messaging backend. Safe for concurrent use.
type Client struct {
	base    string
	token   string
	retries int
	http    *http.Client
	logger  *slog.Logger
}

// Config configures the REST client.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// MaxRetries bounds retries of idempotent requests after the first
	// try. Zero means the default budget.
	MaxRetries int
	Logger     *slog.Logger
}

// New creates a Client with a pooled transport shared across calls.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	return &Client{
		base:    cfg.BaseURL,
		token:   cfg.Token,
		retries: retries,
		logger:  cfg.Logger,
		http: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
	}
}

var _ domain.MessagingAPI = (*Client)(nil)

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// getJSON runs an idempotent request with retry and decodes the body.
func (c *Client) getJSON(ctx context.Context, method, path string, out any) error {
	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		return c.newRequest(ctx, method, path, nil)
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: HTTP %d: %s", method, path, resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// Conversations returns the thread list in server-defined order.
func (c *Client) Conversations(ctx context.Context) ([]domain.Thread, error) {
	var threads []domain.Thread
	if err := c.getJSON(ctx, http.MethodGet, "/messages/conversations", &threads); err != nil {
		return nil, fmt.Errorf("load conversations: %w", err)
	}
	return threads, nil
}

// History returns the conversation with partnerID, newest-first as the
// server sends it.
func (c *Client) History(ctx context.Context, partnerID int64) ([]domain.Message, error) {
	path := "/messages/?with_user_id=" + url.QueryEscape(strconv.FormatInt(partnerID, 10))
	var msgs []domain.Message
	if err := c.getJSON(ctx, http.MethodGet, path, &msgs); err != nil {
		return nil, fmt.Errorf("load history for %d: %w", partnerID, err)
	}
	return msgs, nil
}

// Send creates a message. Not retried: a retry could double-send.
func (c *Client) Send(ctx context.Context, toUserID int64, content string) (domain.Message, error) {
	payload, err := json.Marshal(map[string]any{
		"to_user_id": toUserID,
		"content":    content,
	})
	if err != nil {
		return domain.Message{}, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/messages/", payload)
	if err != nil {
		return domain.Message{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Message{}, fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return domain.Message{}, fmt.Errorf("send message: HTTP %d: %s", resp.StatusCode, body)
	}

	var msg domain.Message
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return domain.Message{}, fmt.Errorf("decode sent message: %w", err)
	}
	return msg, nil
}

// AvailableContacts returns everyone the current user may message.
func (c *Client) AvailableContacts(ctx context.Context) ([]domain.Contact, error) {
	var contacts []domain.Contact
	if err := c.getJSON(ctx, http.MethodGet, "/messages/available-contacts", &contacts); err != nil {
		return nil, fmt.Errorf("load contacts: %w", err)
	}
	return contacts, nil
}

// MarkRead flips a single message to read. Idempotent, so retried.
func (c *Client) MarkRead(ctx context.Context, messageID int64) error {
	path := "/messages/" + strconv.FormatInt(messageID, 10) + "/read"
	if err := c.getJSON(ctx, http.MethodPut, path, nil); err != nil {
		return fmt.Errorf("mark read %d: %w", messageID, err)
	}
	return nil
}

// MarkAllRead flips every inbound message from partnerID to read.
func (c *Client) MarkAllRead(ctx context.Context, partnerID int64) error {
	path := "/messages/mark-all-read/" + strconv.FormatInt(partnerID, 10)
	if err := c.getJSON(ctx, http.MethodPut, path, nil); err != nil {
		return fmt.Errorf("mark all read for %d: %w", partnerID, err)
	}
	return nil
}
