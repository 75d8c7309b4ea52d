package query

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Client asks questions through a relay endpoint, mirroring what the form
// page does in the browser.
type Client struct {
	endpoint   string
	httpClient *http.Client
	bearer     string
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithBearerToken sends an Authorization header, for relays with the bearer guard on.
func WithBearerToken(token string) Option {
	return func(c *Client) {
		c.bearer = strings.TrimSpace(token)
	}
}

func NewClient(endpoint string, opts ...Option) (*Client, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("query: endpoint must not be empty")
	}
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	return c, nil
}

// StatusError is returned when the relay answers with a body that is not a
// JSON reply, e.g. a 502 when the upstream is down.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("query: unexpected answer (status %d): %s", e.StatusCode, e.Body)
}

// Ask trims raw, refuses empty input without any network call, posts
// {"input_data": ...} and decodes the reply. Upstream application errors come
// back as a Reply with Error set, not as a Go error.
func (c *Client) Ask(ctx context.Context, raw string) (Reply, error) {
	q, err := New(raw)
	if err != nil {
		return Reply{}, err
	}

	body, err := json.Marshal(q)
	if err != nil {
		return Reply{}, fmt.Errorf("query: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Reply{}, fmt.Errorf("query: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return Reply{}, fmt.Errorf("query: request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return Reply{}, fmt.Errorf("query: read response body: %w", err)
	}

	var reply Reply
	if err := json.Unmarshal(payload, &reply); err != nil {
		return Reply{}, &StatusError{StatusCode: res.StatusCode, Body: strings.TrimSpace(string(payload))}
	}
	return reply, nil
}
