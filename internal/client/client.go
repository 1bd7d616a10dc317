// Package client talks to the bbsfolio API on behalf of the terminal marquee.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"bbsfolio/api/internal/content"
	"bbsfolio/api/internal/contentsync"
)

const sessionHeader = "X-Session-ID"

// ErrDegraded is returned when the API answered with its own built-in defaults or with
// a snapshot it kept because its store failed. Neither may refresh a local snapshot.
var ErrDegraded = errors.New("api served fallback content")

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api %d %s: %s", e.Status, e.Code, e.Message)
}

type Client struct {
	base *url.URL
	http *http.Client

	mu        sync.Mutex
	sessionID string
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithSession resumes an existing played-animation session.
func WithSession(id string) Option {
	return func(c *Client) { c.sessionID = id }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("parse api url: unsupported scheme %q", base.Scheme)
	}
	c := &Client{base: base, http: &http.Client{Timeout: 10 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SessionID is the played-animation session, empty until the API issues one.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

type sectionsResponse struct {
	Sections  []content.Section `json:"sections"`
	Source    string            `json:"source"`
	FetchedAt *time.Time        `json:"fetchedAt"`
	Degraded  bool              `json:"degraded"`
}

// ListSections reads the section collection as the API currently serves it.
func (c *Client) ListSections(ctx context.Context) ([]content.Section, error) {
	fetched, err := c.FetchSections(ctx, false)
	return fetched.Sections, err
}

// FetchSections reads the section collection, asking the API to bypass its own snapshot
// when force is set. The API's fetch time is kept so a copy it served from its snapshot
// is not treated as younger than it is.
func (c *Client) FetchSections(ctx context.Context, force bool) (contentsync.Fetched, error) {
	path := "/api/sections"
	if force {
		path += "?force=true"
	}
	var payload sectionsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &payload); err != nil {
		return contentsync.Fetched{}, fmt.Errorf("list sections: %w", err)
	}
	switch {
	case payload.Source == string(contentsync.SourceDefaults):
		return contentsync.Fetched{}, fmt.Errorf("list sections: %w", ErrDegraded)
	case payload.Source == string(contentsync.SourceCache) && payload.Degraded:
		return contentsync.Fetched{}, fmt.Errorf("list sections: %w", ErrDegraded)
	}
	fetched := contentsync.Fetched{Sections: payload.Sections}
	if payload.FetchedAt != nil {
		fetched.FetchedAt = *payload.FetchedAt
	}
	return fetched, nil
}

type portfolioResponse struct {
	Entries  []content.PortfolioEntry `json:"entries"`
	Degraded bool                     `json:"degraded"`
}

func (c *Client) ListPortfolio(ctx context.Context) ([]content.PortfolioEntry, error) {
	var payload portfolioResponse
	if err := c.do(ctx, http.MethodGet, "/api/portfolio", nil, &payload); err != nil {
		return nil, fmt.Errorf("list portfolio: %w", err)
	}
	if payload.Degraded {
		return payload.Entries, fmt.Errorf("list portfolio: %w", ErrDegraded)
	}
	return payload.Entries, nil
}

type playedResponse struct {
	SessionID string          `json:"sessionId"`
	Played    map[string]bool `json:"played"`
}

// Played returns the keys whose reveal already ran this session.
func (c *Client) Played(ctx context.Context) (map[string]bool, error) {
	var payload playedResponse
	if err := c.do(ctx, http.MethodGet, "/api/session/played", nil, &payload); err != nil {
		return nil, fmt.Errorf("read played: %w", err)
	}
	if payload.Played == nil {
		payload.Played = map[string]bool{}
	}
	return payload.Played, nil
}

func (c *Client) MarkPlayed(ctx context.Context, key string) error {
	if err := c.do(ctx, http.MethodPut, "/api/session/played/"+url.PathEscape(key), nil, nil); err != nil {
		return fmt.Errorf("mark played: %w", err)
	}
	return nil
}

// EndSession clears the played set.
func (c *Client) EndSession(ctx context.Context) error {
	if c.SessionID() == "" {
		return nil
	}
	if err := c.do(ctx, http.MethodDelete, "/api/session/played", nil, nil); err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	rawPath, rawQuery, _ := strings.Cut(path, "?")
	endpoint := c.base.JoinPath(rawPath)
	endpoint.RawQuery = rawQuery
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if id := c.SessionID(); id != "" {
		req.Header.Set(sessionHeader, id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if id := resp.Header.Get(sessionHeader); id != "" {
		c.mu.Lock()
		c.sessionID = id
		c.mu.Unlock()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload struct {
			Code  string `json:"code"`
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&payload)
		return &APIError{Status: resp.StatusCode, Code: payload.Code, Message: payload.Error}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
