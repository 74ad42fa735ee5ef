// Package opennotify reads the live ISS position from the Open Notify API.
package opennotify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/samirrijal/orbittrack/internal/core/domain"
)

const (
	// DefaultURL is the public iss-now endpoint.
	DefaultURL = "http://api.open-notify.org/iss-now.json"

	sourceName   = "opennotify"
	maxBodyBytes = 1 << 20
)

// Client implements ports.PositionSource.
type Client struct {
	url  string
	http *http.Client
	now  func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithClock overrides the fetch-time clock used when the upstream omits its timestamp.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a client for url. An empty url uses DefaultURL.
func New(url string, timeout time.Duration, opts ...Option) *Client {
	if url == "" {
		url = DefaultURL
	}
	c := &Client{
		url:  url,
		http: &http.Client{Timeout: timeout},
		now:  time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// coordinate accepts both "51.5074" and 51.5074.
type coordinate struct {
	value float64
	set   bool
}

func (c *coordinate) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("%w: coordinate %q is not a number", domain.ErrMalformed, s)
		}
		c.value, c.set = v, true
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("%w: coordinate %s is not a number", domain.ErrMalformed, b)
	}
	c.value, c.set = v, true
	return nil
}

type issNowResponse struct {
	Message     *string `json:"message"`
	Timestamp   int64   `json:"timestamp"`
	ISSPosition *struct {
		Latitude  coordinate `json:"latitude"`
		Longitude coordinate `json:"longitude"`
	} `json:"iss_position"`
}

// CurrentPosition fetches and validates the live position.
func (c *Client) CurrentPosition(ctx context.Context) (domain.Position, error) {
	fetchedAt := c.now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return domain.Position{}, domain.Upstream(sourceName, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Position{}, domain.Upstream(sourceName, fmt.Errorf("GET %s: %w", c.url, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.Position{}, domain.Upstream(sourceName, fmt.Errorf("HTTP %d for %s", resp.StatusCode, c.url))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return domain.Position{}, domain.Upstream(sourceName, fmt.Errorf("read body: %w", err))
	}

	return decode(body, fetchedAt)
}

func decode(body []byte, fetchedAt time.Time) (domain.Position, error) {
	var r issNowResponse
	if err := json.Unmarshal(body, &r); err != nil {
		if errors.Is(err, domain.ErrMalformed) {
			return domain.Position{}, domain.Malformed(sourceName, err)
		}
		return domain.Position{}, domain.Upstream(sourceName, fmt.Errorf("decode: %w", err))
	}

	if r.Message != nil && *r.Message != "success" {
		return domain.Position{}, domain.Upstream(sourceName, fmt.Errorf("upstream message %q", *r.Message))
	}
	if r.ISSPosition == nil {
		return domain.Position{}, domain.Malformed(sourceName, errors.New("missing iss_position"))
	}
	if !r.ISSPosition.Latitude.set || !r.ISSPosition.Longitude.set {
		return domain.Position{}, domain.Malformed(sourceName, errors.New("missing latitude or longitude"))
	}

	pos := domain.Position{
		Latitude:   r.ISSPosition.Latitude.value,
		Longitude:  r.ISSPosition.Longitude.value,
		ObservedAt: fetchedAt,
	}
	if r.Timestamp > 0 {
		pos.ObservedAt = time.Unix(r.Timestamp, 0).UTC()
	}
	if err := pos.Validate(); err != nil {
		return domain.Position{}, domain.Malformed(sourceName, err)
	}
	return pos, nil
}
