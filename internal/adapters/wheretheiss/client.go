// Package wheretheiss talks to the wheretheiss.at satellite API, which answers
// both live and batched future-position queries.
package wheretheiss

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/samirrijal/orbittrack/internal/core/domain"
)

const (
	// DefaultBaseURL is the public API root.
	DefaultBaseURL = "https://api.wheretheiss.at"
	// ISSNoradID identifies the ISS.
	ISSNoradID = 25544
	// MaxTimestamps is the upstream's per-request limit for the positions endpoint.
	MaxTimestamps = 10

	sourceName   = "wheretheiss"
	maxBodyBytes = 1 << 20
)

// Client implements ports.PositionSource and ports.BatchPositionSource.
type Client struct {
	baseURL string
	noradID int
	http    *http.Client
}

// New creates a client. An empty baseURL uses DefaultBaseURL; a zero noradID uses the ISS.
func New(baseURL string, noradID int, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if noradID == 0 {
		noradID = ISSNoradID
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		noradID: noradID,
		http:    &http.Client{Timeout: timeout},
	}
}

type satellitePosition struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
	Altitude  float64  `json:"altitude"`
	Velocity  float64  `json:"velocity"`
	Timestamp int64    `json:"timestamp"`
}

func (p satellitePosition) record() (domain.PositionRecord, error) {
	if p.Latitude == nil || p.Longitude == nil {
		return domain.PositionRecord{}, errors.New("missing latitude or longitude")
	}
	if err := domain.ValidateCoordinates(*p.Latitude, *p.Longitude); err != nil {
		return domain.PositionRecord{}, err
	}
	return domain.PositionRecord{
		Latitude:  *p.Latitude,
		Longitude: *p.Longitude,
		Altitude:  p.Altitude,
		Velocity:  p.Velocity,
		Timestamp: p.Timestamp,
	}, nil
}

// CurrentPosition queries /v1/satellites/{id}.
func (c *Client) CurrentPosition(ctx context.Context) (domain.Position, error) {
	endpoint := fmt.Sprintf("%s/v1/satellites/%d", c.baseURL, c.noradID)

	var p satellitePosition
	if err := c.getJSON(ctx, endpoint, &p); err != nil {
		return domain.Position{}, err
	}
	rec, err := p.record()
	if err != nil {
		return domain.Position{}, domain.Malformed(sourceName, err)
	}

	pos := domain.Position{Latitude: rec.Latitude, Longitude: rec.Longitude, ObservedAt: time.Now().UTC()}
	if rec.Timestamp > 0 {
		pos.ObservedAt = time.Unix(rec.Timestamp, 0).UTC()
	}
	return pos, nil
}

// PositionsAt queries /v1/satellites/{id}/positions for up to MaxTimestamps timestamps.
func (c *Client) PositionsAt(ctx context.Context, timestamps []int64) ([]domain.PositionRecord, error) {
	if len(timestamps) == 0 {
		return nil, nil
	}
	if len(timestamps) > MaxTimestamps {
		return nil, domain.Upstream(sourceName,
			fmt.Errorf("%d timestamps exceeds the per-request limit of %d", len(timestamps), MaxTimestamps))
	}

	parts := make([]string, len(timestamps))
	for i, ts := range timestamps {
		parts[i] = strconv.FormatInt(ts, 10)
	}
	q := url.Values{}
	q.Set("timestamps", strings.Join(parts, ","))
	q.Set("units", "kilometers")
	endpoint := fmt.Sprintf("%s/v1/satellites/%d/positions?%s", c.baseURL, c.noradID, q.Encode())

	var body []satellitePosition
	if err := c.getJSON(ctx, endpoint, &body); err != nil {
		return nil, err
	}

	out := make([]domain.PositionRecord, 0, len(body))
	for i, p := range body {
		rec, err := p.record()
		if err != nil {
			return nil, domain.Malformed(sourceName, fmt.Errorf("record %d: %w", i, err))
		}
		out = append(out, rec)
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Upstream(sourceName, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return domain.Upstream(sourceName, fmt.Errorf("GET %s: %w", endpoint, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return domain.Upstream(sourceName, fmt.Errorf("HTTP %d for %s", resp.StatusCode, endpoint))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return domain.Upstream(sourceName, fmt.Errorf("read body: %w", err))
	}
	if err := json.Unmarshal(data, v); err != nil {
		return domain.Upstream(sourceName, fmt.Errorf("decode: %w", err))
	}
	return nil
}
