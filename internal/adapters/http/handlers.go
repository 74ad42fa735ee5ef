package http

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/orbittrack/internal/core/domain"
	"github.com/samirrijal/orbittrack/internal/core/usecases"
)

// PositionResponse is the body of GET /v1/position.
type PositionResponse struct {
	Latitude   float64                `json:"latitude"`
	Longitude  float64                `json:"longitude"`
	Display    domain.DisplayPosition `json:"display"`
	ObservedAt *time.Time             `json:"observed_at,omitempty"`
	Loading    bool                   `json:"loading"`
	Version    uint64                 `json:"version"`
}

// StateHandler returns the full snapshot.
func StateHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("Cache-Control", "no-store")
		return c.JSON(domain.NewStateView(deps.State.Snapshot()))
	}
}

// PositionHandler returns the latest position, or 404 while none has been published.
func PositionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s := deps.State.Snapshot()
		if s.Position == nil {
			return errNoPosition(c, s.Loading)
		}

		resp := PositionResponse{
			Latitude:  s.Position.Latitude,
			Longitude: s.Position.Longitude,
			Display:   s.Position.Display(),
			Loading:   s.Loading,
			Version:   s.Version,
		}
		if !s.Position.ObservedAt.IsZero() {
			at := s.Position.ObservedAt
			resp.ObservedAt = &at
		}
		c.Set("Cache-Control", "no-store")
		return c.JSON(resp)
	}
}

// TrackHandler returns the projected track, paginated.
func TrackHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s := deps.State.Snapshot()

		pg := parsePagination(c, len(s.Track))
		start, end := pg.window()

		SetLinkHeaders(c, pg)
		c.Set(stateVersionHeader, strconv.FormatUint(s.Version, 10))
		return c.JSON(PaginatedResponse{Data: s.Track[start:end], Pagination: pg})
	}
}

// TrackGeoJSONHandler returns the track and position as a GeoJSON FeatureCollection.
func TrackGeoJSONHandler(deps *Dependencies) fiber.Handler {
	renderer := deps.Renderer
	if renderer == nil {
		renderer = usecases.NewTrackRenderer(nil, 0, nil)
	}
	return func(c *fiber.Ctx) error {
		s := deps.State.Snapshot()
		data, err := renderer.GeoJSON(c.UserContext(), s)
		if err != nil {
			LoggerFromCtx(c.UserContext()).Error("render geojson", "error", err)
			return errInternal(c, "could not render track")
		}
		c.Set(stateVersionHeader, strconv.FormatUint(s.Version, 10))
		c.Set("Content-Type", "application/geo+json")
		return c.Send(data)
	}
}

// ISSNowHandler serves the position in the Open Notify iss-now shape for older clients.
func ISSNowHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s := deps.State.Snapshot()
		if s.Position == nil {
			return errNoPosition(c, s.Loading)
		}
		d := s.Position.Display()
		ts := s.Position.ObservedAt
		if ts.IsZero() {
			ts = s.PositionStartedAt
		}
		return c.JSON(fiber.Map{
			"message":   "success",
			"timestamp": ts.Unix(),
			"iss_position": fiber.Map{
				"latitude":  d.Latitude,
				"longitude": d.Longitude,
			},
		})
	}
}
