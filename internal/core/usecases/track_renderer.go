package usecases

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/samirrijal/orbittrack/internal/core/domain"
	"github.com/samirrijal/orbittrack/internal/core/ports"
	"github.com/samirrijal/orbittrack/internal/pkg/geospatial"
	"github.com/samirrijal/orbittrack/internal/pkg/metrics"
)

// TrackRenderer renders snapshots as GeoJSON. Renders are cached per state
// version, since a given version never changes.
type TrackRenderer struct {
	cache  ports.CacheService
	ttl    int
	logger *slog.Logger
}

// NewTrackRenderer creates a renderer. cache may be nil.
func NewTrackRenderer(cache ports.CacheService, ttlSeconds int, logger *slog.Logger) *TrackRenderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrackRenderer{cache: cache, ttl: ttlSeconds, logger: logger}
}

// GeoJSON returns a FeatureCollection with the track as a MultiLineString split
// at the antimeridian, plus a Point for the current position when there is one.
func (r *TrackRenderer) GeoJSON(ctx context.Context, state domain.PollState) ([]byte, error) {
	cacheKey := fmt.Sprintf("orbittrack:geojson:v%d", state.Version)
	if r.cache != nil {
		if data, err := r.cache.Get(ctx, cacheKey); err == nil && len(data) > 0 {
			metrics.CacheHits.WithLabelValues("geojson").Inc()
			return data, nil
		}
		metrics.CacheMisses.WithLabelValues("geojson").Inc()
	}

	data, err := RenderGeoJSON(state).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("marshal geojson: %w", err)
	}

	if r.cache != nil && r.ttl > 0 {
		if err := r.cache.Set(ctx, cacheKey, data, r.ttl); err != nil {
			r.logger.Debug("geojson cache set failed", "error", err)
		}
	}
	return data, nil
}

// RenderGeoJSON builds the FeatureCollection for state.
func RenderGeoJSON(state domain.PollState) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	if len(state.Track) > 0 {
		f := geojson.NewFeature(geospatial.SplitAntimeridian(state.Track.LineString()))
		f.Properties["kind"] = "track"
		f.Properties["points"] = len(state.Track)
		f.Properties["length_km"] = geospatial.PathLengthKm(state.Track.Coordinates())
		if first, last := state.Track[0].Timestamp, state.Track[len(state.Track)-1].Timestamp; first > 0 {
			f.Properties["start"] = first
			f.Properties["end"] = last
		}
		if b, ok := domain.TrackBounds(state.Track); ok {
			f.BBox = geojson.BBox{b.MinLon, b.MinLat, b.MaxLon, b.MaxLat}
		}
		fc.Append(f)
	}

	if state.Position != nil {
		f := geojson.NewFeature(orb.Point{state.Position.Longitude, state.Position.Latitude})
		d := state.Position.Display()
		f.Properties["kind"] = "position"
		f.Properties["latitude"] = d.Latitude
		f.Properties["longitude"] = d.Longitude
		if !state.Position.ObservedAt.IsZero() {
			f.Properties["observed_at"] = state.Position.ObservedAt
		}
		fc.Append(f)
	}

	fc.ExtraMembers = geojson.Properties{
		"version": state.Version,
		"loading": state.Loading,
	}
	return fc
}
