package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/samirrijal/orbittrack/internal/core/domain"
	"github.com/samirrijal/orbittrack/internal/core/ports"
)

// TrackParams are the per-refresh assembly parameters.
type TrackParams struct {
	WindowMinutes int
	StepSeconds   int
	MaxBatchSize  int
}

// Validate rejects non-positive parameters.
func (p TrackParams) Validate() error {
	if p.WindowMinutes <= 0 {
		return fmt.Errorf("track window must be positive, got %d minutes", p.WindowMinutes)
	}
	if p.StepSeconds <= 0 {
		return fmt.Errorf("track step must be positive, got %d seconds", p.StepSeconds)
	}
	if p.MaxBatchSize <= 0 {
		return fmt.Errorf("max batch size must be positive, got %d", p.MaxBatchSize)
	}
	return nil
}

// TrackAssembler turns a future time window into an ordered ground track.
type TrackAssembler struct {
	source ports.BatchPositionSource
	logger *slog.Logger
}

// NewTrackAssembler creates a TrackAssembler backed by source.
func NewTrackAssembler(source ports.BatchPositionSource, logger *slog.Logger) *TrackAssembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrackAssembler{source: source, logger: logger}
}

// Series returns the timestamps a refresh at now would request.
func Series(now time.Time, windowMinutes, stepSeconds int) (domain.TimestampSeries, error) {
	return domain.NewTimestampSeries(now, domain.SeriesLength(windowMinutes, stepSeconds), stepSeconds)
}

// AssembleTrack fetches positions for now, now+step, ... across the window and
// returns them as a track. Failures return no track at all.
func (a *TrackAssembler) AssembleTrack(ctx context.Context, now time.Time, windowMinutes, stepSeconds, maxBatchSize int) (domain.Track, error) {
	params := TrackParams{WindowMinutes: windowMinutes, StepSeconds: stepSeconds, MaxBatchSize: maxBatchSize}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	series, err := Series(now, windowMinutes, stepSeconds)
	if err != nil {
		return nil, err
	}

	records, err := FetchBatched(ctx, series.Values(), maxBatchSize, a.source.PositionsAt)
	if err != nil {
		return nil, err
	}

	track, err := buildTrack(series, records)
	if err != nil {
		return nil, err
	}

	a.logger.Debug("track assembled",
		"requested", series.Len(),
		"points", len(track),
		"chunks", len(Chunk(series.Values(), maxBatchSize)),
	)
	return track, nil
}

// buildTrack maps records to points. When every record echoes its timestamp the
// points are ordered by it, unrequested timestamps are dropped and only the first
// record per timestamp is kept; otherwise the upstream's response order is used
// as-is. The track never holds more points than the series has timestamps.
func buildTrack(series domain.TimestampSeries, records []domain.PositionRecord) (domain.Track, error) {
	track := make(domain.Track, 0, len(records))
	echoed := len(records) > 0

	for i, r := range records {
		if err := domain.ValidateCoordinates(r.Latitude, r.Longitude); err != nil {
			return nil, domain.Malformed("batch", fmt.Errorf("record %d: %w", i, err))
		}
		if r.Timestamp == 0 {
			echoed = false
		}
		track = append(track, domain.TrackPoint{
			Latitude:  r.Latitude,
			Longitude: r.Longitude,
			Timestamp: r.Timestamp,
		})
	}

	if !echoed {
		if len(track) > series.Len() {
			return nil, domain.Malformed("batch",
				fmt.Errorf("got %d records for %d requested timestamps", len(track), series.Len()))
		}
		return track, nil
	}

	seen := make(map[int64]struct{}, series.Len())
	filtered := track[:0]
	for _, p := range track {
		if !series.Contains(p.Timestamp) {
			continue
		}
		if _, dup := seen[p.Timestamp]; dup {
			continue
		}
		seen[p.Timestamp] = struct{}{}
		filtered = append(filtered, p)
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Timestamp < filtered[j].Timestamp
	})
	return filtered, nil
}
