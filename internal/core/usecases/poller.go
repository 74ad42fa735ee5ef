package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/samirrijal/orbittrack/internal/core/domain"
	"github.com/samirrijal/orbittrack/internal/core/ports"
	"github.com/samirrijal/orbittrack/internal/pkg/metrics"
	"github.com/samirrijal/orbittrack/internal/pkg/telemetry"
)

// PollerState is the lifecycle state of a PositionPoller.
type PollerState int

const (
	PollerIdle PollerState = iota
	PollerFetching
	PollerIdleWithData
	PollerStopped
)

func (s PollerState) String() string {
	switch s {
	case PollerIdle:
		return "idle"
	case PollerFetching:
		return "fetching"
	case PollerIdleWithData:
		return "idle_with_data"
	case PollerStopped:
		return "stopped"
	}
	return fmt.Sprintf("PollerState(%d)", int(s))
}

// PollerConfig configures the cadence and the track refresh each successful tick triggers.
type PollerConfig struct {
	Interval time.Duration
	Track    TrackParams
	// Now defaults to time.Now.
	Now func() time.Time
}

// PositionPoller fetches the live position on a fixed cadence and, after each
// accepted position, refreshes the track in the background. Ticks are timer
// driven, so fetches may overlap; the StateSink decides which result wins.
type PositionPoller struct {
	cfg       PollerConfig
	source    ports.PositionSource
	assembler *TrackAssembler
	sink      *StateSink
	reporter  *ErrorReporter
	logger    *slog.Logger

	mu       sync.Mutex
	started  bool
	stopped  bool
	inFlight int
	hasData  bool
	cancel   context.CancelFunc
	ticker   *time.Ticker

	wg sync.WaitGroup
}

// NewPositionPoller wires a poller. assembler may be nil to poll positions only.
func NewPositionPoller(
	cfg PollerConfig,
	source ports.PositionSource,
	assembler *TrackAssembler,
	sink *StateSink,
	reporter *ErrorReporter,
	logger *slog.Logger,
) (*PositionPoller, error) {
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive, got %s", cfg.Interval)
	}
	if assembler != nil {
		if err := cfg.Track.Validate(); err != nil {
			return nil, err
		}
	}
	if source == nil || sink == nil {
		return nil, fmt.Errorf("poller needs a position source and a state sink")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	if reporter == nil {
		reporter = NewErrorReporter(logger)
	}
	return &PositionPoller{
		cfg:       cfg,
		source:    source,
		assembler: assembler,
		sink:      sink,
		reporter:  reporter,
		logger:    logger,
	}, nil
}

// Start fetches immediately and then on every interval until Stop or ctx is done.
// Calling Start twice, or after Stop, does nothing.
func (p *PositionPoller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	p.ticker = time.NewTicker(p.cfg.Interval)

	p.wg.Add(1)
	go p.loop(ctx, p.ticker)

	p.logger.Info("poller started", "interval", p.cfg.Interval.String())
}

func (p *PositionPoller) loop(ctx context.Context, ticker *time.Ticker) {
	defer p.wg.Done()

	p.spawnTick(ctx)
	for {
		select {
		case <-ticker.C:
			p.spawnTick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *PositionPoller) spawnTick(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		_ = p.Tick(ctx)
	}()
}

// Stop cancels the cadence timer. In-flight fetches may still finish but their
// results are never published. Safe to call more than once.
func (p *PositionPoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.stopped = true
	if p.ticker != nil {
		p.ticker.Stop()
	}
	if p.cancel != nil {
		p.cancel()
	}
	p.logger.Info("poller stopped")
}

// Wait blocks until the loop and every background fetch have returned.
func (p *PositionPoller) Wait() {
	p.wg.Wait()
}

// State reports the lifecycle state.
func (p *PositionPoller) State() PollerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

func (p *PositionPoller) stateLocked() PollerState {
	switch {
	case p.stopped:
		return PollerStopped
	case p.inFlight > 0:
		return PollerFetching
	case p.hasData:
		return PollerIdleWithData
	}
	return PollerIdle
}

// Tick runs one cycle: fetch the live position, publish it and kick off a track
// refresh. The returned error has already been reported.
func (p *PositionPoller) Tick(ctx context.Context) error {
	if !p.begin() {
		return nil
	}
	defer p.end()

	startedAt := p.cfg.Now()
	cycleID := uuid.NewString()
	logger := p.logger.With("cycle_id", cycleID)

	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanPollPosition,
		trace.WithAttributes(attribute.String("cycle.id", cycleID)))
	defer span.End()

	t0 := time.Now()
	pos, err := p.source.CurrentPosition(ctx)
	if err == nil {
		if verr := pos.Validate(); verr != nil {
			err = domain.Malformed("live", verr)
		}
	}
	metrics.PositionPollDuration.Observe(time.Since(t0).Seconds())
	metrics.PositionPolls.WithLabelValues(metrics.Result(err)).Inc()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ctx.Err() != nil && p.isStopped() {
			return nil
		}
		kind := domain.KindOf(err)
		p.reporter.Report(ctx, kind, err,
			slog.String("cycle_id", cycleID),
			slog.String("stage", string(domain.StagePosition)))
		p.publish(func() {
			p.sink.PublishFailure(startedAt, domain.FailureInfo{
				Stage:   domain.StagePosition,
				Kind:    kind,
				Message: err.Error(),
				At:      p.cfg.Now(),
			})
		})
		return err
	}

	if pos.ObservedAt.IsZero() {
		pos.ObservedAt = startedAt
	}

	accepted := false
	if !p.publish(func() {
		p.hasData = true
		accepted = p.sink.PublishPosition(startedAt, pos)
	}) {
		logger.Debug("poller stopped, dropping position")
		return nil
	}

	if !accepted {
		logger.Debug("stale position discarded", "started_at", startedAt)
		return nil
	}
	logger.Debug("position published", "latitude", pos.Latitude, "longitude", pos.Longitude)

	if p.assembler != nil {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.refreshTrack(ctx, startedAt, cycleID)
		}()
	}
	return nil
}

func (p *PositionPoller) refreshTrack(ctx context.Context, startedAt time.Time, cycleID string) {
	if !p.begin() {
		return
	}
	defer p.end()

	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanRefreshTrack,
		trace.WithAttributes(attribute.String("cycle.id", cycleID)))
	defer span.End()

	tp := p.cfg.Track
	track, err := p.assembler.AssembleTrack(ctx, startedAt, tp.WindowMinutes, tp.StepSeconds, tp.MaxBatchSize)
	metrics.TrackRefreshes.WithLabelValues(metrics.Result(err)).Inc()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ctx.Err() != nil && p.isStopped() {
			return
		}
		kind := domain.KindOf(err)
		p.reporter.Report(ctx, kind, err,
			slog.String("cycle_id", cycleID),
			slog.String("stage", string(domain.StageTrack)))
		p.publish(func() {
			p.sink.PublishFailure(startedAt, domain.FailureInfo{
				Stage:   domain.StageTrack,
				Kind:    kind,
				Message: err.Error(),
				At:      p.cfg.Now(),
			})
		})
		return
	}

	span.SetAttributes(attribute.Int("track.points", len(track)))
	p.publish(func() {
		p.sink.PublishTrack(startedAt, track)
	})
}

// publish runs fn under the poller lock unless the poller has stopped.
func (p *PositionPoller) publish(fn func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return false
	}
	fn()
	return true
}

func (p *PositionPoller) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

func (p *PositionPoller) begin() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return false
	}
	p.inFlight++
	metrics.InFlightFetches.Inc()
	return true
}

func (p *PositionPoller) end() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.inFlight--
	metrics.InFlightFetches.Dec()
}
