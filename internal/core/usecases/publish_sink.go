package usecases

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samirrijal/orbittrack/internal/core/domain"
	"github.com/samirrijal/orbittrack/internal/core/ports"
	"github.com/samirrijal/orbittrack/internal/pkg/metrics"
)

const defaultQueueSize = 16

// StateSink owns the PollState. All mutations go through its publish methods,
// which apply the coalescing rule: an update is accepted only if its fetch-start
// stamp is not older than the one already stored for that field.
//
// Accepted states are queued in version order and fanned out by Run.
type StateSink struct {
	mu    sync.Mutex
	state domain.PollState
	// errorStartedAt is the fetch-start stamp of state.LastError.
	errorStartedAt time.Time

	queue      chan domain.PollState
	publishers []ports.SnapshotPublisher
	reporter   *ErrorReporter
	logger     *slog.Logger

	subsMu sync.Mutex
	subs   map[chan domain.PollState]struct{}
}

// NewStateSink creates a sink in its initial state: loading, no position, empty track.
func NewStateSink(logger *slog.Logger, publishers ...ports.SnapshotPublisher) *StateSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &StateSink{
		state:      domain.PollState{Loading: true, Track: domain.Track{}},
		queue:      make(chan domain.PollState, defaultQueueSize),
		publishers: publishers,
		logger:     logger,
		subs:       make(map[chan domain.PollState]struct{}),
	}
}

// SetReporter routes fan-out failures to r. Call before Run.
func (s *StateSink) SetReporter(r *ErrorReporter) {
	s.reporter = r
}

// Snapshot returns a deep copy of the current state.
func (s *StateSink) Snapshot() domain.PollState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// PublishPosition stores pos if startedAt is not older than the stored position's
// fetch start. Accepting a position also clears loading and the last error.
func (s *StateSink) PublishPosition(startedAt time.Time, pos domain.Position) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if startedAt.Before(s.state.PositionStartedAt) {
		metrics.CoalescedUpdates.WithLabelValues("position").Inc()
		return false
	}

	p := pos
	s.state.Position = &p
	s.state.PositionStartedAt = startedAt
	s.state.Loading = false
	s.clearErrorLocked(domain.StagePosition, startedAt)
	s.commitLocked()
	return true
}

// PublishTrack replaces the track wholesale if startedAt is not older than the
// stored track's fetch start.
func (s *StateSink) PublishTrack(startedAt time.Time, track domain.Track) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if startedAt.Before(s.state.TrackStartedAt) {
		metrics.CoalescedUpdates.WithLabelValues("track").Inc()
		return false
	}

	s.state.Track = track.Clone()
	s.state.TrackStartedAt = startedAt
	s.clearErrorLocked(domain.StageTrack, startedAt)
	metrics.TrackPoints.Set(float64(len(track)))
	s.commitLocked()
	return true
}

// PublishFailure records a failed cycle whose fetch started at startedAt. A failed
// position fetch also clears loading so consumers never wait forever; position
// and track stay as they were. Failures older than the data already stored for
// their stage, and publish failures, are not recorded. Returns whether the
// failure was recorded.
func (s *StateSink) PublishFailure(startedAt time.Time, info domain.FailureInfo) bool {
	if info.Kind == domain.ErrorKindPublish {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.state.PositionStartedAt
	if info.Stage == domain.StageTrack {
		stored = s.state.TrackStartedAt
	}
	if startedAt.Before(stored) {
		metrics.CoalescedUpdates.WithLabelValues("failure").Inc()
		return false
	}

	if info.At.IsZero() {
		info.At = time.Now()
	}
	s.state.LastError = &info
	s.errorStartedAt = startedAt
	if info.Stage == domain.StagePosition {
		s.state.Loading = false
	}
	s.commitLocked()
	return true
}

// clearErrorLocked drops LastError when it belongs to stage and is not newer
// than the data that just replaced it.
func (s *StateSink) clearErrorLocked(stage domain.Stage, startedAt time.Time) {
	if s.state.LastError == nil || s.state.LastError.Stage != stage {
		return
	}
	if startedAt.Before(s.errorStartedAt) {
		return
	}
	s.state.LastError = nil
}

// commitLocked bumps the version and queues a copy for fan-out. Callers hold s.mu,
// which keeps the queue in version order.
func (s *StateSink) commitLocked() {
	s.state.Version++
	metrics.StateVersion.Set(float64(s.state.Version))

	snap := s.state.Clone()
	select {
	case s.queue <- snap:
		return
	default:
	}

	// Full: drop the oldest queued snapshot, the newer one supersedes it.
	select {
	case <-s.queue:
		metrics.DroppedSnapshots.Inc()
	default:
	}
	select {
	case s.queue <- snap:
	default:
		metrics.DroppedSnapshots.Inc()
	}
}

// Subscribe returns a channel that always holds the latest snapshot a slow reader
// has not consumed yet, and a func to unsubscribe.
func (s *StateSink) Subscribe() (<-chan domain.PollState, func()) {
	ch := make(chan domain.PollState, 1)

	s.subsMu.Lock()
	s.subs[ch] = struct{}{}
	s.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, ch)
			s.subsMu.Unlock()
		})
	}
}

// Run fans queued snapshots out to publishers and subscribers until ctx is done,
// then flushes whatever is still queued.
func (s *StateSink) Run(ctx context.Context) {
	for {
		select {
		case snap := <-s.queue:
			s.dispatch(ctx, snap)
		case <-ctx.Done():
			s.flush()
			return
		}
	}
}

func (s *StateSink) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case snap := <-s.queue:
			s.dispatch(ctx, snap)
		default:
			return
		}
	}
}

func (s *StateSink) dispatch(ctx context.Context, snap domain.PollState) {
	for _, p := range s.publishers {
		if err := p.PublishSnapshot(ctx, snap); err != nil {
			s.reporter.Report(ctx, domain.ErrorKindPublish,
				&domain.FetchError{Kind: domain.ErrorKindPublish, Source: "fanout", Err: err},
				slog.Uint64("version", snap.Version))
		}
	}

	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- snap:
		default:
			// Replace the unread snapshot with the newer one.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
