package ports

import (
	"context"
	"errors"

	"github.com/samirrijal/orbittrack/internal/core/domain"
)

// SnapshotPublisher receives every accepted PollState, in version order.
type SnapshotPublisher interface {
	PublishSnapshot(ctx context.Context, state domain.PollState) error
}

// EventPublisher publishes tracker events to a message broker.
type EventPublisher interface {
	SnapshotPublisher
	PublishPosition(ctx context.Context, pos domain.Position) error
	PublishTrack(ctx context.Context, track domain.Track) error
}

// ErrCacheMiss is returned by CacheService.Get for absent keys.
var ErrCacheMiss = errors.New("cache miss")

// CacheService provides key/value caching with TTLs.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
