package ports

import (
	"context"

	"github.com/samirrijal/orbittrack/internal/core/domain"
)

// PositionSource returns the tracked object's current position.
type PositionSource interface {
	CurrentPosition(ctx context.Context) (domain.Position, error)
}

// BatchPositionSource resolves positions for a chunk of Unix-second timestamps.
// Implementations must not be asked for more than MaxBatchSize timestamps at once.
type BatchPositionSource interface {
	PositionsAt(ctx context.Context, timestamps []int64) ([]domain.PositionRecord, error)
}
