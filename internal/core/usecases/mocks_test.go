package usecases_test

import (
	"context"
	"sync"

	"github.com/samirrijal/orbittrack/internal/core/domain"
)

// --- Mock PositionSource ---

type mockPositionSource struct {
	currentFn func(ctx context.Context) (domain.Position, error)
}

func (m *mockPositionSource) CurrentPosition(ctx context.Context) (domain.Position, error) {
	if m.currentFn != nil {
		return m.currentFn(ctx)
	}
	return domain.Position{}, nil
}

// --- Mock BatchPositionSource ---

type mockBatchSource struct {
	mu      sync.Mutex
	calls   [][]int64
	positFn func(ctx context.Context, timestamps []int64) ([]domain.PositionRecord, error)
}

func (m *mockBatchSource) PositionsAt(ctx context.Context, timestamps []int64) ([]domain.PositionRecord, error) {
	m.mu.Lock()
	m.calls = append(m.calls, append([]int64(nil), timestamps...))
	m.mu.Unlock()
	if m.positFn != nil {
		return m.positFn(ctx, timestamps)
	}
	return echoRecords(51.5074, -0.1278)(ctx, timestamps)
}

func (m *mockBatchSource) Calls() [][]int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]int64(nil), m.calls...)
}

// echoRecords returns a stub upstream that answers every timestamp with the same coordinates.
func echoRecords(lat, lon float64) func(context.Context, []int64) ([]domain.PositionRecord, error) {
	return func(_ context.Context, timestamps []int64) ([]domain.PositionRecord, error) {
		out := make([]domain.PositionRecord, len(timestamps))
		for i, ts := range timestamps {
			out[i] = domain.PositionRecord{Latitude: lat, Longitude: lon, Timestamp: ts}
		}
		return out, nil
	}
}

// --- Mock SnapshotPublisher ---

type mockPublisher struct {
	mu        sync.Mutex
	snapshots []domain.PollState
	err       error
}

func (m *mockPublisher) PublishSnapshot(ctx context.Context, state domain.PollState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, state)
	return m.err
}

func (m *mockPublisher) Versions() []uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]uint64, len(m.snapshots))
	for i, s := range m.snapshots {
		out[i] = s.Version
	}
	return out
}
