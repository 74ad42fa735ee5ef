package usecases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samirrijal/orbittrack/internal/core/domain"
	"github.com/samirrijal/orbittrack/internal/pkg/metrics"
	"github.com/samirrijal/orbittrack/internal/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ChunkFunc fetches the records for one chunk of timestamps.
type ChunkFunc func(ctx context.Context, chunk []int64) ([]domain.PositionRecord, error)

// Chunk splits timestamps into consecutive slices of at most size entries.
// The returned slices alias the input.
func Chunk(timestamps []int64, size int) [][]int64 {
	if size <= 0 || len(timestamps) == 0 {
		return nil
	}
	chunks := make([][]int64, 0, (len(timestamps)+size-1)/size)
	for start := 0; start < len(timestamps); start += size {
		end := min(start+size, len(timestamps))
		chunks = append(chunks, timestamps[start:end:end])
	}
	return chunks
}

// FetchBatched requests timestamps in chunks of at most maxBatchSize, one chunk at a
// time, and returns the records concatenated in chunk order. The first failing chunk
// aborts the batch; records from earlier chunks are discarded.
func FetchBatched(ctx context.Context, timestamps []int64, maxBatchSize int, fetchChunk ChunkFunc) ([]domain.PositionRecord, error) {
	if maxBatchSize <= 0 {
		return nil, fmt.Errorf("max batch size must be positive, got %d", maxBatchSize)
	}
	if fetchChunk == nil {
		return nil, fmt.Errorf("fetchChunk must not be nil")
	}

	chunks := Chunk(timestamps, maxBatchSize)
	out := make([]domain.PositionRecord, 0, len(timestamps))

	for i, chunk := range chunks {
		ref := domain.ChunkRef{Index: i, Size: len(chunk), First: chunk[0], Last: chunk[len(chunk)-1]}

		if err := ctx.Err(); err != nil {
			return nil, &domain.FetchError{Kind: domain.ErrorKindUpstream, Source: "batch", Chunk: &ref, Err: err}
		}

		records, err := fetchOne(ctx, ref, chunk, fetchChunk)
		if err != nil {
			source := "batch"
			var fe *domain.FetchError
			if errors.As(err, &fe) && fe.Source != "" {
				source = fe.Source
			}
			return nil, &domain.FetchError{Kind: domain.ErrorKindUpstream, Source: source, Chunk: &ref, Err: err}
		}
		out = append(out, records...)
	}

	return out, nil
}

func fetchOne(ctx context.Context, ref domain.ChunkRef, chunk []int64, fetchChunk ChunkFunc) ([]domain.PositionRecord, error) {
	ctx, span := telemetry.Tracer().Start(ctx, telemetry.SpanFetchChunk, trace.WithAttributes(
		attribute.Int("chunk.index", ref.Index),
		attribute.Int("chunk.size", ref.Size),
		attribute.Int64("chunk.first", ref.First),
	))
	defer span.End()

	start := time.Now()
	records, err := fetchChunk(ctx, chunk)
	metrics.ChunkDuration.Observe(time.Since(start).Seconds())
	metrics.ChunkRequests.WithLabelValues(metrics.Result(err)).Inc()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("chunk.records", len(records)))
	return records, nil
}
