package telemetry

// Span names.
const (
	SpanPollPosition = "poller.fetch_position"
	SpanRefreshTrack = "poller.refresh_track"
	SpanFetchChunk   = "batch.fetch_chunk"
)

