package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orbittrack",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "orbittrack",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "orbittrack",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Tracker metrics
	PositionPolls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orbittrack",
		Subsystem: "poller",
		Name:      "position_polls_total",
		Help:      "Live position fetches by result",
	}, []string{"result"})

	PositionPollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "orbittrack",
		Subsystem: "poller",
		Name:      "position_poll_duration_seconds",
		Help:      "Duration of live position fetches",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	InFlightFetches = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "orbittrack",
		Subsystem: "poller",
		Name:      "in_flight_fetches",
		Help:      "Position fetches and track refreshes currently running",
	})

	ChunkRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orbittrack",
		Subsystem: "batch",
		Name:      "chunk_requests_total",
		Help:      "Batch chunk requests by result",
	}, []string{"result"})

	ChunkDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "orbittrack",
		Subsystem: "batch",
		Name:      "chunk_duration_seconds",
		Help:      "Duration of a single batch chunk request",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	})

	TrackRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orbittrack",
		Subsystem: "track",
		Name:      "refreshes_total",
		Help:      "Track assemblies by result",
	}, []string{"result"})

	TrackPoints = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "orbittrack",
		Subsystem: "track",
		Name:      "points",
		Help:      "Points in the currently published track",
	})

	CoalescedUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orbittrack",
		Subsystem: "state",
		Name:      "coalesced_updates_total",
		Help:      "Updates rejected because a fresher fetch already published",
	}, []string{"field"})

	DroppedSnapshots = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "orbittrack",
		Subsystem: "state",
		Name:      "dropped_snapshots_total",
		Help:      "Snapshots dropped from the fan-out queue because it was full",
	})

	StateVersion = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "orbittrack",
		Subsystem: "state",
		Name:      "version",
		Help:      "Version of the latest accepted state",
	})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orbittrack",
		Name:      "errors_total",
		Help:      "Reported failures by kind and source",
	}, []string{"kind", "source"})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "orbittrack",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orbittrack",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "orbittrack",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// Result maps an error to the "ok"/"error" label used by result counters.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
