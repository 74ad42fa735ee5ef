package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/samirrijal/orbittrack/internal/adapters/http"
	natsadapter "github.com/samirrijal/orbittrack/internal/adapters/nats"
	"github.com/samirrijal/orbittrack/internal/adapters/opennotify"
	"github.com/samirrijal/orbittrack/internal/adapters/sgp4"
	"github.com/samirrijal/orbittrack/internal/adapters/valkey"
	"github.com/samirrijal/orbittrack/internal/adapters/wheretheiss"
	"github.com/samirrijal/orbittrack/internal/core/ports"
	"github.com/samirrijal/orbittrack/internal/core/usecases"
	"github.com/samirrijal/orbittrack/internal/pkg/config"
	"github.com/samirrijal/orbittrack/internal/pkg/logging"
	"github.com/samirrijal/orbittrack/internal/pkg/telemetry"
)

func main() {
	cfg, err := config.Load("orbittrack")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	baseLogger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.InitTracer(ctx, cfg.Telemetry.ServiceName, cfg.Telemetry.OTLPAddr, cfg.Telemetry.SampleRatio)
		if err != nil {
			slog.Warn("telemetry init failed", "error", err)
			telemetry.DisableTracing()
		} else {
			defer shutdown()
		}
	} else {
		telemetry.DisableTracing()
	}

	// Sources
	live, batch, err := buildSources(cfg.Tracker)
	if err != nil {
		log.Fatalf("sources: %v", err)
	}

	var publishers []ports.SnapshotPublisher

	// NATS
	var relay *natsadapter.Relay
	deps := &http.Dependencies{}
	if cfg.NATS.URL != "" {
		pub, err := natsadapter.NewPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Warn("nats unavailable", "error", err)
		} else {
			defer pub.Close()
			publishers = append(publishers, pub)
			relay = natsadapter.NewRelay(pub.Conn())
			deps.NATS = pub.Conn()
		}
	}

	// Cache
	if cfg.Valkey.Addr != "" {
		cache, err := valkey.New(cfg.Valkey.Addr)
		if err != nil {
			slog.Warn("valkey unavailable", "error", err)
		} else {
			defer cache.Close()
			publishers = append(publishers, valkey.NewStateMirror(cache, 3*cfg.Tracker.PollInterval()))
			deps.Cache = cache
		}
	}

	reporter := usecases.NewErrorReporter(baseLogger)
	sink := usecases.NewStateSink(baseLogger, publishers...)
	sink.SetReporter(reporter)

	poller, err := usecases.NewPositionPoller(
		usecases.PollerConfig{
			Interval: cfg.Tracker.PollInterval(),
			Track: usecases.TrackParams{
				WindowMinutes: cfg.Tracker.TrackWindowMinutes,
				StepSeconds:   cfg.Tracker.TrackStepSeconds,
				MaxBatchSize:  cfg.Tracker.MaxBatchSize,
			},
		},
		live,
		usecases.NewTrackAssembler(batch, baseLogger),
		sink,
		reporter,
		baseLogger,
	)
	if err != nil {
		log.Fatalf("poller: %v", err)
	}

	renderTTL := int(cfg.Tracker.PollInterval() / time.Second)
	if renderTTL < 1 {
		renderTTL = 1
	}
	deps.State = sink
	deps.Poller = poller
	deps.Relay = relay
	deps.Renderer = usecases.NewTrackRenderer(deps.Cache, renderTTL, baseLogger)

	sinkCtx, stopSink := context.WithCancel(ctx)
	sinkDone := make(chan struct{})
	go func() {
		defer close(sinkDone)
		sink.Run(sinkCtx)
	}()
	poller.Start(ctx)

	// Fiber
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    64 * 1024,
		AppName:      "orbittrack",
	})
	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept",
		AllowCredentials: false,
		MaxAge:           3600,
	}))

	http.SetupRoutes(app, deps)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("tracker starting", "addr", addr,
			"live_source", cfg.Tracker.LiveSource,
			"source", cfg.Tracker.Source,
			"poll_interval", cfg.Tracker.PollInterval().String())
		if err := app.Listen(addr); err != nil {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutdown signal received", "signal", sig.String())

	// No publish may happen after Stop returns; in-flight fetches are abandoned.
	poller.Stop()
	poller.Wait()
	stopSink()
	<-sinkDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		slog.Error("forced shutdown", "error", err)
	}

	slog.Info("tracker stopped")
}

// buildSources picks the live and batch position sources from config.
func buildSources(t config.TrackerConfig) (ports.PositionSource, ports.BatchPositionSource, error) {
	var (
		where *wheretheiss.Client
		prop  *sgp4.Propagator
	)
	whereClient := func() *wheretheiss.Client {
		if where == nil {
			where = wheretheiss.New(t.BatchURL, t.NoradID, t.RequestTimeout())
		}
		return where
	}
	propagator := func() (*sgp4.Propagator, error) {
		if prop != nil {
			return prop, nil
		}
		p, err := sgp4.New(t.TLELine1, t.TLELine2)
		if err != nil {
			return nil, fmt.Errorf("tle: %w", err)
		}
		prop = p
		return p, nil
	}

	var batch ports.BatchPositionSource
	switch t.Source {
	case config.SourceSGP4:
		p, err := propagator()
		if err != nil {
			return nil, nil, err
		}
		batch = p
	default:
		batch = whereClient()
	}

	var live ports.PositionSource
	switch t.LiveSource {
	case config.SourceWhereTheISS:
		live = whereClient()
	case config.SourceSGP4:
		p, err := propagator()
		if err != nil {
			return nil, nil, err
		}
		live = p
	default:
		live = opennotify.New(t.LiveURL, t.RequestTimeout())
	}
	return live, batch, nil
}
