// Command watch tails the tracker's state stream from NATS and logs one line
// per accepted snapshot. It is useful for checking a deployment end to end
// without opening a WebSocket.
package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	natsadapter "github.com/samirrijal/orbittrack/internal/adapters/nats"
	"github.com/samirrijal/orbittrack/internal/core/domain"
	"github.com/samirrijal/orbittrack/internal/pkg/config"
	"github.com/samirrijal/orbittrack/internal/pkg/logging"
)

func main() {
	cfg, err := config.Load("orbittrack-watch")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	if cfg.NATS.URL == "" {
		log.Fatalf("nats.url is required")
	}
	nc, err := natsadapter.RawConn(cfg.NATS.URL)
	if err != nil {
		log.Fatalf("nats: %v", err)
	}
	defer nc.Drain()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	relay := natsadapter.NewRelay(nc)
	stop, err := relay.Subscribe(ctx, func(data []byte) {
		logState(logger, data)
	})
	if err != nil {
		log.Fatalf("subscribe %s: %v", natsadapter.SubjectState, err)
	}
	defer stop()

	logger.Info("watching", "subject", natsadapter.SubjectState, "url", cfg.NATS.URL)
	<-ctx.Done()
	logger.Info("watch stopped")
}

func logState(logger *slog.Logger, data []byte) {
	var view domain.StateView
	if err := json.Unmarshal(data, &view); err != nil {
		logger.Warn("undecodable state message", "error", err, "bytes", len(data))
		return
	}

	attrs := []any{
		"version", view.Version,
		"loading", view.Loading,
		"track_points", len(view.Track),
	}
	if view.Display != nil {
		attrs = append(attrs, "latitude", view.Display.Latitude, "longitude", view.Display.Longitude)
	}
	if view.LastError != nil {
		attrs = append(attrs,
			"last_error_stage", string(view.LastError.Stage),
			"last_error_kind", string(view.LastError.Kind),
			"last_error", view.LastError.Message)
		logger.Warn("state", attrs...)
		return
	}
	logger.Info("state", attrs...)
}
