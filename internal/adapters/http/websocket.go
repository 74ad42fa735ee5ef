package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/orbittrack/internal/core/domain"
	"github.com/samirrijal/orbittrack/internal/pkg/metrics"
)

const wsPingInterval = 30 * time.Second

// stateStream serialises writes to one client and never sends a state older
// than one already sent, so the initial snapshot and the live feed can overlap.
type stateStream struct {
	mu    sync.Mutex
	write func(messageType int, data []byte) error
	sent  bool
	last  uint64
}

func (s *stateStream) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(websocket.PingMessage, nil)
}

// send writes data tagged with version unless a newer or equal version went out already.
func (s *stateStream) send(version uint64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent && version <= s.last {
		return nil
	}
	if err := s.write(websocket.TextMessage, data); err != nil {
		return err
	}
	s.sent, s.last = true, version
	return nil
}

func (s *stateStream) sendState(state domain.PollState) error {
	data, err := json.Marshal(domain.NewStateView(state))
	if err != nil {
		return err
	}
	return s.send(state.Version, data)
}

// sendRaw forwards an encoded StateView as received from the broker.
func (s *stateStream) sendRaw(data []byte) error {
	var head struct {
		Version uint64 `json:"version"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	return s.send(head.Version, data)
}

// followSink sends the current snapshot and then every later one until ctx is
// done or a write fails. It subscribes before reading the snapshot so no commit
// in between is missed.
func followSink(ctx context.Context, state StateReader, stream *stateStream) error {
	updates, unsubscribe := state.Subscribe()
	defer unsubscribe()

	if err := stream.sendState(state.Snapshot()); err != nil {
		return err
	}
	for {
		select {
		case s := <-updates:
			if err := stream.sendState(s); err != nil {
				return err
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// WebSocketHandler streams snapshots to connected clients. The current state is
// sent on connect; later states come from the NATS relay when one is configured,
// otherwise from the in-process sink subscription. Client messages are ignored.
func WebSocketHandler(deps *Dependencies) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		defer c.Close()

		remoteAddr := c.RemoteAddr().String()
		logger := slog.Default().With("remote_addr", remoteAddr)
		logger.Info("ws client connected")
		metrics.ActiveWebSockets.Inc()
		defer metrics.ActiveWebSockets.Dec()

		stream := &stateStream{write: c.WriteMessage}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		if deps.Relay != nil && deps.Relay.Connected() {
			stop, err := deps.Relay.Subscribe(ctx, func(data []byte) {
				if err := stream.sendRaw(data); err != nil {
					cancel()
				}
			})
			if err != nil {
				logger.Warn("ws relay subscribe failed", "error", err)
				return
			}
			defer stop()
			if err := stream.sendState(deps.State.Snapshot()); err != nil {
				return
			}
		} else {
			go func() {
				if err := followSink(ctx, deps.State, stream); err != nil {
					cancel()
				}
			}()
		}

		// Keep-alive ping
		go func() {
			ticker := time.NewTicker(wsPingInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					if err := stream.ping(); err != nil {
						cancel()
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}()

		// Drain client frames until the connection closes.
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				break
			}
		}

		logger.Info("ws client disconnected")
	}
}
