package natsadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/orbittrack/internal/core/domain"
)

const (
	SubjectState    = "orbit.state"
	SubjectPosition = "orbit.position"
	SubjectTrack    = "orbit.track"

	StreamName = "ORBIT_STATE"
)

// Publisher implements ports.EventPublisher using NATS JetStream.
type Publisher struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewPublisher connects to NATS and ensures the state stream exists.
func NewPublisher(url string) (*Publisher, error) {
	conn, err := RawConn(url)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	// Only the latest state matters, so keep one message per subject.
	cfg := nats.StreamConfig{
		Name:              StreamName,
		Subjects:          []string{"orbit.>"},
		Retention:         nats.LimitsPolicy,
		MaxAge:            1 * time.Hour,
		MaxMsgsPerSubject: 1,
		Storage:           nats.MemoryStorage,
	}
	if _, err := js.AddStream(&cfg); err != nil {
		// Stream may already exist, try update
		if _, err := js.UpdateStream(&cfg); err != nil {
			conn.Close()
			return nil, fmt.Errorf("ensure stream %s: %w", cfg.Name, err)
		}
	}

	return &Publisher{conn: conn, js: js}, nil
}

// PublishSnapshot publishes the full state, then the position and track on their own subjects.
func (p *Publisher) PublishSnapshot(ctx context.Context, state domain.PollState) error {
	if err := p.publishJSON(ctx, SubjectState, domain.NewStateView(state)); err != nil {
		return err
	}
	if state.Position != nil {
		if err := p.PublishPosition(ctx, *state.Position); err != nil {
			return err
		}
	}
	return p.PublishTrack(ctx, state.Track)
}

func (p *Publisher) PublishPosition(ctx context.Context, pos domain.Position) error {
	return p.publishJSON(ctx, SubjectPosition, pos)
}

func (p *Publisher) PublishTrack(ctx context.Context, track domain.Track) error {
	return p.publishJSON(ctx, SubjectTrack, track.Clone())
}

func (p *Publisher) publishJSON(ctx context.Context, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := p.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Conn exposes the connection for readiness checks.
func (p *Publisher) Conn() *nats.Conn {
	return p.conn
}

// Close drains and closes the connection.
func (p *Publisher) Close() {
	_ = p.conn.Drain()
}

// RawConn creates a plain NATS connection for subscribing (e.g. WebSocket relay).
func RawConn(url string) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("orbittrack"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
}
