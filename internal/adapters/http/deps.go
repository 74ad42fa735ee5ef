package http

import (
	"github.com/nats-io/nats.go"

	natsadapter "github.com/samirrijal/orbittrack/internal/adapters/nats"
	"github.com/samirrijal/orbittrack/internal/core/domain"
	"github.com/samirrijal/orbittrack/internal/core/ports"
	"github.com/samirrijal/orbittrack/internal/core/usecases"
)

// Dependencies holds all services needed by HTTP handlers.
type Dependencies struct {
	State    StateReader
	Renderer *usecases.TrackRenderer
	Poller   PollerStatus
	Relay    *natsadapter.Relay // nil streams from State instead
	NATS     *nats.Conn
	Cache    ports.CacheService
}

// PollerStatus reports the poller lifecycle for readiness checks.
type PollerStatus interface {
	State() usecases.PollerState
}

// StateReader is the read side of the state sink.
type StateReader interface {
	Snapshot() domain.PollState
	Subscribe() (<-chan domain.PollState, func())
}
