package natsadapter

import (
	"context"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
)

// Relay fans raw state messages from SubjectState out to in-process listeners,
// such as WebSocket connections.
type Relay struct {
	conn *nats.Conn
}

// NewRelay wraps an existing connection; the caller owns its lifecycle.
func NewRelay(conn *nats.Conn) *Relay {
	return &Relay{conn: conn}
}

// Subscribe delivers every state message to handler until ctx is done or the
// returned cancel func is called. Handlers run on the NATS dispatch goroutine.
func (r *Relay) Subscribe(ctx context.Context, handler func(data []byte)) (func(), error) {
	sub, err := r.conn.Subscribe(SubjectState, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", SubjectState, err)
	}

	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			_ = sub.Unsubscribe()
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-done:
		}
	}()
	return stop, nil
}

// Connected reports whether the underlying connection is up.
func (r *Relay) Connected() bool {
	return r.conn != nil && r.conn.IsConnected()
}
