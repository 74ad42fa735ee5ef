package valkey

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/samirrijal/orbittrack/internal/core/domain"
	"github.com/samirrijal/orbittrack/internal/core/ports"
)

// StateKey holds the mirrored snapshot.
const StateKey = "orbittrack:state"

// Cache implements ports.CacheService using Valkey (Redis-compatible).
type Cache struct {
	client valkey.Client
}

// New creates a new Valkey cache client.
func New(addr string) (*Cache, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("valkey connect: %w", err)
	}
	return &Cache{client: client}, nil
}

// Get retrieves a value by key. Missing keys return ports.ErrCacheMiss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Do(ctx, c.client.B().Get().Key(key).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, ports.ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Set stores a value with a TTL in seconds.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	cmd := c.client.Do(ctx,
		c.client.B().Set().Key(key).Value(valkey.BinaryString(value)).Ex(time.Duration(ttlSeconds)*time.Second).Build(),
	)
	return cmd.Error()
}

// Delete removes a key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	cmd := c.client.Do(ctx, c.client.B().Del().Key(key).Build())
	return cmd.Error()
}

// Close releases the client.
func (c *Cache) Close() {
	c.client.Close()
}

// StateMirror implements ports.SnapshotPublisher by writing each snapshot to
// StateKey. Other services may read it; the tracker never does.
type StateMirror struct {
	cache ports.CacheService
	ttl   int
}

// NewStateMirror mirrors snapshots into cache with the given TTL.
func NewStateMirror(cache ports.CacheService, ttl time.Duration) *StateMirror {
	secs := int(ttl / time.Second)
	if secs < 1 {
		secs = 1
	}
	return &StateMirror{cache: cache, ttl: secs}
}

// PublishSnapshot stores the flattened state.
func (m *StateMirror) PublishSnapshot(ctx context.Context, state domain.PollState) error {
	data, err := json.Marshal(domain.NewStateView(state))
	if err != nil {
		return err
	}
	if err := m.cache.Set(ctx, StateKey, data, m.ttl); err != nil {
		return fmt.Errorf("mirror state: %w", err)
	}
	return nil
}
