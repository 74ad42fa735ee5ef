package natsadapter

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/orbittrack/internal/core/domain"
)

type versions struct {
	mu  sync.Mutex
	got []uint64
}

func (v *versions) handle(data []byte) {
	var view domain.StateView
	if err := json.Unmarshal(data, &view); err != nil {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.got = append(v.got, view.Version)
}

func (v *versions) list() []uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]uint64(nil), v.got...)
}

func TestRelay_DeliversStateUntilStopped(t *testing.T) {
	s := runJetStream(t)
	pub, err := NewPublisher(s.ClientURL())
	require.NoError(t, err)
	defer pub.Close()

	conn, err := RawConn(s.ClientURL())
	require.NoError(t, err)
	defer conn.Close()

	relay := NewRelay(conn)
	require.True(t, relay.Connected())

	got := &versions{}
	stop, err := relay.Subscribe(context.Background(), got.handle)
	require.NoError(t, err)
	require.NoError(t, conn.Flush())

	require.NoError(t, pub.PublishSnapshot(context.Background(), londonState(1)))
	require.NoError(t, pub.PublishSnapshot(context.Background(), londonState(2)))
	require.Eventually(t, func() bool { return len(got.list()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []uint64{1, 2}, got.list(), "only orbit.state reaches the handler")

	stop()
	stop()
	require.NoError(t, conn.Flush())

	require.NoError(t, pub.PublishSnapshot(context.Background(), londonState(3)))
	require.NoError(t, pub.Conn().Flush())
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []uint64{1, 2}, got.list())
}

func TestRelay_StopsWhenContextDone(t *testing.T) {
	s := runJetStream(t)
	pub, err := NewPublisher(s.ClientURL())
	require.NoError(t, err)
	defer pub.Close()

	conn, err := RawConn(s.ClientURL())
	require.NoError(t, err)
	defer conn.Close()

	got := &versions{}
	ctx, cancel := context.WithCancel(context.Background())
	_, err = NewRelay(conn).Subscribe(ctx, got.handle)
	require.NoError(t, err)
	require.NoError(t, conn.Flush())

	cancel()
	require.Eventually(t, func() bool { return conn.NumSubscriptions() == 0 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, pub.PublishSnapshot(context.Background(), londonState(1)))
	require.NoError(t, pub.Conn().Flush())
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, got.list())
}

func TestRelay_NilConnIsNotConnected(t *testing.T) {
	assert.False(t, NewRelay(nil).Connected())
}
