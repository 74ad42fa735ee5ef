package wheretheiss

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/orbittrack/internal/core/domain"
	"github.com/samirrijal/orbittrack/internal/core/usecases"
)

// echoServer answers every requested timestamp with fixed coordinates, in request order.
func echoServer(t *testing.T, lat, lon float64) (*httptest.Server, func() []string) {
	t.Helper()
	var mu sync.Mutex
	var queries []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/positions") {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"name": "iss", "latitude": lat, "longitude": lon, "timestamp": 1709294400,
			})
			return
		}
		mu.Lock()
		queries = append(queries, r.URL.Query().Get("timestamps"))
		mu.Unlock()

		assert.Equal(t, "kilometers", r.URL.Query().Get("units"))
		var out []map[string]any
		for _, s := range strings.Split(r.URL.Query().Get("timestamps"), ",") {
			ts, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			out = append(out, map[string]any{
				"latitude": lat, "longitude": lon, "altitude": 420.1, "velocity": 27600.5, "timestamp": ts,
			})
		}
		_ = json.NewEncoder(w).Encode(out)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []string {
		mu.Lock()
		defer mu.Unlock()
		return append([]string(nil), queries...)
	}
}

func TestPositionsAt(t *testing.T) {
	srv, queries := echoServer(t, 51.5074, -0.1278)
	c := New(srv.URL, 0, time.Second)

	recs, err := c.PositionsAt(context.Background(), []int64{100, 220, 340})
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, int64(220), recs[1].Timestamp)
	assert.Equal(t, 420.1, recs[1].Altitude)
	assert.Equal(t, []string{"100,220,340"}, queries())
}

func TestPositionsAt_TooManyTimestamps(t *testing.T) {
	c := New("http://127.0.0.1:1", 0, time.Second)
	_, err := c.PositionsAt(context.Background(), make([]int64, MaxTimestamps+1))
	assert.True(t, errors.Is(err, domain.ErrUpstream))
}

func TestPositionsAt_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error":"too many requests"}`, domain.ErrUpstream},
		{"not an array", http.StatusOK, `{"error":"nope"}`, domain.ErrUpstream},
		{"missing field", http.StatusOK, `[{"latitude":1}]`, domain.ErrMalformed},
		{"out of range", http.StatusOK, `[{"latitude":1,"longitude":200}]`, domain.ErrMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL, 0, time.Second).PositionsAt(context.Background(), []int64{1})
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestCurrentPosition(t *testing.T) {
	srv, _ := echoServer(t, -33.5, 151.2)
	pos, err := New(srv.URL, ISSNoradID, time.Second).CurrentPosition(context.Background())
	require.NoError(t, err)
	assert.Equal(t, -33.5, pos.Latitude)
	assert.Equal(t, 151.2, pos.Longitude)
	assert.Equal(t, int64(1709294400), pos.ObservedAt.Unix())
}

// The default 90 minute window at 120 s steps goes out as five requests.
func TestTrackAssembly_AgainstStubUpstream(t *testing.T) {
	srv, queries := echoServer(t, 51.5074, -0.1278)
	a := usecases.NewTrackAssembler(New(srv.URL, 0, time.Second), nil)

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	track, err := a.AssembleTrack(context.Background(), now, 90, 120, MaxTimestamps)
	require.NoError(t, err)
	require.Len(t, track, 45)

	q := queries()
	require.Len(t, q, 5)
	for i, s := range q {
		want := 10
		if i == 4 {
			want = 5
		}
		assert.Len(t, strings.Split(s, ","), want, fmt.Sprintf("chunk %d", i))
	}
}
