package domain_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/orbittrack/internal/core/domain"
)

func TestValidateCoordinates(t *testing.T) {
	tests := []struct {
		name     string
		lat, lon float64
		wantErr  bool
	}{
		{"london", 51.5074, -0.1278, false},
		{"north pole", 90, 0, false},
		{"antimeridian west", 0, -180, false},
		{"antimeridian east", 0, 180, false},
		{"latitude too high", 90.0001, 0, true},
		{"latitude too low", -91, 0, true},
		{"longitude too high", 0, 180.5, true},
		{"longitude too low", 0, -200, true},
		{"nan latitude", math.NaN(), 0, true},
		{"inf longitude", 0, math.Inf(1), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := domain.ValidateCoordinates(tt.lat, tt.lon)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, domain.ErrMalformed))
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestPosition_Display(t *testing.T) {
	p := domain.Position{Latitude: 51.50736, Longitude: -0.1278}
	d := p.Display()
	assert.Equal(t, "51.5074", d.Latitude)
	assert.Equal(t, "-0.1278", d.Longitude)

	zero := domain.Position{}.Display()
	assert.Equal(t, "0.0000", zero.Latitude)
}

func TestSeriesLength(t *testing.T) {
	assert.Equal(t, 45, domain.SeriesLength(90, 120))
	assert.Equal(t, 1, domain.SeriesLength(1, 60))
	assert.Equal(t, 2, domain.SeriesLength(1, 59))
	assert.Equal(t, 0, domain.SeriesLength(0, 60))
	assert.Equal(t, 0, domain.SeriesLength(10, 0))
}

func TestNewTimestampSeries(t *testing.T) {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s, err := domain.NewTimestampSeries(start, 4, 120)
	require.NoError(t, err)

	assert.Equal(t, 4, s.Len())
	assert.Equal(t, int64(120), s.Step())
	assert.Equal(t, []int64{
		start.Unix(), start.Unix() + 120, start.Unix() + 240, start.Unix() + 360,
	}, s.Values())
	assert.True(t, s.Contains(start.Unix()+240))
	assert.False(t, s.Contains(start.Unix()+241))

	// Values hands out a copy.
	v := s.Values()
	v[0] = 0
	assert.Equal(t, start.Unix(), s.Values()[0])

	_, err = domain.NewTimestampSeries(start, 3, 0)
	assert.Error(t, err)
	_, err = domain.NewTimestampSeries(start, -1, 60)
	assert.Error(t, err)
}

func TestPollState_CloneIsDeep(t *testing.T) {
	orig := domain.PollState{
		Position:  &domain.Position{Latitude: 1, Longitude: 2},
		Track:     domain.Track{{Latitude: 1, Longitude: 2}},
		LastError: &domain.FailureInfo{Stage: domain.StageTrack, Kind: domain.ErrorKindUpstream},
		Version:   3,
	}
	c := orig.Clone()
	c.Position.Latitude = 99
	c.Track[0].Longitude = 99
	c.LastError.Message = "changed"

	assert.Equal(t, 1.0, orig.Position.Latitude)
	assert.Equal(t, 2.0, orig.Track[0].Longitude)
	assert.Empty(t, orig.LastError.Message)
	assert.Equal(t, uint64(3), c.Version)
}

func TestTrack_CloneNilIsEmpty(t *testing.T) {
	var tr domain.Track
	c := tr.Clone()
	assert.NotNil(t, c)
	assert.Len(t, c, 0)
}

func TestTrack_LineStringAxisOrder(t *testing.T) {
	tr := domain.Track{{Latitude: 10, Longitude: 20}, {Latitude: 11, Longitude: 21}}
	ls := tr.LineString()
	require.Len(t, ls, 2)
	assert.Equal(t, 20.0, ls[0].Lon())
	assert.Equal(t, 10.0, ls[0].Lat())
	assert.Equal(t, [][2]float64{{10, 20}, {11, 21}}, tr.Coordinates())
}

func TestTrackBounds(t *testing.T) {
	_, ok := domain.TrackBounds(nil)
	assert.False(t, ok)

	b, ok := domain.TrackBounds(domain.Track{
		{Latitude: 10, Longitude: -170},
		{Latitude: -5, Longitude: 170},
		{Latitude: 40, Longitude: 0},
	})
	require.True(t, ok)
	assert.Equal(t, domain.Bounds{MinLat: -5, MinLon: -170, MaxLat: 40, MaxLon: 170}, b)
}

func TestNewStateView(t *testing.T) {
	empty := domain.NewStateView(domain.PollState{Loading: true})
	assert.True(t, empty.Loading)
	assert.Nil(t, empty.Latitude)
	assert.Nil(t, empty.Display)
	assert.NotNil(t, empty.Track)

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	v := domain.NewStateView(domain.PollState{
		Position: &domain.Position{Latitude: 51.5074, Longitude: -0.1278, ObservedAt: at},
		Track:    domain.Track{{Latitude: 1, Longitude: 2}},
		Version:  7,
	})
	require.NotNil(t, v.Latitude)
	assert.Equal(t, 51.5074, *v.Latitude)
	assert.Equal(t, "-0.1278", v.Display.Longitude)
	assert.Equal(t, at, *v.ObservedAt)
	assert.Equal(t, [][2]float64{{1, 2}}, v.Track)
	assert.Equal(t, uint64(7), v.Version)
}
