package domain

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/paulmach/orb"
)

// Position is a live reading of the tracked object's sub-satellite point.
type Position struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	ObservedAt time.Time `json:"observed_at"`
}

// Validate rejects coordinates outside WGS 84 bounds. Values are never clamped.
func (p Position) Validate() error {
	return ValidateCoordinates(p.Latitude, p.Longitude)
}

// Display returns the coordinates formatted with the 4-decimal precision consumers render.
func (p Position) Display() DisplayPosition {
	return DisplayPosition{
		Latitude:  strconv.FormatFloat(p.Latitude, 'f', 4, 64),
		Longitude: strconv.FormatFloat(p.Longitude, 'f', 4, 64),
	}
}

// DisplayPosition holds pre-formatted coordinates.
type DisplayPosition struct {
	Latitude  string `json:"latitude"`
	Longitude string `json:"longitude"`
}

// PositionRecord is one raw entry returned by a batch position source.
// Timestamp is 0 when the upstream did not echo it.
type PositionRecord struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp int64   `json:"timestamp,omitempty"`
	Altitude  float64 `json:"altitude,omitempty"` // km
	Velocity  float64 `json:"velocity,omitempty"` // km/h
}

// TrackPoint is one vertex of the projected ground path.
type TrackPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Timestamp int64   `json:"timestamp,omitempty"`
}

// Track is an ordered ground path; order is draw order.
type Track []TrackPoint

// Coordinates returns the track as [lat, lon] pairs.
func (t Track) Coordinates() [][2]float64 {
	out := make([][2]float64, len(t))
	for i, p := range t {
		out[i] = [2]float64{p.Latitude, p.Longitude}
	}
	return out
}

// LineString returns the track in GeoJSON axis order (lon, lat).
func (t Track) LineString() orb.LineString {
	ls := make(orb.LineString, len(t))
	for i, p := range t {
		ls[i] = orb.Point{p.Longitude, p.Latitude}
	}
	return ls
}

// Clone returns an independent copy.
func (t Track) Clone() Track {
	if t == nil {
		return Track{}
	}
	out := make(Track, len(t))
	copy(out, t)
	return out
}

// TimestampSeries is a strictly increasing run of Unix-second timestamps with a fixed step.
// It is built once per refresh cycle and never mutated.
type TimestampSeries struct {
	values []int64
	step   int64
}

// NewTimestampSeries builds count timestamps starting at start and spaced by step seconds.
func NewTimestampSeries(start time.Time, count, stepSeconds int) (TimestampSeries, error) {
	if count < 0 {
		return TimestampSeries{}, fmt.Errorf("series count must not be negative, got %d", count)
	}
	if stepSeconds <= 0 {
		return TimestampSeries{}, fmt.Errorf("series step must be positive, got %d", stepSeconds)
	}
	base := start.Unix()
	values := make([]int64, count)
	for i := range values {
		values[i] = base + int64(i)*int64(stepSeconds)
	}
	return TimestampSeries{values: values, step: int64(stepSeconds)}, nil
}

// SeriesLength returns ceil(windowMinutes*60 / stepSeconds).
func SeriesLength(windowMinutes, stepSeconds int) int {
	if windowMinutes <= 0 || stepSeconds <= 0 {
		return 0
	}
	window := windowMinutes * 60
	return (window + stepSeconds - 1) / stepSeconds
}

// Values returns a copy of the timestamps.
func (s TimestampSeries) Values() []int64 {
	out := make([]int64, len(s.values))
	copy(out, s.values)
	return out
}

func (s TimestampSeries) Len() int { return len(s.values) }

// Step returns the spacing in seconds.
func (s TimestampSeries) Step() int64 { return s.step }

// Contains reports whether ts is one of the series entries.
func (s TimestampSeries) Contains(ts int64) bool {
	i := sort.Search(len(s.values), func(i int) bool { return s.values[i] >= ts })
	return i < len(s.values) && s.values[i] == ts
}

// Stage names which half of a cycle failed.
type Stage string

const (
	StagePosition Stage = "position"
	StageTrack    Stage = "track"
)

// FailureInfo describes the most recent failed cycle, for consumers that surface errors.
type FailureInfo struct {
	Stage   Stage     `json:"stage"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// PollState is the consumer-visible state of the tracker.
type PollState struct {
	Position          *Position    `json:"position,omitempty"`
	Loading           bool         `json:"loading"`
	Track             Track        `json:"track"`
	Version           uint64       `json:"version"`
	PositionStartedAt time.Time    `json:"position_started_at,omitempty"`
	TrackStartedAt    time.Time    `json:"track_started_at,omitempty"`
	LastError         *FailureInfo `json:"last_error,omitempty"`
}

// Clone deep-copies the state so callers cannot reach the owner's memory.
func (s PollState) Clone() PollState {
	out := s
	if s.Position != nil {
		p := *s.Position
		out.Position = &p
	}
	if s.LastError != nil {
		e := *s.LastError
		out.LastError = &e
	}
	out.Track = s.Track.Clone()
	return out
}

// ValidateCoordinates checks latitude and longitude ranges and rejects NaN/Inf.
func ValidateCoordinates(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range [-90, 90]", ErrMalformed, lat)
	}
	if math.IsNaN(lon) || math.IsInf(lon, 0) || lon < -180 || lon > 180 {
		return fmt.Errorf("%w: longitude %v out of range [-180, 180]", ErrMalformed, lon)
	}
	return nil
}
