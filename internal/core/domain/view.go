package domain

import "time"

// StateView is the wire form of a PollState: the position flattened next to its
// display strings and the track as [lat, lon] pairs.
type StateView struct {
	Version    uint64           `json:"version"`
	Loading    bool             `json:"loading"`
	Latitude   *float64         `json:"latitude,omitempty"`
	Longitude  *float64         `json:"longitude,omitempty"`
	Display    *DisplayPosition `json:"display,omitempty"`
	ObservedAt *time.Time       `json:"observed_at,omitempty"`
	Track      [][2]float64     `json:"track"`
	LastError  *FailureInfo     `json:"last_error,omitempty"`
}

// NewStateView flattens s.
func NewStateView(s PollState) StateView {
	v := StateView{
		Version:   s.Version,
		Loading:   s.Loading,
		Track:     s.Track.Coordinates(),
		LastError: s.LastError,
	}
	if s.Position != nil {
		lat, lon := s.Position.Latitude, s.Position.Longitude
		d := s.Position.Display()
		v.Latitude, v.Longitude, v.Display = &lat, &lon, &d
		if !s.Position.ObservedAt.IsZero() {
			at := s.Position.ObservedAt
			v.ObservedAt = &at
		}
	}
	return v
}
