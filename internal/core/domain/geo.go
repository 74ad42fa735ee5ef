package domain

// Bounds represents a geographic bounding box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLat float64 `json:"max_lat"`
	MaxLon float64 `json:"max_lon"`
}

// TrackBounds returns the bounding box of the track, or false if it is empty.
func TrackBounds(t Track) (Bounds, bool) {
	if len(t) == 0 {
		return Bounds{}, false
	}
	b := Bounds{MinLat: t[0].Latitude, MaxLat: t[0].Latitude, MinLon: t[0].Longitude, MaxLon: t[0].Longitude}
	for _, p := range t[1:] {
		b.MinLat = min(b.MinLat, p.Latitude)
		b.MaxLat = max(b.MaxLat, p.Latitude)
		b.MinLon = min(b.MinLon, p.Longitude)
		b.MaxLon = max(b.MaxLon, p.Longitude)
	}
	return b, true
}
