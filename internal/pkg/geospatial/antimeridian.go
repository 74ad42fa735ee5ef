package geospatial

import (
	"math"

	"github.com/paulmach/orb"
)

// SplitAntimeridian breaks a (lon, lat) line wherever consecutive points are more
// than 180 degrees of longitude apart, so maps do not draw a segment across the
// whole world. A crossing point is interpolated on both sides of the ±180 meridian.
func SplitAntimeridian(ls orb.LineString) orb.MultiLineString {
	if len(ls) == 0 {
		return nil
	}

	var out orb.MultiLineString
	current := orb.LineString{ls[0]}
	for i := 1; i < len(ls); i++ {
		prev, next := ls[i-1], ls[i]
		dLon := next[0] - prev[0]
		if math.Abs(dLon) <= 180 {
			current = append(current, next)
			continue
		}

		// Crossing east (179 -> -179) or west (-179 -> 179).
		edge := 180.0
		if dLon > 0 {
			edge = -180
		}
		unwrapped := next[0] + 2*edge
		lat := prev[1]
		if span := unwrapped - prev[0]; span != 0 {
			lat = prev[1] + (next[1]-prev[1])*(edge-prev[0])/span
		}

		current = append(current, orb.Point{edge, lat})
		out = append(out, current)
		current = orb.LineString{{-edge, lat}, next}
	}
	return append(out, current)
}
