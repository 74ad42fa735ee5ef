// Package sgp4 predicts positions offline by propagating a two-line element set.
package sgp4

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/samirrijal/orbittrack/internal/core/domain"
)

const sourceName = "sgp4"

// Propagator implements ports.PositionSource and ports.BatchPositionSource.
// It is safe for concurrent use: the parsed elements are never mutated.
type Propagator struct {
	sat satellite.Satellite
	now func() time.Time
}

// New parses the TLE lines. Propagation uses the WGS72 gravity model.
func New(line1, line2 string) (p *Propagator, err error) {
	line1, line2 = strings.TrimSpace(line1), strings.TrimSpace(line2)
	if err := checkLine(line1, '1'); err != nil {
		return nil, err
	}
	if err := checkLine(line2, '2'); err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			p, err = nil, fmt.Errorf("parse TLE: %v", r)
		}
	}()
	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS72)
	if sat.Error != 0 {
		return nil, fmt.Errorf("parse TLE: %s", sat.ErrorStr)
	}
	return &Propagator{sat: sat, now: time.Now}, nil
}

// checkLine verifies the line number, length and modulo-10 checksum.
func checkLine(line string, number byte) error {
	if len(line) != 69 {
		return fmt.Errorf("TLE line %c: expected 69 characters, got %d", number, len(line))
	}
	if line[0] != number || line[1] != ' ' {
		return fmt.Errorf("TLE line %c: bad line number", number)
	}
	sum := 0
	for i := 0; i < 68; i++ {
		switch c := line[i]; {
		case c >= '0' && c <= '9':
			sum += int(c - '0')
		case c == '-':
			sum++
		}
	}
	if want := int(line[68] - '0'); sum%10 != want {
		return fmt.Errorf("TLE line %c: checksum %d, expected %d", number, sum%10, want)
	}
	return nil
}

// At propagates to t and returns the sub-satellite point.
func (p *Propagator) At(t time.Time) (domain.PositionRecord, error) {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	posECI, _ := satellite.Propagate(p.sat, year, int(month), day, hour, min, sec)
	if math.IsNaN(posECI.X) || math.IsNaN(posECI.Y) || math.IsNaN(posECI.Z) ||
		(posECI.X == 0 && posECI.Y == 0 && posECI.Z == 0) {
		return domain.PositionRecord{}, domain.Malformed(sourceName,
			fmt.Errorf("propagation to %s diverged", t.Format(time.RFC3339)))
	}

	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(jd)
	alt, vel, lla := satellite.ECIToLLA(posECI, gmst)

	lat := lla.Latitude * 180 / math.Pi
	lon := normalizeLongitude(lla.Longitude * 180 / math.Pi)
	if err := domain.ValidateCoordinates(lat, lon); err != nil {
		return domain.PositionRecord{}, domain.Malformed(sourceName, err)
	}

	return domain.PositionRecord{
		Latitude:  lat,
		Longitude: lon,
		Altitude:  alt,
		Velocity:  vel * 3600,
		Timestamp: t.Unix(),
	}, nil
}

func normalizeLongitude(lon float64) float64 {
	lon = math.Mod(lon+180, 360)
	if lon < 0 {
		lon += 360
	}
	return lon - 180
}

// CurrentPosition propagates to the current time.
func (p *Propagator) CurrentPosition(ctx context.Context) (domain.Position, error) {
	if err := ctx.Err(); err != nil {
		return domain.Position{}, domain.Upstream(sourceName, err)
	}
	now := p.now()
	rec, err := p.At(now)
	if err != nil {
		return domain.Position{}, err
	}
	return domain.Position{Latitude: rec.Latitude, Longitude: rec.Longitude, ObservedAt: now.UTC()}, nil
}

// PositionsAt propagates to each timestamp, echoing it back.
func (p *Propagator) PositionsAt(ctx context.Context, timestamps []int64) ([]domain.PositionRecord, error) {
	out := make([]domain.PositionRecord, 0, len(timestamps))
	for _, ts := range timestamps {
		if err := ctx.Err(); err != nil {
			return nil, domain.Upstream(sourceName, err)
		}
		rec, err := p.At(time.Unix(ts, 0))
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
