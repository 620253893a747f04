// Package orbit propagates the satellite's TLE and raises geofence
// events (component C3, spec §4.3). It treats the actual orbital
// mechanics as an out-of-scope collaborator per spec §6 ("Propagator
// interface ... implementation out of scope"), wired here to
// github.com/joshuaferrara/go-satellite's SGP4/SDP4 implementation —
// there is no SGP4 math of our own to get wrong.
package orbit

import (
	"fmt"
	"log"
	"time"

	"github.com/spacelab-ufsc/obdh2-sub000/satstate"
)

// Propagator is the collaborator interface spec §6 calls out: given two
// TLE lines and a time, compute geodetic position. Degrees/altitude
// units are the propagator's native radians/km; callers convert to the
// satellite-state fixed-point scale.
type Propagator interface {
	Propagate(tle1, tle2 string, at time.Time) (latRad, lonRad, altKm float64, err error)
}

// Geofence rectangle (spec §4.3 and §9's "pick one scale" resolution:
// degrees * 1e7 throughout, never raw integer degrees, resolving the
// origin's `is_satellite_in_brazil` scale inconsistency).
const (
	RectSouthE7 = -34 * 1e7
	RectNorthE7 = 6 * 1e7
	RectWestE7  = -74 * 1e7
	RectEastE7  = -35 * 1e7
)

// TLE line slots (spec §4.3 "TLE update" bit-mask accumulation).
const (
	tleLine1Bit = 1 << 0
	tleLine2Bit = 1 << 1
	tleBothBits = tleLine1Bit | tleLine2Bit
)

// Task propagates TLE lines into satellite state once per cycle and
// raises In/OutOfRegion events on edge transitions (spec §4.3).
type Task struct {
	prop       Propagator
	haveFirst  bool
	prevInside bool

	tle1, tle2 string
	haveLines  uint8
}

// New returns a Task ready to accumulate TLE lines and propagate once
// both are present.
func New(prop Propagator) *Task {
	return &Task{prop: prop}
}

// UpdateTLELine stores one TLE line (1 or 2), 69 bytes. A stored line is
// used by the next RunCycle at once, paired with whichever other line the
// Task currently holds; the Task does not persist lines itself. Once both
// lines have arrived since the last complete pair, onBothPresent (if
// non-nil) is invoked with the (line1, line2) pair so the caller can
// persist it.
func (t *Task) UpdateTLELine(lineNumber int, line string, onBothPresent func(l1, l2 string)) error {
	switch lineNumber {
	case 1:
		t.tle1 = line
		t.haveLines |= tleLine1Bit
	case 2:
		t.tle2 = line
		t.haveLines |= tleLine2Bit
	default:
		return fmt.Errorf("orbit: invalid TLE line number %d", lineNumber)
	}
	if t.haveLines == tleBothBits {
		t.haveLines = 0
		if onBothPresent != nil {
			onBothPresent(t.tle1, t.tle2)
		}
	}
	return nil
}

// RunCycle propagates the current TLE at `now`, writes the result into
// st, and returns an Event if the subsatellite point crossed the
// geofence boundary this cycle (spec §4.3: "edge transitions only — no
// event while staying on one side"). It returns (nil, nil) on the first
// call if there is no TLE loaded yet, or on cycles with no transition.
func (t *Task) RunCycle(st *satstate.State, now time.Time) (*satstate.Event, error) {
	if t.tle1 == "" || t.tle2 == "" {
		pos := st.PositionSnapshot()
		if pos.TLE1[0] == 0 {
			return nil, nil
		}
		t.tle1 = string(pos.TLE1[:])
		t.tle2 = string(pos.TLE2[:])
	}

	latRad, lonRad, altKm, err := t.prop.Propagate(t.tle1, t.tle2, now)
	if err != nil {
		log.Printf("orbit: propagation failed: %v", err)
		return nil, fmt.Errorf("orbit: propagation failed: %w", err)
	}

	const radToDegE7 = 180.0 / 3.14159265358979323846 * 1e7
	latE7 := int32(latRad * radToDegE7)
	lonE7 := int32(lonRad * radToDegE7)

	var pos satstate.Position
	copy(pos.TLE1[:], t.tle1)
	copy(pos.TLE2[:], t.tle2)
	pos.LatE7 = latE7
	pos.LonE7 = lonE7
	pos.AltCm = int64(altKm * 100000)
	pos.Epoch = now.Unix()
	st.UpdatePosition(pos)

	inside := latE7 >= RectSouthE7 && latE7 <= RectNorthE7 && lonE7 >= RectWestE7 && lonE7 <= RectEastE7

	if !t.haveFirst {
		// Initialize previous to the first-observed value to avoid spurious
		// events at startup (spec §9).
		t.haveFirst = true
		t.prevInside = inside
		return nil, nil
	}
	if inside == t.prevInside {
		return nil, nil
	}
	t.prevInside = inside

	if inside {
		return &satstate.Event{Kind: satstate.EventInRegion}, nil
	}
	return &satstate.Event{Kind: satstate.EventOutOfRegion}, nil
}
