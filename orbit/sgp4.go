package orbit

import (
	"fmt"
	"time"

	"github.com/joshuaferrara/go-satellite"
)

// SGP4Propagator is the default Propagator, backed by go-satellite's
// SGP4/SDP4 implementation (spec §6's propagator collaborator).
type SGP4Propagator struct{}

func (SGP4Propagator) Propagate(tle1, tle2 string, at time.Time) (latRad, lonRad, altKm float64, err error) {
	sat := satellite.TLEToSat(tle1, tle2, satellite.GravityWGS84)
	if sat.Error != 0 {
		return 0, 0, 0, fmt.Errorf("orbit: SGP4 error code %d", sat.Error)
	}

	u := at.UTC()
	position, _ := satellite.Propagate(sat, u.Year(), int(u.Month()), u.Day(), u.Hour(), u.Minute(), u.Second())

	gst := satellite.GSTimeFromDate(u.Year(), int(u.Month()), u.Day(), u.Hour(), u.Minute(), u.Second())
	altitude, _, latlong := satellite.ECIToLLA(position, gst)

	return latlong.Latitude, latlong.Longitude, altitude, nil
}
