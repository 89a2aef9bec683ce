package model

import (
	"fmt"
	"math"
)

// Coordinate is a WGS84 position in decimal degrees.
type Coordinate struct {
	Lat float64
	Lon float64
}

// Validate reports whether the coordinate is a finite latitude/longitude
// pair inside the usual [-90,90] x [-180,180] ranges.
func (c Coordinate) Validate() error {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lon) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lon, 0) {
		return fmt.Errorf("coordinate (%v, %v) is not finite", c.Lat, c.Lon)
	}
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", c.Lat)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", c.Lon)
	}
	return nil
}

// String renders the coordinate as "lat, lon" with six decimals.
func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f, %.6f", c.Lat, c.Lon)
}

// InstallationPoint is the candidate location the user wants to serve,
// along with the height of the receiving antenna above ground in metres.
type InstallationPoint struct {
	Location Coordinate
	HeightM  float64
}
