package core

import (
	"math"

	"github.com/signalsfoundry/avue/model"
)

// Mean Earth radii used by Distance for each output unit.
const (
	EarthRadiusKm  = 6371.0
	EarthRadiusMi  = 3960.0
	EarthRadiusNmi = 3440.065

	// EquatorialRadiusKm is used for the search bounding box, matching the
	// support backend's own bounding-box computation.
	EquatorialRadiusKm = 6378.1
)

// Unit selects the output unit of Distance.
type Unit int

const (
	Kilometers Unit = iota
	Miles
	NauticalMiles
	Meters
)

func (u Unit) String() string {
	switch u {
	case Miles:
		return "mi"
	case NauticalMiles:
		return "nmi"
	case Meters:
		return "m"
	default:
		return "km"
	}
}

func (u Unit) radius() float64 {
	switch u {
	case Miles:
		return EarthRadiusMi
	case NauticalMiles:
		return EarthRadiusNmi
	case Meters:
		return EarthRadiusKm * 1000
	default:
		return EarthRadiusKm
	}
}

// Distance returns the great-circle distance between a and b using the
// spherical law of cosines.
//
// Identical points short-circuit to exactly 0: rounding can push the cosine
// term marginally above 1, where acos is undefined.
func Distance(a, b model.Coordinate, unit Unit) float64 {
	if a == b {
		return 0
	}
	lat1 := toRadians(a.Lat)
	lat2 := toRadians(b.Lat)
	theta := toRadians(a.Lon - b.Lon)

	cosC := math.Sin(lat1)*math.Sin(lat2) + math.Cos(lat1)*math.Cos(lat2)*math.Cos(theta)
	if cosC > 1 {
		cosC = 1
	} else if cosC < -1 {
		cosC = -1
	}
	return math.Acos(cosC) * unit.radius()
}

// Destination returns the point reached from origin after travelling
// distanceKm along the great circle starting at bearingDeg (north = 0).
func Destination(origin model.Coordinate, distanceKm, bearingDeg float64) model.Coordinate {
	lat := toRadians(origin.Lat)
	lon := toRadians(origin.Lon)
	brng := toRadians(bearingDeg)
	delta := distanceKm / EquatorialRadiusKm

	lat2 := math.Asin(math.Sin(lat)*math.Cos(delta) + math.Cos(lat)*math.Sin(delta)*math.Cos(brng))
	lon2 := lon + math.Atan2(
		math.Sin(brng)*math.Sin(delta)*math.Cos(lat),
		math.Cos(delta)-math.Sin(lat)*math.Sin(lat2),
	)
	return model.Coordinate{Lat: toDegrees(lat2), Lon: normalizeLon(toDegrees(lon2))}
}

// normalizeLon maps a longitude onto [-180, 180).
func normalizeLon(lon float64) float64 {
	if lon >= -180 && lon < 180 {
		return lon
	}
	return math.Mod(math.Mod(lon+180, 360)+360, 360) - 180
}

// Bounds is an axis-aligned latitude/longitude box.
type Bounds struct {
	NorthWest model.Coordinate
	SouthEast model.Coordinate
}

// BoundingBox returns the box circumscribing the search circle: its corners
// lie radiusKm·√2 away from center at bearings 315° and 135°. It
// over-covers the circle; callers still need FilterByRadius.
func BoundingBox(center model.Coordinate, radiusKm float64) Bounds {
	corner := radiusKm * math.Sqrt2
	return Bounds{
		NorthWest: Destination(center, corner, 315),
		SouthEast: Destination(center, corner, 135),
	}
}

// CrossesAntimeridian reports whether the box spans the ±180° meridian, in
// which case its eastern edge has a lower longitude than its western one.
func (b Bounds) CrossesAntimeridian() bool {
	return b.SouthEast.Lon < b.NorthWest.Lon
}

// Contains reports whether c lies inside the box (edges excluded, as the
// backend query does).
func (b Bounds) Contains(c model.Coordinate) bool {
	if !(c.Lat < b.NorthWest.Lat && c.Lat > b.SouthEast.Lat) {
		return false
	}
	if b.CrossesAntimeridian() {
		return c.Lon > b.NorthWest.Lon || c.Lon < b.SouthEast.Lon
	}
	return c.Lon > b.NorthWest.Lon && c.Lon < b.SouthEast.Lon
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180.0 }

func toDegrees(rad float64) float64 { return rad * 180.0 / math.Pi }
