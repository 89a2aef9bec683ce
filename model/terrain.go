package model

// Visibility is the tri-state line-of-sight outcome of one antenna.
type Visibility int

const (
	VisibilityUnknown Visibility = iota
	VisibilityVisible
	VisibilityMasked
)

func (v Visibility) String() string {
	switch v {
	case VisibilityVisible:
		return "visible"
	case VisibilityMasked:
		return "masked"
	default:
		return "unknown"
	}
}

// RawElevation is one sample returned by the elevation service along the
// path between a support and the installation point.
type RawElevation struct {
	Lat       float64
	Lon       float64
	Elevation float64
}

// ProfileSample is a point of a distance-indexed profile: distance from
// the support in metres and a height in metres.
type ProfileSample struct {
	DistanceM float64
	HeightM   float64
}

// TerrainProfile is the ground elevation along the path, ordered from the
// support (distance 0) to the installation point.
type TerrainProfile struct {
	Samples []ProfileSample
}

// Len returns the number of samples.
func (p TerrainProfile) Len() int { return len(p.Samples) }

// TotalDistanceM returns the distance of the last sample, or 0 when empty.
func (p TerrainProfile) TotalDistanceM() float64 {
	if len(p.Samples) == 0 {
		return 0
	}
	return p.Samples[len(p.Samples)-1].DistanceM
}
