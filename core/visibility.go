package core

import (
	"github.com/signalsfoundry/avue/model"
)

// VisibilityResult is the outcome of evaluating one antenna.
type VisibilityResult struct {
	Visibility model.Visibility
	// Ray holds the height of the direct line at every profile distance,
	// for overlaying on the terrain chart.
	Ray []model.ProfileSample
	// Obstruction is the index of the first profile sample above the ray,
	// or -1 when the path is clear.
	Obstruction int
}

// Visible reports whether the antenna has a clear line to the point.
func (r VisibilityResult) Visible() bool {
	return r.Visibility == model.VisibilityVisible
}

// Evaluate decides whether the straight line from the antenna to the
// installation antenna clears the terrain profile.
//
// The line runs in the distance/height plane from (0, antenna height +
// first sample elevation) to (path length, installation height + last
// sample elevation). The antenna is masked when any intermediate sample
// is strictly higher than the line at its distance. All distances are
// metres: the path length is the great-circle distance converted to
// metres, the same unit BuildProfile uses.
func Evaluate(antenna model.Antenna, support model.Support, profile model.TerrainProfile, point model.InstallationPoint) (VisibilityResult, error) {
	n := profile.Len()
	if n < 2 {
		return VisibilityResult{}, invalidInput("terrain profile for support %s has %d samples, need at least 2", support.ID, n)
	}
	if err := support.Location.Validate(); err != nil {
		return VisibilityResult{}, invalidInput("support %s location: %v", support.ID, err)
	}
	if err := point.Location.Validate(); err != nil {
		return VisibilityResult{}, invalidInput("installation point: %v", err)
	}

	total := Distance(support.Location, point.Location, Meters)
	if total <= 0 {
		return VisibilityResult{}, invalidInput("support %s coincides with the installation point", support.ID)
	}

	zStart := profile.Samples[0].HeightM + antenna.HeightM
	zEnd := profile.Samples[n-1].HeightM + point.HeightM
	slope := (zEnd - zStart) / total

	res := VisibilityResult{
		Visibility:  model.VisibilityVisible,
		Ray:         make([]model.ProfileSample, n),
		Obstruction: -1,
	}
	for i, s := range profile.Samples {
		ray := slope*s.DistanceM + zStart
		res.Ray[i] = model.ProfileSample{DistanceM: s.DistanceM, HeightM: ray}

		if i == 0 || i == n-1 {
			continue
		}
		if s.HeightM > ray && res.Obstruction < 0 {
			res.Visibility = model.VisibilityMasked
			res.Obstruction = i
		}
	}
	return res, nil
}
