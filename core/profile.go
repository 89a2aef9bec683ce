package core

import (
	"math"

	"github.com/signalsfoundry/avue/model"
)

// Sampling defaults for elevation requests: one sample every 10 m, capped
// at 200 so the upstream service is not flooded on long paths.
const (
	DefaultMetresPerSample = 10.0
	DefaultMaxSamples      = 200
	minSamples             = 2
)

// SamplingPolicy decides how many elevation samples to request for a path.
type SamplingPolicy struct {
	MetresPerSample float64
	MaxSamples      int
}

// DefaultSamplingPolicy returns the 10 m / 200 samples policy.
func DefaultSamplingPolicy() SamplingPolicy {
	return SamplingPolicy{MetresPerSample: DefaultMetresPerSample, MaxSamples: DefaultMaxSamples}
}

// Count returns min(pathM/MetresPerSample, MaxSamples), never below 2 so
// the resulting profile always has both endpoints.
func (p SamplingPolicy) Count(pathM float64) int {
	per := p.MetresPerSample
	if per <= 0 {
		per = DefaultMetresPerSample
	}
	max := p.MaxSamples
	if max <= 0 {
		max = DefaultMaxSamples
	}

	n := int(math.Min(pathM/per, float64(max)))
	if n < minSamples {
		n = minSamples
	}
	return n
}

// BuildProfile converts raw elevation samples, ordered from the support to
// the installation point, into a profile indexed by whole metres from the
// support. Sample order is kept as received.
func BuildProfile(raw []model.RawElevation, support model.Coordinate) (model.TerrainProfile, error) {
	if len(raw) == 0 {
		return model.TerrainProfile{}, invalidInput("no elevation samples")
	}
	if err := support.Validate(); err != nil {
		return model.TerrainProfile{}, invalidInput("support location: %v", err)
	}

	samples := make([]model.ProfileSample, 0, len(raw))
	for i, r := range raw {
		at := model.Coordinate{Lat: r.Lat, Lon: r.Lon}
		if err := at.Validate(); err != nil {
			return model.TerrainProfile{}, invalidInput("elevation sample %d: %v", i, err)
		}
		d := math.Trunc(Distance(support, at, Kilometers) * 1000)
		samples = append(samples, model.ProfileSample{DistanceM: d, HeightM: r.Elevation})
	}
	return model.TerrainProfile{Samples: samples}, nil
}
