package core

import "github.com/signalsfoundry/avue/model"

// DefaultMaxCandidates is the largest number of supports a search may
// process. Beyond it the search is rejected rather than truncated.
const DefaultMaxCandidates = 30

// RadiusFilter narrows a bounding-box candidate set down to a circle.
type RadiusFilter struct {
	// MaxCandidates caps the retained set; 0 means DefaultMaxCandidates.
	MaxCandidates int
}

// FilterByRadius applies a RadiusFilter with the default maximum.
func FilterByRadius(center model.Coordinate, radiusKm float64, candidates []model.Support) ([]model.Support, error) {
	return RadiusFilter{}.Filter(center, radiusKm, candidates)
}

// Filter keeps the candidates whose great-circle distance to center is at
// most radiusKm, preserving their order. When more than MaxCandidates
// qualify it returns a *TooManyCandidatesError and no supports.
func (f RadiusFilter) Filter(center model.Coordinate, radiusKm float64, candidates []model.Support) ([]model.Support, error) {
	if err := center.Validate(); err != nil {
		return nil, invalidInput("search center: %v", err)
	}
	if radiusKm < 0 {
		return nil, invalidInput("negative radius %v km", radiusKm)
	}

	max := f.MaxCandidates
	if max <= 0 {
		max = DefaultMaxCandidates
	}

	var kept []model.Support
	for _, c := range candidates {
		if c.Location.Validate() != nil {
			continue
		}
		if Distance(center, c.Location, Kilometers) <= radiusKm {
			kept = append(kept, c)
		}
	}

	if len(kept) > max {
		return nil, &TooManyCandidatesError{Count: len(kept), Max: max}
	}
	return kept, nil
}
