package render

import (
	"math"

	"github.com/signalsfoundry/avue/core"
	"github.com/signalsfoundry/avue/kb"
	"github.com/signalsfoundry/avue/model"
)

// Chart is the terrain popup of a support: the ground profile, the line of
// sight of its first antenna and the x axis ticks.
type Chart struct {
	Terrain []model.ProfileSample
	Ray     []model.ProfileSample
	Ticks   []float64
}

// ChartFor builds the chart of res.
func ChartFor(res kb.SupportResult) Chart {
	c := Chart{
		Terrain: res.Profile.Samples,
		Ticks:   Ticks(res.Profile.TotalDistanceM()),
	}
	if len(res.Antennas) > 0 {
		c.Ray = res.Antennas[0].Ray
	}
	return c
}

// Ticks places four ticks at 0, a third, two thirds and max, truncating the
// inner two to whole units.
func Ticks(max float64) []float64 {
	return []float64{0, math.Trunc(max / 3), math.Trunc(max * 2 / 3), max}
}

// Marker is the map pin of a support and the content of its popup.
type Marker struct {
	SupportID string
	Location  model.Coordinate
	Icon      string
	Visible   []model.Operator
	Masked    []model.Operator
}

// MarkerFor picks the icon of res from its visible operators.
func MarkerFor(res kb.SupportResult) Marker {
	cov := core.Coverage{
		Visible: core.NewOperatorSet(res.Visible...),
		Masked:  core.NewOperatorSet(res.Masked...),
	}
	return Marker{
		SupportID: res.Support.ID,
		Location:  res.Support.Location,
		Icon:      core.IconFor(cov),
		Visible:   res.Visible,
		Masked:    res.Masked,
	}
}
