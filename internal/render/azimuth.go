// Package render turns board snapshots into map and chart data: support
// markers, azimuth segments, terrain charts and GeoJSON.
package render

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/signalsfoundry/avue/core"
	"github.com/signalsfoundry/avue/kb"
	"github.com/signalsfoundry/avue/model"
)

// AzimuthLengthKm is the length of the chain of segments drawn along the
// bearing of one equipment entry.
const AzimuthLengthKm = 1.0

// ColorOther is used for carriers without a dedicated colour.
const ColorOther = "black"

var operatorColors = map[model.Operator]string{
	core.OperatorBouygues: "blue",
	core.OperatorFree:     "white",
	core.OperatorOrange:   "orange",
	core.OperatorSFR:      "red",
}

// OperatorColor returns the line colour of op.
func OperatorColor(op model.Operator) string {
	if c, ok := operatorColors[op]; ok {
		return c
	}
	return ColorOther
}

// SignedBearing converts a north-referenced 0-360 bearing to the signed
// convention of map libraries, where west of north is negative.
func SignedBearing(deg float64) float64 {
	if deg > 180 {
		return deg - 360
	}
	return deg
}

// Segment is one coloured piece of an azimuth line.
type Segment struct {
	SupportID   string
	EquipmentID string
	Operator    model.Operator
	Color       string
	From        orb.Point
	To          orb.Point
}

// AzimuthSegments draws the bearings of the visible antennas of res. Each
// directional equipment entry gets one segment per distinct operator,
// chained from the support outwards and splitting AzimuthLengthKm evenly.
// Masked antennas and omnidirectional equipment draw nothing.
func AzimuthSegments(res kb.SupportResult) []Segment {
	origin := orb.Point{res.Support.Location.Lon, res.Support.Location.Lat}

	var out []Segment
	for _, ar := range res.Antennas {
		if ar.Visibility != model.VisibilityVisible {
			continue
		}
		for _, eq := range ar.Antenna.Equipment {
			if eq.Omnidirectional() {
				continue
			}
			ops := distinct(eq.Operators)
			if len(ops) == 0 {
				continue
			}
			stepM := AzimuthLengthKm * 1000 / float64(len(ops))
			bearing := SignedBearing(eq.BearingDeg)
			from := origin
			for _, op := range ops {
				to := geo.PointAtBearingAndDistance(from, bearing, stepM)
				out = append(out, Segment{
					SupportID:   res.Support.ID,
					EquipmentID: eq.ID,
					Operator:    op,
					Color:       OperatorColor(op),
					From:        from,
					To:          to,
				})
				from = to
			}
		}
	}
	return out
}

func distinct(ops []model.Operator) []model.Operator {
	seen := make(map[model.Operator]struct{}, len(ops))
	out := make([]model.Operator, 0, len(ops))
	for _, op := range ops {
		if _, ok := seen[op]; ok {
			continue
		}
		seen[op] = struct{}{}
		out = append(out, op)
	}
	return out
}
