package render

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/signalsfoundry/avue/core"
	"github.com/signalsfoundry/avue/kb"
	"github.com/signalsfoundry/avue/model"
)

// Feature kinds, stored in the "kind" property.
const (
	KindInstallation = "installation_point"
	KindSearchArea   = "search_area"
	KindSupport      = "support"
	KindAzimuth      = "azimuth"
)

// FeatureCollection renders snap as GeoJSON: the installation point, the
// area queried for supports, one point per evaluated support and the
// azimuth segments of its visible antennas. An idle board renders empty.
func FeatureCollection(snap kb.Snapshot) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	if snap.SearchID == "" {
		return fc
	}

	home := geojson.NewFeature(point(snap.Point.Location))
	home.ID = snap.SearchID
	home.Properties["kind"] = KindInstallation
	home.Properties["height_m"] = snap.Point.HeightM
	home.Properties["radius_km"] = snap.RadiusKm
	home.Properties["status"] = string(snap.Status)
	home.Properties["processed"] = snap.Progress.Processed
	home.Properties["total"] = snap.Progress.Total
	if snap.Message != "" {
		home.Properties["message"] = snap.Message
	}
	fc.Append(home)

	area := geojson.NewFeature(boundsPolygon(core.BoundingBox(snap.Point.Location, snap.RadiusKm)))
	area.Properties["kind"] = KindSearchArea
	fc.Append(area)

	for _, res := range snap.Results {
		m := MarkerFor(res)
		f := geojson.NewFeature(point(res.Support.Location))
		f.ID = res.Support.ID
		f.Properties["kind"] = KindSupport
		f.Properties["icon"] = m.Icon
		f.Properties["visible"] = res.VisibleOverall()
		f.Properties["visible_operators"] = operatorNames(res.Visible)
		f.Properties["masked_operators"] = operatorNames(res.Masked)
		f.Properties["distance_km"] = res.DistanceKm
		f.Properties["antennas"] = len(res.Antennas)
		fc.Append(f)

		for _, seg := range AzimuthSegments(res) {
			line := geojson.NewFeature(orb.LineString{seg.From, seg.To})
			line.Properties["kind"] = KindAzimuth
			line.Properties["support_id"] = seg.SupportID
			line.Properties["equipment_id"] = seg.EquipmentID
			line.Properties["operator"] = string(seg.Operator)
			line.Properties["color"] = seg.Color
			fc.Append(line)
		}
	}
	return fc
}

func point(c model.Coordinate) orb.Point {
	return orb.Point{c.Lon, c.Lat}
}

func boundsPolygon(b core.Bounds) orb.Polygon {
	nw, se := b.NorthWest, b.SouthEast
	ring := orb.Ring{
		{nw.Lon, nw.Lat},
		{se.Lon, nw.Lat},
		{se.Lon, se.Lat},
		{nw.Lon, se.Lat},
		{nw.Lon, nw.Lat},
	}
	return orb.Polygon{ring}
}

func operatorNames(ops []model.Operator) []string {
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = string(op)
	}
	return out
}
