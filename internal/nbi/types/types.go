// Package types holds the wire views of the visibility service. The same
// views are served as JSON over HTTP and as google.protobuf.Struct over
// gRPC.
package types

import (
	"encoding/json"
	"fmt"

	"github.com/signalsfoundry/avue/internal/render"
	"github.com/signalsfoundry/avue/internal/supports"
	"github.com/signalsfoundry/avue/kb"
	"github.com/signalsfoundry/avue/model"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// SearchRequest starts a search. Pointer fields are optional and fall
// back to server defaults, except Lat and Lon which are required.
type SearchRequest struct {
	Lat      *float64 `json:"lat,omitempty"`
	Lon      *float64 `json:"lon,omitempty"`
	HeightM  *float64 `json:"height_m,omitempty"`
	RadiusKm *float64 `json:"radius_km,omitempty"`
	// Wait blocks until the search finishes and returns its snapshot.
	Wait bool `json:"wait,omitempty"`
	// Detail includes terrain charts in the returned snapshot.
	Detail bool `json:"detail,omitempty"`
}

// SnapshotRequest asks for the displayed search.
type SnapshotRequest struct {
	Detail bool `json:"detail,omitempty"`
}

// SearchStarted acknowledges a search that is still running.
type SearchStarted struct {
	SearchID string  `json:"search_id"`
	Epoch    uint64  `json:"epoch"`
	Status   string  `json:"status"`
	Point    Point   `json:"point"`
	RadiusKm float64 `json:"radius_km"`
}

type Point struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	HeightM float64 `json:"height_m"`
}

type Progress struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
}

// ProgressView is the compact state served by the progress endpoint.
type ProgressView struct {
	SearchID string   `json:"search_id,omitempty"`
	Epoch    uint64   `json:"epoch"`
	Status   string   `json:"status"`
	Message  string   `json:"message,omitempty"`
	Progress Progress `json:"progress"`
}

type Antenna struct {
	HeightM    float64 `json:"height_m"`
	Visibility string  `json:"visibility"`
}

// Chart series are [distance_m, height_m] pairs.
type Chart struct {
	Terrain [][2]float64 `json:"terrain"`
	Ray     [][2]float64 `json:"ray,omitempty"`
	Ticks   []float64    `json:"ticks"`
}

type Result struct {
	Index      int                 `json:"index"`
	Support    supports.SupportDoc `json:"support"`
	DistanceKm float64             `json:"distance_km"`
	Icon       string              `json:"icon"`
	Visible    []string            `json:"visible_operators"`
	Masked     []string            `json:"masked_operators"`
	Antennas   []Antenna           `json:"antennas"`
	Chart      *Chart              `json:"chart,omitempty"`
}

type Failure struct {
	Index     int    `json:"index"`
	SupportID string `json:"support_id"`
	Kind      string `json:"kind"`
	Reason    string `json:"reason"`
}

// Snapshot is the wire form of kb.Snapshot.
type Snapshot struct {
	SearchID string    `json:"search_id,omitempty"`
	Epoch    uint64    `json:"epoch"`
	Point    Point     `json:"point"`
	RadiusKm float64   `json:"radius_km"`
	Status   string    `json:"status"`
	Message  string    `json:"message,omitempty"`
	Progress Progress  `json:"progress"`
	Results  []Result  `json:"results"`
	Failures []Failure `json:"failures"`
}

// PointFromModel converts an installation point.
func PointFromModel(p model.InstallationPoint) Point {
	return Point{Lat: p.Location.Lat, Lon: p.Location.Lon, HeightM: p.HeightM}
}

// ProgressFromSnapshot extracts the progress view of snap.
func ProgressFromSnapshot(snap kb.Snapshot) ProgressView {
	return ProgressView{
		SearchID: snap.SearchID,
		Epoch:    snap.Epoch,
		Status:   string(snap.Status),
		Message:  snap.Message,
		Progress: Progress{Processed: snap.Progress.Processed, Total: snap.Progress.Total},
	}
}

// SnapshotFromModel converts a board snapshot. Charts are included only
// when detail is set.
func SnapshotFromModel(snap kb.Snapshot, detail bool) Snapshot {
	out := Snapshot{
		SearchID: snap.SearchID,
		Epoch:    snap.Epoch,
		Point:    PointFromModel(snap.Point),
		RadiusKm: snap.RadiusKm,
		Status:   string(snap.Status),
		Message:  snap.Message,
		Progress: Progress{Processed: snap.Progress.Processed, Total: snap.Progress.Total},
		Results:  make([]Result, 0, len(snap.Results)),
		Failures: make([]Failure, 0, len(snap.Failures)),
	}
	for _, res := range snap.Results {
		out.Results = append(out.Results, ResultFromModel(res, detail))
	}
	for _, f := range snap.Failures {
		out.Failures = append(out.Failures, Failure{
			Index:     f.Index,
			SupportID: f.SupportID,
			Kind:      string(f.Kind),
			Reason:    f.Reason,
		})
	}
	return out
}

// ResultFromModel converts one support result.
func ResultFromModel(res kb.SupportResult, detail bool) Result {
	out := Result{
		Index:      res.Index,
		Support:    supports.FromModel([]model.Support{res.Support}).Supports[0],
		DistanceKm: res.DistanceKm,
		Icon:       render.MarkerFor(res).Icon,
		Visible:    operatorNames(res.Visible),
		Masked:     operatorNames(res.Masked),
		Antennas:   make([]Antenna, 0, len(res.Antennas)),
	}
	for _, a := range res.Antennas {
		out.Antennas = append(out.Antennas, Antenna{HeightM: a.Antenna.HeightM, Visibility: a.Visibility.String()})
	}
	if detail {
		c := render.ChartFor(res)
		out.Chart = &Chart{Terrain: pairs(c.Terrain), Ray: pairs(c.Ray), Ticks: c.Ticks}
	}
	return out
}

// ToStruct converts a JSON-tagged view into a protobuf Struct.
func ToStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %T: %w", v, err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("convert %T to struct: %w", v, err)
	}
	return out, nil
}

// FromStruct decodes a protobuf Struct into a JSON-tagged view. A nil
// Struct leaves v untouched.
func FromStruct(s *structpb.Struct, v any) error {
	if s == nil {
		return nil
	}
	data, err := protojson.Marshal(s)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func operatorNames(ops []model.Operator) []string {
	out := make([]string, len(ops))
	for i, op := range ops {
		out[i] = string(op)
	}
	return out
}

func pairs(samples []model.ProfileSample) [][2]float64 {
	if samples == nil {
		return nil
	}
	out := make([][2]float64, len(samples))
	for i, s := range samples {
		out[i] = [2]float64{s.DistanceM, s.HeightM}
	}
	return out
}
