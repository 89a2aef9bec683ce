// Package supports provides the relay supports a search evaluates, either
// from the HTTP supports backend or from a local catalog file.
package supports

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/signalsfoundry/avue/model"
)

// ErrUpstream marks failures of the supports backend.
var ErrUpstream = errors.New("supports backend failure")

// Source returns the supports located around center. Implementations may
// return supports outside the radius; callers apply the radius filter.
type Source interface {
	Supports(ctx context.Context, center model.Coordinate, radiusKm float64) ([]model.Support, error)
}

// Document is the wire form shared by the backend and catalog files:
//
//	{"supports":[{"supId":1,"lat":45.1,"lon":5.7,"antennes":[
//	  {"haut":32,"aer_ids":[{"aer_id":7,"azimut":120,"operators":["SFR"]}]}]}]}
//
// A missing or empty azimut denotes omnidirectional equipment.
type Document struct {
	Supports []SupportDoc `json:"supports" yaml:"supports"`
}

type SupportDoc struct {
	ID       FlexID       `json:"supId" yaml:"supId"`
	Lat      float64      `json:"lat" yaml:"lat"`
	Lon      float64      `json:"lon" yaml:"lon"`
	Antennas []AntennaDoc `json:"antennes" yaml:"antennes"`
}

type AntennaDoc struct {
	HeightM   float64        `json:"haut" yaml:"haut"`
	Equipment []EquipmentDoc `json:"aer_ids" yaml:"aer_ids"`
}

type EquipmentDoc struct {
	ID        FlexID   `json:"aer_id" yaml:"aer_id"`
	Azimuth   *float64 `json:"azimut,omitempty" yaml:"azimut,omitempty"`
	Operators []string `json:"operators" yaml:"operators"`
}

// FlexID is an identifier that decodes from both JSON numbers and strings.
type FlexID string

func (id *FlexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("identifier must be a string or number: %w", err)
	}
	*id = FlexID(n.String())
	return nil
}

// Decode parses a JSON document.
func Decode(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Model converts the document into domain supports. Supports with an
// empty identifier are rejected.
func (d Document) Model() ([]model.Support, error) {
	out := make([]model.Support, 0, len(d.Supports))
	for i, s := range d.Supports {
		id := strings.TrimSpace(string(s.ID))
		if id == "" {
			return nil, fmt.Errorf("support #%d has no supId", i)
		}
		sup := model.Support{
			ID:       id,
			Location: model.Coordinate{Lat: s.Lat, Lon: s.Lon},
			Antennas: make([]model.Antenna, 0, len(s.Antennas)),
		}
		for _, a := range s.Antennas {
			ant := model.Antenna{HeightM: a.HeightM, Equipment: make([]model.Equipment, 0, len(a.Equipment))}
			for _, e := range a.Equipment {
				bearing := model.OmnidirectionalBearing
				if e.Azimuth != nil && *e.Azimuth >= 0 {
					bearing = *e.Azimuth
				}
				ops := make([]model.Operator, 0, len(e.Operators))
				for _, op := range e.Operators {
					ops = append(ops, model.Operator(op))
				}
				ant.Equipment = append(ant.Equipment, model.Equipment{
					ID:         string(e.ID),
					BearingDeg: bearing,
					Operators:  ops,
				})
			}
			sup.Antennas = append(sup.Antennas, ant)
		}
		out = append(out, sup)
	}
	return out, nil
}

// FromModel builds the wire document for supports.
func FromModel(sups []model.Support) Document {
	doc := Document{Supports: make([]SupportDoc, 0, len(sups))}
	for _, s := range sups {
		sd := SupportDoc{ID: FlexID(s.ID), Lat: s.Location.Lat, Lon: s.Location.Lon}
		for _, a := range s.Antennas {
			ad := AntennaDoc{HeightM: a.HeightM}
			for _, e := range a.Equipment {
				ed := EquipmentDoc{ID: FlexID(e.ID)}
				if !e.Omnidirectional() {
					b := e.BearingDeg
					ed.Azimuth = &b
				}
				for _, op := range e.Operators {
					ed.Operators = append(ed.Operators, string(op))
				}
				ad.Equipment = append(ad.Equipment, ed)
			}
			sd.Antennas = append(sd.Antennas, ad)
		}
		doc.Supports = append(doc.Supports, sd)
	}
	return doc
}
