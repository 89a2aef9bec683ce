package supports

import (
	"context"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/signalsfoundry/avue/core"
	"github.com/signalsfoundry/avue/model"
	"gopkg.in/yaml.v3"
)

// Catalog is an in-memory support source, typically loaded from a YAML or
// JSON export of the backend document.
type Catalog struct {
	supports []model.Support
	points   []orb.Point
}

// NewCatalog indexes sups. Supports with invalid locations are rejected.
func NewCatalog(sups []model.Support) (*Catalog, error) {
	c := &Catalog{
		supports: make([]model.Support, 0, len(sups)),
		points:   make([]orb.Point, 0, len(sups)),
	}
	seen := make(map[string]struct{}, len(sups))
	for _, s := range sups {
		if err := s.Location.Validate(); err != nil {
			return nil, fmt.Errorf("support %s: %w", s.ID, err)
		}
		if _, dup := seen[s.ID]; dup {
			return nil, fmt.Errorf("support %s: duplicate id", s.ID)
		}
		seen[s.ID] = struct{}{}
		c.supports = append(c.supports, s)
		c.points = append(c.points, orb.Point{s.Location.Lon, s.Location.Lat})
	}
	return c, nil
}

// LoadCatalog reads a catalog file. YAML being a superset of JSON, backend
// dumps load unchanged.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	sups, err := doc.Model()
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return NewCatalog(sups)
}

// Len returns the number of supports in the catalog.
func (c *Catalog) Len() int { return len(c.supports) }

// Supports returns the catalog entries inside the bounding box of the
// search circle, in catalog order.
func (c *Catalog) Supports(ctx context.Context, center model.Coordinate, radiusKm float64) ([]model.Support, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := center.Validate(); err != nil {
		return nil, err
	}
	if radiusKm <= 0 {
		return nil, fmt.Errorf("radius must be positive, got %v", radiusKm)
	}

	bounds := searchBounds(core.BoundingBox(center, radiusKm))
	var out []model.Support
	for i, p := range c.points {
		for _, b := range bounds {
			if b.Contains(p) {
				out = append(out, c.supports[i])
				break
			}
		}
	}
	return out, nil
}

// searchBounds converts b to orb bounds, split in two when b crosses the
// antimeridian.
func searchBounds(b core.Bounds) []orb.Bound {
	south, north := b.SouthEast.Lat, b.NorthWest.Lat
	if b.CrossesAntimeridian() {
		return []orb.Bound{
			{Min: orb.Point{b.NorthWest.Lon, south}, Max: orb.Point{180, north}},
			{Min: orb.Point{-180, south}, Max: orb.Point{b.SouthEast.Lon, north}},
		}
	}
	return []orb.Bound{{
		Min: orb.Point{b.NorthWest.Lon, south},
		Max: orb.Point{b.SouthEast.Lon, north},
	}}
}
