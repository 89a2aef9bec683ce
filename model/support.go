package model

// Operator is a network carrier name as provided by the support source.
// It is kept as an opaque string so unexpected carriers flow through.
type Operator string

// OmnidirectionalBearing marks equipment without a compass bearing.
const OmnidirectionalBearing = -1.0

// Equipment is one emitter of an antenna: a bearing in degrees (0-360,
// north-referenced) and the operators broadcasting through it.
type Equipment struct {
	ID         string
	BearingDeg float64
	Operators  []Operator
}

// Omnidirectional reports whether the equipment has no usable bearing.
func (e Equipment) Omnidirectional() bool {
	return e.BearingDeg < 0
}

// Antenna is a mounting height on a support and the equipment attached at
// that height.
type Antenna struct {
	HeightM   float64
	Equipment []Equipment
}

// Operators returns every operator of every equipment entry, in order,
// duplicates included.
func (a Antenna) Operators() []Operator {
	var out []Operator
	for _, eq := range a.Equipment {
		out = append(out, eq.Operators...)
	}
	return out
}

// Support is a physical structure (mast, rooftop) carrying antennas. The
// order of Antennas is the order they were attached by the source.
type Support struct {
	ID       string
	Location Coordinate
	Antennas []Antenna
}
