package core

import (
	"sort"

	"github.com/signalsfoundry/avue/model"
)

// OperatorSet is an unordered set of operators.
type OperatorSet map[model.Operator]struct{}

// NewOperatorSet builds a set from the given operators.
func NewOperatorSet(ops ...model.Operator) OperatorSet {
	s := make(OperatorSet, len(ops))
	for _, op := range ops {
		s.Add(op)
	}
	return s
}

func (s OperatorSet) Add(op model.Operator)    { s[op] = struct{}{} }
func (s OperatorSet) Remove(op model.Operator) { delete(s, op) }
func (s OperatorSet) Len() int                 { return len(s) }

// Has reports whether op is in the set.
func (s OperatorSet) Has(op model.Operator) bool {
	_, ok := s[op]
	return ok
}

// Sorted returns the operators in lexical order.
func (s OperatorSet) Sorted() []model.Operator {
	out := make([]model.Operator, 0, len(s))
	for op := range s {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Equal reports whether both sets hold the same operators.
func (s OperatorSet) Equal(other OperatorSet) bool {
	if len(s) != len(other) {
		return false
	}
	for op := range s {
		if !other.Has(op) {
			return false
		}
	}
	return true
}

// AntennaVisibility pairs an antenna with its evaluated visibility.
type AntennaVisibility struct {
	Antenna    model.Antenna
	Visibility model.Visibility
}

// Coverage groups a support's operators by line-of-sight outcome.
type Coverage struct {
	Visible OperatorSet
	Masked  OperatorSet
}

// VisibleOverall reports whether at least one operator is visible.
func (c Coverage) VisibleOverall() bool {
	return c.Visible.Len() > 0
}

// Aggregate rolls per-antenna visibility up to per-operator sets, walking
// antennas in the given order.
//
// An operator carried by any visible antenna is visible, and a later
// visible antenna promotes an operator out of Masked. A masked antenna only
// adds operators not already visible. The final sets do not depend on the
// walk order. An operator that is masked on one antenna and absent from
// every visible antenna stays masked.
func Aggregate(antennas []AntennaVisibility) (Coverage, error) {
	cov := Coverage{Visible: OperatorSet{}, Masked: OperatorSet{}}
	for i, av := range antennas {
		switch av.Visibility {
		case model.VisibilityVisible:
			for _, op := range av.Antenna.Operators() {
				cov.Visible.Add(op)
				cov.Masked.Remove(op)
			}
		case model.VisibilityMasked:
			for _, op := range av.Antenna.Operators() {
				if !cov.Visible.Has(op) {
					cov.Masked.Add(op)
				}
			}
		default:
			return Coverage{}, invalidInput("antenna %d has unresolved visibility", i)
		}
	}
	return cov, nil
}
