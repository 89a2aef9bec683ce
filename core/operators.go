package core

import "github.com/signalsfoundry/avue/model"

// Known operators as spelled by the support source.
const (
	OperatorBouygues model.Operator = "BOUYGUES TELECOM"
	OperatorFree     model.Operator = "FREE MOBILE"
	OperatorOrange   model.Operator = "ORANGE"
	OperatorSFR      model.Operator = "SFR"
)

// OperatorFlags is a bitset with one bit per known operator.
type OperatorFlags uint8

const (
	FlagBouygues OperatorFlags = 1 << iota
	FlagFree
	FlagOrange
	FlagSFR
)

var operatorFlags = map[model.Operator]OperatorFlags{
	OperatorBouygues: FlagBouygues,
	OperatorFree:     FlagFree,
	OperatorOrange:   FlagOrange,
	OperatorSFR:      FlagSFR,
}

// FlagOf returns the flag of a known operator.
func FlagOf(op model.Operator) (OperatorFlags, bool) {
	f, ok := operatorFlags[op]
	return f, ok
}

// FlagsOf folds the known operators of a set into a bitset. Unknown
// operators contribute nothing.
func FlagsOf(ops OperatorSet) OperatorFlags {
	var flags OperatorFlags
	for op := range ops {
		flags |= operatorFlags[op]
	}
	return flags
}

// Has reports whether every bit of f is set.
func (flags OperatorFlags) Has(f OperatorFlags) bool {
	return flags&f == f
}
