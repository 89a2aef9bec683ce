package core

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/signalsfoundry/avue/model"
)

func antennaWith(height float64, ops ...[]model.Operator) model.Antenna {
	a := model.Antenna{HeightM: height}
	for i, eq := range ops {
		a.Equipment = append(a.Equipment, model.Equipment{ID: fmt.Sprintf("aer-%d", i), BearingDeg: float64(i * 120), Operators: eq})
	}
	return a
}

func TestAggregate_VisibleAntennaPromotesMaskedOperator(t *testing.T) {
	masked := antennaWith(20, []model.Operator{OperatorOrange, OperatorSFR})
	visible := antennaWith(40, []model.Operator{OperatorOrange})

	cov, err := Aggregate([]AntennaVisibility{
		{Antenna: masked, Visibility: model.VisibilityMasked},
		{Antenna: visible, Visibility: model.VisibilityVisible},
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if !cov.Visible.Equal(NewOperatorSet(OperatorOrange)) {
		t.Fatalf("Visible = %v, want [ORANGE]", cov.Visible.Sorted())
	}
	if !cov.Masked.Equal(NewOperatorSet(OperatorSFR)) {
		t.Fatalf("Masked = %v, want [SFR]", cov.Masked.Sorted())
	}
	if !cov.VisibleOverall() {
		t.Fatalf("VisibleOverall() = false, want true")
	}
}

func TestAggregate_MaskedAntennaNeverDemotes(t *testing.T) {
	visible := antennaWith(40, []model.Operator{OperatorFree}, []model.Operator{OperatorBouygues})
	masked := antennaWith(20, []model.Operator{OperatorFree, OperatorBouygues})

	cov, err := Aggregate([]AntennaVisibility{
		{Antenna: visible, Visibility: model.VisibilityVisible},
		{Antenna: masked, Visibility: model.VisibilityMasked},
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if !cov.Visible.Equal(NewOperatorSet(OperatorFree, OperatorBouygues)) {
		t.Fatalf("Visible = %v", cov.Visible.Sorted())
	}
	if cov.Masked.Len() != 0 {
		t.Fatalf("Masked = %v, want empty", cov.Masked.Sorted())
	}
}

func TestAggregate_AllMasked(t *testing.T) {
	cov, err := Aggregate([]AntennaVisibility{
		{Antenna: antennaWith(20, []model.Operator{OperatorSFR}), Visibility: model.VisibilityMasked},
	})
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if cov.VisibleOverall() {
		t.Fatalf("VisibleOverall() = true, want false")
	}
	if !cov.Masked.Equal(NewOperatorSet(OperatorSFR)) {
		t.Fatalf("Masked = %v, want [SFR]", cov.Masked.Sorted())
	}
}

func TestAggregate_UnknownVisibilityIsRejected(t *testing.T) {
	_, err := Aggregate([]AntennaVisibility{{Antenna: antennaWith(10, []model.Operator{OperatorSFR})}})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

// permutations calls fn with every ordering of xs (Heap's algorithm).
func permutations(xs []AntennaVisibility, fn func([]AntennaVisibility)) {
	a := append([]AntennaVisibility(nil), xs...)
	c := make([]int, len(a))
	fn(a)
	for i := 0; i < len(a); {
		if c[i] < i {
			if i%2 == 0 {
				a[0], a[i] = a[i], a[0]
			} else {
				a[c[i]], a[i] = a[i], a[c[i]]
			}
			fn(a)
			c[i]++
			i = 0
		} else {
			c[i] = 0
			i++
		}
	}
}

func TestAggregate_OrderIndependent(t *testing.T) {
	ops := []model.Operator{OperatorBouygues, OperatorFree, OperatorOrange, OperatorSFR, "TOWERCO"}
	r := rand.New(rand.NewSource(2024))

	for round := 0; round < 100; round++ {
		n := 1 + r.Intn(5)
		var antennas []AntennaVisibility
		for i := 0; i < n; i++ {
			var equipment [][]model.Operator
			for e := 0; e < 1+r.Intn(3); e++ {
				var eqOps []model.Operator
				for _, op := range ops {
					if r.Intn(3) == 0 {
						eqOps = append(eqOps, op)
					}
				}
				equipment = append(equipment, eqOps)
			}
			vis := model.VisibilityMasked
			if r.Intn(2) == 0 {
				vis = model.VisibilityVisible
			}
			antennas = append(antennas, AntennaVisibility{Antenna: antennaWith(float64(10*i), equipment...), Visibility: vis})
		}

		want, err := Aggregate(antennas)
		if err != nil {
			t.Fatalf("Aggregate: %v", err)
		}
		for _, av := range antennas {
			if av.Visibility != model.VisibilityVisible {
				continue
			}
			for _, op := range av.Antenna.Operators() {
				if !want.Visible.Has(op) {
					t.Fatalf("round %d: %s visible on an antenna but not in Visible", round, op)
				}
			}
		}

		permutations(antennas, func(order []AntennaVisibility) {
			got, err := Aggregate(order)
			if err != nil {
				t.Fatalf("Aggregate: %v", err)
			}
			if !got.Visible.Equal(want.Visible) || !got.Masked.Equal(want.Masked) {
				t.Fatalf("round %d: order-dependent result: visible %v/%v masked %v/%v",
					round, got.Visible.Sorted(), want.Visible.Sorted(), got.Masked.Sorted(), want.Masked.Sorted())
			}
		})
	}
}

func TestOperatorSet_Sorted(t *testing.T) {
	s := NewOperatorSet(OperatorSFR, OperatorBouygues, OperatorOrange, OperatorSFR)
	if got := fmt.Sprint(s.Sorted()); got != "[BOUYGUES TELECOM ORANGE SFR]" {
		t.Fatalf("Sorted() = %s", got)
	}
}
