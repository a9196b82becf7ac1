package quantity

import (
	"testing"

	"github.com/verdantrx/dispense-engine/internal/sig"
)

func completeSig(dose float64, unit string, freq float64) *sig.NormalizedSig {
	return &sig.NormalizedSig{
		Dose:            &dose,
		DoseUnit:        unit,
		FrequencyPerDay: &freq,
	}
}

func TestCalculateBasic(t *testing.T) {
	// 1 tablet twice daily for 30 days
	q := Calculate(completeSig(1, "tablet", 2), 30)
	if q == nil {
		t.Fatal("expected a quantity")
	}
	if q.Value != 60 {
		t.Errorf("value = %v, want 60", q.Value)
	}
	if q.Unit != "tablet" {
		t.Errorf("unit = %q, want tablet", q.Unit)
	}
}

func TestCalculateNullPropagation(t *testing.T) {
	if q := Calculate(nil, 30); q != nil {
		t.Errorf("nil sig should yield nil, got %+v", q)
	}

	dose := 1.0
	partial := &sig.NormalizedSig{Dose: &dose, DoseUnit: "tablet"}
	if q := Calculate(partial, 30); q != nil {
		t.Errorf("missing frequency should yield nil, got %+v", q)
	}

	if q := Calculate(completeSig(1, "tablet", 2), 0); q != nil {
		t.Errorf("zero days supply should yield nil, got %+v", q)
	}
	if q := Calculate(completeSig(1, "tablet", 2), -5); q != nil {
		t.Errorf("negative days supply should yield nil, got %+v", q)
	}
}

func TestCalculateMonotonicInDaysSupply(t *testing.T) {
	s := completeSig(2, "capsule", 3)
	prev := 0.0
	for _, days := range []float64{1, 7, 14, 30, 90} {
		q := Calculate(s, days)
		if q == nil {
			t.Fatalf("days=%v: expected quantity", days)
		}
		if q.Value <= prev {
			t.Errorf("days=%v: value %v not greater than %v", days, q.Value, prev)
		}
		prev = q.Value
	}
}

func TestCalculateLiquidConversion(t *testing.T) {
	// 1 teaspoon twice daily for 10 days = 5 ml x 2 x 10 = 100 ml
	s := completeSig(1, "teaspoon", 2)
	s.DosageForm = sig.FormLiquid

	q := Calculate(s, 10)
	if q == nil {
		t.Fatal("expected a quantity")
	}
	if q.Value != 100 {
		t.Errorf("value = %v, want 100", q.Value)
	}
	if q.Unit != "ml" {
		t.Errorf("unit = %q, want ml", q.Unit)
	}
}

func TestCalculateLiquidMlStaysMl(t *testing.T) {
	s := completeSig(5, "ml", 2)
	s.DosageForm = sig.FormLiquid

	q := Calculate(s, 10)
	if q == nil {
		t.Fatal("expected a quantity")
	}
	if q.Value != 100 || q.Unit != "ml" {
		t.Errorf("got %v %s, want 100 ml", q.Value, q.Unit)
	}
}

func TestCalculateInsulinUnit(t *testing.T) {
	s := completeSig(10, "unit", 2)
	s.DosageForm = sig.FormInsulin

	q := Calculate(s, 30)
	if q == nil {
		t.Fatal("expected a quantity")
	}
	if q.Value != 600 || q.Unit != "unit" {
		t.Errorf("got %v %s, want 600 unit", q.Value, q.Unit)
	}
}

func TestCalculateInhalerPassthrough(t *testing.T) {
	s := completeSig(2, "puffs", 2)
	s.DosageForm = sig.FormInhaler

	q := Calculate(s, 30)
	if q == nil {
		t.Fatal("expected a quantity")
	}
	if q.Value != 120 {
		t.Errorf("value = %v, want 120", q.Value)
	}
	if q.Unit != "puff" {
		t.Errorf("unit = %q, want puff", q.Unit)
	}
}
