// Package quantity derives dispense quantities from a parsed SIG and a
// days'-supply count, parses NDC package descriptions, and flags
// overfill/underfill against package sizes. All functions are pure.
package quantity

import (
	"math"

	"github.com/verdantrx/dispense-engine/internal/sig"
)

// Result is a computed dispense quantity. A nil Result means "insufficient
// data to compute", never a quantity of zero.
type Result struct {
	Value float64 `json:"quantity_value"`
	Unit  string  `json:"quantity_unit"`
}

// Calculate computes dose × frequency × daysSupply with dosage-form
// adjustments applied first. It returns nil unless the SIG carries a finite
// positive dose, a unit and a finite positive frequency, and daysSupply is
// finite and positive. No rounding is applied; display rounding belongs to
// the caller.
func Calculate(s *sig.NormalizedSig, daysSupply float64) *Result {
	if s == nil || !s.IsComplete() {
		return nil
	}
	dose := *s.Dose
	freq := *s.FrequencyPerDay
	if !positiveFinite(dose) || !positiveFinite(freq) || !positiveFinite(daysSupply) {
		return nil
	}

	adjDose, adjUnit := adjustForForm(s, dose, s.DoseUnit)

	return &Result{
		Value: adjDose * freq * daysSupply,
		Unit:  sig.NormalizeUnit(adjUnit),
	}
}

// adjustForForm applies the dosage-form-specific dose/unit adjustment.
func adjustForForm(s *sig.NormalizedSig, dose float64, unit string) (float64, string) {
	switch s.DosageForm {
	case sig.FormInsulin:
		// Insulin is always dispensed in units regardless of how the dose
		// was phrased.
		return dose, "unit"
	case sig.FormInhaler:
		// Inhalers pass through: actuations are already counted in puffs
		// or sprays and only need synonym normalization.
		return dose, unit
	case sig.FormLiquid:
		if unit == "ml" || unit == "l" {
			return dose, unit
		}
		if factor, ok := sig.MlFactor(unit); ok {
			return dose * factor, "ml"
		}
		return dose, unit
	default:
		return dose, unit
	}
}

func positiveFinite(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
