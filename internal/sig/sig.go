package sig

import (
	"fmt"
	"strings"
)

// DosageForm classifies prescriptions whose quantity math differs from plain
// countable doses.
type DosageForm string

const (
	FormLiquid  DosageForm = "liquid"
	FormInsulin DosageForm = "insulin"
	FormInhaler DosageForm = "inhaler"
)

// NormalizedSig is the parsed, optionally enriched prescription instruction.
// Any subset of fields may be absent after a partial parse: numeric fields
// are nil pointers and string fields are empty when they were not extracted.
// An absent field is never represented by zero.
type NormalizedSig struct {
	// Enrichment fields, filled by the name-resolution collaborator.
	RxCUI    string `json:"rxcui,omitempty"`
	Name     string `json:"name,omitempty"`
	Strength string `json:"strength,omitempty"`
	Form     string `json:"form,omitempty"`

	Dose            *float64   `json:"dose,omitempty"`
	DoseUnit        string     `json:"dose_unit,omitempty"`
	FrequencyPerDay *float64   `json:"frequency_per_day,omitempty"`
	Route           string     `json:"route,omitempty"`
	DosageForm      DosageForm `json:"dosage_form,omitempty"`
}

// IsComplete reports whether dose, dose unit and frequency were all
// extracted. A complete SIG is sufficient for quantity calculation.
func (s *NormalizedSig) IsComplete() bool {
	if s == nil {
		return false
	}
	return s.Dose != nil && s.DoseUnit != "" && s.FrequencyPerDay != nil
}

// MissingFields lists the quantity-relevant fields that could not be parsed,
// in a fixed order.
func (s *NormalizedSig) MissingFields() []string {
	var missing []string
	if s == nil || s.Dose == nil {
		missing = append(missing, "dose")
	}
	if s == nil || s.DoseUnit == "" {
		missing = append(missing, "dose unit")
	}
	if s == nil || s.FrequencyPerDay == nil {
		missing = append(missing, "frequency")
	}
	return missing
}

// PartialParseWarning returns a human-readable message naming the missing
// fields, or the empty string when the SIG parsed completely.
func (s *NormalizedSig) PartialParseWarning() string {
	missing := s.MissingFields()
	if len(missing) == 0 {
		return ""
	}
	return fmt.Sprintf("could not parse %s from instructions", strings.Join(missing, ", "))
}

// Enrich fills in resolver-provided fields. Fields already populated by the
// parse are never overwritten.
func (s *NormalizedSig) Enrich(rxcui, name, strength, form string) {
	if s.RxCUI == "" {
		s.RxCUI = rxcui
	}
	if s.Name == "" {
		s.Name = name
	}
	if s.Strength == "" {
		s.Strength = strength
	}
	if s.Form == "" {
		s.Form = form
	}
}

// Clone returns a deep copy. Pointer fields are duplicated so the copy can
// be mutated independently.
func (s *NormalizedSig) Clone() *NormalizedSig {
	if s == nil {
		return nil
	}
	out := *s
	if s.Dose != nil {
		d := *s.Dose
		out.Dose = &d
	}
	if s.FrequencyPerDay != nil {
		f := *s.FrequencyPerDay
		out.FrequencyPerDay = &f
	}
	return &out
}
