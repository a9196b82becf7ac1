// Package ndc models FDA National Drug Code package candidates and ranks
// them against a parsed prescription with deterministic weighted scoring.
package ndc

import "strings"

// Candidate is one FDA package record, normalized from a raw directory
// search result. NDC is the unique key in 11-digit XXXXX-XXXX-XX form.
type Candidate struct {
	NDC                string   `json:"ndc"`
	LabelerName        string   `json:"labeler_name,omitempty"`
	ProductName        string   `json:"product_name"`
	PackageDescription string   `json:"package_description,omitempty"`
	Strength           string   `json:"strength,omitempty"`
	Unit               string   `json:"unit,omitempty"`
	Active             bool     `json:"active"`
	StartDate          string   `json:"start_date,omitempty"`
	EndDate            string   `json:"end_date,omitempty"`
	RxCUI              string   `json:"rxcui,omitempty"`
	MatchScore         *float64 `json:"match_score,omitempty"`
}

// NormalizeNDC converts a raw NDC string to 11-digit XXXXX-XXXX-XX form.
// Ten-digit codes are zero-padded on the left before the 5-4-2 split.
// ok is false when the input does not contain 10 or 11 digits.
func NormalizeNDC(raw string) (string, bool) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch len(digits) {
	case 10:
		digits = "0" + digits
	case 11:
	default:
		return "", false
	}
	return digits[:5] + "-" + digits[5:9] + "-" + digits[9:], true
}
