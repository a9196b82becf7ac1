// Package engine orchestrates the dispense calculation pipeline over a
// calculation record. Collaborator calls are best-effort: any failure is
// logged, substituted with a neutral value and surfaced as a warning, so the
// deterministic pipeline always produces a result.
package engine

import (
	"context"
	"time"

	"github.com/verdantrx/dispense-engine/internal/domain/calculation"
	"github.com/verdantrx/dispense-engine/internal/ndc"
	"github.com/verdantrx/dispense-engine/internal/sig"
)

// NameResolver resolves a free-text drug name or NDC to a canonical
// identifier with enrichment fields. A nil resolution with nil error means
// "not found".
type NameResolver interface {
	Resolve(ctx context.Context, drugToken string) (*calculation.Resolution, error)
}

// PackageQuery narrows a package-directory search. At least one field is
// set; RxCUI takes precedence when the directory supports it.
type PackageQuery struct {
	RxCUI       string
	ProductName string
	NDC         string
}

// RawPackage is one package record as returned by the directory
// collaborator, before NDC normalization and active-status derivation.
type RawPackage struct {
	NDC                string
	LabelerName        string
	ProductName        string
	PackageDescription string
	Strength           string
	Unit               string
	StartDate          string
	EndDate            string
	RxCUI              string
}

// PackageSearcher looks up FDA package records for a drug.
type PackageSearcher interface {
	Search(ctx context.Context, query PackageQuery, limit int) ([]RawPackage, error)
}

// Ranking is an AI-assisted reordering of the candidate list.
type Ranking struct {
	RankedNDCs []string
	Rationale  string
	TopNDC     string
}

// Ranker optionally reorders candidates. Implementations are best-effort;
// the engine treats any error exactly like "not available".
type Ranker interface {
	Rank(ctx context.Context, candidates []ndc.Candidate, s *sig.NormalizedSig, req calculation.Request) (*Ranking, error)
}

// toCandidate converts a raw directory record into a scored candidate
// shape. ok is false when the NDC cannot be normalized to 11 digits.
func toCandidate(raw RawPackage, today time.Time) (ndc.Candidate, bool) {
	code, ok := ndc.NormalizeNDC(raw.NDC)
	if !ok {
		return ndc.Candidate{}, false
	}
	return ndc.Candidate{
		NDC:                code,
		LabelerName:        raw.LabelerName,
		ProductName:        raw.ProductName,
		PackageDescription: raw.PackageDescription,
		Strength:           raw.Strength,
		Unit:               raw.Unit,
		Active:             deriveActive(raw.EndDate, today),
		StartDate:          raw.StartDate,
		EndDate:            raw.EndDate,
		RxCUI:              raw.RxCUI,
	}, true
}

// deriveActive defaults to active when no expiration date is present, and
// otherwise compares the marketing end date against today.
func deriveActive(endDate string, today time.Time) bool {
	if endDate == "" {
		return true
	}
	t, err := parseDirectoryDate(endDate)
	if err != nil {
		return true
	}
	return !t.Before(today.Truncate(24 * time.Hour))
}

// parseDirectoryDate accepts the two date shapes the directories emit:
// ISO "2006-01-02" and compact "20060102".
func parseDirectoryDate(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse("20060102", s)
}
