package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/verdantrx/dispense-engine/internal/domain/calculation"
	"github.com/verdantrx/dispense-engine/internal/ndc"
	"github.com/verdantrx/dispense-engine/internal/sig"
	"github.com/verdantrx/dispense-engine/internal/warnings"
)

type stubResolver struct {
	res   *calculation.Resolution
	err   error
	calls int
}

func (s *stubResolver) Resolve(ctx context.Context, drugToken string) (*calculation.Resolution, error) {
	s.calls++
	return s.res, s.err
}

type stubSearcher struct {
	raws      []RawPackage
	err       error
	lastQuery PackageQuery
}

func (s *stubSearcher) Search(ctx context.Context, query PackageQuery, limit int) ([]RawPackage, error) {
	s.lastQuery = query
	return s.raws, s.err
}

type stubRanker struct {
	ranking *Ranking
	err     error
}

func (s *stubRanker) Rank(ctx context.Context, candidates []ndc.Candidate, ns *sig.NormalizedSig, req calculation.Request) (*Ranking, error) {
	return s.ranking, s.err
}

func tabletPackage(rawNDC, desc string) RawPackage {
	return RawPackage{
		NDC:                rawNDC,
		ProductName:        "Lisinopril 10 MG Oral Tablet",
		PackageDescription: desc,
		Strength:           "10 mg",
		Unit:               "tablet",
	}
}

func hasWarning(calc *calculation.Calculation, wt warnings.Type) bool {
	for _, w := range calc.Warnings {
		if w.Type == wt {
			return true
		}
	}
	return false
}

func TestRunHappyPath(t *testing.T) {
	resolver := &stubResolver{res: &calculation.Resolution{
		RxCUI:    "314076",
		Name:     "lisinopril 10 MG Oral Tablet",
		Strength: "10 mg",
		Form:     "tablet",
	}}
	searcher := &stubSearcher{raws: []RawPackage{
		tabletPackage("0071015523", "60 TABLET in 1 BOTTLE"),
		tabletPackage("0071015530", "100 TABLET in 1 BOTTLE"),
	}}

	eng := New(nil, WithResolver(resolver), WithSearcher(searcher))
	calc := eng.Run(context.Background(), calculation.Request{
		DrugToken:  "lisinopril",
		SigText:    "Take 1 tablet by mouth twice daily",
		DaysSupply: 30,
	})

	if !calc.IsComplete() {
		t.Fatal("expected a complete calculation")
	}
	if calc.Quantity == nil || calc.Quantity.Value != 60 {
		t.Errorf("quantity = %+v, want 60", calc.Quantity)
	}
	if calc.Selected == nil || calc.Selected.NDC != "00071-0155-23" {
		t.Errorf("selected = %+v, want the exact-fit 60-count", calc.Selected)
	}
	if len(calc.Ranked) != 2 {
		t.Errorf("ranked %d candidates, want 2", len(calc.Ranked))
	}
	if calc.Sig.RxCUI != "314076" {
		t.Errorf("sig not enriched with the resolved identifier: %+v", calc.Sig)
	}
	if searcher.lastQuery.RxCUI != "314076" {
		t.Errorf("search query missing the resolved rxcui: %+v", searcher.lastQuery)
	}
	if len(calc.Warnings) != 0 {
		t.Errorf("unexpected warnings: %+v", calc.Warnings)
	}
}

func TestRunResolverFailureContinues(t *testing.T) {
	resolver := &stubResolver{err: errors.New("rxnav down")}
	searcher := &stubSearcher{raws: []RawPackage{
		tabletPackage("0071015523", "60 TABLET in 1 BOTTLE"),
	}}

	eng := New(nil, WithResolver(resolver), WithSearcher(searcher))
	calc := eng.Run(context.Background(), calculation.Request{
		DrugToken:  "lisinopril",
		SigText:    "1 tablet bid",
		DaysSupply: 30,
	})

	if !calc.IsComplete() {
		t.Fatal("resolver failure must not stop the pipeline")
	}
	if !hasWarning(calc, warnings.TypeUnresolvedRxCUI) {
		t.Error("expected an unresolved-rxcui warning")
	}
	// Without a resolution the search falls back to the raw drug token.
	if searcher.lastQuery.ProductName != "lisinopril" {
		t.Errorf("query product name = %q, want the raw token", searcher.lastQuery.ProductName)
	}
	if calc.Quantity == nil || calc.Quantity.Value != 60 {
		t.Errorf("quantity = %+v, want 60 despite the failed resolution", calc.Quantity)
	}
}

func TestRunNoCandidates(t *testing.T) {
	eng := New(nil, WithSearcher(&stubSearcher{}))
	calc := eng.Run(context.Background(), calculation.Request{
		DrugToken:  "obscuremycin",
		SigText:    "1 tablet daily",
		DaysSupply: 30,
	})

	if !hasWarning(calc, warnings.TypeMissingNDC) {
		t.Error("expected a missing-ndc warning")
	}
	if calc.Selected != nil {
		t.Errorf("selected = %+v, want nil without candidates", calc.Selected)
	}
	if calc.Quantity == nil || calc.Quantity.Value != 30 {
		t.Errorf("quantity = %+v, want 30 even without a package", calc.Quantity)
	}
}

func TestRunDropsMalformedNDC(t *testing.T) {
	searcher := &stubSearcher{raws: []RawPackage{
		tabletPackage("not-an-ndc", "30 TABLET in 1 BOTTLE"),
		tabletPackage("0071015523", "60 TABLET in 1 BOTTLE"),
	}}

	eng := New(nil, WithSearcher(searcher))
	calc := eng.Run(context.Background(), calculation.Request{
		DrugToken: "lisinopril", SigText: "1 tablet bid", DaysSupply: 30,
	})

	if len(calc.Candidates) != 1 {
		t.Fatalf("candidates = %d, want 1 after dropping the malformed NDC", len(calc.Candidates))
	}
	if calc.Candidates[0].NDC != "00071-0155-23" {
		t.Errorf("kept candidate = %s, want the normalized valid one", calc.Candidates[0].NDC)
	}
}

func TestRunInactiveSelection(t *testing.T) {
	raw := tabletPackage("0071015523", "60 TABLET in 1 BOTTLE")
	raw.EndDate = "2020-01-01"
	eng := New(nil, WithSearcher(&stubSearcher{raws: []RawPackage{raw}}))

	calc := eng.Run(context.Background(), calculation.Request{
		DrugToken: "lisinopril", SigText: "1 tablet bid", DaysSupply: 30,
	})

	if calc.Selected == nil {
		t.Fatal("sole candidate should still be selected")
	}
	if calc.Selected.Active {
		t.Error("candidate past its marketing end date should be inactive")
	}
	if !hasWarning(calc, warnings.TypeInactiveNDC) {
		t.Error("expected an inactive-ndc warning")
	}
}

func TestRunStrengthMismatchWarning(t *testing.T) {
	resolver := &stubResolver{res: &calculation.Resolution{
		RxCUI: "314076", Name: "lisinopril", Strength: "10 mg", Form: "tablet",
	}}
	raw := tabletPackage("0071015523", "60 TABLET in 1 BOTTLE")
	raw.Strength = "20 mg"
	eng := New(nil, WithResolver(resolver), WithSearcher(&stubSearcher{raws: []RawPackage{raw}}))

	calc := eng.Run(context.Background(), calculation.Request{
		DrugToken: "lisinopril", SigText: "1 tablet bid", DaysSupply: 30,
	})

	if !hasWarning(calc, warnings.TypeStrengthMismatch) {
		t.Errorf("expected a strength-mismatch warning, got %+v", calc.Warnings)
	}
}

func TestRankerFailureKeepsDeterministicOrder(t *testing.T) {
	searcher := &stubSearcher{raws: []RawPackage{
		tabletPackage("0071015523", "60 TABLET in 1 BOTTLE"),
		tabletPackage("0071015530", "500 TABLET in 1 BOTTLE"),
	}}
	eng := New(nil,
		WithSearcher(searcher),
		WithRanker(&stubRanker{err: errors.New("quota exhausted")}),
	)

	calc := eng.Run(context.Background(), calculation.Request{
		DrugToken: "lisinopril", SigText: "1 tablet bid", DaysSupply: 30,
	})

	if !calc.IsComplete() {
		t.Fatal("ranker failure must not stop the pipeline")
	}
	if len(calc.Ranked) != 2 || calc.Ranked[0].NDC != "00071-0155-23" {
		t.Errorf("ranked order disturbed by a failed ranker: %+v", calc.Ranked)
	}
	if calc.Rationale != "" {
		t.Errorf("rationale = %q, want empty without an accepted ranking", calc.Rationale)
	}
}

func TestRankerReorders(t *testing.T) {
	searcher := &stubSearcher{raws: []RawPackage{
		tabletPackage("0071015523", "60 TABLET in 1 BOTTLE"),
		tabletPackage("0071015530", "500 TABLET in 1 BOTTLE"),
	}}
	eng := New(nil,
		WithSearcher(searcher),
		WithRanker(&stubRanker{ranking: &Ranking{
			RankedNDCs: []string{"00071-0155-30", "00071-0155-23"},
			Rationale:  "larger package reduces refill trips",
		}}),
	)

	calc := eng.Run(context.Background(), calculation.Request{
		DrugToken: "lisinopril", SigText: "1 tablet bid", DaysSupply: 30,
	})

	if calc.Ranked[0].NDC != "00071-0155-30" {
		t.Errorf("ranked[0] = %s, want the ranker's choice first", calc.Ranked[0].NDC)
	}
	if calc.Rationale == "" {
		t.Error("accepted ranking should carry its rationale")
	}
}

func TestResumeSkipsCompletedStages(t *testing.T) {
	resolver := &stubResolver{res: &calculation.Resolution{RxCUI: "314076"}}
	eng := New(nil, WithResolver(resolver))

	calc := calculation.New("resume-1", calculation.Request{
		DrugToken: "lisinopril", SigText: "1 tablet bid", DaysSupply: 30,
	})
	calc.MarkCompleted(calculation.StageParsed)
	calc.MarkCompleted(calculation.StageResolved)

	eng.Resume(context.Background(), calc)

	if resolver.calls != 0 {
		t.Errorf("resolver called %d times on a resolved record, want 0", resolver.calls)
	}
	if !calc.IsComplete() {
		t.Error("resume should finish the remaining stages")
	}
}

func TestRunStageOneAtATime(t *testing.T) {
	eng := New(nil)
	calc := calculation.New("step-1", calculation.Request{SigText: "1 tablet daily", DaysSupply: 7})

	stage, ok := eng.RunStage(context.Background(), calc)
	if !ok || stage != calculation.StageParsed {
		t.Fatalf("first stage = %s (%v), want parsed", stage, ok)
	}
	if calc.Sig == nil {
		t.Error("parse stage should populate the sig")
	}
	if calc.IsComplete() {
		t.Error("one stage must not complete the record")
	}
}

func TestApplyRanking(t *testing.T) {
	candidates := []ndc.Candidate{
		{NDC: "11111-1111-11"},
		{NDC: "22222-2222-22"},
		{NDC: "33333-3333-33"},
	}

	// Reorder, with one candidate omitted: the omission is appended in
	// original order.
	out := applyRanking(candidates, []string{"33333-3333-33", "11111-1111-11"})
	want := []string{"33333-3333-33", "11111-1111-11", "22222-2222-22"}
	for i, w := range want {
		if out[i].NDC != w {
			t.Fatalf("position %d = %s, want %s", i, out[i].NDC, w)
		}
	}

	// Unknown and duplicate codes are ignored.
	out = applyRanking(candidates, []string{"99999-9999-99", "22222-2222-22", "22222-2222-22"})
	if len(out) != 3 || out[0].NDC != "22222-2222-22" {
		t.Errorf("unexpected order: %+v", out)
	}

	// A ranking naming no known NDC is discarded entirely.
	if out := applyRanking(candidates, []string{"99999-9999-99"}); out != nil {
		t.Errorf("all-unknown ranking should be discarded, got %+v", out)
	}
}

func TestDeriveActive(t *testing.T) {
	today := time.Date(2026, time.August, 24, 12, 0, 0, 0, time.UTC)

	cases := []struct {
		endDate string
		want    bool
	}{
		{"", true},
		{"2030-01-01", true},
		{"20300101", true},
		{"2020-01-01", false},
		{"garbage", true}, // unparseable dates default to active
	}

	for _, tc := range cases {
		if got := deriveActive(tc.endDate, today); got != tc.want {
			t.Errorf("deriveActive(%q) = %v, want %v", tc.endDate, got, tc.want)
		}
	}
}
