package calculation

import (
	"encoding/json"
	"testing"

	"github.com/verdantrx/dispense-engine/internal/warnings"
)

func warning(field string) warnings.Warning {
	return warnings.Warning{
		Type:     warnings.TypeOther,
		Severity: warnings.SeverityInfo,
		Field:    field,
		Message:  "note on " + field,
	}
}

func TestNextStageOrder(t *testing.T) {
	calc := New("test-1", Request{DrugToken: "lisinopril"})

	for _, want := range Stages() {
		got, ok := NextStage(calc)
		if !ok {
			t.Fatalf("pipeline ended early before %s", want)
		}
		if got != want {
			t.Fatalf("next stage = %s, want %s", got, want)
		}
		calc.MarkCompleted(got)
	}

	if _, ok := NextStage(calc); ok {
		t.Error("all stages complete, expected ok=false")
	}
	if !calc.IsComplete() {
		t.Error("IsComplete should be true after all stages")
	}
}

func TestNextStageSkipsCompleted(t *testing.T) {
	calc := New("test-2", Request{})
	calc.MarkCompleted(StageParsed)
	calc.MarkCompleted(StageResolved)

	got, ok := NextStage(calc)
	if !ok || got != StageCandidatesFetched {
		t.Errorf("next stage = %s (%v), want candidates_fetched", got, ok)
	}
}

func TestNullResultStillCountsAsCompleted(t *testing.T) {
	// A stage that legitimately produced no data (no candidates found) is
	// still done: resumption must not rerun it.
	calc := New("test-3", Request{})
	calc.MarkCompleted(StageParsed)
	calc.MarkCompleted(StageResolved)
	calc.MarkCompleted(StageCandidatesFetched)
	calc.Candidates = nil

	got, ok := NextStage(calc)
	if !ok || got != StageSelected {
		t.Errorf("next stage = %s (%v), want selected", got, ok)
	}
}

func TestResumptionSurvivesRoundTrip(t *testing.T) {
	calc := New("test-4", Request{DrugToken: "metformin", SigText: "1 tablet bid", DaysSupply: 30})
	calc.MarkCompleted(StageParsed)
	calc.MarkCompleted(StageResolved)

	data, err := json.Marshal(calc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	loaded := &Calculation{}
	if err := json.Unmarshal(data, loaded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	got, ok := NextStage(loaded)
	if !ok || got != StageCandidatesFetched {
		t.Errorf("after round-trip: next stage = %s (%v), want candidates_fetched", got, ok)
	}
}

func TestAddWarningsNeverRemoves(t *testing.T) {
	calc := New("test-5", Request{})
	calc.AddWarnings(warning("a"), warning("b"))
	calc.AddWarnings(warning("a"))

	if len(calc.Warnings) != 3 {
		t.Errorf("warnings = %d, want 3 (additive only)", len(calc.Warnings))
	}
	if len(calc.DedupedWarnings()) != 2 {
		t.Errorf("deduped = %d, want 2", len(calc.DedupedWarnings()))
	}
}
