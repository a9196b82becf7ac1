package sig

import "testing"

func TestParseStandardSig(t *testing.T) {
	s := Parse("Take 1 tablet by mouth once daily")

	if s.Dose == nil || *s.Dose != 1 {
		t.Fatalf("dose = %v, want 1", s.Dose)
	}
	if s.DoseUnit != "tablet" {
		t.Errorf("dose unit = %q, want tablet", s.DoseUnit)
	}
	if s.FrequencyPerDay == nil || *s.FrequencyPerDay != 1 {
		t.Fatalf("frequency = %v, want 1", s.FrequencyPerDay)
	}
	if s.Route != "oral" {
		t.Errorf("route = %q, want oral", s.Route)
	}
	if !s.IsComplete() {
		t.Error("expected complete sig")
	}
	if msg := s.PartialParseWarning(); msg != "" {
		t.Errorf("unexpected warning %q", msg)
	}
}

func TestParseAdversarialInput(t *testing.T) {
	s := Parse("asdf qwer")

	if s.Dose != nil || s.DoseUnit != "" || s.FrequencyPerDay != nil {
		t.Errorf("expected empty result, got %+v", s)
	}
	if s.IsComplete() {
		t.Error("adversarial input should not be complete")
	}

	want := "could not parse dose, dose unit, frequency from instructions"
	if got := s.PartialParseWarning(); got != want {
		t.Errorf("warning = %q, want %q", got, want)
	}
}

func TestParseEmptyInput(t *testing.T) {
	for _, text := range []string{"", "   "} {
		s := Parse(text)
		if s == nil {
			t.Fatal("Parse must never return nil")
		}
		if s.IsComplete() {
			t.Errorf("Parse(%q) should be incomplete", text)
		}
	}
}

func TestParseFrequencies(t *testing.T) {
	cases := []struct {
		text string
		want float64
	}{
		{"take 1 tablet once daily", 1},
		{"take 1 tablet once a day", 1},
		{"take 1 tablet twice daily", 2},
		{"1 tablet bid", 2},
		{"1 tablet tid", 3},
		{"1 tablet qid", 4},
		{"1 tablet qd", 1},
		{"1 tablet q6h", 4},
		{"1 tablet q12h", 2},
		{"1 tablet every 8 hours", 3},
		{"1 tablet every 12 hours", 2},
		{"take 1 tablet 3 times per day", 3},
		{"take 1 tablet 4 times a day", 4},
		{"1 tablet every 5 hours", 5}, // round(24/5)
	}

	for _, tc := range cases {
		s := Parse(tc.text)
		if s.FrequencyPerDay == nil {
			t.Errorf("Parse(%q): frequency not extracted", tc.text)
			continue
		}
		if *s.FrequencyPerDay != tc.want {
			t.Errorf("Parse(%q): frequency = %v, want %v", tc.text, *s.FrequencyPerDay, tc.want)
		}
	}
}

func TestParsePhraseBeatsGenericPattern(t *testing.T) {
	// "every 12 hours" is in the fixed table and must not fall through to
	// the generic every-N-hours regex with a different result.
	s := Parse("take 2 tablets every 12 hours")
	if s.FrequencyPerDay == nil || *s.FrequencyPerDay != 2 {
		t.Fatalf("frequency = %v, want 2", s.FrequencyPerDay)
	}
}

func TestParseRoutes(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"take 1 tablet by mouth daily", "oral"},
		{"1 tablet po bid", "oral"},
		{"apply thin layer topical", "topical"},
		{"inject 10 units subcutaneous", "injection"},
		{"1 tablet sl as needed", "sublingual"},
		{"2 sprays nasal each nostril", "nasal"},
		{"1 drop ophthalmic each eye", "ophthalmic"},
		{"2 puffs inhalation twice daily", "inhalation"},
	}

	for _, tc := range cases {
		s := Parse(tc.text)
		if s.Route != tc.want {
			t.Errorf("Parse(%q): route = %q, want %q", tc.text, s.Route, tc.want)
		}
	}
}

func TestParseShortRouteTokenNeedsWordBoundary(t *testing.T) {
	// "topical" contains the letters "po" but must not resolve to oral.
	s := Parse("apply 1 g topical cream daily")
	if s.Route != "topical" {
		t.Errorf("route = %q, want topical", s.Route)
	}
}

func TestParseCompactDose(t *testing.T) {
	s := Parse("10mg po qd")
	if s.Dose == nil || *s.Dose != 10 {
		t.Fatalf("dose = %v, want 10", s.Dose)
	}
	if s.DoseUnit != "mg" {
		t.Errorf("dose unit = %q, want mg", s.DoseUnit)
	}
}

func TestParseLiquidForm(t *testing.T) {
	s := Parse("take 1 teaspoon by mouth twice daily")
	if s.DosageForm != FormLiquid {
		t.Errorf("dosage form = %q, want liquid", s.DosageForm)
	}
	if s.DoseUnit != "teaspoon" {
		t.Errorf("dose unit = %q, want teaspoon", s.DoseUnit)
	}
}

func TestParseInhalerForm(t *testing.T) {
	s := Parse("inhale 2 puffs twice daily")
	if s.DosageForm != FormInhaler {
		t.Errorf("dosage form = %q, want inhaler", s.DosageForm)
	}
}

func TestParseInsulinForm(t *testing.T) {
	s := Parse("inject 10 units of insulin before meals")
	if s.DosageForm != FormInsulin {
		t.Errorf("dosage form = %q, want insulin", s.DosageForm)
	}

	// Bare "units" without insulin or subcutaneous context stays unclassified.
	s = Parse("apply 2 units topical daily")
	if s.DosageForm == FormInsulin {
		t.Error("bare units dose should not classify as insulin")
	}
}

func TestParseInhalerBeatsLiquid(t *testing.T) {
	// Inhaler is checked before liquid, so an inhalation SIG with a volume
	// word still classifies as inhaler.
	s := Parse("inhale 2 puffs of 5 ml solution daily")
	if s.DosageForm != FormInhaler {
		t.Errorf("dosage form = %q, want inhaler", s.DosageForm)
	}
}

func TestParseTotality(t *testing.T) {
	// Parse never panics and never returns nil, regardless of input.
	inputs := []string{
		"",
		"!!!",
		"0 tablets never",
		"take tablets",
		"999999999999999999999999 tablets daily",
		"take 1.5.5 tablets",
		"ટેબ્લેટ દિવસમાં એકવાર",
	}
	for _, in := range inputs {
		s := Parse(in)
		if s == nil {
			t.Fatalf("Parse(%q) returned nil", in)
		}
	}
}

func TestEnrichFillOnly(t *testing.T) {
	s := Parse("take 1 tablet once daily")
	s.Strength = "20 mg"

	s.Enrich("12345", "lisinopril", "10 mg", "TAB")

	if s.RxCUI != "12345" || s.Name != "lisinopril" {
		t.Errorf("enrichment did not fill empty fields: %+v", s)
	}
	if s.Strength != "20 mg" {
		t.Errorf("enrichment overwrote strength: %q", s.Strength)
	}
}

func TestClone(t *testing.T) {
	s := Parse("take 2 tablets twice daily")
	c := s.Clone()

	*c.Dose = 99
	if *s.Dose == 99 {
		t.Error("clone shares dose pointer with original")
	}
}
