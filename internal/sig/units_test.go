package sig

import "testing"

func TestNormalizeUnitSynonyms(t *testing.T) {
	cases := map[string]string{
		"tablet":   "tablet",
		"Tablets":  "tablet",
		"tab":      "tablet",
		"TABS":     "tablet",
		"capsule":  "capsule",
		"caps":     "capsule",
		"ML":       "ml",
		"liters":   "l",
		"mg":       "mg",
		"units":    "unit",
		"puffs":    "puff",
		"tsp":      "teaspoon",
		"tbsp":     "tablespoon",
		"ounces":   "oz",
		"fl oz":    "oz",
		" drops ":  "drop",
		"gibberly": "gibberly", // unknown tokens pass through lower-cased
	}

	for raw, want := range cases {
		if got := NormalizeUnit(raw); got != want {
			t.Errorf("NormalizeUnit(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestNormalizeUnitIdempotent(t *testing.T) {
	inputs := []string{"tablets", "tabs", "TSP", "fl oz", "units", "whatever"}
	for _, in := range inputs {
		once := NormalizeUnit(in)
		twice := NormalizeUnit(once)
		if once != twice {
			t.Errorf("NormalizeUnit not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestUnitsEquivalent(t *testing.T) {
	if !UnitsEquivalent("tabs", "TABLET") {
		t.Error("tabs and TABLET should be equivalent")
	}
	if !UnitsEquivalent("tsp", "teaspoons") {
		t.Error("tsp and teaspoons should be equivalent")
	}
	if UnitsEquivalent("tablet", "capsule") {
		t.Error("tablet and capsule should not be equivalent")
	}
}

func TestMlFactor(t *testing.T) {
	cases := map[string]float64{
		"teaspoon":   5,
		"tsp":        5,
		"tablespoon": 15,
		"cup":        240,
		"oz":         30,
		"ml":         1,
		"l":          1000,
	}
	for unit, want := range cases {
		got, ok := MlFactor(unit)
		if !ok {
			t.Errorf("MlFactor(%q): expected a conversion", unit)
			continue
		}
		if got != want {
			t.Errorf("MlFactor(%q) = %v, want %v", unit, got, want)
		}
	}

	if _, ok := MlFactor("tablet"); ok {
		t.Error("tablet should have no volume conversion")
	}
}

func TestIsVolumeUnit(t *testing.T) {
	if !IsVolumeUnit("tbsp") {
		t.Error("tbsp is a volume unit")
	}
	if IsVolumeUnit("capsule") {
		t.Error("capsule is not a volume unit")
	}
}
