// Package sig provides deterministic parsing of free-text prescription
// instructions (SIGs) into normalized structured form. It is pure string
// processing: no I/O, no shared state, safe for concurrent use.
package sig

import "strings"

// unitSynonyms is the single source of truth for unit normalization, shared
// by the parser, the quantity calculator and the NDC scorer. Keys are raw
// tokens, values are the canonical singular form.
var unitSynonyms = map[string]string{
	"tablet":      "tablet",
	"tablets":     "tablet",
	"tab":         "tablet",
	"tabs":        "tablet",
	"capsule":     "capsule",
	"capsules":    "capsule",
	"cap":         "capsule",
	"caps":        "capsule",
	"ml":          "ml",
	"milliliter":  "ml",
	"milliliters": "ml",
	"l":           "l",
	"liter":       "l",
	"liters":      "l",
	"mg":          "mg",
	"milligram":   "mg",
	"milligrams":  "mg",
	"g":           "g",
	"gram":        "g",
	"grams":       "g",
	"mcg":         "mcg",
	"microgram":   "mcg",
	"micrograms":  "mcg",
	"unit":        "unit",
	"units":       "unit",
	"drop":        "drop",
	"drops":       "drop",
	"puff":        "puff",
	"puffs":       "puff",
	"spray":       "spray",
	"sprays":      "spray",

	// Liquid-volume words keep their own canonical form; the quantity
	// calculator converts them to milliliters via MlFactor.
	"teaspoon":    "teaspoon",
	"teaspoons":   "teaspoon",
	"tsp":         "teaspoon",
	"tablespoon":  "tablespoon",
	"tablespoons": "tablespoon",
	"tbsp":        "tablespoon",
	"cup":         "cup",
	"cups":        "cup",
	"oz":          "oz",
	"ounce":       "oz",
	"ounces":      "oz",
	"fl oz":       "oz",
}

// mlFactors converts canonical liquid-volume units to milliliters.
var mlFactors = map[string]float64{
	"teaspoon":   5,
	"tablespoon": 15,
	"cup":        240,
	"oz":         30,
	"ml":         1,
	"l":          1000,
}

// NormalizeUnit maps a raw unit token to its canonical singular form.
// Unknown tokens are returned lower-cased and trimmed, never an error.
// The function is idempotent: NormalizeUnit(NormalizeUnit(x)) == NormalizeUnit(x).
func NormalizeUnit(raw string) string {
	u := strings.ToLower(strings.TrimSpace(raw))
	if canonical, ok := unitSynonyms[u]; ok {
		return canonical
	}
	return u
}

// UnitsEquivalent reports whether two raw unit strings normalize into the
// same synonym group ("tabs" and "TABLET" are equivalent).
func UnitsEquivalent(a, b string) bool {
	return NormalizeUnit(a) == NormalizeUnit(b)
}

// MlFactor returns the milliliters-per-unit conversion factor for a liquid
// volume unit, or ok=false when the unit has no volume conversion.
func MlFactor(unit string) (float64, bool) {
	f, ok := mlFactors[NormalizeUnit(unit)]
	return f, ok
}

// IsVolumeUnit reports whether the unit is a liquid volume measure.
func IsVolumeUnit(unit string) bool {
	_, ok := mlFactors[NormalizeUnit(unit)]
	return ok
}
