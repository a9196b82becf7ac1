package sig

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Dose extraction cascade, first match wins. Each pattern is only tried when
// the previous one failed.
var (
	// "<number> <word>", e.g. "1 tablet", "2 tabs".
	doseWordRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s+([a-z]+)`)
	// No-space numeric+unit token from a fixed whitelist, e.g. "10mg".
	doseCompactRe = regexp.MustCompile(`(\d+(?:\.\d+)?)(mg|ml|g|l|units?|tabs?|caps?)\b`)
	// Leading bare number; the first word token anywhere after it becomes
	// the unit, or the unit stays unset when no word follows.
	doseLeadingRe = regexp.MustCompile(`^(\d+(?:\.\d+)?)\b`)
	wordTokenRe   = regexp.MustCompile(`[a-z]+`)
)

// Generic frequency patterns, tried only after the fixed phrase table.
var (
	timesPerDayRe = regexp.MustCompile(`(\d+)\s*(?:times|x)\s*(?:per day|a day|daily)`)
	everyNHoursRe = regexp.MustCompile(`every\s+(\d+)\s+hours?`)
)

// frequencyPhrases maps fixed phrases and abbreviations to administrations
// per day. Order matters: phrases are checked top to bottom and the first
// hit wins, before any generic numeric pattern runs.
var frequencyPhrases = []struct {
	phrase string
	perDay float64
}{
	{"once daily", 1},
	{"once a day", 1},
	{"twice daily", 2},
	{"twice a day", 2},
	{"every 2 hours", 12},
	{"every 4 hours", 6},
	{"every 6 hours", 4},
	{"every 8 hours", 3},
	{"every 12 hours", 2},
	{"q2h", 12},
	{"q4h", 6},
	{"q6h", 4},
	{"q8h", 3},
	{"q12h", 2},
	{"qid", 4},
	{"tid", 3},
	{"bid", 2},
	{"qd", 1},
}

// routeRules maps phrase hits to canonical routes, checked in order.
var routeRules = []struct {
	phrases []string
	route   string
}{
	{[]string{"by mouth", "oral", "po"}, "oral"},
	{[]string{"topical", "apply"}, "topical"},
	{[]string{"injection", "inject", "im", "iv"}, "injection"},
	{[]string{"sublingual", "sl"}, "sublingual"},
	{[]string{"nasal"}, "nasal"},
	{[]string{"ophthalmic"}, "ophthalmic"},
	{[]string{"otic"}, "otic"},
	{[]string{"rectal"}, "rectal"},
	{[]string{"vaginal"}, "vaginal"},
	{[]string{"inhalation", "inhale"}, "inhalation"},
}

// liquidHints are text fragments that mark a liquid dose even when the
// extracted unit is not a volume unit.
var liquidHints = []string{"teaspoon", "tsp", "tablespoon", "tbsp", "ounce", "fl oz"}

// Parse extracts dose, unit, frequency, route and dosage form from a
// free-text SIG. It never fails: whatever subset of fields could be
// extracted is returned, and adversarial input yields an empty result.
func Parse(text string) *NormalizedSig {
	s := &NormalizedSig{}
	raw := strings.TrimSpace(text)
	if raw == "" {
		return s
	}
	lower := strings.ToLower(raw)

	parseDose(lower, s)
	parseFrequency(lower, s)
	parseRoute(lower, s)
	detectDosageForm(lower, s)
	return s
}

func parseDose(text string, s *NormalizedSig) {
	if m := doseWordRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && v > 0 {
			s.Dose = &v
			s.DoseUnit = NormalizeUnit(m[2])
			return
		}
	}
	if m := doseCompactRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && v > 0 {
			s.Dose = &v
			s.DoseUnit = NormalizeUnit(m[2])
			return
		}
	}
	if m := doseLeadingRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil && v > 0 {
			s.Dose = &v
			rest := text[len(m[0]):]
			if word := wordTokenRe.FindString(rest); word != "" {
				s.DoseUnit = NormalizeUnit(word)
			}
			return
		}
	}
}

func parseFrequency(text string, s *NormalizedSig) {
	for _, fp := range frequencyPhrases {
		if containsToken(text, fp.phrase) {
			f := fp.perDay
			s.FrequencyPerDay = &f
			return
		}
	}
	if m := timesPerDayRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 && n <= 12 {
			f := float64(n)
			s.FrequencyPerDay = &f
			return
		}
	}
	if m := everyNHoursRe.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 && n <= 24 {
			f := math.Round(24 / float64(n))
			s.FrequencyPerDay = &f
			return
		}
	}
}

func parseRoute(text string, s *NormalizedSig) {
	for _, rule := range routeRules {
		for _, phrase := range rule.phrases {
			if containsToken(text, phrase) {
				s.Route = rule.route
				return
			}
		}
	}
}

// containsToken matches long phrases by substring containment. Two-letter
// abbreviations (po, sl, im, iv, qd) only match as standalone words so that
// "topical" is not mistaken for "po".
func containsToken(text, token string) bool {
	if len(token) > 2 {
		return strings.Contains(text, token)
	}
	idx := 0
	for {
		i := strings.Index(text[idx:], token)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(token)
		beforeOK := start == 0 || !isWordChar(text[start-1])
		afterOK := end == len(text) || !isWordChar(text[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= '0' && c <= '9'
}

// detectDosageForm assigns at most one special form. Check order is
// inhaler, then insulin, then liquid; the first match wins.
func detectDosageForm(text string, s *NormalizedSig) {
	unit := s.DoseUnit

	if s.Route == "inhalation" || strings.Contains(text, "inhal") || unit == "puff" || unit == "spray" {
		s.DosageForm = FormInhaler
		return
	}

	// Plain "units" doses are only classified as insulin when the text says
	// so, or the route hints subcutaneous administration. A "2 units of
	// cream" SIG stays unclassified; see the recorded open question.
	if strings.Contains(text, "insulin") || (unit == "unit" && strings.Contains(text, "subcutaneous")) {
		s.DosageForm = FormInsulin
		return
	}

	if unit == "ml" || unit == "l" {
		s.DosageForm = FormLiquid
		return
	}
	for _, hint := range liquidHints {
		if strings.Contains(text, hint) {
			s.DosageForm = FormLiquid
			return
		}
	}
	if s.Route == "oral" && IsVolumeUnit(unit) {
		s.DosageForm = FormLiquid
	}
}
