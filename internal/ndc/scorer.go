package ndc

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/verdantrx/dispense-engine/internal/quantity"
	"github.com/verdantrx/dispense-engine/internal/sig"
)

// Scoring weights. The four sub-scores always sum to 1.00 of weight so the
// total stays in [0, 1].
const (
	weightActive   = 0.30
	weightPackage  = 0.40
	weightStrength = 0.15
	weightUnit     = 0.15

	// neutralScore is awarded when a factor has no comparable data on
	// either side, so a candidate with missing fields is not penalized
	// below one with a hard mismatch.
	neutralScore = 0.5

	// scoreEpsilon is the tie threshold: totals closer than this fall
	// through to the secondary tie-breaks.
	scoreEpsilon = 0.001
)

// Breakdown holds the four independent sub-scores before weighting.
type Breakdown struct {
	Active   float64 `json:"active"`
	Package  float64 `json:"package"`
	Strength float64 `json:"strength"`
	Unit     float64 `json:"unit"`
}

// ScoredCandidate pairs a candidate with its total score and breakdown.
type ScoredCandidate struct {
	Candidate Candidate `json:"candidate"`
	Score     float64   `json:"score"`
	Breakdown Breakdown `json:"breakdown"`
}

// Score evaluates one candidate against the parsed prescription. Absent
// inputs degrade to neutral sub-scores; the function never fails.
// daysSupply of zero means "unknown" and makes the package factor neutral.
func Score(c Candidate, s *sig.NormalizedSig, daysSupply float64) ScoredCandidate {
	b := Breakdown{
		Active:   activeScore(c),
		Package:  packageScore(c, s, daysSupply),
		Strength: strengthScore(c, s),
		Unit:     unitScore(c, s),
	}
	total := weightActive*b.Active +
		weightPackage*b.Package +
		weightStrength*b.Strength +
		weightUnit*b.Unit
	return ScoredCandidate{Candidate: c, Score: total, Breakdown: b}
}

func activeScore(c Candidate) float64 {
	if c.Active {
		return 1
	}
	return 0
}

// packageScore rates how well the candidate's package size fits the
// computed dispense quantity. The bands favor exact fits, then mild
// overfill (dispense a bit more) over mild underfill.
func packageScore(c Candidate, s *sig.NormalizedSig, daysSupply float64) float64 {
	q := quantity.Calculate(s, daysSupply)
	pkg := quantity.ParsePackage(c.PackageDescription)
	if q == nil || pkg == nil || pkg.Size <= 0 {
		return neutralScore
	}
	ratio := q.Value / pkg.Size

	switch {
	case math.Abs(ratio-1) < 0.01:
		return 1.0
	case math.Abs(ratio-1) < 0.05:
		return 0.95
	case ratio >= 1 && ratio <= 1.2:
		return 0.9 - (ratio-1)*0.5
	case ratio >= 0.8 && ratio < 1:
		return 0.85 - (1-ratio)*0.5
	case ratio > 1.2 && ratio <= 2:
		return 0.7 - (ratio-1.2)*0.2
	case ratio > 2:
		return math.Max(0.3, 0.5-(ratio-2)*0.1)
	default: // ratio < 0.8
		return math.Max(0.2, 0.4-(0.8-ratio)*0.5)
	}
}

// strengthRe extracts a leading numeric value and its unit from a strength
// string such as "10 mg" or "500MG".
var strengthRe = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*([a-zA-Z]+)`)

func strengthScore(c Candidate, s *sig.NormalizedSig) float64 {
	var want string
	if s != nil {
		want = s.Strength
	}
	have := c.Strength

	// Both missing is neutral; checked before the either-missing zero.
	if want == "" && have == "" {
		return neutralScore
	}
	if want == "" || have == "" {
		return 0
	}
	if squash(want) == squash(have) {
		return 1
	}

	wm := strengthRe.FindStringSubmatch(want)
	hm := strengthRe.FindStringSubmatch(have)
	if wm != nil && hm != nil {
		wv, werr := strconv.ParseFloat(wm[1], 64)
		hv, herr := strconv.ParseFloat(hm[1], 64)
		if werr == nil && herr == nil &&
			math.Abs(wv-hv) < 0.001 && sig.UnitsEquivalent(wm[2], hm[2]) {
			return 0.8
		}
	}
	return 0
}

func unitScore(c Candidate, s *sig.NormalizedSig) float64 {
	var want string
	if s != nil {
		want = s.DoseUnit
	}
	have := c.Unit

	if want == "" && have == "" {
		return neutralScore
	}
	if want == "" || have == "" {
		return 0
	}
	if sig.UnitsEquivalent(want, have) {
		return 1
	}
	return 0
}

func squash(s string) string {
	return strings.ToLower(strings.ReplaceAll(s, " ", ""))
}

// better is the selection ordering: score difference beyond epsilon wins,
// then active status, then the package sub-score.
func better(a, b ScoredCandidate) bool {
	if math.Abs(a.Score-b.Score) > scoreEpsilon {
		return a.Score > b.Score
	}
	if a.Candidate.Active != b.Candidate.Active {
		return a.Candidate.Active
	}
	return a.Breakdown.Package > b.Breakdown.Package
}

// SelectOptimal scores all candidates and returns the best one with scoring
// metadata stripped, or nil for an empty list.
func SelectOptimal(candidates []Candidate, s *sig.NormalizedSig, daysSupply float64) *Candidate {
	if len(candidates) == 0 {
		return nil
	}
	scored := scoreAll(candidates, s, daysSupply)
	sort.SliceStable(scored, func(i, j int) bool { return better(scored[i], scored[j]) })

	top := scored[0].Candidate
	top.MatchScore = nil
	return &top
}

// RankAll scores all candidates and returns them sorted by score, each
// annotated with its MatchScore. Ranking ties break on active status only.
func RankAll(candidates []Candidate, s *sig.NormalizedSig, daysSupply float64) []Candidate {
	scored := scoreAll(candidates, s, daysSupply)
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if math.Abs(a.Score-b.Score) > scoreEpsilon {
			return a.Score > b.Score
		}
		if a.Candidate.Active != b.Candidate.Active {
			return a.Candidate.Active
		}
		return false
	})

	out := make([]Candidate, len(scored))
	for i, sc := range scored {
		c := sc.Candidate
		score := sc.Score
		c.MatchScore = &score
		out[i] = c
	}
	return out
}

func scoreAll(candidates []Candidate, s *sig.NormalizedSig, daysSupply float64) []ScoredCandidate {
	scored := make([]ScoredCandidate, len(candidates))
	for i, c := range candidates {
		scored[i] = Score(c, s, daysSupply)
	}
	return scored
}
