package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/verdantrx/dispense-engine/internal/domain/calculation"
	"github.com/verdantrx/dispense-engine/internal/ndc"
	"github.com/verdantrx/dispense-engine/internal/observability/metrics"
	"github.com/verdantrx/dispense-engine/internal/quantity"
	"github.com/verdantrx/dispense-engine/internal/sig"
	"github.com/verdantrx/dispense-engine/internal/warnings"
)

// Engine runs the calculation pipeline. The core stages are pure; only the
// resolver, searcher and ranker perform I/O, and all three are optional.
type Engine struct {
	resolver NameResolver
	searcher PackageSearcher
	ranker   Ranker
	metrics  *metrics.Metrics
	logger   *zap.Logger

	// candidateLimit caps the package-directory result count.
	candidateLimit int
}

// Option configures an Engine.
type Option func(*Engine)

// WithResolver sets the name-resolution collaborator.
func WithResolver(r NameResolver) Option { return func(e *Engine) { e.resolver = r } }

// WithSearcher sets the package-directory collaborator.
func WithSearcher(s PackageSearcher) Option { return func(e *Engine) { e.searcher = s } }

// WithRanker sets the optional AI ranking collaborator.
func WithRanker(r Ranker) Option { return func(e *Engine) { e.ranker = r } }

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// WithCandidateLimit caps the number of packages fetched per calculation.
func WithCandidateLimit(n int) Option { return func(e *Engine) { e.candidateLimit = n } }

// New creates an engine. All collaborators are optional: a missing one
// degrades that stage to its neutral outcome plus a warning.
func New(logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{logger: logger, candidateLimit: 20}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the full pipeline for a new request. It always returns a
// calculation; degraded inputs yield a partial record with warnings rather
// than an error.
func (e *Engine) Run(ctx context.Context, req calculation.Request) *calculation.Calculation {
	calc := calculation.New(uuid.New().String(), req)
	if e.metrics != nil {
		e.metrics.CalculationsStarted.Inc()
	}
	e.Resume(ctx, calc)
	return calc
}

// Resume executes every stage the record has not completed yet, in order.
// It is safe to call on a freshly loaded partial record.
func (e *Engine) Resume(ctx context.Context, calc *calculation.Calculation) {
	start := time.Now()
	for {
		stage, ok := calculation.NextStage(calc)
		if !ok {
			break
		}
		e.runStage(ctx, calc, stage)
		calc.MarkCompleted(stage)
	}
	if e.metrics != nil {
		e.metrics.PipelineDuration.Observe(time.Since(start).Seconds())
		e.metrics.CalculationsCompleted.Inc()
	}
}

// RunStage executes exactly one stage if it is the next missing one. It
// returns the stage that ran, or ok=false when the record is complete.
func (e *Engine) RunStage(ctx context.Context, calc *calculation.Calculation) (calculation.Stage, bool) {
	stage, ok := calculation.NextStage(calc)
	if !ok {
		return "", false
	}
	e.runStage(ctx, calc, stage)
	calc.MarkCompleted(stage)
	return stage, true
}

func (e *Engine) runStage(ctx context.Context, calc *calculation.Calculation, stage calculation.Stage) {
	before := len(calc.Warnings)
	defer func() {
		if e.metrics == nil {
			return
		}
		for _, w := range calc.Warnings[before:] {
			e.metrics.WarningsEmitted.WithLabelValues(string(w.Type)).Inc()
		}
	}()

	switch stage {
	case calculation.StageParsed:
		e.parse(calc)
	case calculation.StageResolved:
		e.resolve(ctx, calc)
	case calculation.StageCandidatesFetched:
		e.fetchCandidates(ctx, calc)
	case calculation.StageSelected:
		e.selectCandidate(calc)
	case calculation.StageQuantityComputed:
		e.computeQuantity(calc)
	case calculation.StageRanked:
		e.rank(ctx, calc)
	}
}

func (e *Engine) parse(calc *calculation.Calculation) {
	calc.Sig = sig.Parse(calc.Request.SigText)
	if msg := calc.Sig.PartialParseWarning(); msg != "" {
		calc.AddWarnings(warnings.Warning{
			Type:     warnings.TypeInvalidSig,
			Severity: warnings.SeverityWarning,
			Field:    "sig",
			Message:  msg,
		})
		if e.metrics != nil {
			e.metrics.SigParseFailures.Inc()
		}
	}
}

func (e *Engine) resolve(ctx context.Context, calc *calculation.Calculation) {
	res := e.callResolver(ctx, calc.Request.DrugToken)
	calc.Resolution = res

	if res.RxCUI == "" {
		calc.AddWarnings(warnings.Warning{
			Type:     warnings.TypeUnresolvedRxCUI,
			Severity: warnings.SeverityWarning,
			Field:    "drug_token",
			Message:  fmt.Sprintf("no canonical drug identifier found for %q", calc.Request.DrugToken),
		})
		return
	}

	if res.CandidateCount > 1 {
		calc.AddWarnings(warnings.Warning{
			Type:     warnings.TypeOther,
			Severity: warnings.SeverityInfo,
			Field:    "drug_token",
			Message:  fmt.Sprintf("drug name matched %d concepts; using %s", res.CandidateCount, res.RxCUI),
		})
	}

	if calc.Sig != nil {
		calc.Sig.Enrich(res.RxCUI, res.Name, res.Strength, res.Form)
	}
}

// callResolver wraps the collaborator call, substituting an empty
// resolution on any failure.
func (e *Engine) callResolver(ctx context.Context, token string) *calculation.Resolution {
	if e.resolver == nil {
		return &calculation.Resolution{}
	}
	res, err := e.resolver.Resolve(ctx, token)
	if err != nil {
		e.logger.Warn("name resolution failed, continuing unresolved",
			zap.String("drug_token", token), zap.Error(err))
		if e.metrics != nil {
			e.metrics.CollaboratorFailures.WithLabelValues("resolver").Inc()
		}
		return &calculation.Resolution{}
	}
	if res == nil {
		return &calculation.Resolution{}
	}
	return res
}

func (e *Engine) fetchCandidates(ctx context.Context, calc *calculation.Calculation) {
	raws := e.callSearcher(ctx, calc)

	today := time.Now().UTC()
	candidates := make([]ndc.Candidate, 0, len(raws))
	for _, raw := range raws {
		c, ok := toCandidate(raw, today)
		if !ok {
			e.logger.Debug("dropping package with malformed NDC", zap.String("ndc", raw.NDC))
			continue
		}
		candidates = append(candidates, c)
	}
	calc.Candidates = candidates

	if len(candidates) == 0 {
		calc.AddWarnings(warnings.Warning{
			Type:     warnings.TypeMissingNDC,
			Severity: warnings.SeverityWarning,
			Field:    "ndc",
			Message:  "no NDC package candidates found for the prescription",
		})
	}
}

func (e *Engine) callSearcher(ctx context.Context, calc *calculation.Calculation) []RawPackage {
	if e.searcher == nil {
		return nil
	}
	query := PackageQuery{ProductName: calc.Request.DrugToken}
	if calc.Resolution != nil {
		query.RxCUI = calc.Resolution.RxCUI
		if calc.Resolution.Name != "" {
			query.ProductName = calc.Resolution.Name
		}
	}
	if code, ok := ndc.NormalizeNDC(calc.Request.DrugToken); ok {
		query.NDC = code
	}

	raws, err := e.searcher.Search(ctx, query, e.candidateLimit)
	if err != nil {
		e.logger.Warn("package search failed, continuing without candidates", zap.Error(err))
		if e.metrics != nil {
			e.metrics.CollaboratorFailures.WithLabelValues("package_search").Inc()
		}
		return nil
	}
	return raws
}

func (e *Engine) selectCandidate(calc *calculation.Calculation) {
	selected := ndc.SelectOptimal(calc.Candidates, calc.Sig, calc.Request.DaysSupply)
	calc.Selected = selected
	if selected == nil {
		return
	}

	if !selected.Active {
		calc.AddWarnings(warnings.Warning{
			Type:     warnings.TypeInactiveNDC,
			Severity: warnings.SeverityWarning,
			Field:    "ndc",
			Message:  fmt.Sprintf("selected NDC %s is no longer marketed", selected.NDC),
		})
	}

	// Hard-zero sub-scores with data on both sides are real mismatches;
	// missing data scores zero too but is not worth warning about.
	scored := ndc.Score(*selected, calc.Sig, calc.Request.DaysSupply)
	if calc.Sig != nil {
		if scored.Breakdown.Strength == 0 && calc.Sig.Strength != "" && selected.Strength != "" {
			calc.AddWarnings(warnings.Warning{
				Type:     warnings.TypeStrengthMismatch,
				Severity: warnings.SeverityWarning,
				Field:    "strength",
				Message: fmt.Sprintf("prescription strength %q does not match package strength %q",
					calc.Sig.Strength, selected.Strength),
			})
		}
		if scored.Breakdown.Unit == 0 && calc.Sig.DoseUnit != "" && selected.Unit != "" {
			calc.AddWarnings(warnings.Warning{
				Type:     warnings.TypeUnitMismatch,
				Severity: warnings.SeverityWarning,
				Field:    "unit",
				Message: fmt.Sprintf("prescription unit %q does not match package unit %q",
					calc.Sig.DoseUnit, selected.Unit),
			})
		}
	}
}

func (e *Engine) computeQuantity(calc *calculation.Calculation) {
	var pkgDescription string
	if calc.Selected != nil {
		pkgDescription = calc.Selected.PackageDescription
	}
	report := quantity.ComputeWithWarnings(calc.Sig, calc.Request.DaysSupply, pkgDescription)
	calc.Quantity = report.Quantity
	calc.PackageSize = report.PackageSize
	calc.MultiPack = report.MultiPack
	calc.AddWarnings(report.Warnings...)
}

func (e *Engine) rank(ctx context.Context, calc *calculation.Calculation) {
	scoringStart := time.Now()
	ranked := ndc.RankAll(calc.Candidates, calc.Sig, calc.Request.DaysSupply)
	if e.metrics != nil {
		e.metrics.ScoringDuration.Observe(time.Since(scoringStart).Seconds())
	}
	calc.Ranked = ranked

	if e.ranker == nil || len(ranked) == 0 {
		return
	}

	aiRanking, err := e.ranker.Rank(ctx, ranked, calc.Sig, calc.Request)
	if err != nil || aiRanking == nil {
		// Best-effort by contract: a failed ranking is identical to no
		// ranking and must never block the deterministic result.
		if err != nil {
			e.logger.Debug("ai ranking unavailable", zap.Error(err))
			if e.metrics != nil {
				e.metrics.CollaboratorFailures.WithLabelValues("ranker").Inc()
			}
		}
		return
	}

	reordered := applyRanking(ranked, aiRanking.RankedNDCs)
	if reordered != nil {
		calc.Ranked = reordered
		calc.Rationale = aiRanking.Rationale
	}
}

// applyRanking reorders candidates to match the NDC order the ranker
// returned, appending any candidates the ranker omitted in their original
// order. A ranking that names no known NDC is discarded.
func applyRanking(candidates []ndc.Candidate, order []string) []ndc.Candidate {
	byNDC := make(map[string]int, len(candidates))
	for i, c := range candidates {
		byNDC[c.NDC] = i
	}

	out := make([]ndc.Candidate, 0, len(candidates))
	used := make(map[string]bool, len(candidates))
	for _, code := range order {
		i, ok := byNDC[code]
		if !ok || used[code] {
			continue
		}
		out = append(out, candidates[i])
		used[code] = true
	}
	if len(out) == 0 {
		return nil
	}
	for _, c := range candidates {
		if !used[c.NDC] {
			out = append(out, c)
		}
	}
	return out
}
