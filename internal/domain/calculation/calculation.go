// Package calculation implements the dispense calculation aggregate: the
// record accumulated across pipeline stages and the stage machine that makes
// every stage independently re-runnable over partial persisted state.
package calculation

import (
	"time"

	"github.com/verdantrx/dispense-engine/internal/ndc"
	"github.com/verdantrx/dispense-engine/internal/quantity"
	"github.com/verdantrx/dispense-engine/internal/sig"
	"github.com/verdantrx/dispense-engine/internal/warnings"
)

// Request is the caller-supplied input for one calculation.
type Request struct {
	// DrugToken is a free-text drug name or an NDC string.
	DrugToken  string  `json:"drug_token"`
	SigText    string  `json:"sig_text"`
	DaysSupply float64 `json:"days_supply"`
}

// Resolution is the name-resolution collaborator's answer. An empty RxCUI
// means the drug could not be resolved; CandidateCount above one means the
// resolver picked among several matches.
type Resolution struct {
	RxCUI          string `json:"rxcui,omitempty"`
	Name           string `json:"name,omitempty"`
	Strength       string `json:"strength,omitempty"`
	Form           string `json:"form,omitempty"`
	CandidateCount int    `json:"candidate_count,omitempty"`
}

// Calculation is the aggregate record. Fields fill in stage by stage; any
// of them may be absent on a partially processed record. Warnings only ever
// accumulate.
type Calculation struct {
	ID      string  `json:"id"`
	Request Request `json:"request"`

	Sig         *sig.NormalizedSig        `json:"sig,omitempty"`
	Resolution  *Resolution               `json:"resolution,omitempty"`
	Candidates  []ndc.Candidate           `json:"candidates,omitempty"`
	Selected    *ndc.Candidate            `json:"selected,omitempty"`
	Quantity    *quantity.Result          `json:"quantity,omitempty"`
	PackageSize *quantity.PackageSize     `json:"package_size,omitempty"`
	MultiPack   *quantity.MultiPackResult `json:"multi_pack,omitempty"`
	Ranked      []ndc.Candidate           `json:"ranked,omitempty"`
	Rationale   string                    `json:"rationale,omitempty"`

	Warnings []warnings.Warning `json:"warnings,omitempty"`

	// Completed records when each stage finished, including stages that
	// legitimately produced no data (an unparseable SIG still counts as a
	// completed parse). NextStage derives resumption from this alone.
	Completed map[Stage]time.Time `json:"completed"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New creates an empty calculation for a request.
func New(id string, req Request) *Calculation {
	now := time.Now().UTC()
	return &Calculation{
		ID:        id,
		Request:   req,
		Completed: make(map[Stage]time.Time),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddWarnings appends warnings; nothing is ever removed.
func (c *Calculation) AddWarnings(ws ...warnings.Warning) {
	c.Warnings = append(c.Warnings, ws...)
}

// MarkCompleted records a stage as finished.
func (c *Calculation) MarkCompleted(stage Stage) {
	if c.Completed == nil {
		c.Completed = make(map[Stage]time.Time)
	}
	now := time.Now().UTC()
	c.Completed[stage] = now
	c.UpdatedAt = now
}

// IsComplete reports whether every stage has run.
func (c *Calculation) IsComplete() bool {
	_, done := NextStage(c)
	return !done
}

// DedupedWarnings returns display-ready warnings, deduplicated by
// (type, field).
func (c *Calculation) DedupedWarnings() []warnings.Warning {
	return warnings.Dedupe(c.Warnings)
}
