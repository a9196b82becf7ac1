package calculation

// Stage names one step of the calculation pipeline.
type Stage string

const (
	StageParsed            Stage = "parsed"
	StageResolved          Stage = "resolved"
	StageCandidatesFetched Stage = "candidates_fetched"
	StageSelected          Stage = "selected"
	StageQuantityComputed  Stage = "quantity_computed"
	StageRanked            Stage = "ranked"
)

// stageOrder is the canonical execution order. Parsing must precede both
// quantity computation and scoring; the rest follows data dependencies.
var stageOrder = []Stage{
	StageParsed,
	StageResolved,
	StageCandidatesFetched,
	StageSelected,
	StageQuantityComputed,
	StageRanked,
}

// Stages returns the canonical stage order.
func Stages() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// NextStage is the pure resumption function: it returns the first stage the
// record has not completed. ok is false when the record is fully processed.
// Because it only inspects Completed, a persisted partial record can be
// reloaded later and resumed exactly where it stopped.
func NextStage(c *Calculation) (next Stage, ok bool) {
	if c == nil {
		return StageParsed, true
	}
	for _, s := range stageOrder {
		if _, done := c.Completed[s]; !done {
			return s, true
		}
	}
	return "", false
}
