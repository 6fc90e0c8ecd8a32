package domain

// StageOutcome is the per-item result of a stage run.
type StageOutcome string

const (
	// OutcomePending means the item was selected but left for a later run.
	OutcomePending StageOutcome = "PENDING"
	// OutcomeDone means the stage produced a real result.
	OutcomeDone StageOutcome = "DONE"
	// OutcomeFallback means the sentinel was advanced with degraded data.
	OutcomeFallback StageOutcome = "FAILED_FALLBACK"
)

// StageResult summarises one stage invocation.
type StageResult struct {
	Stage     string
	RunID     string
	Processed int
	Outcomes  map[int64]StageOutcome
}

// NewStageResult creates an empty result for stage.
func NewStageResult(stage, runID string) *StageResult {
	return &StageResult{Stage: stage, RunID: runID, Outcomes: make(map[int64]StageOutcome)}
}

// Set records the outcome of one item.
func (r *StageResult) Set(id int64, o StageOutcome) { r.Outcomes[id] = o }

// Count returns how many items ended with outcome o.
func (r *StageResult) Count(o StageOutcome) int {
	n := 0
	for _, v := range r.Outcomes {
		if v == o {
			n++
		}
	}
	return n
}
