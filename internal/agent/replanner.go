package agent

import (
	"github.com/atelier-ai/atelier/internal/plan"
	"github.com/atelier-ai/atelier/internal/tools"
	"github.com/atelier-ai/atelier/pkg/models"
)

// Replan deterministically produces a corrected plan after a hard failure.
// Same (current, failed, observations, forbidden) in, same plan out; there is
// no model call on this path.
//
// The failed tool joins the forbidden set unless its spec is transient, and
// so does any tool whose step soft-failed with a non-retryable payload: a
// tool that reported a final failure is never invoked again. The corrected
// plan keeps every step that does not use a forbidden tool and does not
// depend, transitively, on a removed step. Already-executed steps, ok and
// soft-failed alike, keep their recorded observations and are never
// recomputed. When no unexecuted tool step survives, or the corrected plan
// would violate a guardrail, the single-step tool-free fallback plan is
// returned instead.
func Replan(current models.Plan, failed models.Step, observations []models.Observation, forbidden plan.ToolSet, known plan.ToolSet, transient plan.ToolSet) (models.Plan, plan.ToolSet) {
	nextForbidden := plan.NewToolSet()
	for name := range forbidden {
		nextForbidden.Add(name)
	}
	if failed.Tool != "" && !transient.Has(failed.Tool) {
		nextForbidden.Add(failed.Tool)
	}

	stepTool := make(map[string]string, len(current.Steps))
	for _, s := range current.Steps {
		stepTool[s.ID] = s.Tool
	}

	executed := make(map[string]bool, len(observations))
	for _, obs := range observations {
		switch obs.Status {
		case models.ObservationOK:
			executed[obs.StepID] = true
		case models.ObservationSoftFailure:
			executed[obs.StepID] = true
			if tool := stepTool[obs.StepID]; tool != "" && !tools.IsRetryable(obs.Payload) {
				nextForbidden.Add(tool)
			}
		}
	}

	// A forbidden tool may not appear in the corrected plan at all, even on a
	// step that already executed. Removed-but-executed steps still satisfy
	// their dependents through the retained observation; removed steps with
	// no observation take their dependents down with them.
	removed := make(map[string]bool)
	unsatisfied := make(map[string]bool)
	var kept []models.Step
	for _, s := range current.Steps {
		if s.ID == models.TerminalStepID {
			continue
		}
		if s.Tool != "" && nextForbidden.Has(s.Tool) {
			removed[s.ID] = true
			if !executed[s.ID] {
				unsatisfied[s.ID] = true
			}
			continue
		}
		if dependsOnRemoved(s, unsatisfied) {
			removed[s.ID] = true
			unsatisfied[s.ID] = true
			continue
		}
		kept = append(kept, pruneRequires(s, removed))
	}

	// Fallback when nothing actionable remains.
	pending := 0
	for _, s := range kept {
		if s.Tool != "" && !executed[s.ID] {
			pending++
		}
	}
	if pending == 0 {
		return FallbackPlan(current.Goal), nextForbidden
	}

	corrected := models.Plan{Goal: current.Goal, Steps: kept}
	corrected = plan.Normalize(corrected, known)
	if err := plan.Validate(corrected, known, nextForbidden); err != nil {
		return FallbackPlan(current.Goal), nextForbidden
	}
	return corrected, nextForbidden
}

// FallbackPlan is the terminal-only plan: one tool-free compose_answer step
// built strictly from whatever observations already exist.
func FallbackPlan(goal string) models.Plan {
	return models.Plan{
		Goal: goal,
		Steps: []models.Step{{
			ID:          models.TerminalStepID,
			Description: "Compose an answer from the results gathered so far.",
		}},
	}
}

// dependsOnRemoved reports whether the step requires a removed step.
func dependsOnRemoved(s models.Step, removed map[string]bool) bool {
	for _, r := range s.Requires {
		if removed[r] {
			return true
		}
	}
	return false
}

// pruneRequires drops references to removed steps.
func pruneRequires(s models.Step, removed map[string]bool) models.Step {
	kept := make([]string, 0, len(s.Requires))
	for _, r := range s.Requires {
		if !removed[r] {
			kept = append(kept, r)
		}
	}
	s.Requires = kept
	return s
}
