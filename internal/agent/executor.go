package agent

import (
	"context"
	"time"

	"github.com/atelier-ai/atelier/internal/graph"
	"github.com/atelier-ai/atelier/internal/tools"
	"github.com/atelier-ai/atelier/pkg/models"
)

// ExecutionResult is what one executor pass over a plan produced.
type ExecutionResult struct {
	// Observations are the outcomes recorded this pass, in execution order.
	Observations []models.Observation
	// ToolCalls are the invocations made this pass, in execution order.
	ToolCalls []models.ToolCall
	// FailedStep is the step whose invocation hard-failed, nil when the
	// whole plan executed.
	FailedStep *models.Step
}

// Halted reports whether execution stopped on a hard failure.
func (r ExecutionResult) Halted() bool {
	return r.FailedStep != nil
}

// Executor runs a validated plan's tool steps against the registry.
type Executor struct {
	registry *tools.Registry
}

// NewExecutor creates an executor over the registry.
func NewExecutor(registry *tools.Registry) *Executor {
	return &Executor{registry: registry}
}

// Run executes the plan's tool-bearing steps in an order consistent with
// requires, ties broken by declaration order. Steps whose id already has an
// ok or soft_failure observation in prior are skipped: a corrected plan
// reuses earlier results, and a soft failure is a final answer for its step,
// never re-invoked within a run. Classification per step:
//
//	normal return            -> ok
//	structured error payload -> soft_failure, payload retained verbatim
//	invocation error         -> hard_failure, remaining steps halt
func (e *Executor) Run(ctx context.Context, p models.Plan, prior []models.Observation) (ExecutionResult, error) {
	order, err := executionOrder(p)
	if err != nil {
		return ExecutionResult{}, err
	}

	done := make(map[string]bool, len(prior))
	for _, obs := range prior {
		if obs.Status == models.ObservationOK || obs.Status == models.ObservationSoftFailure {
			done[obs.StepID] = true
		}
	}

	steps := make(map[string]models.Step, len(p.Steps))
	for _, s := range p.Steps {
		steps[s.ID] = s
	}

	var result ExecutionResult
	for _, id := range order {
		step := steps[id]
		if step.Tool == "" || done[id] {
			continue
		}

		cap, rerr := e.registry.Resolve(step.Tool)
		if rerr != nil {
			// Validation guarantees known tools; a miss here means the
			// registry changed mid-run. Treated as a hard failure.
			result.Observations = append(result.Observations, hardFailure(step.ID, "tool_not_found", rerr.Error()))
			failed := step
			result.FailedStep = &failed
			return result, nil
		}

		call := models.ToolCall{StepID: step.ID, Tool: step.Tool, Args: step.Args, StartedAt: time.Now().UTC()}
		value, ierr := cap.Invoke(ctx, step.Args)
		call.FinishedAt = time.Now().UTC()
		result.ToolCalls = append(result.ToolCalls, call)

		switch {
		case ierr != nil:
			result.Observations = append(result.Observations, hardFailure(step.ID, "tool_fault", ierr.Error()))
			failed := step
			result.FailedStep = &failed
			return result, nil
		case tools.IsSoftFailure(value):
			result.Observations = append(result.Observations, models.Observation{
				StepID:  step.ID,
				Status:  models.ObservationSoftFailure,
				Payload: value,
			})
		default:
			result.Observations = append(result.Observations, models.Observation{
				StepID:  step.ID,
				Status:  models.ObservationOK,
				Payload: value,
			})
		}
	}

	return result, nil
}

// executionOrder returns step ids topologically sorted by requires.
func executionOrder(p models.Plan) ([]string, error) {
	nodes := make([]graph.Node, 0, len(p.Steps))
	for _, s := range p.Steps {
		nodes = append(nodes, graph.Node{ID: s.ID, DependsOn: s.Requires})
	}

	g := graph.New()
	if err := g.Build(nodes); err != nil {
		return nil, err
	}
	return g.TopologicalSort()
}

func hardFailure(stepID, errType, message string) models.Observation {
	return models.Observation{
		StepID: stepID,
		Status: models.ObservationHardFailure,
		Error:  &models.ErrorPayload{Type: errType, Message: message},
	}
}
