package agent

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/atelier-ai/atelier/internal/llm"
	"github.com/atelier-ai/atelier/internal/memory"
	"github.com/atelier-ai/atelier/internal/plan"
	"github.com/atelier-ai/atelier/internal/tools"
	"github.com/atelier-ai/atelier/pkg/models"
)

// State is one phase of the control loop. Transitions are internal; the
// orchestrator only ever sees the completed AgentResult.
type State string

const (
	StatePlanning   State = "PLANNING"
	StateValidating State = "VALIDATING"
	StateExecuting  State = "EXECUTING"
	StateReplanning State = "REPLANNING"
	StateComposing  State = "COMPOSING"
	StateDone       State = "DONE"
)

// Agent runs the single-goal control loop. Stateless across runs except for
// its configuration; run-scoped state lives on the stack of Run.
type Agent struct {
	id         string
	planner    *Planner
	executor   *Executor
	registry   *tools.Registry
	sink       memory.EpisodeSink
	recall     func(goal string) string
	maxReplans int
	onState    func(state State)
	logf       func(format string, args ...any)
}

// Option configures an Agent.
type Option func(*Agent)

// WithEpisodeSink sets the memory collaborator that receives one episode per
// completed run.
func WithEpisodeSink(sink memory.EpisodeSink) Option {
	return func(a *Agent) { a.sink = sink }
}

// WithInstructionPrefix sets the role instruction prefix for planning.
func WithInstructionPrefix(prefix string) Option {
	return func(a *Agent) { a.planner.SetInstructionPrefix(prefix) }
}

// WithRecall sets the episodic-memory recall hook used to seed the planning
// prompt.
func WithRecall(recall func(goal string) string) Option {
	return func(a *Agent) { a.recall = recall }
}

// WithMaxReplans overrides the replan budget. Default is one pass.
func WithMaxReplans(n int) Option {
	return func(a *Agent) { a.maxReplans = n }
}

// WithStateListener registers a callback invoked on every state transition.
func WithStateListener(fn func(state State)) Option {
	return func(a *Agent) { a.onState = fn }
}

// WithLogf sets the debug log sink.
func WithLogf(logf func(format string, args ...any)) Option {
	return func(a *Agent) { a.logf = logf }
}

// New creates an agent over a model backend and a tool registry.
func New(gen llm.Generator, registry *tools.Registry, opts ...Option) *Agent {
	a := &Agent{
		id:         uuid.New().String()[:8],
		planner:    NewPlanner(gen),
		executor:   NewExecutor(registry),
		registry:   registry,
		maxReplans: 1,
		logf:       func(string, ...any) {},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ID returns the agent's short id.
func (a *Agent) ID() string { return a.id }

// Run is the sole entry point: plan the goal, validate, execute, replan at
// most once on hard failure, then compose. It always returns a result with
// composed text, never an error; the fallback path reports status degraded.
func (a *Agent) Run(ctx context.Context, goal string) models.AgentResult {
	specs := a.registry.List()
	known := plan.NewToolSet()
	transient := plan.NewToolSet()
	for _, spec := range specs {
		known.Add(spec.Name)
		if spec.Transient {
			transient.Add(spec.Name)
		}
	}
	forbidden := plan.NewToolSet()

	var memoryContext string
	if a.recall != nil {
		memoryContext = a.recall(goal)
	}

	a.transition(StatePlanning)
	current, err := a.planner.Plan(ctx, goal, memoryContext, specs, forbidden)
	degraded := false
	if err != nil {
		a.logf("agent %s: planning failed, taking fallback: %v", a.id, err)
		current = FallbackPlan(goal)
		degraded = true
	}

	var (
		observations []models.Observation
		toolCalls    []models.ToolCall
		seenSteps    []models.Step
		seenIDs      = map[string]bool{}
		replansUsed  = 0
	)
	noteSteps := func(p models.Plan) {
		for _, s := range p.Steps {
			if !seenIDs[s.ID] {
				seenIDs[s.ID] = true
				seenSteps = append(seenSteps, s)
			}
		}
	}
	noteSteps(current)

	// takeFallback swaps in the terminal-only plan once the replan budget is
	// spent. Guarantees termination in at most two planning passes.
	takeFallback := func(reason string) {
		a.logf("agent %s: %s, taking fallback", a.id, reason)
		current = FallbackPlan(goal)
		noteSteps(current)
		degraded = true
	}

	for {
		a.transition(StateValidating)
		if verr := plan.Validate(current, known, forbidden); verr != nil {
			if replansUsed >= a.maxReplans {
				takeFallback("plan invalid after replanning: " + verr.Error())
				break
			}
			a.transition(StateReplanning)
			replansUsed++
			failed := a.violatingStep(current, verr)
			current, forbidden = Replan(current, failed, observations, forbidden, known, transient)
			noteSteps(current)
			if len(current.ToolSteps()) == 0 {
				degraded = true
			}
			continue
		}

		a.transition(StateExecuting)
		res, xerr := a.executor.Run(ctx, current, observations)
		if xerr != nil {
			// Ordering failure means the plan's requires were unsound in a
			// way validation could not attribute to one step.
			if replansUsed >= a.maxReplans {
				takeFallback("execution ordering failed: " + xerr.Error())
				break
			}
			a.transition(StateReplanning)
			replansUsed++
			current, forbidden = Replan(current, models.Step{}, observations, forbidden, known, transient)
			noteSteps(current)
			continue
		}

		observations = append(observations, res.Observations...)
		toolCalls = append(toolCalls, res.ToolCalls...)

		if !res.Halted() {
			break
		}
		if replansUsed >= a.maxReplans {
			takeFallback("hard failure after replanning")
			break
		}
		a.transition(StateReplanning)
		replansUsed++
		current, forbidden = Replan(current, *res.FailedStep, observations, forbidden, known, transient)
		noteSteps(current)
		if len(current.ToolSteps()) == 0 {
			degraded = true
		}
	}

	a.transition(StateComposing)
	composeView := models.Plan{Goal: goal, Steps: seenSteps}
	answer := Compose(composeView, observations)

	status := models.ResultOK
	if degraded {
		status = models.ResultDegraded
	}

	if a.sink != nil {
		episode := models.Episode{
			Input:        goal,
			Plan:         current,
			ToolCalls:    toolCalls,
			Observations: observations,
			FinalAnswer:  answer,
		}
		if serr := a.sink.SaveEpisode(episode); serr != nil {
			a.logf("agent %s: episode save failed: %v", a.id, serr)
		}
	}

	a.transition(StateDone)
	return models.AgentResult{
		FinalAnswer:  answer,
		Observations: observations,
		Status:       status,
	}
}

func (a *Agent) transition(s State) {
	if a.onState != nil {
		a.onState(s)
	}
}

// violatingStep maps a guardrail violation back to the offending step so the
// replanner can treat it like a hard failure of that step.
func (a *Agent) violatingStep(p models.Plan, verr error) models.Step {
	var gv *plan.GuardrailViolation
	if errors.As(verr, &gv) && gv.StepID != "" {
		for _, s := range p.Steps {
			if s.ID == gv.StepID {
				return s
			}
		}
	}
	return models.Step{}
}
