// Package models defines the shared data types for plans, observations,
// work items, and agent results.
package models

import (
	"encoding/json"
	"time"
)

// TerminalStepID is the id of the mandatory final step of every plan.
// The terminal step carries no tool; it marks where composition happens.
const TerminalStepID = "compose_answer"

// Plan is an ordered sequence of steps produced once per agent run.
// A plan is immutable once validated; replanning replaces it wholesale.
type Plan struct {
	// Goal is the natural-language goal this plan achieves.
	Goal string `json:"goal"`
	// Steps are the planned actions in declaration order.
	Steps []Step `json:"steps"`
}

// TerminalStep returns the compose_answer step, or nil if the plan has none.
func (p *Plan) TerminalStep() *Step {
	for i := range p.Steps {
		if p.Steps[i].ID == TerminalStepID {
			return &p.Steps[i]
		}
	}
	return nil
}

// ToolSteps returns the steps that are bound to a tool, in declaration order.
func (p *Plan) ToolSteps() []Step {
	var out []Step
	for _, s := range p.Steps {
		if s.Tool != "" {
			out = append(out, s)
		}
	}
	return out
}

// Step is one planned action, optionally bound to a tool.
type Step struct {
	// ID is unique within the plan.
	ID string `json:"id"`
	// Description says what the step accomplishes.
	Description string `json:"description"`
	// Tool is the name of the tool to invoke. Empty means no tool; only
	// the terminal compose_answer step may legitimately be tool-free.
	Tool string `json:"tool"`
	// Args are concrete argument values for the tool. Never contains
	// symbolic placeholders or back-references.
	Args map[string]any `json:"args"`
	// Requires lists ids of steps that must be observed before this one.
	Requires []string `json:"requires"`
	// CoercedUnknown marks a step whose planned tool was unknown and was
	// stripped during normalisation. Kept for diagnostics; never executed.
	CoercedUnknown bool `json:"-"`
}

// MarshalJSON emits tool and args as null for tool-free steps, matching the
// external plan contract.
func (s Step) MarshalJSON() ([]byte, error) {
	type wire struct {
		ID          string         `json:"id"`
		Description string         `json:"description"`
		Tool        *string        `json:"tool"`
		Args        map[string]any `json:"args"`
		Requires    []string       `json:"requires"`
	}
	w := wire{ID: s.ID, Description: s.Description, Args: s.Args, Requires: s.Requires}
	if s.Tool != "" {
		tool := s.Tool
		w.Tool = &tool
	} else {
		w.Args = nil
	}
	if w.Requires == nil {
		w.Requires = []string{}
	}
	return json.Marshal(w)
}

// ObservationStatus classifies the outcome of executing one step.
type ObservationStatus string

const (
	// ObservationOK indicates the tool returned a normal value.
	ObservationOK ObservationStatus = "ok"
	// ObservationSoftFailure indicates the tool reported a structured
	// failure payload without raising. Retained as data, never retried.
	ObservationSoftFailure ObservationStatus = "soft_failure"
	// ObservationHardFailure indicates the invocation itself faulted.
	// Execution of the remaining plan halts.
	ObservationHardFailure ObservationStatus = "hard_failure"
)

// Valid returns true if the status is a known value.
func (s ObservationStatus) Valid() bool {
	switch s {
	case ObservationOK, ObservationSoftFailure, ObservationHardFailure:
		return true
	default:
		return false
	}
}

// Observation is the recorded outcome of executing one step. Immutable once
// recorded; it is the authoritative record replanning and composition read.
type Observation struct {
	// StepID is the id of the executed step.
	StepID string `json:"step_id"`
	// Status classifies the outcome.
	Status ObservationStatus `json:"status"`
	// Payload is the tool's return value for ok observations, or the
	// verbatim structured failure payload otherwise.
	Payload any `json:"payload"`
	// Error carries the fault details for hard failures.
	Error *ErrorPayload `json:"error,omitempty"`
}

// ErrorPayload is the structured form of a tool failure.
type ErrorPayload struct {
	// Type is a stable machine-readable error category.
	Type string `json:"type"`
	// Message is the human-readable failure description.
	Message string `json:"message"`
	// Details carries tool-specific context.
	Details map[string]any `json:"details,omitempty"`
}

// ToolCall records one tool invocation, created immediately before the call.
type ToolCall struct {
	// StepID is the plan step that requested this call.
	StepID string `json:"step_id"`
	// Tool is the invoked tool name.
	Tool string `json:"tool"`
	// Args are the concrete arguments passed.
	Args map[string]any `json:"args"`
	// StartedAt is when the invocation began.
	StartedAt time.Time `json:"started_at"`
	// FinishedAt is when the invocation returned.
	FinishedAt time.Time `json:"finished_at"`
}

// Episode is the record emitted once per completed agent run for the
// episodic memory collaborator.
type Episode struct {
	// Input is the goal text the agent was given.
	Input string `json:"input"`
	// Plan is the final plan that produced the answer.
	Plan Plan `json:"plan"`
	// ToolCalls lists every invocation in execution order.
	ToolCalls []ToolCall `json:"tool_calls"`
	// Observations lists every recorded outcome in execution order.
	Observations []Observation `json:"observations"`
	// FinalAnswer is the composed user-facing answer.
	FinalAnswer string `json:"final_answer"`
}
