// Package plan parses, normalises, and validates planner output before any
// tool executes.
package plan

import "fmt"

// Guardrail rule names reported in violations.
const (
	// RuleUnknownTool fires when a step names a tool outside the registry.
	RuleUnknownTool = "unknown_tool"
	// RuleForbiddenTool fires when a step names a tool forbidden for the run.
	RuleForbiddenTool = "forbidden_tool"
	// RuleSymbolicArgs fires when args contain $ref-style placeholders.
	RuleSymbolicArgs = "symbolic_args"
	// RuleTerminalStep fires when the compose_answer contract is broken.
	RuleTerminalStep = "terminal_step"
	// RuleRequires fires when requires references are forward, cyclic,
	// or unknown.
	RuleRequires = "requires"
	// RuleDuplicateStep fires when two steps share an id.
	RuleDuplicateStep = "duplicate_step"
)

// SchemaError indicates input that does not match the plan schema.
// Always fatal to the unit that produced it; never silently coerced.
type SchemaError struct {
	// Reason describes what failed to parse.
	Reason string
	// Err is the underlying decode error, if any.
	Err error
}

func (e *SchemaError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("plan schema error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("plan schema error: %s", e.Reason)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// GuardrailViolation indicates a disallowed plan shape caught statically
// before execution. The caller treats it as a hard planning failure.
type GuardrailViolation struct {
	// Rule is the guardrail rule that fired.
	Rule string
	// StepID is the offending step, if attributable to one.
	StepID string
	// Detail gives the specific reason.
	Detail string
}

func (e *GuardrailViolation) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("guardrail violation [%s] step %q: %s", e.Rule, e.StepID, e.Detail)
	}
	return fmt.Sprintf("guardrail violation [%s]: %s", e.Rule, e.Detail)
}

// ToolSet is a set of tool names.
type ToolSet map[string]struct{}

// NewToolSet builds a set from names.
func NewToolSet(names ...string) ToolSet {
	s := make(ToolSet, len(names))
	for _, n := range names {
		s[n] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s ToolSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// Add inserts a name.
func (s ToolSet) Add(name string) {
	s[name] = struct{}{}
}
