package plan

import (
	"fmt"
	"strings"

	"github.com/atelier-ai/atelier/pkg/models"
)

// Validate enforces the guardrail rules on a plan before any tool executes:
//   - step ids are unique
//   - every tool is known and not forbidden for the run
//   - args carry no $ref-style symbolic placeholders
//   - requires reference only earlier-declared steps
//   - exactly one terminal compose_answer step exists, tool-free, with no
//     dependents
//
// Returns nil, or the first *GuardrailViolation found. Callers treat a
// violation as a hard planning failure.
func Validate(p models.Plan, known, forbidden ToolSet) error {
	if len(p.Steps) == 0 {
		return &GuardrailViolation{Rule: RuleTerminalStep, Detail: "plan has no steps"}
	}

	seen := make(map[string]int, len(p.Steps))
	for i, s := range p.Steps {
		if s.ID == "" {
			return &GuardrailViolation{Rule: RuleDuplicateStep, Detail: fmt.Sprintf("step %d has no id", i)}
		}
		if _, dup := seen[s.ID]; dup {
			return &GuardrailViolation{Rule: RuleDuplicateStep, StepID: s.ID, Detail: "duplicate step id"}
		}
		seen[s.ID] = i
	}

	for i, s := range p.Steps {
		if s.Tool != "" {
			if !known.Has(s.Tool) {
				return &GuardrailViolation{Rule: RuleUnknownTool, StepID: s.ID, Detail: fmt.Sprintf("tool %q is not registered", s.Tool)}
			}
			if forbidden.Has(s.Tool) {
				return &GuardrailViolation{Rule: RuleForbiddenTool, StepID: s.ID, Detail: fmt.Sprintf("tool %q is forbidden for this run", s.Tool)}
			}
			if containsSymbolicRef(s.Args) {
				return &GuardrailViolation{Rule: RuleSymbolicArgs, StepID: s.ID, Detail: "args contain a symbolic placeholder; values must be concrete"}
			}
		}

		for _, r := range s.Requires {
			j, ok := seen[r]
			if !ok {
				return &GuardrailViolation{Rule: RuleRequires, StepID: s.ID, Detail: fmt.Sprintf("requires unknown step %q", r)}
			}
			if j >= i {
				return &GuardrailViolation{Rule: RuleRequires, StepID: s.ID, Detail: fmt.Sprintf("requires %q which is not declared earlier", r)}
			}
		}
	}

	return validateTerminal(p)
}

// validateTerminal checks the compose_answer contract: exactly one, tool-free,
// final, and nothing depends on it.
func validateTerminal(p models.Plan) error {
	count := 0
	for _, s := range p.Steps {
		if s.ID == models.TerminalStepID {
			count++
		}
	}
	if count == 0 {
		return &GuardrailViolation{Rule: RuleTerminalStep, Detail: "plan has no compose_answer step"}
	}
	if count > 1 {
		return &GuardrailViolation{Rule: RuleTerminalStep, StepID: models.TerminalStepID, Detail: "plan has more than one compose_answer step"}
	}

	last := p.Steps[len(p.Steps)-1]
	if last.ID != models.TerminalStepID {
		return &GuardrailViolation{Rule: RuleTerminalStep, StepID: models.TerminalStepID, Detail: "compose_answer is not the final step"}
	}
	if last.Tool != "" {
		return &GuardrailViolation{Rule: RuleTerminalStep, StepID: models.TerminalStepID, Detail: "compose_answer must not carry a tool"}
	}

	for _, s := range p.Steps {
		for _, r := range s.Requires {
			if r == models.TerminalStepID {
				return &GuardrailViolation{Rule: RuleTerminalStep, StepID: s.ID, Detail: "no step may depend on compose_answer"}
			}
		}
	}

	// Intermediate tool-free steps are only legal as coerced leftovers.
	for _, s := range p.Steps[:len(p.Steps)-1] {
		if s.Tool == "" && !s.CoercedUnknown {
			return &GuardrailViolation{Rule: RuleTerminalStep, StepID: s.ID, Detail: "intermediate step without a tool"}
		}
	}

	return nil
}

// containsSymbolicRef walks a value tree looking for $ref keys or
// back-reference token strings like "steps/<id>/result".
func containsSymbolicRef(v any) bool {
	switch val := v.(type) {
	case map[string]any:
		for k, inner := range val {
			if k == "$ref" {
				return true
			}
			if containsSymbolicRef(inner) {
				return true
			}
		}
	case []any:
		for _, inner := range val {
			if containsSymbolicRef(inner) {
				return true
			}
		}
	case string:
		s := strings.ToLower(val)
		if strings.Contains(s, "$ref") {
			return true
		}
		if strings.Contains(s, "steps/") && strings.Contains(s, "result") {
			return true
		}
	}
	return false
}
