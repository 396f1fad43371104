// Package agent implements the single-goal control loop: plan, validate,
// execute, replan on hard failure, compose.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/atelier-ai/atelier/internal/llm"
	"github.com/atelier-ai/atelier/internal/plan"
	"github.com/atelier-ai/atelier/internal/tools"
	"github.com/atelier-ai/atelier/pkg/models"
)

// maxRepairAttempts bounds how many times malformed planner output is sent
// back to the model for repair before the run falls back.
const maxRepairAttempts = 2

const plannerSystemPrompt = `You are a planning assistant. You produce execution plans as strict JSON.
Respond with exactly one JSON object of the form
{"goal": string, "steps": [{"id": string, "description": string, "tool": string|null, "args": object, "requires": [string]}]}
and nothing else. No markdown, no commentary.

Rules:
- Every step except the final one must name one of the available tools.
- Argument values must be concrete. Never reference another step's output.
- The final step must have id "compose_answer", tool null and empty args.
- "requires" may only list ids of earlier steps.`

// Planner turns a goal into a validated-ready plan using the model backend.
type Planner struct {
	gen llm.Generator
	// instructionPrefix is prepended to the goal by the role adapter.
	instructionPrefix string
}

// NewPlanner creates a planner over the given generator.
func NewPlanner(gen llm.Generator) *Planner {
	return &Planner{gen: gen}
}

// SetInstructionPrefix sets the role instruction prefix for this planner.
func (p *Planner) SetInstructionPrefix(prefix string) {
	p.instructionPrefix = prefix
}

// Plan asks the model for a plan, normalises it, and repairs malformed
// output up to maxRepairAttempts times. A SchemaError after all attempts
// means the caller must take the fallback path.
func (p *Planner) Plan(ctx context.Context, goal, memoryContext string, specs []tools.ToolSpec, forbidden plan.ToolSet) (models.Plan, error) {
	known := plan.NewToolSet()
	for _, spec := range specs {
		known.Add(spec.Name)
	}

	prompt := p.buildPrompt(goal, memoryContext, specs, forbidden)

	raw, err := p.gen.Generate(ctx, llm.Request{System: plannerSystemPrompt, Prompt: prompt})
	if err != nil {
		return models.Plan{}, fmt.Errorf("planner generation: %w", err)
	}

	parsed, perr := plan.Parse(raw)
	for attempt := 0; perr != nil && attempt < maxRepairAttempts; attempt++ {
		raw, err = p.gen.Generate(ctx, llm.Request{
			System: plannerSystemPrompt,
			Prompt: repairPrompt(prompt, raw, perr),
		})
		if err != nil {
			return models.Plan{}, fmt.Errorf("planner repair generation: %w", err)
		}
		parsed, perr = plan.Parse(raw)
	}
	if perr != nil {
		return models.Plan{}, perr
	}

	normalized := plan.Normalize(parsed, known)
	if normalized.Goal == "" {
		normalized.Goal = goal
	}
	return normalized, nil
}

// buildPrompt assembles the user-turn planning prompt: role prefix, goal,
// memory context, and the tool catalog minus forbidden tools.
func (p *Planner) buildPrompt(goal, memoryContext string, specs []tools.ToolSpec, forbidden plan.ToolSet) string {
	var b strings.Builder

	if p.instructionPrefix != "" {
		b.WriteString(p.instructionPrefix)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "Goal: %s\n\n", goal)

	if memoryContext != "" {
		b.WriteString(memoryContext)
		b.WriteString("\n")
	}

	b.WriteString("Available tools:\n")
	for _, spec := range specs {
		if forbidden.Has(spec.Name) {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", spec.Name, spec.Description)
		if len(spec.InputSchema) > 0 {
			if schema, err := json.Marshal(spec.InputSchema); err == nil {
				fmt.Fprintf(&b, "  input schema: %s\n", schema)
			}
		}
	}

	if len(forbidden) > 0 {
		b.WriteString("\nThe following tools are unavailable for this run and must not appear in the plan:")
		for _, spec := range specs {
			if forbidden.Has(spec.Name) {
				b.WriteString(" " + spec.Name)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("\nProduce the plan JSON now.")
	return b.String()
}

// repairPrompt asks the model to fix its previous malformed output.
func repairPrompt(original, badOutput string, perr error) string {
	return fmt.Sprintf("%s\n\nYour previous response could not be parsed (%v). It was:\n%s\n\nRespond again with only the corrected JSON object.",
		original, perr, badOutput)
}
