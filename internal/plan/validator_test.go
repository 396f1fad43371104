package plan

import (
	"errors"
	"testing"

	"github.com/atelier-ai/atelier/pkg/models"
)

func validPlan() models.Plan {
	return models.Plan{
		Goal: "g",
		Steps: []models.Step{
			{ID: "step_1", Tool: "get_time", Args: map[string]any{"city": "Oslo"}},
			{ID: models.TerminalStepID, Requires: []string{"step_1"}},
		},
	}
}

func TestValidateAcceptsValidPlan(t *testing.T) {
	err := Validate(validPlan(), NewToolSet("get_time"), NewToolSet())
	if err != nil {
		t.Fatalf("expected valid plan, got %v", err)
	}
}

func TestValidateRejectsUnknownTool(t *testing.T) {
	p := validPlan()
	p.Steps[0].Tool = "summon_dragon"

	err := Validate(p, NewToolSet("get_time"), NewToolSet())
	assertViolation(t, err, RuleUnknownTool, "step_1")
}

func TestValidateRejectsForbiddenTool(t *testing.T) {
	err := Validate(validPlan(), NewToolSet("get_time"), NewToolSet("get_time"))
	assertViolation(t, err, RuleForbiddenTool, "step_1")
}

func TestValidateRejectsSymbolicArgs(t *testing.T) {
	cases := []map[string]any{
		{"city": map[string]any{"$ref": "#/steps/step_1/result"}},
		{"city": "$ref:step_1"},
		{"city": "steps/step_1/result"},
		{"nested": []any{map[string]any{"$ref": "x"}}},
	}

	for _, args := range cases {
		p := validPlan()
		p.Steps[0].Args = args
		err := Validate(p, NewToolSet("get_time"), NewToolSet())
		assertViolation(t, err, RuleSymbolicArgs, "step_1")
	}
}

func TestValidateRejectsMissingTerminalStep(t *testing.T) {
	p := models.Plan{
		Goal:  "g",
		Steps: []models.Step{{ID: "step_1", Tool: "get_time", Args: map[string]any{}}},
	}

	err := Validate(p, NewToolSet("get_time"), NewToolSet())
	assertViolation(t, err, RuleTerminalStep, "")
}

func TestValidateRejectsDuplicateTerminalStep(t *testing.T) {
	p := validPlan()
	p.Steps = append([]models.Step{{ID: models.TerminalStepID}}, p.Steps...)

	err := Validate(p, NewToolSet("get_time"), NewToolSet())
	assertViolation(t, err, RuleDuplicateStep, models.TerminalStepID)
}

func TestValidateRejectsToolBearingTerminalStep(t *testing.T) {
	p := validPlan()
	p.Steps[1].Tool = "get_time"
	p.Steps[1].Args = map[string]any{}

	err := Validate(p, NewToolSet("get_time"), NewToolSet())
	assertViolation(t, err, RuleTerminalStep, models.TerminalStepID)
}

func TestValidateRejectsDependentOnTerminalStep(t *testing.T) {
	p := models.Plan{
		Goal: "g",
		Steps: []models.Step{
			{ID: models.TerminalStepID},
			{ID: "step_1", Tool: "get_time", Args: map[string]any{}, Requires: []string{models.TerminalStepID}},
		},
	}

	err := Validate(p, NewToolSet("get_time"), NewToolSet())
	if err == nil {
		t.Fatal("expected violation")
	}
}

func TestValidateRejectsForwardRequires(t *testing.T) {
	p := models.Plan{
		Goal: "g",
		Steps: []models.Step{
			{ID: "step_1", Tool: "get_time", Args: map[string]any{}, Requires: []string{"step_2"}},
			{ID: "step_2", Tool: "get_weather", Args: map[string]any{}},
			{ID: models.TerminalStepID, Requires: []string{"step_1", "step_2"}},
		},
	}

	err := Validate(p, NewToolSet("get_time", "get_weather"), NewToolSet())
	assertViolation(t, err, RuleRequires, "step_1")
}

func TestValidateRejectsDuplicateStepIDs(t *testing.T) {
	p := validPlan()
	p.Steps = append([]models.Step{{ID: "step_1", Tool: "get_time", Args: map[string]any{}}}, p.Steps...)

	err := Validate(p, NewToolSet("get_time"), NewToolSet())
	assertViolation(t, err, RuleDuplicateStep, "step_1")
}

func TestValidateRejectsIntermediateToolFreeStep(t *testing.T) {
	p := models.Plan{
		Goal: "g",
		Steps: []models.Step{
			{ID: "ponder", Description: "think hard"},
			{ID: models.TerminalStepID},
		},
	}

	err := Validate(p, NewToolSet(), NewToolSet())
	assertViolation(t, err, RuleTerminalStep, "ponder")
}

func TestValidateAllowsCoercedUnknownStep(t *testing.T) {
	p := models.Plan{
		Goal: "g",
		Steps: []models.Step{
			{ID: "step_1", CoercedUnknown: true},
			{ID: models.TerminalStepID},
		},
	}

	if err := Validate(p, NewToolSet(), NewToolSet()); err != nil {
		t.Fatalf("expected coerced step to pass, got %v", err)
	}
}

func assertViolation(t *testing.T, err error, rule, stepID string) {
	t.Helper()
	var gv *GuardrailViolation
	if !errors.As(err, &gv) {
		t.Fatalf("expected GuardrailViolation, got %v", err)
	}
	if gv.Rule != rule {
		t.Errorf("expected rule %q, got %q (%v)", rule, gv.Rule, gv)
	}
	if stepID != "" && gv.StepID != stepID {
		t.Errorf("expected step %q, got %q (%v)", stepID, gv.StepID, gv)
	}
}
