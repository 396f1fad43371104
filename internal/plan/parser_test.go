package plan

import (
	"errors"
	"reflect"
	"testing"

	"github.com/atelier-ai/atelier/pkg/models"
)

func TestParseValidPlan(t *testing.T) {
	raw := `{
		"goal": "add 2 and 3 then report",
		"steps": [
			{"id": "step_1", "description": "add", "tool": "add_numbers", "args": {"a": 2, "b": 3}, "requires": []},
			{"id": "compose_answer", "description": "report", "tool": null, "args": null, "requires": ["step_1"]}
		]
	}`

	p, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Goal != "add 2 and 3 then report" {
		t.Errorf("unexpected goal %q", p.Goal)
	}
	if len(p.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(p.Steps))
	}
	if p.Steps[0].Tool != "add_numbers" {
		t.Errorf("expected add_numbers, got %q", p.Steps[0].Tool)
	}
	if p.Steps[1].Tool != "" {
		t.Errorf("expected tool-free terminal step, got %q", p.Steps[1].Tool)
	}
}

func TestParseRejectsExtraTopLevelKeys(t *testing.T) {
	raw := `{"goal": "g", "steps": [], "notes": "extra"}`

	_, err := Parse(raw)
	var schemaErr *SchemaError
	if !errors.As(err, &schemaErr) {
		t.Fatalf("expected SchemaError, got %v", err)
	}
}

func TestParseRejectsEmptyOutput(t *testing.T) {
	for _, raw := range []string{"", "   ", "\n"} {
		if _, err := Parse(raw); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

func TestParseStripsCodeFences(t *testing.T) {
	raw := "```json\n{\"goal\": \"g\", \"steps\": []}\n```"

	p, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Goal != "g" {
		t.Errorf("unexpected goal %q", p.Goal)
	}
}

func TestParseSalvagesBraces(t *testing.T) {
	raw := `Here is the plan you asked for:
{"goal": "g", "steps": [{"id": "step_1", "description": "d", "tool": "get_time", "args": {"city": "Oslo"}, "requires": []}]}
Hope that helps!`

	p, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(p.Steps) != 1 || p.Steps[0].Tool != "get_time" {
		t.Errorf("unexpected steps: %+v", p.Steps)
	}
}

func TestParseAcceptsSingleStringRequires(t *testing.T) {
	raw := `{"goal": "g", "steps": [
		{"id": "a", "description": "d", "tool": "get_time", "args": {}, "requires": []},
		{"id": "b", "description": "d", "tool": "get_weather", "args": {}, "requires": "a"}
	]}`

	p, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !reflect.DeepEqual(p.Steps[1].Requires, []string{"a"}) {
		t.Errorf("expected requires [a], got %v", p.Steps[1].Requires)
	}
}

func TestNormalizeRewritesNumericIDs(t *testing.T) {
	p := models.Plan{
		Goal: "g",
		Steps: []models.Step{
			{ID: "0", Tool: "get_time", Args: map[string]any{"city": "Oslo"}},
			{ID: "1", Tool: "get_weather", Args: map[string]any{"city": "Oslo"}, Requires: []string{"0"}},
		},
	}

	got := Normalize(p, NewToolSet("get_time", "get_weather"))

	if got.Steps[0].ID != "step_1" {
		t.Errorf("expected step_1, got %q", got.Steps[0].ID)
	}
	if got.Steps[1].ID != "step_2" {
		t.Errorf("expected step_2, got %q", got.Steps[1].ID)
	}
	if !reflect.DeepEqual(got.Steps[1].Requires, []string{"step_1"}) {
		t.Errorf("expected remapped requires, got %v", got.Steps[1].Requires)
	}
}

func TestNormalizeCoercesUnknownTools(t *testing.T) {
	p := models.Plan{
		Goal: "g",
		Steps: []models.Step{
			{ID: "step_1", Tool: "summon_dragon", Args: map[string]any{"name": "x"}},
			{ID: models.TerminalStepID},
		},
	}

	got := Normalize(p, NewToolSet("get_time"))

	// The coerced step is kept, tool-free and marked, before the terminal.
	if len(got.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(got.Steps))
	}
	first := got.Steps[0]
	if first.ID != "step_1" || first.Tool != "" || !first.CoercedUnknown {
		t.Errorf("expected coerced step, got %+v", first)
	}
}

func TestNormalizeAppendsMissingComposeAnswer(t *testing.T) {
	p := models.Plan{
		Goal:  "g",
		Steps: []models.Step{{ID: "step_1", Tool: "get_time", Args: map[string]any{}}},
	}

	got := Normalize(p, NewToolSet("get_time"))

	last := got.Steps[len(got.Steps)-1]
	if last.ID != models.TerminalStepID {
		t.Fatalf("expected terminal step appended, got %+v", got.Steps)
	}
	if !reflect.DeepEqual(last.Requires, []string{"step_1"}) {
		t.Errorf("expected compose to require step_1, got %v", last.Requires)
	}
}

func TestNormalizePrunesIntermediateToolFreeSteps(t *testing.T) {
	p := models.Plan{
		Goal: "g",
		Steps: []models.Step{
			{ID: "think", Description: "reason about it"},
			{ID: "step_1", Tool: "get_time", Args: map[string]any{}},
			{ID: models.TerminalStepID},
		},
	}

	got := Normalize(p, NewToolSet("get_time"))

	for _, s := range got.Steps {
		if s.ID == "think" {
			t.Fatal("expected intermediate tool-free step to be pruned")
		}
	}
	if len(got.Steps) != 2 {
		t.Errorf("expected 2 steps, got %d", len(got.Steps))
	}
}

func TestNormalizeDropsBogusRequires(t *testing.T) {
	p := models.Plan{
		Goal: "g",
		Steps: []models.Step{
			{ID: "step_1", Tool: "get_time", Args: map[string]any{}, Requires: []string{"step_1", "ghost"}},
			{ID: models.TerminalStepID},
		},
	}

	got := Normalize(p, NewToolSet("get_time"))

	if len(got.Steps[0].Requires) != 0 {
		t.Errorf("expected self and unknown requires dropped, got %v", got.Steps[0].Requires)
	}
}
