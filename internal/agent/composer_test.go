package agent

import (
	"strings"
	"testing"

	"github.com/atelier-ai/atelier/internal/tools"
	"github.com/atelier-ai/atelier/pkg/models"
)

func TestComposeRendersOKResults(t *testing.T) {
	p := models.Plan{
		Goal: "add 2 and 3 then report",
		Steps: []models.Step{
			{ID: "step_1", Tool: "add_numbers", Args: map[string]any{"a": 2.0, "b": 3.0}},
			{ID: models.TerminalStepID},
		},
	}
	obs := []models.Observation{
		{StepID: "step_1", Status: models.ObservationOK, Payload: 5.0},
	}

	out := Compose(p, obs)
	if !strings.Contains(out, "5") {
		t.Errorf("expected answer to contain the sum, got:\n%s", out)
	}
	if !strings.Contains(out, "add_numbers") {
		t.Errorf("expected tool label, got:\n%s", out)
	}
	if strings.Contains(out, "failed") {
		t.Errorf("no failures happened, got:\n%s", out)
	}
}

func TestComposeSurfacesFailures(t *testing.T) {
	p := models.Plan{
		Goal: "add 2 and 3 then report",
		Steps: []models.Step{
			{ID: "step_1", Tool: "add_numbers"},
			{ID: models.TerminalStepID},
		},
	}
	obs := []models.Observation{
		{StepID: "step_1", Status: models.ObservationHardFailure, Error: &models.ErrorPayload{Type: "tool_fault", Message: "boom"}},
	}

	out := Compose(p, obs)
	if !strings.Contains(out, "boom") {
		t.Errorf("expected failure message surfaced, got:\n%s", out)
	}
	if !strings.Contains(out, "All planned actions failed") {
		t.Errorf("expected all-failed notice, got:\n%s", out)
	}
	if strings.Contains(out, "5") {
		t.Errorf("must not invent a numeric result, got:\n%s", out)
	}
}

func TestComposeMarksPartialResults(t *testing.T) {
	p := models.Plan{
		Goal: "mixed",
		Steps: []models.Step{
			{ID: "step_1", Tool: "get_time"},
			{ID: "step_2", Tool: "soft_fail"},
			{ID: models.TerminalStepID},
		},
	}
	obs := []models.Observation{
		{StepID: "step_1", Status: models.ObservationOK, Payload: "Time in Oslo: 12:00 (stubbed)"},
		{StepID: "step_2", Status: models.ObservationSoftFailure, Payload: tools.SoftFailurePayload("quota", false)},
	}

	out := Compose(p, obs)
	if !strings.Contains(out, "quota") {
		t.Errorf("expected soft-failure reason, got:\n%s", out)
	}
	if !strings.Contains(out, "Some actions failed") {
		t.Errorf("expected partial notice, got:\n%s", out)
	}
}

func TestComposeWithNoObservations(t *testing.T) {
	out := Compose(models.Plan{Goal: "nothing ran"}, nil)
	if out == "" {
		t.Fatal("composer must always produce output")
	}
	if !strings.Contains(out, "nothing ran") {
		t.Errorf("expected goal mentioned, got:\n%s", out)
	}
}

func TestComposeIsDeterministic(t *testing.T) {
	p := models.Plan{Goal: "g", Steps: []models.Step{{ID: "s", Tool: "get_time"}, {ID: models.TerminalStepID}}}
	obs := []models.Observation{{StepID: "s", Status: models.ObservationOK, Payload: "x"}}
	if Compose(p, obs) != Compose(p, obs) {
		t.Error("same observations must compose to the same text")
	}
}

func TestRenderValue(t *testing.T) {
	cases := []struct {
		in   any
		want string
	}{
		{5.0, "5"},
		{2.5, "2.5"},
		{"hi", "hi"},
		{true, "true"},
		{nil, "(no output)"},
		{map[string]any{"k": "v"}, `{"k":"v"}`},
	}
	for _, tc := range cases {
		if got := renderValue(tc.in); got != tc.want {
			t.Errorf("renderValue(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
