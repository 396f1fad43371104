package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestObservationStatusValid(t *testing.T) {
	valid := []ObservationStatus{ObservationOK, ObservationSoftFailure, ObservationHardFailure}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("expected %q to be valid", s)
		}
	}

	invalid := []ObservationStatus{"", "done", "OK", "hard"}
	for _, s := range invalid {
		if s.Valid() {
			t.Errorf("expected %q to be invalid", s)
		}
	}
}

func TestPlanTerminalStep(t *testing.T) {
	plan := Plan{
		Goal: "test",
		Steps: []Step{
			{ID: "step_1", Tool: "get_time", Args: map[string]any{"city": "Oslo"}},
			{ID: TerminalStepID, Requires: []string{"step_1"}},
		},
	}

	term := plan.TerminalStep()
	if term == nil {
		t.Fatal("expected terminal step")
	}
	if term.ID != TerminalStepID {
		t.Errorf("expected id %q, got %q", TerminalStepID, term.ID)
	}

	empty := Plan{Goal: "no steps"}
	if empty.TerminalStep() != nil {
		t.Error("expected nil terminal step for empty plan")
	}
}

func TestPlanToolSteps(t *testing.T) {
	plan := Plan{
		Steps: []Step{
			{ID: "step_1", Tool: "get_time"},
			{ID: "step_2", Tool: "get_weather"},
			{ID: TerminalStepID},
		},
	}

	got := plan.ToolSteps()
	if len(got) != 2 {
		t.Fatalf("expected 2 tool steps, got %d", len(got))
	}
	if got[0].ID != "step_1" || got[1].ID != "step_2" {
		t.Errorf("tool steps out of order: %v", got)
	}
}

func TestStepMarshalJSONToolFreeEmitsNull(t *testing.T) {
	step := Step{ID: TerminalStepID, Description: "compose"}

	data, err := json.Marshal(step)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	s := string(data)
	if !strings.Contains(s, `"tool":null`) {
		t.Errorf("expected null tool, got %s", s)
	}
	if !strings.Contains(s, `"requires":[]`) {
		t.Errorf("expected empty requires array, got %s", s)
	}
}

func TestStepMarshalJSONToolStep(t *testing.T) {
	step := Step{
		ID:       "step_1",
		Tool:     "get_time",
		Args:     map[string]any{"city": "Oslo"},
		Requires: []string{},
	}

	data, err := json.Marshal(step)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded struct {
		Tool *string        `json:"tool"`
		Args map[string]any `json:"args"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Tool == nil || *decoded.Tool != "get_time" {
		t.Errorf("expected tool get_time, got %v", decoded.Tool)
	}
	if decoded.Args["city"] != "Oslo" {
		t.Errorf("expected city arg, got %v", decoded.Args)
	}
}

func TestResultStatusValid(t *testing.T) {
	valid := []ResultStatus{ResultOK, ResultDegraded, ResultTimeout, ResultFailed}
	for _, s := range valid {
		if !s.Valid() {
			t.Errorf("expected %q to be valid", s)
		}
	}
	if ResultStatus("cancelled").Valid() {
		t.Error("expected unknown status to be invalid")
	}
}

func TestResultStatusSuccess(t *testing.T) {
	cases := []struct {
		status ResultStatus
		want   bool
	}{
		{ResultOK, true},
		{ResultDegraded, true},
		{ResultTimeout, false},
		{ResultFailed, false},
	}
	for _, tc := range cases {
		if got := tc.status.Success(); got != tc.want {
			t.Errorf("Success(%q) = %v, want %v", tc.status, got, tc.want)
		}
	}
}
