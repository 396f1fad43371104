package agent

import (
	"context"
	"strings"
	"testing"

	"github.com/atelier-ai/atelier/internal/tools"
	"github.com/atelier-ai/atelier/pkg/models"
)

func demoRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()
	if err := tools.RegisterBuiltins(r, nil); err != nil {
		t.Fatalf("register builtins: %v", err)
	}
	return r
}

const failPlanJSON = `{
	"goal": "try the failing tool",
	"steps": [
		{"id": "step_1", "description": "fail", "tool": "always_fail", "args": {}, "requires": []},
		{"id": "compose_answer", "description": "report", "tool": null, "args": {}, "requires": ["step_1"]}
	]
}`

type sinkRecorder struct {
	episodes []models.Episode
}

func (s *sinkRecorder) SaveEpisode(ep models.Episode) error {
	s.episodes = append(s.episodes, ep)
	return nil
}

func TestRunHappyPath(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{addPlanJSON}}
	sink := &sinkRecorder{}
	a := New(gen, demoRegistry(t), WithEpisodeSink(sink))

	result := a.Run(context.Background(), "add 2 and 3 then report")

	if result.Status != models.ResultOK {
		t.Errorf("expected ok, got %s", result.Status)
	}
	if !strings.Contains(result.FinalAnswer, "5") {
		t.Errorf("expected answer to contain 5, got:\n%s", result.FinalAnswer)
	}
	if len(result.Observations) != 1 || result.Observations[0].Status != models.ObservationOK {
		t.Errorf("unexpected observations %+v", result.Observations)
	}
	if len(sink.episodes) != 1 {
		t.Fatalf("expected one episode, got %d", len(sink.episodes))
	}
	if sink.episodes[0].FinalAnswer != result.FinalAnswer {
		t.Error("episode answer must match the result")
	}
	if len(sink.episodes[0].ToolCalls) != 1 || sink.episodes[0].ToolCalls[0].Tool != "add_numbers" {
		t.Errorf("unexpected tool calls %+v", sink.episodes[0].ToolCalls)
	}
}

func TestRunHardFailureTakesFallback(t *testing.T) {
	// always_fail is the only planned tool; after it hard-fails the
	// replanner has nothing viable left and must fall back.
	gen := &scriptedGenerator{outputs: []string{failPlanJSON}}
	a := New(gen, demoRegistry(t))

	result := a.Run(context.Background(), "try the failing tool")

	if result.Status != models.ResultDegraded {
		t.Errorf("expected degraded, got %s", result.Status)
	}
	if !strings.Contains(result.FinalAnswer, "fail") && !strings.Contains(result.FinalAnswer, "error") {
		t.Errorf("answer must acknowledge the failure:\n%s", result.FinalAnswer)
	}
	hardSeen := false
	for _, obs := range result.Observations {
		if obs.Status == models.ObservationHardFailure {
			hardSeen = true
		}
	}
	if !hardSeen {
		t.Error("expected the hard failure recorded")
	}
}

func TestRunNeverRetriesForbiddenTool(t *testing.T) {
	calls := 0
	r := tools.NewRegistry()
	if err := r.RegisterLocal(tools.ToolSpec{Name: "fragile"}, func(context.Context, map[string]any) (any, error) {
		calls++
		return nil, context.DeadlineExceeded
	}); err != nil {
		t.Fatal(err)
	}

	// The generator keeps proposing the same fragile plan; the forbidden
	// set must stop a second invocation regardless.
	raw := `{"goal": "g", "steps": [
		{"id": "step_1", "description": "x", "tool": "fragile", "args": {}, "requires": []},
		{"id": "compose_answer", "description": "r", "tool": null, "args": {}, "requires": ["step_1"]}
	]}`
	gen := &scriptedGenerator{outputs: []string{raw}}
	a := New(gen, r)

	result := a.Run(context.Background(), "g")
	if calls != 1 {
		t.Errorf("non-transient tool invoked %d times, want 1", calls)
	}
	if result.Status != models.ResultDegraded {
		t.Errorf("expected degraded, got %s", result.Status)
	}
}

func TestRunRetriesTransientToolOnce(t *testing.T) {
	calls := 0
	r := tools.NewRegistry()
	if err := r.RegisterLocal(tools.ToolSpec{Name: "flaky", Transient: true}, func(context.Context, map[string]any) (any, error) {
		calls++
		if calls == 1 {
			return nil, context.DeadlineExceeded
		}
		return "second time lucky", nil
	}); err != nil {
		t.Fatal(err)
	}

	raw := `{"goal": "g", "steps": [
		{"id": "step_1", "description": "x", "tool": "flaky", "args": {}, "requires": []},
		{"id": "compose_answer", "description": "r", "tool": null, "args": {}, "requires": ["step_1"]}
	]}`
	gen := &scriptedGenerator{outputs: []string{raw}}
	a := New(gen, r)

	result := a.Run(context.Background(), "g")
	if calls != 2 {
		t.Errorf("transient tool invoked %d times, want 2", calls)
	}
	if result.Status != models.ResultOK {
		t.Errorf("expected ok after transient retry, got %s", result.Status)
	}
	if !strings.Contains(result.FinalAnswer, "second time lucky") {
		t.Errorf("expected retried result in answer:\n%s", result.FinalAnswer)
	}
}

func TestRunTerminatesWithinOneReplan(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{failPlanJSON}}
	var states []State
	a := New(gen, demoRegistry(t), WithStateListener(func(s State) {
		states = append(states, s)
	}))

	result := a.Run(context.Background(), "try the failing tool")

	replans := 0
	for _, s := range states {
		if s == StateReplanning {
			replans++
		}
	}
	if replans > 1 {
		t.Errorf("expected at most one replanning pass, got %d", replans)
	}
	if states[len(states)-1] != StateDone {
		t.Errorf("run must end in DONE, got %s", states[len(states)-1])
	}
	if result.FinalAnswer == "" {
		t.Error("run must never end without composer output")
	}
}

func TestRunPlannerFailureStillComposes(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{"not json at all"}}
	a := New(gen, demoRegistry(t))

	result := a.Run(context.Background(), "some goal")

	if result.FinalAnswer == "" {
		t.Fatal("composer output required even when planning fails")
	}
	if result.Status != models.ResultDegraded {
		t.Errorf("expected degraded, got %s", result.Status)
	}
}

func TestRunSoftFailureCompletesOK(t *testing.T) {
	raw := `{"goal": "g", "steps": [
		{"id": "step_1", "description": "soft", "tool": "soft_fail", "args": {"reason": "quota"}, "requires": []},
		{"id": "step_2", "description": "time", "tool": "get_time", "args": {"city": "Oslo"}, "requires": []},
		{"id": "compose_answer", "description": "r", "tool": null, "args": {}, "requires": ["step_1", "step_2"]}
	]}`
	gen := &scriptedGenerator{outputs: []string{raw}}
	a := New(gen, demoRegistry(t))

	result := a.Run(context.Background(), "g")

	if result.Status != models.ResultOK {
		t.Errorf("soft failure must not degrade the run, got %s", result.Status)
	}
	if len(result.Observations) != 2 {
		t.Fatalf("expected both steps observed, got %d", len(result.Observations))
	}
	if !strings.Contains(result.FinalAnswer, "quota") {
		t.Errorf("soft failure must be surfaced:\n%s", result.FinalAnswer)
	}
	if !strings.Contains(result.FinalAnswer, "Time in Oslo") {
		t.Errorf("successful step output missing:\n%s", result.FinalAnswer)
	}
}

func TestRunDoesNotReinvokeSoftFailedTool(t *testing.T) {
	// step_1 soft-fails with a non-retryable payload, step_2 hard-fails and
	// forces a replan. The corrected plan must run step_3 without touching
	// the quota tool again, and step_1 stays observed exactly once.
	quotaCalls := 0
	r := tools.NewRegistry()
	if err := r.RegisterLocal(tools.ToolSpec{Name: "quota"}, func(context.Context, map[string]any) (any, error) {
		quotaCalls++
		return tools.SoftFailurePayload("quota exhausted", false), nil
	}); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterLocal(tools.ToolSpec{Name: "boom"}, func(context.Context, map[string]any) (any, error) {
		return nil, context.DeadlineExceeded
	}); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterLocal(tools.ToolSpec{Name: "later"}, func(context.Context, map[string]any) (any, error) {
		return "made it", nil
	}); err != nil {
		t.Fatal(err)
	}

	raw := `{"goal": "g", "steps": [
		{"id": "step_1", "description": "q", "tool": "quota", "args": {}, "requires": []},
		{"id": "step_2", "description": "b", "tool": "boom", "args": {}, "requires": []},
		{"id": "step_3", "description": "l", "tool": "later", "args": {}, "requires": []},
		{"id": "compose_answer", "description": "r", "tool": null, "args": {}, "requires": ["step_1", "step_2", "step_3"]}
	]}`
	gen := &scriptedGenerator{outputs: []string{raw}}
	a := New(gen, r)

	result := a.Run(context.Background(), "g")

	if quotaCalls != 1 {
		t.Errorf("soft-failed tool invoked %d times, want 1", quotaCalls)
	}
	step1Seen := 0
	for _, obs := range result.Observations {
		if obs.StepID == "step_1" {
			step1Seen++
		}
	}
	if step1Seen != 1 {
		t.Errorf("step_1 observed %d times, want 1", step1Seen)
	}
	if result.Status != models.ResultOK {
		t.Errorf("expected ok after replan, got %s", result.Status)
	}
	if !strings.Contains(result.FinalAnswer, "made it") {
		t.Errorf("expected the surviving step's output:\n%s", result.FinalAnswer)
	}
}

func TestRunUsesRecallContext(t *testing.T) {
	gen := &scriptedGenerator{outputs: []string{addPlanJSON}}
	recalled := false
	a := New(gen, demoRegistry(t), WithRecall(func(goal string) string {
		recalled = true
		return "Relevant past episodes:\n- goal: earlier sums\n"
	}))

	a.Run(context.Background(), "add 2 and 3 then report")

	if !recalled {
		t.Error("expected recall hook invoked")
	}
	if !strings.Contains(gen.prompts[0], "earlier sums") {
		t.Error("expected recalled context in planning prompt")
	}
}
