package models

// WorkItem is one unit of orchestrated work routed to a role-configured
// agent. Immutable after creation; consumed exactly once by exactly one
// agent instance.
type WorkItem struct {
	// ID is unique within a run.
	ID string `json:"id" yaml:"id"`
	// AssignedAgent is the role name that selects the agent configuration.
	AssignedAgent string `json:"assigned_agent" yaml:"assigned_agent"`
	// Goal is the natural-language goal for this item.
	Goal string `json:"goal" yaml:"goal"`
	// Inputs are initial context values passed into the agent goal.
	Inputs map[string]any `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	// ExpectedOutput optionally describes the shape of the result.
	ExpectedOutput map[string]any `json:"expected_output,omitempty" yaml:"expected_output,omitempty"`
	// DependsOn lists artifact keys (typically "<item-id>.output") that
	// must exist in the run context before this item may start.
	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

// ResultStatus classifies a completed agent run at the orchestration level.
type ResultStatus string

const (
	// ResultOK indicates the run completed through the normal compose path.
	ResultOK ResultStatus = "ok"
	// ResultDegraded indicates the run completed via the tool-free
	// fallback path. Still a successful result.
	ResultDegraded ResultStatus = "degraded"
	// ResultTimeout indicates the work item exceeded its per-item timeout.
	ResultTimeout ResultStatus = "timeout"
	// ResultFailed indicates the run ended on a structural failure that
	// produced only an explanatory answer.
	ResultFailed ResultStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s ResultStatus) Valid() bool {
	switch s {
	case ResultOK, ResultDegraded, ResultTimeout, ResultFailed:
		return true
	default:
		return false
	}
}

// Success reports whether the result carries a usable answer. Degraded runs
// count: the fallback path still composes from existing observations.
func (s ResultStatus) Success() bool {
	return s == ResultOK || s == ResultDegraded
}

// AgentResult is what an agent run returns to the orchestrator. Written
// exactly once per work item id, append-only.
type AgentResult struct {
	// WorkItemID links the result to its work item.
	WorkItemID string `json:"work_item_id"`
	// FinalAnswer is the composed user-facing answer.
	FinalAnswer string `json:"final_answer"`
	// Observations are the recorded step outcomes, in execution order.
	Observations []Observation `json:"observations"`
	// Status classifies how the run completed.
	Status ResultStatus `json:"status"`
}
