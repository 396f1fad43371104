package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atelier-ai/atelier/pkg/models"
)

// GoalRunner is the one contract the orchestrator needs from an agent.
type GoalRunner interface {
	Run(ctx context.Context, goal string) models.AgentResult
}

// AgentFactory creates a runner configured for a role.
type AgentFactory func(role Role) (GoalRunner, error)

// DuplicateWorkItemError indicates a submitted work item id already in the
// queue.
type DuplicateWorkItemError struct {
	// ID is the duplicate work item id.
	ID string
}

func (e *DuplicateWorkItemError) Error() string {
	return fmt.Sprintf("work item %q is already submitted", e.ID)
}

// State is the run-scoped orchestration state. Owned exclusively by the
// orchestrator; no agent instance ever holds or mutates it.
type State struct {
	mu sync.Mutex
	// RunID identifies this orchestration run.
	RunID string
	// UserGoal is the original goal, when decomposition produced the queue.
	UserGoal string
	// Context is the append-only artifact map.
	Context *RunContext
	// queue is the ordered work-item sequence.
	queue []models.WorkItem
	// results maps work item id to its result. Append-only: first write
	// wins, so merge order reconstructs from queue order alone.
	results map[string]models.AgentResult
	// trace is the append-only event log.
	trace []TraceEvent
}

func newState() *State {
	return &State{
		RunID:   uuid.New().String()[:8],
		Context: NewRunContext(),
		results: make(map[string]models.AgentResult),
	}
}

// Orchestrator coordinates one run: an ordered work-item queue executed by
// role-configured agents, with deterministic submission-order merge.
type Orchestrator struct {
	factory   AgentFactory
	roles     *RoleRegistry
	scheduler Scheduler
	emitter   *EventEmitter
	logger    *DebugLogger
	state     *State
	submitted map[string]bool
	mu        sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRoles sets the role registry. Defaults to the built-in roles.
func WithRoles(r *RoleRegistry) Option {
	return func(o *Orchestrator) { o.roles = r }
}

// WithScheduler sets the scheduling strategy. Defaults to sequential.
func WithScheduler(s Scheduler) Option {
	return func(o *Orchestrator) { o.scheduler = s }
}

// WithEmitter sets the trace event emitter.
func WithEmitter(e *EventEmitter) Option {
	return func(o *Orchestrator) { o.emitter = e }
}

// WithDebugLogger sets the debug logger.
func WithDebugLogger(l *DebugLogger) Option {
	return func(o *Orchestrator) {
		o.logger = l
		setPackageLogger(l)
	}
}

// New creates an orchestrator for one run.
func New(factory AgentFactory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		factory:   factory,
		roles:     NewRoleRegistry(DefaultRoles()...),
		scheduler: NewSequentialScheduler(),
		logger:    NopLogger(),
		state:     newState(),
		submitted: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// RunID returns this run's id.
func (o *Orchestrator) RunID() string {
	return o.state.RunID
}

// Submit appends work items to the queue, validating id uniqueness and role
// resolvability. Rejects the whole batch on the first violation.
func (o *Orchestrator) Submit(items ...models.WorkItem) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, item := range items {
		if item.ID == "" {
			return fmt.Errorf("work item has no id")
		}
		if o.submitted[item.ID] {
			return &DuplicateWorkItemError{ID: item.ID}
		}
		if _, err := o.roles.Resolve(item.AssignedAgent); err != nil {
			return fmt.Errorf("work item %q: %w", item.ID, err)
		}
	}

	for _, item := range items {
		o.submitted[item.ID] = true
		o.state.queue = append(o.state.queue, item)
		o.trace(TraceEvent{Type: EventItemQueued, WorkItemID: item.ID, Role: item.AssignedAgent})
	}
	return nil
}

// Run executes the queue through the configured scheduler and returns the
// merged response. Merge order is always submission order, independent of
// completion order.
func (o *Orchestrator) Run(ctx context.Context) (string, error) {
	o.mu.Lock()
	queue := append([]models.WorkItem(nil), o.state.queue...)
	o.mu.Unlock()

	if len(queue) == 0 {
		return "", fmt.Errorf("no work items submitted")
	}

	o.logger.Log("run %s: executing %d work items", o.state.RunID, len(queue))

	if err := o.scheduler.Execute(ctx, queue, o.state.Context, o.runItem); err != nil {
		return "", fmt.Errorf("schedule run: %w", err)
	}

	merged := Merge(queue, o.Results())
	o.trace(TraceEvent{Type: EventMergeCompleted, Message: fmt.Sprintf("%d results merged", len(queue))})
	o.trace(TraceEvent{Type: EventRunDone})
	o.logger.Log("run %s: done", o.state.RunID)
	return merged, nil
}

// runItem executes one work item through a role-configured agent and records
// the result. Agents never leak raw errors upward: every outcome becomes a
// completed AgentResult.
func (o *Orchestrator) runItem(ctx context.Context, item models.WorkItem) models.AgentResult {
	o.trace(TraceEvent{Type: EventItemStarted, WorkItemID: item.ID, Role: item.AssignedAgent})

	role, err := o.roles.Resolve(item.AssignedAgent)
	if err != nil {
		// Submit validates roles; a miss here means the registry changed.
		return o.record(item, models.AgentResult{
			FinalAnswer: fmt.Sprintf("Work item %q could not run: %v", item.ID, err),
			Status:      models.ResultFailed,
		})
	}

	runner, err := o.factory(role)
	if err != nil {
		return o.record(item, models.AgentResult{
			FinalAnswer: fmt.Sprintf("Work item %q could not run: no agent available for role %q: %v", item.ID, role.Name, err),
			Status:      models.ResultFailed,
		})
	}

	goal := ComposeGoal(item, o.state.Context.Snapshot(item.DependsOn))

	resCh := make(chan models.AgentResult, 1)
	go func() {
		resCh <- runner.Run(ctx, goal)
	}()

	var res models.AgentResult
	select {
	case res = <-resCh:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			o.trace(TraceEvent{Type: EventItemTimeout, WorkItemID: item.ID})
			res = models.AgentResult{
				FinalAnswer: fmt.Sprintf("Work item %q timed out before completing.", item.ID),
				Status:      models.ResultTimeout,
			}
		} else {
			res = models.AgentResult{
				FinalAnswer: fmt.Sprintf("Work item %q was cancelled.", item.ID),
				Status:      models.ResultFailed,
			}
		}
	}

	return o.record(item, res)
}

// record stores the result append-only and publishes the item's output
// artifact for dependents.
func (o *Orchestrator) record(item models.WorkItem, res models.AgentResult) models.AgentResult {
	res.WorkItemID = item.ID

	o.state.mu.Lock()
	_, exists := o.state.results[item.ID]
	if !exists {
		o.state.results[item.ID] = res
	}
	o.state.mu.Unlock()
	if exists {
		debugLog("run %s: duplicate result for %s dropped", o.state.RunID, item.ID)
		return res
	}

	if res.Status.Success() {
		if err := o.state.Context.Publish(Artifact{
			Key:      OutputKey(item.ID),
			Value:    res.FinalAnswer,
			Producer: item.ID,
			Metadata: map[string]any{"status": string(res.Status)},
		}); err != nil {
			debugLog("run %s: publish artifact for %s: %v", o.state.RunID, item.ID, err)
		}
	}

	o.trace(TraceEvent{
		Type:       EventItemCompleted,
		WorkItemID: item.ID,
		Role:       item.AssignedAgent,
		Message:    string(res.Status),
	})
	o.logger.Log("run %s: item %s finished with status %s", o.state.RunID, item.ID, res.Status)
	return res
}

// Results returns a copy of the recorded results keyed by work item id.
func (o *Orchestrator) Results() map[string]models.AgentResult {
	o.state.mu.Lock()
	defer o.state.mu.Unlock()

	out := make(map[string]models.AgentResult, len(o.state.results))
	for k, v := range o.state.results {
		out[k] = v
	}
	return out
}

// Trace returns a copy of the trace log in emission order.
func (o *Orchestrator) Trace() []TraceEvent {
	o.state.mu.Lock()
	defer o.state.mu.Unlock()
	return append([]TraceEvent(nil), o.state.trace...)
}

func (o *Orchestrator) trace(ev TraceEvent) {
	ev.RunID = o.state.RunID
	ev.Timestamp = time.Now().UTC()

	o.state.mu.Lock()
	o.state.trace = append(o.state.trace, ev)
	o.state.mu.Unlock()

	if o.emitter != nil {
		o.emitter.Emit(ev)
	}
}
