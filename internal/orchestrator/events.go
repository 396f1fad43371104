// Package orchestrator coordinates role-configured agents over an ordered
// work-item queue and merges their answers deterministically.
package orchestrator

import (
	"time"
)

// EventType represents the type of trace event.
type EventType string

const (
	// EventItemQueued indicates a work item was accepted into the queue.
	EventItemQueued EventType = "item_queued"
	// EventItemStarted indicates an agent began executing a work item.
	EventItemStarted EventType = "item_started"
	// EventItemCompleted indicates a work item produced a result.
	EventItemCompleted EventType = "item_completed"
	// EventItemTimeout indicates a work item exceeded its timeout.
	EventItemTimeout EventType = "item_timeout"
	// EventMergeCompleted indicates the run's answers were merged.
	EventMergeCompleted EventType = "merge_completed"
	// EventRunDone indicates the entire run is complete.
	EventRunDone EventType = "run_done"
)

// TraceEvent is one entry of the run's append-only trace log.
type TraceEvent struct {
	// Type is the kind of event.
	Type EventType
	// RunID identifies the orchestration run.
	RunID string
	// WorkItemID is the related work item, if applicable.
	WorkItemID string
	// Role is the assigned agent role, if applicable.
	Role string
	// Message provides additional context.
	Message string
	// Timestamp is when the event was emitted.
	Timestamp time.Time
}
