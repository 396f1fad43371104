package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atelier-ai/atelier/pkg/models"
)

// runItemFunc executes one work item and returns its recorded result. The
// orchestrator supplies it; schedulers only decide ordering and concurrency.
type runItemFunc func(ctx context.Context, item models.WorkItem) models.AgentResult

// Scheduler executes a queue of work items. Implementations sit behind one
// interface so the sequential base and the bounded-pool extension are
// interchangeable without touching agent or merge code.
type Scheduler interface {
	Execute(ctx context.Context, queue []models.WorkItem, runCtx *RunContext, run runItemFunc) error
}

// DependencyConflictError indicates work items that cannot run under the
// requested scheduling policy because of a declared cross-item dependency.
type DependencyConflictError struct {
	// ItemID is the dependent work item.
	ItemID string
	// Keys are the artifact keys it depends on.
	Keys []string
}

func (e *DependencyConflictError) Error() string {
	return fmt.Sprintf("work item %q declares dependencies (%s) and cannot be scheduled concurrently", e.ItemID, strings.Join(e.Keys, ", "))
}

// SequentialScheduler runs items one at a time in dependency waves: an item
// is runnable once every artifact it depends on is published. Within a wave,
// submission order is kept.
type SequentialScheduler struct{}

// NewSequentialScheduler creates the base scheduler.
func NewSequentialScheduler() *SequentialScheduler {
	return &SequentialScheduler{}
}

func (s *SequentialScheduler) Execute(ctx context.Context, queue []models.WorkItem, runCtx *RunContext, run runItemFunc) error {
	pending := append([]models.WorkItem(nil), queue...)

	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		var wave, blocked []models.WorkItem
		for _, item := range pending {
			if len(runCtx.Missing(item.DependsOn)) == 0 {
				wave = append(wave, item)
			} else {
				blocked = append(blocked, item)
			}
		}

		if len(wave) == 0 {
			// Nothing runnable but work remains: the dependency graph has a
			// cycle or references an artifact no item produces.
			var details []string
			for _, item := range blocked {
				details = append(details, fmt.Sprintf("%s waits for %s", item.ID, strings.Join(runCtx.Missing(item.DependsOn), ", ")))
			}
			return fmt.Errorf("no runnable work items: %s", strings.Join(details, "; "))
		}

		debugLog("scheduler: wave of %d items (%d blocked)", len(wave), len(blocked))
		for _, item := range wave {
			run(ctx, item)
		}
		pending = blocked
	}

	return nil
}

// PoolScheduler runs independent items in parallel under a bounded worker
// pool with a per-item timeout. Items declaring a cross-item dependency are
// rejected with DependencyConflictError rather than ordered by guesswork.
type PoolScheduler struct {
	maxConcurrency int
	itemTimeout    time.Duration
}

// NewPoolScheduler creates a bounded-pool scheduler.
func NewPoolScheduler(maxConcurrency int, itemTimeout time.Duration) *PoolScheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 2
	}
	return &PoolScheduler{maxConcurrency: maxConcurrency, itemTimeout: itemTimeout}
}

func (s *PoolScheduler) Execute(ctx context.Context, queue []models.WorkItem, runCtx *RunContext, run runItemFunc) error {
	for _, item := range queue {
		if len(item.DependsOn) > 0 {
			return &DependencyConflictError{ItemID: item.ID, Keys: item.DependsOn}
		}
	}

	sem := make(chan struct{}, s.maxConcurrency)
	done := make(chan struct{})
	for _, item := range queue {
		item := item
		sem <- struct{}{}
		go func() {
			defer func() {
				<-sem
				done <- struct{}{}
			}()

			itemCtx := ctx
			cancel := context.CancelFunc(func() {})
			if s.itemTimeout > 0 {
				itemCtx, cancel = context.WithTimeout(ctx, s.itemTimeout)
			}
			defer cancel()

			run(itemCtx, item)
		}()
	}

	for range queue {
		<-done
	}
	return nil
}
