package orchestrator

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/atelier-ai/atelier/pkg/models"
)

// OutputKey returns the run-context artifact key under which a work item's
// answer is published.
func OutputKey(itemID string) string {
	return itemID + ".output"
}

// Artifact is one published value in the run context.
type Artifact struct {
	// Key is the unique artifact key, typically "<item-id>.output".
	Key string
	// Value is the published content.
	Value any
	// Producer is the work item id that published the artifact.
	Producer string
	// Metadata carries producer-specific context.
	Metadata map[string]any
}

// DuplicateArtifactError indicates a second publication under the same key.
type DuplicateArtifactError struct {
	// Key is the already-published artifact key.
	Key string
}

func (e *DuplicateArtifactError) Error() string {
	return fmt.Sprintf("artifact %q is already published", e.Key)
}

// RunContext is the orchestrator-owned append-only artifact map. Agents never
// see it directly; dependent items receive a read-only snapshot composed into
// their goal text.
type RunContext struct {
	mu        sync.RWMutex
	artifacts map[string]Artifact
}

// NewRunContext creates an empty run context.
func NewRunContext() *RunContext {
	return &RunContext{artifacts: make(map[string]Artifact)}
}

// Publish adds an artifact. Re-publishing a key is rejected; artifacts are
// immutable once written.
func (c *RunContext) Publish(a Artifact) error {
	if a.Key == "" {
		return fmt.Errorf("artifact has no key")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.artifacts[a.Key]; exists {
		return &DuplicateArtifactError{Key: a.Key}
	}
	c.artifacts[a.Key] = a
	return nil
}

// Has reports whether the key is published.
func (c *RunContext) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.artifacts[key]
	return ok
}

// Get returns the artifact for a key.
func (c *RunContext) Get(key string) (Artifact, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.artifacts[key]
	return a, ok
}

// Missing returns the subset of keys not yet published, in input order.
func (c *RunContext) Missing(keys []string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []string
	for _, k := range keys {
		if _, ok := c.artifacts[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

// Snapshot returns copies of the selected artifacts. The snapshot is
// detached: later publications never show through it.
func (c *RunContext) Snapshot(keys []string) map[string]Artifact {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]Artifact, len(keys))
	for _, k := range keys {
		if a, ok := c.artifacts[k]; ok {
			out[k] = a
		}
	}
	return out
}

// ComposeGoal renders the effective goal text for a work item: the declared
// goal, its static inputs, and the artifact values it depends on. Sections
// are sorted by key so the text is deterministic.
func ComposeGoal(item models.WorkItem, artifacts map[string]Artifact) string {
	var b strings.Builder
	b.WriteString(item.Goal)

	if len(item.Inputs) > 0 {
		b.WriteString("\n\nInputs:\n")
		keys := make([]string, 0, len(item.Inputs))
		for k := range item.Inputs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, renderInput(item.Inputs[k]))
		}
	}

	if len(artifacts) > 0 {
		b.WriteString("\n\nResults from earlier work items:\n")
		keys := make([]string, 0, len(artifacts))
		for k := range artifacts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "--- %s (from %s) ---\n%s\n", k, artifacts[k].Producer, renderInput(artifacts[k].Value))
		}
	}

	return b.String()
}

func renderInput(v any) string {
	switch val := v.(type) {
	case string:
		return val
	default:
		encoded, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(encoded)
	}
}
