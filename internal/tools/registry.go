// Package tools holds the capability registry: locally-implemented tools and
// tools discovered from external providers, exposed through one uniform
// invocation contract.
package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// ToolSpec describes one invocable capability.
type ToolSpec struct {
	// Name is the unique registry name. Remote tools are namespaced as
	// "<alias>.<name>".
	Name string `json:"name"`
	// Description is shown to the planner.
	Description string `json:"description"`
	// InputSchema is the JSON schema for the tool's arguments.
	InputSchema map[string]any `json:"input_schema,omitempty"`
	// Transient marks a tool whose hard failures may be retried in a
	// later plan. Non-transient tools are forbidden for the rest of the
	// run after one hard failure.
	Transient bool `json:"transient,omitempty"`
}

// Capability is one invocable tool, local or remote. The executor is
// polymorphic over the origin and never branches on it.
type Capability interface {
	// Spec returns the capability descriptor.
	Spec() ToolSpec
	// Invoke runs the tool with concrete arguments. A returned error is a
	// hard failure; a structured failure payload in the value position is
	// a soft failure.
	Invoke(ctx context.Context, args map[string]any) (any, error)
}

// InvokeFunc is the signature of a locally-implemented tool.
type InvokeFunc func(ctx context.Context, args map[string]any) (any, error)

// localCapability wraps a Go function as a Capability.
type localCapability struct {
	spec ToolSpec
	fn   InvokeFunc
}

func (c *localCapability) Spec() ToolSpec { return c.spec }

func (c *localCapability) Invoke(ctx context.Context, args map[string]any) (any, error) {
	return c.fn(ctx, args)
}

// ConflictError indicates a duplicate registration by name.
type ConflictError struct {
	// Name is the already-registered tool name.
	Name string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("tool %q is already registered", e.Name)
}

// NotFoundError indicates a name that resolves to no capability.
type NotFoundError struct {
	// Name is the unresolved tool name.
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("tool %q is not registered", e.Name)
}

// Registry resolves tool names to capabilities. Read-mostly after startup;
// safe for concurrent use across agent instances.
type Registry struct {
	mu    sync.RWMutex
	order []string
	caps  map[string]Capability
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{caps: make(map[string]Capability)}
}

// Register adds a capability. Duplicate names are rejected with ConflictError.
func (r *Registry) Register(c Capability) error {
	name := c.Spec().Name
	if name == "" {
		return fmt.Errorf("capability has no name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.caps[name]; exists {
		return &ConflictError{Name: name}
	}
	r.caps[name] = c
	r.order = append(r.order, name)
	return nil
}

// RegisterLocal wraps fn as a local capability and registers it.
func (r *Registry) RegisterLocal(spec ToolSpec, fn InvokeFunc) error {
	return r.Register(&localCapability{spec: spec, fn: fn})
}

// Resolve returns the capability for a name, or NotFoundError.
func (r *Registry) Resolve(name string) (Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.caps[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return c, nil
}

// List returns all registered specs in registration order.
func (r *Registry) List() []ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.caps[name].Spec())
	}
	return out
}

// Names returns all registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered capabilities.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.caps)
}

// DropPrefix removes every capability whose name starts with prefix. Used
// when re-discovering a provider's tools on refresh.
func (r *Registry) DropPrefix(prefix string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	var kept []string
	dropped := 0
	for _, name := range r.order {
		if strings.HasPrefix(name, prefix) {
			delete(r.caps, name)
			dropped++
			continue
		}
		kept = append(kept, name)
	}
	r.order = kept
	return dropped
}

// SoftFailurePayload builds the structured soft-failure envelope tools
// return instead of raising.
func SoftFailurePayload(reason string, retryable bool) map[string]any {
	return map[string]any{
		"ok":        false,
		"status":    "failed",
		"reason":    reason,
		"retryable": retryable,
	}
}

// IsSoftFailure reports whether a tool return value is a structured failure
// payload: ok=false, or status in {failed, failure, error}.
func IsSoftFailure(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	if okVal, present := m["ok"]; present {
		if b, isBool := okVal.(bool); isBool && !b {
			return true
		}
	}
	switch strings.ToLower(strings.TrimSpace(fmt.Sprint(m["status"]))) {
	case "failed", "failure", "error":
		return true
	}
	return false
}

// SoftFailureReason extracts the reason from a soft-failure payload.
func SoftFailureReason(v any) string {
	m, ok := v.(map[string]any)
	if !ok {
		return "soft failure"
	}
	for _, key := range []string{"reason", "error", "message"} {
		if s, isStr := m[key].(string); isStr && s != "" {
			return s
		}
	}
	return "soft failure"
}

// IsRetryable reports whether a soft-failure payload is marked retryable.
func IsRetryable(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	b, isBool := m["retryable"].(bool)
	return isBool && b
}
