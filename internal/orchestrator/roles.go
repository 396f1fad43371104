package orchestrator

import "fmt"

// Role selects an agent configuration. Every role runs the identical code
// path; only the instruction prefix and limits differ.
type Role struct {
	// Name is the role key referenced by WorkItem.AssignedAgent.
	Name string `mapstructure:"name" yaml:"name"`
	// InstructionPrefix is prepended to the planning prompt.
	InstructionPrefix string `mapstructure:"instruction_prefix" yaml:"instruction_prefix"`
	// Model optionally overrides the model backend for this role.
	Model string `mapstructure:"model" yaml:"model"`
	// MaxReplans overrides the replan budget. Zero keeps the default.
	MaxReplans int `mapstructure:"max_replans" yaml:"max_replans"`
}

// UnknownRoleError indicates a work item referencing no configured role.
type UnknownRoleError struct {
	// Name is the unresolved role name.
	Name string
}

func (e *UnknownRoleError) Error() string {
	return fmt.Sprintf("role %q is not configured", e.Name)
}

// RoleRegistry resolves role names. Read-only after construction.
type RoleRegistry struct {
	roles map[string]Role
}

// DefaultRoles returns the built-in role set.
func DefaultRoles() []Role {
	return []Role{
		{
			Name:              "generalist",
			InstructionPrefix: "You are a capable generalist. Solve the goal directly with the most suitable tools.",
		},
		{
			Name:              "researcher",
			InstructionPrefix: "You are a meticulous researcher. Gather every relevant fact with the available tools before concluding, and cite which tool produced each fact.",
		},
		{
			Name:              "reviewer",
			InstructionPrefix: "You are a critical reviewer. Examine the provided material for errors, omissions and unsupported claims, and report concrete findings.",
		},
	}
}

// NewRoleRegistry builds a registry from roles. Later entries with the same
// name override earlier ones, so configured roles can replace the defaults.
func NewRoleRegistry(roles ...Role) *RoleRegistry {
	r := &RoleRegistry{roles: make(map[string]Role, len(roles))}
	for _, role := range roles {
		r.roles[role.Name] = role
	}
	return r
}

// Resolve returns the role for a name. The empty name maps to generalist.
func (r *RoleRegistry) Resolve(name string) (Role, error) {
	if name == "" {
		name = "generalist"
	}
	role, ok := r.roles[name]
	if !ok {
		return Role{}, &UnknownRoleError{Name: name}
	}
	return role, nil
}

// Names returns the configured role names.
func (r *RoleRegistry) Names() []string {
	out := make([]string, 0, len(r.roles))
	for name := range r.roles {
		out = append(out, name)
	}
	return out
}
