// Package lifecycle owns asset and dependency-edge mutation. Every write
// goes through the Manager, which enforces the status machine, uniqueness,
// immutability, and graph acyclicity in a single store transaction.
package lifecycle

import "github.com/modelpark/asset-registry/pkg/registry"

// TransitionRule defines one allowed lifecycle transition.
type TransitionRule struct {
	From registry.AssetStatus
	To   registry.AssetStatus
}

// DefaultTransitions is the forward-only status machine. Registration is
// the only producer of active; nothing ever leaves deleted.
var DefaultTransitions = []TransitionRule{
	{From: registry.StatusActive, To: registry.StatusDeprecated},
	{From: registry.StatusActive, To: registry.StatusArchived},
	{From: registry.StatusDeprecated, To: registry.StatusArchived},
	{From: registry.StatusActive, To: registry.StatusDeleted},
	{From: registry.StatusDeprecated, To: registry.StatusDeleted},
	{From: registry.StatusArchived, To: registry.StatusDeleted},
}

// Machine validates lifecycle status transitions.
type Machine struct {
	transitions []TransitionRule
}

// MachineOptions tune the transition table.
type MachineOptions struct {
	// DisallowDeprecatedToDeleted forces deprecated assets through archived
	// before they can be force-deleted. The direct move is allowed by
	// default.
	DisallowDeprecatedToDeleted bool
}

// NewMachine creates a machine with the default rules.
func NewMachine(opts MachineOptions) *Machine {
	transitions := make([]TransitionRule, 0, len(DefaultTransitions))
	for _, t := range DefaultTransitions {
		if opts.DisallowDeprecatedToDeleted &&
			t.From == registry.StatusDeprecated && t.To == registry.StatusDeleted {
			continue
		}
		transitions = append(transitions, t)
	}
	return &Machine{transitions: transitions}
}

// ValidateTransition checks whether from -> to is an allowed move. Unlike
// idempotent state machines, from == to is rejected: callers retrying a
// deprecate or delete on an already-transitioned asset get a clear
// InvalidTransition instead of a silent no-op.
func (m *Machine) ValidateTransition(from, to registry.AssetStatus) error {
	for _, t := range m.transitions {
		if t.From == from && t.To == to {
			return nil
		}
	}
	return registry.NewInvalidTransitionError(from, to)
}

// AllowedTransitions returns all valid target states from the given state.
func (m *Machine) AllowedTransitions(from registry.AssetStatus) []registry.AssetStatus {
	var allowed []registry.AssetStatus
	for _, t := range m.transitions {
		if t.From == from {
			allowed = append(allowed, t.To)
		}
	}
	return allowed
}
