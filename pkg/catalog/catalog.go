// Package catalog defines the function descriptor table: the set of typed
// operations a model may select for a prompt.
//
// Descriptors are registered explicitly at startup (usually via [New], which
// derives the argument schema and token cost from a Go struct) and are
// immutable afterwards. The [Registry] hands ordered views of the table to
// the selection layer; it never decides which functions are offered — that is
// budget policy, kept elsewhere.
//
// One descriptor may be the freeform sentinel (see [FreeformName]): a
// catch-all "just answer" entry that participates in ranking and dispatch
// like any other function but is never emitted in a tool schema.
package catalog

import (
	"context"
	"fmt"
	"sync"
)

// FreeformName is the wire name of the freeform sentinel. The name is part of
// the model-visible contract: responses calling this name are routed to the
// plain-completion handler.
const FreeformName = "GPT"

// Result is the outcome of one function execution, threaded into subsequent
// chain steps as the prior result.
type Result struct {
	// Output is the textual outcome fed to later steps.
	Output string

	// Command echoes the invocation that produced Output, command name first,
	// then the argument values in declaration order.
	Command []string
}

// FunctionDescriptor describes one callable function: its model-visible
// schema, its precomputed token cost, and the hooks that decode and execute
// an invocation. Descriptors are immutable once registered; all fields are
// read-only after Register.
type FunctionDescriptor struct {
	// Name is the wire name offered to the model.
	Name string

	// Description is the model-visible summary of what the function does.
	Description string

	// Parameters is the JSON Schema for the argument object.
	Parameters map[string]any

	// Required lists the argument names the model must supply. It mirrors the
	// "required" array inside Parameters.
	Required []string

	// TokenCost is the token cost of offering this function in a request:
	// the counted size of its serialized schema plus fixed structural
	// overhead.
	TokenCost int

	// Freeform marks the ask-the-model sentinel. Freeform descriptors are
	// excluded from emitted tool schemas and contribute no token cost to a
	// selection.
	Freeform bool

	// Decode parses a raw JSON argument payload into the typed value passed
	// to Run. Populated by New; hand-built descriptors must set it.
	Decode func(raw []byte) (any, error)

	// Run executes the function with the decoded arguments.
	Run func(ctx context.Context, args any) (*Result, error)
}

// Registry is the descriptor table. It preserves registration order, which
// downstream ordering rules (ranking ties, selection walks) rely on.
// All methods are safe for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]*FunctionDescriptor
	order  []string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*FunctionDescriptor)}
}

// Register adds d to the table. Names are unique; registering a duplicate or
// an incomplete descriptor is an error.
func (r *Registry) Register(d *FunctionDescriptor) error {
	if d == nil {
		return fmt.Errorf("catalog: register nil descriptor")
	}
	if d.Name == "" {
		return fmt.Errorf("catalog: register descriptor with empty name")
	}
	if d.Run == nil {
		return fmt.Errorf("catalog: function %q has no Run hook", d.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[d.Name]; exists {
		return fmt.Errorf("catalog: function %q already registered", d.Name)
	}
	r.byName[d.Name] = d
	r.order = append(r.order, d.Name)
	return nil
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (*FunctionDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[name]
	return d, ok
}

// Names returns all registered names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns every descriptor in registration order.
func (r *Registry) All() []*FunctionDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*FunctionDescriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// Len returns the number of registered descriptors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Filtered returns the descriptors for the given name lists in selection
// candidate order: every required name first, then the allowed names that are
// not already present. Duplicates collapse to their first occurrence and
// names with no registered descriptor are skipped.
func (r *Registry) Filtered(allowed, required []string) []*FunctionDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{}, len(required)+len(allowed))
	out := make([]*FunctionDescriptor, 0, len(required)+len(allowed))
	add := func(name string) {
		if _, dup := seen[name]; dup {
			return
		}
		d, ok := r.byName[name]
		if !ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, d)
	}

	for _, n := range required {
		add(n)
	}
	for _, n := range allowed {
		add(n)
	}
	return out
}
