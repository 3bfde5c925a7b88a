// Package registry maps form identifiers to their shared executors.
//
// # Adding a New Form
//
// Forms are registered explicitly at startup, never from init():
//
//	reg := registry.New()
//	if err := reg.Register("hazard_report", hazardExecutor); err != nil {
//	    return err
//	}
//	reg.Seal()
//
// After Seal the registry is read-only and Resolve takes no locks.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/tjfontaine/formflow/internal/domain"
	"github.com/tjfontaine/formflow/internal/pipeline"
)

var (
	// ErrDuplicateFormIdentifier is returned when an identifier is already bound.
	ErrDuplicateFormIdentifier = errors.New("duplicate form identifier")

	// ErrUnknownFormIdentifier is returned when no executor is bound to an identifier.
	ErrUnknownFormIdentifier = errors.New("unknown form identifier")

	// ErrSealed is returned when registering after startup.
	ErrSealed = errors.New("registry is sealed")
)

// Registry holds the form identifier to executor bindings.
type Registry struct {
	mu      sync.Mutex
	pending map[string]pipeline.Executor

	// frozen is published once by Seal and never mutated afterwards.
	frozen atomic.Pointer[snapshot]
}

type snapshot struct {
	executors map[string]pipeline.Executor
	ids       []string
}

// New creates an empty, unsealed registry.
func New() *Registry {
	return &Registry{pending: make(map[string]pipeline.Executor)}
}

// Register binds id to exec. It fails with ErrDuplicateFormIdentifier if id
// is already bound and with ErrSealed after Seal. A nil executor or empty id
// is a programming error and panics.
func (r *Registry) Register(id string, exec pipeline.Executor) error {
	if id == "" {
		panic("registry: form identifier cannot be empty")
	}
	if exec == nil {
		panic(fmt.Sprintf("registry: nil executor for form %q", id))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() != nil {
		return fmt.Errorf("register %q: %w", id, ErrSealed)
	}
	if _, exists := r.pending[id]; exists {
		return fmt.Errorf("register %q: %w", id, ErrDuplicateFormIdentifier)
	}
	r.pending[id] = exec
	return nil
}

// Seal freezes the registry. Calling it again is a no-op.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() != nil {
		return
	}
	s := &snapshot{
		executors: make(map[string]pipeline.Executor, len(r.pending)),
		ids:       make([]string, 0, len(r.pending)),
	}
	for id, exec := range r.pending {
		s.executors[id] = exec
		s.ids = append(s.ids, id)
	}
	sort.Strings(s.ids)
	r.frozen.Store(s)
	r.pending = nil
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	return r.frozen.Load() != nil
}

// Resolve returns the executor bound to id. It fails with
// ErrUnknownFormIdentifier, wrapped in a tagged domain error. Resolving
// before Seal is a wiring error and panics.
func (r *Registry) Resolve(id string) (pipeline.Executor, error) {
	s := r.frozen.Load()
	if s == nil {
		panic("registry: Resolve called before Seal")
	}
	exec, ok := s.executors[id]
	if !ok {
		return nil, domain.UnknownFormIdentifier(id).WithCause(ErrUnknownFormIdentifier)
	}
	return exec, nil
}

// IDs returns the registered identifiers in sorted order.
func (r *Registry) IDs() []string {
	s := r.frozen.Load()
	if s == nil {
		r.mu.Lock()
		defer r.mu.Unlock()
		ids := make([]string, 0, len(r.pending))
		for id := range r.pending {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		return ids
	}
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}
