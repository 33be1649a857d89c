package manifold

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Error messages
const (
	ErrStageExists = "stage %q is already registered"
)

// Registry maps stage names to their implementations. Registration happens
// once at startup; pipe construction resolves against it.
type Registry struct {
	mu     sync.RWMutex
	stages map[string]Stage
	order  []string
}

// NewRegistry creates a new, empty registry.
func NewRegistry() *Registry {
	return &Registry{stages: make(map[string]Stage)}
}

// Register adds a stage under its name. The stage must implement the
// interface matching its declared Kind; nil stages, unnamed stages,
// kind/interface mismatches and duplicate names are rejected. Validating the
// match here means Resolve callers never have to.
func (r *Registry) Register(stage Stage) error {
	if stage == nil {
		return errors.New("cannot register a nil stage")
	}
	name := stage.Name()
	if name == "" {
		return errors.New("cannot register an unnamed stage")
	}
	switch stage.Kind() {
	case KindProcessor:
		if _, ok := stage.(Processor); !ok {
			return fmt.Errorf("stage %q declares kind %q but does not implement Processor", name, KindProcessor)
		}
	case KindOperator:
		if _, ok := stage.(Operator); !ok {
			return fmt.Errorf("stage %q declares kind %q but does not implement Operator", name, KindOperator)
		}
	default:
		return fmt.Errorf("stage %q has unknown kind %q", name, stage.Kind())
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.stages[name]; exists {
		return fmt.Errorf(ErrStageExists, name)
	}
	r.stages[name] = stage
	r.order = append(r.order, name)
	return nil
}

// MustRegister is Register, panicking on error. Intended for startup
// registration of built-in stages.
func (r *Registry) MustRegister(stage Stage) {
	if err := r.Register(stage); err != nil {
		panic("manifold.MustRegister: " + err.Error())
	}
}

// Resolve returns the stage registered under name. A miss returns an
// *UnknownStageError, distinguishable with errors.As.
func (r *Registry) Resolve(name string) (Stage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stage, ok := r.stages[name]
	if !ok {
		return nil, NewUnknownStageError(name)
	}
	return stage, nil
}

// Names returns the registered stage names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.stages))
	for name := range r.stages {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Setup eagerly initializes registered stages that implement Initializer,
// in registration order. The first failure aborts and is returned wrapped
// with the stage name; stages initialized before the failure stay
// initialized and are released through Close as usual.
func (r *Registry) Setup(ctx context.Context) error {
	r.mu.RLock()
	stages := make([]Stage, 0, len(r.order))
	for _, name := range r.order {
		stages = append(stages, r.stages[name])
	}
	r.mu.RUnlock()

	for _, stage := range stages {
		init, ok := stage.(Initializer)
		if !ok {
			continue
		}
		if err := init.Setup(ctx); err != nil {
			return fmt.Errorf("initializing stage %q: %w", stage.Name(), err)
		}
	}
	return nil
}

// Close shuts down registered stages that hold resources: every stage
// implementing Closer is closed, in reverse registration order, and all
// errors are joined.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.RLock()
	stages := make([]Stage, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		stages = append(stages, r.stages[r.order[i]])
	}
	r.mu.RUnlock()

	var errs []error
	for _, stage := range stages {
		closer, ok := stage.(Closer)
		if !ok {
			continue
		}
		if err := closer.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("closing stage %q: %w", stage.Name(), err))
		}
	}
	return errors.Join(errs...)
}
