// exclusion.go implements the exact-type exclusion registry.

package dispatch

import (
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
)

// ExclusionRegistry is a set of failure types that are never reported.
//
// Only failures whose dynamic type is identical to a registered type are
// excluded. Registering *IndexError does not exclude an error that wraps or
// embeds it, and registering an embedded type does not exclude the types that
// embed it.
//
// The set is append-only. Lookups read an immutable snapshot, so they never
// block; registrations are still expected to finish before traffic starts.
type ExclusionRegistry struct {
	mu    sync.Mutex
	types atomic.Pointer[map[reflect.Type]struct{}]
}

// NewExclusionRegistry returns an empty registry.
func NewExclusionRegistry() *ExclusionRegistry {
	r := &ExclusionRegistry{}
	empty := map[reflect.Type]struct{}{}
	r.types.Store(&empty)
	return r
}

// Register excludes failures whose dynamic type is exactly t.
// Registering the same type twice is a no-op.
func (r *ExclusionRegistry) Register(t reflect.Type) error {
	if t == nil {
		return fmt.Errorf("%w: the failure type must not be nil", ErrInvalidArgument)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current := *r.types.Load()
	if _, ok := current[t]; ok {
		return nil
	}

	next := make(map[reflect.Type]struct{}, len(current)+1)
	for k := range current {
		next[k] = struct{}{}
	}
	next[t] = struct{}{}
	r.types.Store(&next)
	return nil
}

// Exclude registers T with the registry.
//
//	dispatch.Exclude[*os.PathError](registry)
func Exclude[T any](r *ExclusionRegistry) error {
	return r.Register(reflect.TypeFor[T]())
}

// IsExcluded reports whether t has been registered.
func (r *ExclusionRegistry) IsExcluded(t reflect.Type) bool {
	if t == nil {
		return false
	}
	_, ok := (*r.types.Load())[t]
	return ok
}

// Len returns the number of registered types.
func (r *ExclusionRegistry) Len() int {
	return len(*r.types.Load())
}

// Registrar populates an ExclusionRegistry during start-up.
type Registrar interface {
	RegisterExclusions(r *ExclusionRegistry) error
}

// RegistrarFunc adapts a function to the Registrar interface.
type RegistrarFunc func(r *ExclusionRegistry) error

// RegisterExclusions calls f(r).
func (f RegistrarFunc) RegisterExclusions(r *ExclusionRegistry) error {
	return f(r)
}

// NoopRegistrar registers nothing. It is the default when no Registrar is given.
type NoopRegistrar struct{}

// RegisterExclusions does nothing.
func (NoopRegistrar) RegisterExclusions(*ExclusionRegistry) error {
	return nil
}
