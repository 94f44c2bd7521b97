package lc

import (
	"fmt"
	"reflect"
	"sync"
)

// Registry collects registrations and rejects ones that cannot be managed:
// nil services, non-comparable services and the same instance registered twice.
type Registry struct {
	mu   sync.Mutex
	regs []Registration
	seen map[ManagedService]struct{}
}

func NewRegistry() *Registry {
	return &Registry{seen: make(map[ManagedService]struct{})}
}

func (r *Registry) Register(svc ManagedService, level Level) error {
	if isNil(svc) {
		return fmt.Errorf("%w: service is nil", ErrInvalidRegistration)
	}
	if !reflect.TypeOf(svc).Comparable() {
		return fmt.Errorf("%w: %s is not comparable, register a pointer", ErrInvalidRegistration, Name(svc))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seen[svc]; ok {
		return fmt.Errorf("%w: %s is already registered", ErrInvalidRegistration, Name(svc))
	}
	r.seen[svc] = struct{}{}
	r.regs = append(r.regs, Registration{Service: svc, Level: level})
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(svc ManagedService, level Level) {
	if err := r.Register(svc, level); err != nil {
		panic(err)
	}
}

// Registrations returns the accepted registrations in order.
func (r *Registry) Registrations() []Registration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Registration(nil), r.regs...)
}
