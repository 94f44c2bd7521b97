package lc

import (
	"fmt"
	"strings"
	"sync"
)

// Phase names the orchestration pass a failure happened in.
type Phase string

const (
	PhaseStart Phase = "start"
	PhaseStop  Phase = "stop"
)

type failure struct {
	service ManagedService
	err     error
}

// FailureRecord collects the services that failed during one phase together
// with their errors. It is safe for concurrent use.
//
// Iteration order is the order failures arrived in. Failures of one level are
// recorded concurrently, so that order carries no meaning between them.
type FailureRecord struct {
	mu      sync.Mutex
	entries []failure
}

func NewFailureRecord() *FailureRecord {
	return &FailureRecord{}
}

// Put records err for svc. A service is recorded at most once; later errors for
// an already recorded service are ignored and Put returns false. A nil err is
// not a failure and is ignored.
func (r *FailureRecord) Put(svc ManagedService, err error) bool {
	if err == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, entry := range r.entries {
		if sameService(entry.service, svc) {
			return false
		}
	}
	r.entries = append(r.entries, failure{service: svc, err: err})
	return true
}

func (r *FailureRecord) IsEmpty() bool {
	return r.Len() == 0
}

func (r *FailureRecord) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Failures returns a copy of the record keyed by service.
func (r *FailureRecord) Failures() map[ManagedService]error {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[ManagedService]error, len(r.entries))
	for _, entry := range r.entries {
		out[entry.service] = entry.err
	}
	return out
}

// Services returns the failed services in iteration order.
func (r *FailureRecord) Services() []ManagedService {
	return servicesOf(r.snapshot(0))
}

// AsError wraps the record into a *ServicesFailedError for phase.
// It returns nil when the record is empty.
func (r *FailureRecord) AsError(phase Phase) *ServicesFailedError {
	entries := r.snapshot(0)
	if len(entries) == 0 {
		return nil
	}
	return &ServicesFailedError{phase: phase, entries: entries}
}

func (r *FailureRecord) asLevelError(phase Phase, level Level) *ServicesFailedError {
	e := r.AsError(phase)
	if e != nil {
		e.level = level
		e.hasLevel = true
	}
	return e
}

// snapshot copies the entries recorded after the first skip ones.
func (r *FailureRecord) snapshot(skip int) []failure {
	r.mu.Lock()
	defer r.mu.Unlock()
	if skip >= len(r.entries) {
		return nil
	}
	return append([]failure(nil), r.entries[skip:]...)
}

func servicesOf(entries []failure) []ManagedService {
	out := make([]ManagedService, len(entries))
	for i, entry := range entries {
		out[i] = entry.service
	}
	return out
}

func sameService(a, b ManagedService) (same bool) {
	defer func() {
		// Non-comparable dynamic types are never the same instance.
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

// ServicesFailedError is returned by StartAll and StopAll when at least one
// service failed. Error lists every failed service; Unwrap exposes the first
// recorded cause only. Use Failures or Errors to inspect every cause.
type ServicesFailedError struct {
	phase    Phase
	level    Level
	hasLevel bool
	entries  []failure
}

func (e *ServicesFailedError) Error() string {
	if e.hasLevel {
		return fmt.Sprintf("lc: services failed %s at level %d: %s", e.phase, e.level, e.Summary())
	}
	return fmt.Sprintf("lc: services failed %s: %s", e.phase, e.Summary())
}

// Summary is the comma-joined display names of the failed services.
func (e *ServicesFailedError) Summary() string {
	names := make([]string, len(e.entries))
	for i, entry := range e.entries {
		names[i] = Name(entry.service)
	}
	return strings.Join(names, ",")
}

// Unwrap returns the first cause in iteration order. When several services of
// a level fail together which one comes first is not specified.
func (e *ServicesFailedError) Unwrap() error {
	if len(e.entries) == 0 {
		return nil
	}
	return e.entries[0].err
}

// Errors returns every cause in iteration order. Unwrap only exposes the
// first one, so errors.Is and errors.As do not see the others.
func (e *ServicesFailedError) Errors() []error {
	out := make([]error, len(e.entries))
	for i, entry := range e.entries {
		out[i] = entry.err
	}
	return out
}

func (e *ServicesFailedError) Failures() map[ManagedService]error {
	out := make(map[ManagedService]error, len(e.entries))
	for _, entry := range e.entries {
		out[entry.service] = entry.err
	}
	return out
}

func (e *ServicesFailedError) Services() []ManagedService {
	return servicesOf(e.entries)
}

// Err returns the error recorded for svc, or nil when svc did not fail.
func (e *ServicesFailedError) Err(svc ManagedService) error {
	for _, entry := range e.entries {
		if sameService(entry.service, svc) {
			return entry.err
		}
	}
	return nil
}

func (e *ServicesFailedError) Phase() Phase {
	return e.phase
}

// Level reports the level a startup aborted at. Shutdown failures span levels
// and report false.
func (e *ServicesFailedError) Level() (Level, bool) {
	return e.level, e.hasLevel
}
