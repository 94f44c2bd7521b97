// Package lctest provides a scriptable managed service for orchestration tests.
package lctest

import (
	"context"
	"sync"
)

const (
	CallStartAsync      = "start_async"
	CallAwaitRunning    = "await_running"
	CallStopAsync       = "stop_async"
	CallAwaitTerminated = "await_terminated"
)

// Event is one call made on a Service.
type Event struct {
	Service string
	Call    string
}

// Recorder collects events from every Service sharing it, in call order.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record appends an event. Tests use it to mark points inside hooks.
func (r *Recorder) Record(service, call string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, Event{Service: service, Call: call})
	r.mu.Unlock()
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Index returns the position of the first matching event, or -1.
func (r *Recorder) Index(service, call string) int {
	for i, e := range r.Events() {
		if e.Service == service && e.Call == call {
			return i
		}
	}
	return -1
}

// Calls returns the calls made on service in order.
func (r *Recorder) Calls(service string) []string {
	var out []string
	for _, e := range r.Events() {
		if e.Service == service {
			out = append(out, e.Call)
		}
	}
	return out
}

// Services returns the names of services that made call, in call order.
func (r *Recorder) Services(call string) []string {
	var out []string
	for _, e := range r.Events() {
		if e.Call == call {
			out = append(out, e.Service)
		}
	}
	return out
}

// Service is a fake managed service. Errors and hooks are set through options
// before the service is handed to an orchestrator.
type Service struct {
	name string
	rec  *Recorder

	startAsyncErr      error
	awaitRunningErr    error
	stopAsyncErr       error
	awaitTerminatedErr error
	onAwaitRunning     func(ctx context.Context) error
	onAwaitTerminated  func(ctx context.Context) error

	mu    sync.Mutex
	state string
}

type Option func(*Service)

func FailStartAsync(err error) Option {
	return func(s *Service) { s.startAsyncErr = err }
}

func FailAwaitRunning(err error) Option {
	return func(s *Service) { s.awaitRunningErr = err }
}

func FailStopAsync(err error) Option {
	return func(s *Service) { s.stopAsyncErr = err }
}

func FailAwaitTerminated(err error) Option {
	return func(s *Service) { s.awaitTerminatedErr = err }
}

// OnAwaitRunning runs fn inside AwaitRunning before the configured error is returned.
func OnAwaitRunning(fn func(ctx context.Context) error) Option {
	return func(s *Service) { s.onAwaitRunning = fn }
}

// OnAwaitTerminated runs fn inside AwaitTerminated before the configured error is returned.
func OnAwaitTerminated(fn func(ctx context.Context) error) Option {
	return func(s *Service) { s.onAwaitTerminated = fn }
}

func New(name string, rec *Recorder, opts ...Option) *Service {
	s := &Service{name: name, rec: rec, state: "new"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Name() string {
	return s.name
}

// State is one of new, starting, running, stopping, terminated or failed.
func (s *Service) State() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Service) setState(state string) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Service) StartAsync() error {
	s.rec.Record(s.name, CallStartAsync)
	if s.startAsyncErr != nil {
		s.setState("failed")
		return s.startAsyncErr
	}
	s.setState("starting")
	return nil
}

func (s *Service) AwaitRunning(ctx context.Context) error {
	s.rec.Record(s.name, CallAwaitRunning)
	if s.onAwaitRunning != nil {
		if err := s.onAwaitRunning(ctx); err != nil {
			s.setState("failed")
			return err
		}
	}
	if s.awaitRunningErr != nil {
		s.setState("failed")
		return s.awaitRunningErr
	}
	s.setState("running")
	return nil
}

func (s *Service) StopAsync() error {
	s.rec.Record(s.name, CallStopAsync)
	if s.stopAsyncErr != nil {
		s.setState("failed")
		return s.stopAsyncErr
	}
	s.setState("stopping")
	return nil
}

func (s *Service) AwaitTerminated(ctx context.Context) error {
	s.rec.Record(s.name, CallAwaitTerminated)
	if s.onAwaitTerminated != nil {
		if err := s.onAwaitTerminated(ctx); err != nil {
			s.setState("failed")
			return err
		}
	}
	if s.awaitTerminatedErr != nil {
		s.setState("failed")
		return s.awaitTerminatedErr
	}
	s.setState("terminated")
	return nil
}
