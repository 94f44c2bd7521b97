package lc

import (
	"context"
	"fmt"
	"sync"
)

// IdleService is a ManagedService built from a pair of blocking functions.
// StartAsync runs start on its own goroutine; StopAsync runs stop once start
// has settled. Either function may be nil.
//
// The context passed to start is cancelled as soon as StopAsync is called.
type IdleService struct {
	name  string
	start func(context.Context) error
	stop  func(context.Context) error

	// stopAfterFailedStart runs stop even when start failed.
	stopAfterFailedStart bool

	mu          sync.Mutex
	startCalled bool
	stopCalled  bool
	cancelStart context.CancelFunc
	running     chan struct{}
	startErr    error
	terminated  chan struct{}
	stopErr     error
}

func NewIdleService(name string, start, stop func(context.Context) error) *IdleService {
	return &IdleService{
		name:       name,
		start:      start,
		stop:       stop,
		running:    make(chan struct{}),
		terminated: make(chan struct{}),
	}
}

// Adapt wraps a value implementing Starter, Stopper or both.
// An empty name falls back to the value's type name.
func Adapt(name string, v any) (*IdleService, error) {
	starter, isStarter := v.(Starter)
	stopper, isStopper := v.(Stopper)
	if !isStarter && !isStopper {
		return nil, fmt.Errorf("%w: %T implements neither Start nor Stop", ErrInvalidRegistration, v)
	}
	if name == "" {
		name = typeName(v)
	}
	var start, stop func(context.Context) error
	if isStarter {
		start = starter.Start
	}
	if isStopper {
		stop = stopper.Stop
	}
	return NewIdleService(name, start, stop), nil
}

func (s *IdleService) Name() string {
	return s.name
}

func (s *IdleService) StartAsync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startCalled {
		return ErrAlreadyStarted
	}
	if s.stopCalled {
		return ErrAlreadyStopped
	}
	s.startCalled = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelStart = cancel
	go func() {
		defer close(s.running)
		if s.start != nil {
			s.startErr = call(func() error { return s.start(ctx) })
		}
	}()
	return nil
}

func (s *IdleService) AwaitRunning(ctx context.Context) error {
	s.mu.Lock()
	started := s.startCalled
	s.mu.Unlock()
	if !started {
		return ErrNotStarted
	}
	select {
	case <-s.running:
		return s.startErr
	case <-ctx.Done():
		return fmt.Errorf("lc: await running %s: %w", s.name, ctx.Err())
	}
}

// StopAsync requests termination. Calling it more than once is a no-op.
// A service that was never started terminates immediately.
func (s *IdleService) StopAsync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCalled {
		return nil
	}
	s.stopCalled = true

	started := s.startCalled
	if s.cancelStart != nil {
		s.cancelStart()
	}
	go func() {
		defer close(s.terminated)
		if !started {
			return
		}
		<-s.running
		if s.startErr != nil && !s.stopAfterFailedStart {
			return
		}
		if s.stop != nil {
			s.stopErr = call(func() error { return s.stop(context.Background()) })
		}
	}()
	return nil
}

func (s *IdleService) AwaitTerminated(ctx context.Context) error {
	s.mu.Lock()
	stopping := s.stopCalled
	s.mu.Unlock()
	if !stopping {
		return ErrNotStopping
	}
	select {
	case <-s.terminated:
		return s.stopErr
	case <-ctx.Done():
		return fmt.Errorf("lc: await terminated %s: %w", s.name, ctx.Err())
	}
}
