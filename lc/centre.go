package lc

import (
	"context"
	"sync"
)

// State is the lifecycle state of a Centre.
type State int

const (
	StateNew State = iota
	StateStarting
	StateRunning
	StateStopping
	StateTerminated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateTerminated:
		return "terminated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Centre owns one grouping of services and drives it through a single start
// and stop. The grouping is built once and reused by Stop in reverse order.
//
// A Centre is itself a ManagedService, so a whole Centre can be registered as
// one service of a larger Centre.
type Centre struct {
	name   string
	orch   *Orchestrator
	groups *Groups
	idle   *IdleService

	mu      sync.Mutex
	state   State
	stopped bool
}

func NewCentre(regs []Registration, opts ...Option) *Centre {
	o := newOptions(opts)
	c := &Centre{
		name:   o.name,
		orch:   newOrchestrator(o),
		groups: Group(regs),
	}
	c.idle = NewIdleService(o.name, c.Start, c.Stop)
	c.idle.stopAfterFailedStart = true
	return c
}

func (c *Centre) Name() string {
	return c.name
}

func (c *Centre) Groups() *Groups {
	return c.groups
}

func (c *Centre) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start runs StartAll over the Centre's grouping. It may be called once.
// On failure the Centre moves to StateFailed and the services that did start
// keep running until Stop is called.
func (c *Centre) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateNew {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.state = StateStarting
	c.mu.Unlock()

	err := c.orch.StartAll(ctx, c.groups)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateFailed
		return err
	}
	c.state = StateRunning
	return nil
}

// Stop runs StopAll over the Centre's grouping. Stopping a Centre that was
// never started succeeds without touching any service.
func (c *Centre) Stop(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.stopped:
		c.mu.Unlock()
		return ErrAlreadyStopped
	case c.state == StateStarting:
		c.mu.Unlock()
		return ErrStartInProgress
	case c.state == StateNew:
		c.stopped = true
		c.state = StateTerminated
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	c.state = StateStopping
	c.mu.Unlock()

	err := c.orch.StopAll(ctx, c.groups)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateFailed
		return err
	}
	c.state = StateTerminated
	return nil
}

func (c *Centre) StartAsync() error {
	return c.idle.StartAsync()
}

func (c *Centre) AwaitRunning(ctx context.Context) error {
	return c.idle.AwaitRunning(ctx)
}

func (c *Centre) StopAsync() error {
	return c.idle.StopAsync()
}

func (c *Centre) AwaitTerminated(ctx context.Context) error {
	return c.idle.AwaitTerminated(ctx)
}
