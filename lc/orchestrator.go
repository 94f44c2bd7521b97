package lc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Orchestrator starts and stops grouped services level by level. It is safe
// for concurrent use. The only state it keeps between calls is which services
// of which grouping reached the running state, so that StopAll accounts for
// exactly those in the running gauge.
type Orchestrator struct {
	log          *zap.Logger
	tracer       trace.Tracer
	metrics      *Metrics
	startTimeout time.Duration
	stopTimeout  time.Duration

	mu      sync.Mutex
	running map[slot]struct{}
}

// slot identifies one registration of a grouping. Services themselves may be
// non-comparable, so they are tracked by position.
type slot struct {
	groups *Groups
	level  Level
	index  int
}

func NewOrchestrator(opts ...Option) *Orchestrator {
	return newOrchestrator(newOptions(opts))
}

func newOrchestrator(o options) *Orchestrator {
	return &Orchestrator{
		log:          o.logger,
		tracer:       o.tracer,
		metrics:      o.metrics,
		startTimeout: o.startTimeout,
		stopTimeout:  o.stopTimeout,
		running:      make(map[slot]struct{}),
	}
}

// StartAll starts groups in ascending level order. Every service of a level is
// asked to start before any of them is awaited, and the next level begins only
// once the whole level is running.
//
// The first level with a failure aborts the run with a *ServicesFailedError
// holding that level's failures. Lower levels are left running.
func (o *Orchestrator) StartAll(ctx context.Context, groups *Groups) error {
	levels := groups.Levels()
	log := o.log.With(zap.String("phase", string(PhaseStart)), zap.String("run_id", uuid.NewString()))
	ctx, span := o.tracer.Start(ctx, "lc.start_all", trace.WithAttributes(
		attribute.Int("lc.levels", len(levels)),
		attribute.Int("lc.services", groups.Len()),
	))
	defer span.End()

	begin := time.Now()
	for _, level := range levels {
		services := groups.Services(level)
		record := NewFailureRecord()

		log.Info("starting level", zap.Int64("level", int64(level)), zap.String("services", joinNames(services)))
		ok := o.runLevel(ctx, log, PhaseStart, level, services, record)

		o.metrics.addRunning(o.markRunning(groups, level, ok))
		if !record.IsEmpty() {
			failed := record.asLevelError(PhaseStart, level)
			o.logFailures(log, PhaseStart, level, failed.entries)
			span.RecordError(failed)
			span.SetStatus(codes.Error, failed.Error())
			return failed
		}
	}

	log.Info("all services started", zap.Duration("elapsed", time.Since(begin)))
	return nil
}

// StopAll stops groups in descending level order with the same per-level
// barrier as StartAll. A failing level never stops the walk; failures from
// every level are collected and reported once the lowest level is done.
func (o *Orchestrator) StopAll(ctx context.Context, groups *Groups) error {
	levels := groups.descending()
	log := o.log.With(zap.String("phase", string(PhaseStop)), zap.String("run_id", uuid.NewString()))
	ctx, span := o.tracer.Start(ctx, "lc.stop_all", trace.WithAttributes(
		attribute.Int("lc.levels", len(levels)),
		attribute.Int("lc.services", groups.Len()),
	))
	defer span.End()

	begin := time.Now()
	record := NewFailureRecord()
	for _, level := range levels {
		services := groups.Services(level)
		previous := record.Len()

		log.Info("stopping level", zap.Int64("level", int64(level)), zap.String("services", joinNames(services)))
		ok := o.runLevel(ctx, log, PhaseStop, level, services, record)

		failed := record.snapshot(previous)
		o.metrics.addRunning(-o.markStopped(groups, level, ok))
		if len(failed) > 0 {
			o.logFailures(log, PhaseStop, level, failed)
		}
	}

	if !record.IsEmpty() {
		failed := record.AsError(PhaseStop)
		span.RecordError(failed)
		span.SetStatus(codes.Error, failed.Error())
		return failed
	}

	log.Info("all services stopped", zap.Duration("elapsed", time.Since(begin)))
	return nil
}

// runLevel fans out the begin call to every service, waits for all of them,
// then fans out the await call and waits again. Failures land in record; the
// returned slice marks the services that completed the phase.
func (o *Orchestrator) runLevel(ctx context.Context, log *zap.Logger, phase Phase, level Level, services []ManagedService, record *FailureRecord) []bool {
	ctx, span := o.tracer.Start(ctx, "lc."+string(phase)+"_level", trace.WithAttributes(
		attribute.Int64("lc.level", int64(level)),
		attribute.String("lc.services", joinNames(services)),
	))
	defer span.End()

	began := time.Now()
	before := record.Len()

	issued := make([]bool, len(services))
	var wg sync.WaitGroup
	for i, svc := range services {
		wg.Add(1)
		go func(i int, svc ManagedService) {
			defer wg.Done()
			if err := call(func() error { return begin(phase, svc) }); err != nil {
				record.Put(svc, err)
				return
			}
			issued[i] = true
		}(i, svc)
	}
	wg.Wait()

	awaitCtx, cancel := o.awaitContext(ctx, phase)
	defer cancel()

	done := make([]bool, len(services))
	for i, svc := range services {
		if !issued[i] {
			continue
		}
		wg.Add(1)
		go func(i int, svc ManagedService) {
			defer wg.Done()
			log.Debug("awaiting service", zap.Int64("level", int64(level)), zap.String("service", Name(svc)))
			if err := call(func() error { return await(awaitCtx, phase, svc) }); err != nil {
				record.Put(svc, err)
				return
			}
			done[i] = true
		}(i, svc)
	}
	wg.Wait()

	o.metrics.observeLevel(phase, level, time.Since(began))
	if failed := record.snapshot(before); len(failed) > 0 {
		o.metrics.recordFailures(phase, servicesOf(failed))
		span.SetStatus(codes.Error, fmt.Sprintf("%d services failed", len(failed)))
	}
	return done
}

// markRunning remembers the services of level that reached running and
// returns how many were not already known to be running.
func (o *Orchestrator) markRunning(groups *Groups, level Level, done []bool) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	added := 0
	for i, ok := range done {
		key := slot{groups: groups, level: level, index: i}
		if _, known := o.running[key]; ok && !known {
			o.running[key] = struct{}{}
			added++
		}
	}
	return added
}

// markStopped forgets the services of level that terminated and returns how
// many of them had been running.
func (o *Orchestrator) markStopped(groups *Groups, level Level, done []bool) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	removed := 0
	for i, ok := range done {
		key := slot{groups: groups, level: level, index: i}
		if _, known := o.running[key]; ok && known {
			delete(o.running, key)
			removed++
		}
	}
	return removed
}

func (o *Orchestrator) awaitContext(ctx context.Context, phase Phase) (context.Context, context.CancelFunc) {
	timeout := o.startTimeout
	if phase == PhaseStop {
		timeout = o.stopTimeout
	}
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

func (o *Orchestrator) logFailures(log *zap.Logger, phase Phase, level Level, failed []failure) {
	msg := "services failed startup at level"
	if phase == PhaseStop {
		msg = "services failed shutdown at level"
	}
	log.Error(msg, zap.Int64("level", int64(level)), zap.String("services", joinNames(servicesOf(failed))))
	for _, entry := range failed {
		log.Error("service failed", zap.String("service", Name(entry.service)), zap.Error(entry.err))
	}
}

func begin(phase Phase, svc ManagedService) error {
	if phase == PhaseStop {
		return svc.StopAsync()
	}
	return svc.StartAsync()
}

func await(ctx context.Context, phase Phase, svc ManagedService) error {
	if phase == PhaseStop {
		return svc.AwaitTerminated(ctx)
	}
	return svc.AwaitRunning(ctx)
}

// call runs fn and turns a panic into an error.
func call(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrServicePanicked, r)
		}
	}()
	return fn()
}
