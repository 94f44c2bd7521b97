package lc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bronystylecrazy/tiered/lctest"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type threeLevels struct {
	rec             *lctest.Recorder
	one, two, three *lctest.Service
	groups          *Groups
}

func newThreeLevels(oneOpts, twoOpts, threeOpts []lctest.Option) threeLevels {
	rec := lctest.NewRecorder()
	s := threeLevels{
		rec:   rec,
		one:   lctest.New("one", rec, oneOpts...),
		two:   lctest.New("two", rec, twoOpts...),
		three: lctest.New("three", rec, threeOpts...),
	}
	s.groups = Group([]Registration{
		{Service: s.three, Level: 2},
		{Service: s.one, Level: 0},
		{Service: s.two, Level: 1},
	})
	return s
}

func failedError(t *testing.T, err error) *ServicesFailedError {
	t.Helper()
	var failed *ServicesFailedError
	require.ErrorAs(t, err, &failed)
	return failed
}

func TestStartAllThenStopAllInLevelOrder(t *testing.T) {
	s := newThreeLevels(nil, nil, nil)
	o := NewOrchestrator()

	require.NoError(t, o.StartAll(context.Background(), s.groups))
	assert.Equal(t, []string{"one", "two", "three"}, s.rec.Services(lctest.CallStartAsync))
	for _, svc := range []*lctest.Service{s.one, s.two, s.three} {
		assert.Equal(t, "running", svc.State())
	}

	require.NoError(t, o.StopAll(context.Background(), s.groups))
	assert.Equal(t, []string{"three", "two", "one"}, s.rec.Services(lctest.CallStopAsync))
	assert.Equal(t, []string{"three", "two", "one"}, s.rec.Services(lctest.CallAwaitTerminated))
	for _, svc := range []*lctest.Service{s.one, s.two, s.three} {
		assert.Equal(t, "terminated", svc.State())
	}
}

func TestStartAllAbortsAtFirstFailedLevel(t *testing.T) {
	boom := errors.New("three cannot start")
	s := newThreeLevels(nil, nil, []lctest.Option{lctest.FailAwaitRunning(boom)})
	four := lctest.New("four", s.rec)
	groups := Group([]Registration{
		{Service: s.one, Level: 0},
		{Service: s.two, Level: 1},
		{Service: s.three, Level: 2},
		{Service: four, Level: 3},
	})

	err := NewOrchestrator().StartAll(context.Background(), groups)
	failed := failedError(t, err)

	assert.Equal(t, []ManagedService{s.three}, failed.Services())
	assert.Same(t, boom, failed.Err(s.three))
	assert.ErrorIs(t, err, boom)
	level, ok := failed.Level()
	assert.True(t, ok)
	assert.Equal(t, Level(2), level)

	assert.Equal(t, -1, s.rec.Index("four", lctest.CallStartAsync))
	assert.Equal(t, "running", s.one.State())
	assert.Equal(t, "running", s.two.State())
	assert.Empty(t, s.rec.Services(lctest.CallStopAsync))
}

func TestStartAllSkipsAwaitWhenStartAsyncFails(t *testing.T) {
	boom := errors.New("refused")
	s := newThreeLevels(nil, []lctest.Option{lctest.FailStartAsync(boom)}, nil)

	err := NewOrchestrator().StartAll(context.Background(), s.groups)
	failed := failedError(t, err)

	assert.Equal(t, []ManagedService{s.two}, failed.Services())
	assert.Equal(t, []string{lctest.CallStartAsync}, s.rec.Calls("two"))
	assert.Equal(t, -1, s.rec.Index("three", lctest.CallStartAsync))
}

func TestStartAllRecordsEveryFailureOfTheLevel(t *testing.T) {
	rec := lctest.NewRecorder()
	a := lctest.New("a", rec, lctest.FailAwaitRunning(errors.New("a")))
	b := lctest.New("b", rec, lctest.FailStartAsync(errors.New("b")))
	c := lctest.New("c", rec)

	err := NewOrchestrator().StartAll(context.Background(), Group([]Registration{
		{Service: a, Level: 0},
		{Service: b, Level: 0},
		{Service: c, Level: 0},
	}))
	failed := failedError(t, err)

	assert.Len(t, failed.Failures(), 2)
	assert.EqualError(t, failed.Err(a), "a")
	assert.EqualError(t, failed.Err(b), "b")
	assert.Equal(t, "running", c.State())
}

func TestStopAllContinuesPastFailedLevel(t *testing.T) {
	boom := errors.New("three cannot stop")
	s := newThreeLevels(nil, nil, []lctest.Option{lctest.FailAwaitTerminated(boom)})
	o := NewOrchestrator()
	require.NoError(t, o.StartAll(context.Background(), s.groups))

	err := o.StopAll(context.Background(), s.groups)
	failed := failedError(t, err)

	assert.Equal(t, []ManagedService{s.three}, failed.Services())
	assert.Equal(t, PhaseStop, failed.Phase())
	assert.Equal(t, []string{"three", "two", "one"}, s.rec.Services(lctest.CallStopAsync))
	assert.Equal(t, []string{"three", "two", "one"}, s.rec.Services(lctest.CallAwaitTerminated))
	assert.Equal(t, "terminated", s.one.State())
	assert.Equal(t, "terminated", s.two.State())
}

func TestStopAllAccumulatesFailuresAcrossLevels(t *testing.T) {
	s := newThreeLevels(
		[]lctest.Option{lctest.FailAwaitTerminated(errors.New("one"))},
		nil,
		[]lctest.Option{lctest.FailStopAsync(errors.New("three"))},
	)
	o := NewOrchestrator()
	require.NoError(t, o.StartAll(context.Background(), s.groups))

	failed := failedError(t, o.StopAll(context.Background(), s.groups))

	assert.Len(t, failed.Failures(), 2)
	assert.EqualError(t, failed.Err(s.one), "one")
	assert.EqualError(t, failed.Err(s.three), "three")
	assert.Equal(t, "three,one", failed.Summary())
	assert.Equal(t, -1, s.rec.Index("three", lctest.CallAwaitTerminated))
	assert.Equal(t, "terminated", s.two.State())
}

func TestEmptyGroupsSucceed(t *testing.T) {
	o := NewOrchestrator()
	assert.NoError(t, o.StartAll(context.Background(), Group(nil)))
	assert.NoError(t, o.StopAll(context.Background(), Group(nil)))
}

func TestStartAllIssuesWholeLevelBeforeAwaiting(t *testing.T) {
	rec := lctest.NewRecorder()
	markRunning := func(name string) lctest.Option {
		return lctest.OnAwaitRunning(func(context.Context) error {
			time.Sleep(5 * time.Millisecond)
			rec.Record(name, "running")
			return nil
		})
	}
	a := lctest.New("a", rec, markRunning("a"))
	b := lctest.New("b", rec, markRunning("b"))
	c := lctest.New("c", rec, markRunning("c"))
	d := lctest.New("d", rec)

	err := NewOrchestrator().StartAll(context.Background(), Group([]Registration{
		{Service: d, Level: 1},
		{Service: a, Level: 0},
		{Service: b, Level: 0},
		{Service: c, Level: 0},
	}))
	require.NoError(t, err)

	for _, started := range []string{"a", "b", "c"} {
		for _, awaited := range []string{"a", "b", "c"} {
			assert.Less(t, rec.Index(started, lctest.CallStartAsync), rec.Index(awaited, lctest.CallAwaitRunning),
				"%s must begin starting before %s is awaited", started, awaited)
		}
		assert.Less(t, rec.Index(started, "running"), rec.Index("d", lctest.CallStartAsync),
			"%s must be running before the next level starts", started)
	}
}

func TestStartAllAwaitsLevelConcurrently(t *testing.T) {
	aIn := make(chan struct{})
	bIn := make(chan struct{})
	waitFor := func(mine, other chan struct{}) lctest.Option {
		return lctest.OnAwaitRunning(func(ctx context.Context) error {
			close(mine)
			select {
			case <-other:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}
	a := lctest.New("a", nil, waitFor(aIn, bIn))
	b := lctest.New("b", nil, waitFor(bIn, aIn))

	o := NewOrchestrator(WithStartTimeout(5 * time.Second))
	require.NoError(t, o.StartAll(context.Background(), Group([]Registration{
		{Service: a, Level: 0},
		{Service: b, Level: 0},
	})))
}

func TestStartTimeoutFailsBlockedService(t *testing.T) {
	blocked := lctest.New("blocked", nil, lctest.OnAwaitRunning(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))
	fast := lctest.New("fast", nil)

	o := NewOrchestrator(WithStartTimeout(20 * time.Millisecond))
	err := o.StartAll(context.Background(), Group([]Registration{
		{Service: blocked, Level: 0},
		{Service: fast, Level: 0},
	}))
	failed := failedError(t, err)

	assert.Equal(t, []ManagedService{blocked}, failed.Services())
	assert.ErrorIs(t, failed.Err(blocked), context.DeadlineExceeded)
}

func TestStopTimeoutStillStopsLowerLevels(t *testing.T) {
	s := newThreeLevels(nil, []lctest.Option{lctest.OnAwaitTerminated(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})}, nil)
	o := NewOrchestrator(WithStopTimeout(20 * time.Millisecond))
	require.NoError(t, o.StartAll(context.Background(), s.groups))

	failed := failedError(t, o.StopAll(context.Background(), s.groups))

	assert.Equal(t, []ManagedService{s.two}, failed.Services())
	assert.ErrorIs(t, failed, context.DeadlineExceeded)
	assert.Equal(t, "terminated", s.one.State())
}

func TestPanickingServiceIsRecorded(t *testing.T) {
	svc := lctest.New("panics", nil, lctest.OnAwaitRunning(func(context.Context) error {
		panic("kaboom")
	}))

	err := NewOrchestrator().StartAll(context.Background(), Group([]Registration{{Service: svc, Level: 0}}))

	failed := failedError(t, err)
	assert.ErrorIs(t, failed.Err(svc), ErrServicePanicked)
	assert.Contains(t, failed.Err(svc).Error(), "kaboom")
}

func TestOrchestratorLogsLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	s := newThreeLevels(nil, nil, []lctest.Option{lctest.FailAwaitRunning(errors.New("boom"))})

	err := NewOrchestrator(WithLogger(zap.New(core))).StartAll(context.Background(), s.groups)
	require.Error(t, err)

	assert.Equal(t, 3, logs.FilterMessage("starting level").Len())
	failures := logs.FilterMessage("services failed startup at level").All()
	require.Len(t, failures, 1)
	fields := failures[0].ContextMap()
	assert.Equal(t, int64(2), fields["level"])
	assert.Equal(t, "three", fields["services"])
	assert.Equal(t, "start", fields["phase"])
	assert.NotEmpty(t, fields["run_id"])
	assert.Zero(t, logs.FilterMessage("all services started").Len())
}

func TestOrchestratorMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	s := newThreeLevels(nil, nil, []lctest.Option{lctest.FailAwaitTerminated(errors.New("boom"))})
	o := NewOrchestrator(WithMetrics(m))

	require.NoError(t, o.StartAll(context.Background(), s.groups))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.ServicesRunning))

	require.Error(t, o.StopAll(context.Background(), s.groups))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ServicesRunning))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ServiceFailures.WithLabelValues("stop", "three")))
	assert.Equal(t, 6, testutil.CollectAndCount(m.LevelDuration))
}

func TestRunningGaugeIgnoresServicesThatNeverRan(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	rec := lctest.NewRecorder()
	groups := Group([]Registration{
		{Service: lctest.New("zero", rec), Level: 0},
		{Service: lctest.New("one", rec), Level: 1},
		{Service: lctest.New("two", rec, lctest.FailAwaitRunning(errors.New("boom"))), Level: 2},
		{Service: lctest.New("three", rec), Level: 3},
	})
	o := NewOrchestrator(WithMetrics(m))

	require.Error(t, o.StartAll(context.Background(), groups))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ServicesRunning))

	require.NoError(t, o.StopAll(context.Background(), groups))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ServicesRunning))

	require.NoError(t, o.StopAll(context.Background(), groups))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.ServicesRunning))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.observeLevel(PhaseStart, 0, time.Second)
	m.recordFailures(PhaseStart, []ManagedService{lctest.New("a", nil)})
	m.addRunning(1)
}

func TestOrchestratorTracesLevels(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	s := newThreeLevels(nil, []lctest.Option{lctest.FailAwaitRunning(errors.New("boom"))}, nil)

	err := NewOrchestrator(WithTracerProvider(tp)).StartAll(context.Background(), s.groups)
	require.Error(t, err)

	var names []string
	var root sdktrace.ReadOnlySpan
	for _, span := range sr.Ended() {
		names = append(names, span.Name())
		if span.Name() == "lc.start_all" {
			root = span
		}
	}
	assert.Equal(t, []string{"lc.start_level", "lc.start_level", "lc.start_all"}, names)
	require.NotNil(t, root)
	assert.Equal(t, codes.Error, root.Status().Code)
}
