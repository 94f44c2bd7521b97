package lc

import (
	"context"
	"errors"
	"testing"

	"github.com/bronystylecrazy/tiered/lctest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

func TestModuleStartsAndStopsByLevel(t *testing.T) {
	rec := lctest.NewRecorder()
	var centre *Centre

	app := fxtest.New(t,
		fx.NopLogger,
		Module(WithName("app")),
		fx.Supply(rec),
		Provide(func(r *lctest.Recorder) *lctest.Service { return lctest.New("web", r) }, Later),
		Supply(lctest.New("db", rec), Earliest),
		Supply(lctest.New("cache", rec), Normal),
		fx.Populate(&centre),
	)
	app.RequireStart()
	assert.Equal(t, StateRunning, centre.State())
	assert.Equal(t, []string{"db", "cache", "web"}, rec.Services(lctest.CallStartAsync))

	app.RequireStop()
	assert.Equal(t, StateTerminated, centre.State())
	assert.Equal(t, []string{"web", "cache", "db"}, rec.Services(lctest.CallStopAsync))
}

func TestModuleUnwindsFailedStart(t *testing.T) {
	rec := lctest.NewRecorder()
	boom := errors.New("boom")
	db := lctest.New("db", rec)

	app := fx.New(
		fx.NopLogger,
		Module(),
		Supply(db, 0),
		Supply(lctest.New("web", rec, lctest.FailAwaitRunning(boom)), 1),
	)
	require.NoError(t, app.Err())

	err := app.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	var failed *ServicesFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "web", failed.Summary())
	assert.Equal(t, "terminated", db.State())
	assert.Equal(t, []error{boom}, failed.Errors())
}

func TestModuleReportsUnwindFailures(t *testing.T) {
	startErr := errors.New("web failed")
	stopErr := errors.New("db failed")

	app := fx.New(
		fx.NopLogger,
		Module(),
		Supply(lctest.New("db", nil, lctest.FailAwaitTerminated(stopErr)), 0),
		Supply(lctest.New("web", nil, lctest.FailAwaitRunning(startErr)), 1),
	)
	require.NoError(t, app.Err())

	err := app.Start(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, startErr)
	assert.ErrorIs(t, err, stopErr)
}

func TestModuleRejectsServiceSuppliedTwice(t *testing.T) {
	svc := lctest.New("db", nil)
	app := fx.New(fx.NopLogger, Module(), Supply(svc, 0), Supply(svc, 1))
	assert.ErrorIs(t, app.Err(), ErrInvalidRegistration)
}

func TestProvideRejectsNonServiceConstructors(t *testing.T) {
	app := fx.New(fx.NopLogger, Module(), Provide(func() string { return "x" }, 0))
	assert.ErrorIs(t, app.Err(), ErrInvalidRegistration)

	app = fx.New(fx.NopLogger, Module(), Provide("not a function", 0))
	assert.ErrorIs(t, app.Err(), ErrInvalidRegistration)

	app = fx.New(fx.NopLogger, Module(), Supply(nil, 0))
	assert.ErrorIs(t, app.Err(), ErrInvalidRegistration)
}
