package ditest

import (
	"testing"

	"github.com/bronystylecrazy/tiered/lc"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

// App wraps fxtest.App with the lc module already installed.
type App struct {
	app    *fxtest.App
	centre *lc.Centre
}

// New builds a test app from opts plus lc.Module(centreOpts...).
func New(t testing.TB, opts []fx.Option, centreOpts ...lc.Option) *App {
	t.Helper()
	a := &App{}
	a.app = fxtest.New(t,
		fx.NopLogger,
		lc.Module(centreOpts...),
		fx.Options(opts...),
		fx.Populate(&a.centre),
	)
	return a
}

// RequireStart starts the app and fails the test on error.
func (a *App) RequireStart() *App {
	a.app.RequireStart()
	return a
}

// RequireStop stops the app and fails the test on error.
func (a *App) RequireStop() *App {
	a.app.RequireStop()
	return a
}

// Centre returns the centre built by lc.Module.
func (a *App) Centre() *lc.Centre {
	return a.centre
}

// Fx exposes the underlying fxtest.App.
func (a *App) Fx() *fxtest.App {
	return a.app
}
