package log

import (
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides a *zap.Logger and its AtomicLevel built from cfg, and routes
// fx's own events through it.
func Module(cfg Config) fx.Option {
	return fx.Options(
		fx.Module("log",
			fx.Supply(cfg),
			fx.Provide(func(cfg Config) (*zap.Logger, zap.AtomicLevel, error) {
				return New(cfg)
			}),
		),
		fx.WithLogger(NewEventLogger),
	)
}
