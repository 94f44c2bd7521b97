package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bronystylecrazy/tiered/cfg"
	"github.com/bronystylecrazy/tiered/lc"
	"github.com/bronystylecrazy/tiered/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// RunCommand hosts the configured services in an fx application until the
// process is interrupted. Each entry becomes a no-op idle service.
type RunCommand struct {
	root  *Root
	watch bool
}

func NewRunCommand(root *Root) *RunCommand {
	return &RunCommand{root: root}
}

func (r *RunCommand) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the configured services until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := r.root.LoadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return r.Run(ctx, c)
		},
	}
	cmd.Flags().BoolVar(&r.watch, "watch", true, "reload the log level when the config file changes")
	return cmd
}

// Options assembles the fx application for c. Orchestration metrics are
// registered with reg.
func (r *RunCommand) Options(c *cfg.Config, reg prometheus.Registerer) (fx.Option, error) {
	regs, err := c.Lifecycle.Registrations(func(e cfg.ServiceEntry) (lc.ManagedService, error) {
		return lc.NewIdleService(e.Name, nil, nil), nil
	})
	if err != nil {
		return nil, err
	}

	opts := []fx.Option{
		log.Module(c.Log),
		fx.Provide(func() prometheus.Registerer { return reg }),
		fx.Provide(lc.NewMetrics),
		lc.Module(c.Lifecycle.Options()...),
	}
	for _, entry := range regs {
		opts = append(opts, lc.Supply(entry.Service, entry.Level))
	}
	if r.watch {
		opts = append(opts, fx.Invoke(r.watchConfig))
	}
	return fx.Options(opts...), nil
}

// Run starts the application, blocks until ctx is done and stops it again.
func (r *RunCommand) Run(ctx context.Context, c *cfg.Config) error {
	opts, err := r.Options(c, prometheus.NewRegistry())
	if err != nil {
		return err
	}
	app := fx.New(opts)
	if err := app.Err(); err != nil {
		return err
	}

	startCtx, cancel := context.WithTimeout(ctx, app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return err
	}

	<-ctx.Done()

	stopCtx, cancelStop := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancelStop()
	return app.Stop(stopCtx)
}

// watchConfig reloads the log level while the application runs. Reloads stop
// with the application.
func (r *RunCommand) watchConfig(lifecycle fx.Lifecycle, logger *zap.Logger, level zap.AtomicLevel) {
	ctx, cancel := context.WithCancel(context.Background())
	lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			_, err := cfg.Watch(ctx, r.root.ConfigPath(), logger, cfg.LogLevelReloader(level))
			return err
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}
