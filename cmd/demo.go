package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/bronystylecrazy/tiered/cfg"
	"github.com/bronystylecrazy/tiered/lc"
	"github.com/bronystylecrazy/tiered/log"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// DemoCommand runs the configured services as no-op idle services through a
// Centre, optionally failing some of them, to show the orchestration order.
type DemoCommand struct {
	root      *Root
	delay     time.Duration
	failStart []string
	failStop  []string
	noUnwind  bool
}

func NewDemoCommand(root *Root) *DemoCommand {
	return &DemoCommand{root: root}
}

func (d *DemoCommand) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Start and stop the configured services as no-op services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := d.root.LoadConfig()
			if err != nil {
				return err
			}
			logger, _, err := log.New(c.Log)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			return d.Run(cmd.Context(), cmd.OutOrStdout(), c, logger)
		},
	}
	cmd.Flags().DurationVar(&d.delay, "delay", 50*time.Millisecond, "time each service takes to start and stop")
	cmd.Flags().StringSliceVar(&d.failStart, "fail-start", nil, "services that fail to start")
	cmd.Flags().StringSliceVar(&d.failStop, "fail-stop", nil, "services that fail to stop")
	cmd.Flags().BoolVar(&d.noUnwind, "no-unwind", false, "leave started services running when startup fails")
	return cmd
}

// Run starts every configured service, then stops them. When startup fails
// the started levels are stopped again unless unwinding is disabled.
func (d *DemoCommand) Run(ctx context.Context, out io.Writer, c *cfg.Config, logger *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	regs, err := c.Lifecycle.Registrations(d.newService)
	if err != nil {
		return err
	}
	opts := append(c.Lifecycle.Options(), lc.WithLogger(logger))
	centre := lc.NewCentre(regs, opts...)

	startErr := centre.Start(ctx)
	report(out, "start", startErr)
	if startErr != nil && d.noUnwind {
		return startErr
	}

	stopErr := centre.Stop(ctx)
	report(out, "stop", stopErr)
	return multierr.Append(startErr, stopErr)
}

func (d *DemoCommand) newService(e cfg.ServiceEntry) (lc.ManagedService, error) {
	failStart := slices.Contains(d.failStart, e.Name)
	failStop := slices.Contains(d.failStop, e.Name)
	return lc.NewIdleService(e.Name,
		func(ctx context.Context) error {
			if err := sleep(ctx, d.delay); err != nil {
				return err
			}
			if failStart {
				return errors.New("demo: configured to fail on start")
			}
			return nil
		},
		func(ctx context.Context) error {
			if err := sleep(ctx, d.delay); err != nil {
				return err
			}
			if failStop {
				return errors.New("demo: configured to fail on stop")
			}
			return nil
		},
	), nil
}

func report(out io.Writer, phase string, err error) {
	var failed *lc.ServicesFailedError
	switch {
	case err == nil:
		fmt.Fprintf(out, "%s: ok\n", phase)
	case errors.As(err, &failed):
		fmt.Fprintf(out, "%s: failed services %s\n", phase, failed.Summary())
	default:
		fmt.Fprintf(out, "%s: %v\n", phase, err)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
