package cmd

import (
	"fmt"

	"github.com/bronystylecrazy/tiered/build"
	"github.com/bronystylecrazy/tiered/cfg"
	"github.com/spf13/cobra"
)

const DefaultConfigPath = "tiered.toml"

type Root struct {
	*cobra.Command
	configPath string
}

func New(cmd *cobra.Command) *Root {
	defaultCmd := &cobra.Command{
		Use:           build.Name,
		Short:         "Start and stop services level by level",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	if cmd != nil {
		defaultCmd = cmd
	}

	r := &Root{Command: defaultCmd}
	r.PersistentFlags().StringVarP(&r.configPath, "config", "c", DefaultConfigPath, "path to the lifecycle config file")
	return r
}

// NewApp returns the root command with every built-in command registered.
func NewApp() *Root {
	r := New(nil)
	if err := r.Register(
		NewVersionCommand(),
		NewPlanCommand(r),
		NewDemoCommand(r),
		NewRunCommand(r),
	); err != nil {
		panic(err)
	}
	return r
}

func (r *Root) Register(commands ...Commander) error {
	for _, command := range commands {
		if err := r.RegisterOne(command); err != nil {
			return err
		}
	}
	return nil
}

func (r *Root) RegisterOne(c Commander) error {
	if r == nil || r.Command == nil {
		return fmt.Errorf("root command is nil")
	}
	if c == nil {
		return fmt.Errorf("commander is nil")
	}
	cmd := c.Command()
	if cmd.Use == "" {
		return fmt.Errorf("command %T has no use line", c)
	}
	r.AddCommand(cmd)
	return nil
}

func (r *Root) ConfigPath() string {
	return r.configPath
}

// LoadConfig reads the file named by --config.
func (r *Root) LoadConfig() (*cfg.Config, error) {
	return cfg.Load(r.configPath)
}
