package cmd

import (
	"io"
	"strconv"
	"strings"

	"github.com/bronystylecrazy/tiered/cfg"
	"github.com/bronystylecrazy/tiered/lc"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// PlanCommand prints the order in which the configured services would be
// started and stopped, without running anything.
type PlanCommand struct {
	root *Root
}

func NewPlanCommand(root *Root) *PlanCommand {
	return &PlanCommand{root: root}
}

func (p *PlanCommand) Command() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show the start and stop order of the configured services",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := p.root.LoadConfig()
			if err != nil {
				return err
			}
			return WritePlan(cmd.OutOrStdout(), c.Lifecycle)
		},
	}
}

// WritePlan renders one row per level and phase: every start step in
// ascending level order followed by every stop step in descending order.
func WritePlan(w io.Writer, l cfg.Lifecycle) error {
	regs, err := l.Registrations(func(e cfg.ServiceEntry) (lc.ManagedService, error) {
		return lc.NewIdleService(e.Name, nil, nil), nil
	})
	if err != nil {
		return err
	}
	groups := lc.Group(regs)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Step", "Phase", "Level", "Services"})
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	levels := groups.Levels()
	step := 0
	row := func(phase lc.Phase, level lc.Level) {
		step++
		table.Append([]string{
			strconv.Itoa(step),
			string(phase),
			strconv.FormatInt(int64(level), 10),
			names(groups.Services(level)),
		})
	}
	for _, level := range levels {
		row(lc.PhaseStart, level)
	}
	for i := len(levels) - 1; i >= 0; i-- {
		row(lc.PhaseStop, levels[i])
	}

	table.Render()
	return nil
}

func names(services []lc.ManagedService) string {
	out := make([]string, len(services))
	for i, svc := range services {
		out[i] = lc.Name(svc)
	}
	return strings.Join(out, ",")
}
