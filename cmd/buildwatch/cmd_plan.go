package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show which revisions the next run would probe",
	Args:  cobra.NoArgs,
	RunE:  runPlan,
}

func runPlan(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	src, err := newSource(cfg)
	if err != nil {
		return err
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore(st)

	plans, err := newPoller(cfg, st, src, nil).Plan(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, pl := range plans {
		fmt.Fprintf(out, "%s: upstream r%d, floor %d, %d known, %d missing\n",
			pl.Ecosystem, pl.Upper, pl.Floor, pl.Known, pl.Missing)
		if len(pl.Revisions) == 0 {
			fmt.Fprintln(out, "  nothing to probe")
			continue
		}
		fmt.Fprintf(out, "  probe %d revision(s): r%d..r%d", len(pl.Revisions), pl.Revisions[0], pl.Revisions[len(pl.Revisions)-1])
		if pl.Backlog > 0 {
			fmt.Fprintf(out, ", %d left in backlog", pl.Backlog)
		}
		fmt.Fprintln(out)
	}
	return nil
}
