package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/buildwatch/buildwatch/internal/metrics"
	"github.com/buildwatch/buildwatch/internal/poller"
	"github.com/buildwatch/buildwatch/internal/upstream"
)

var runFlags struct {
	dryRun bool
	upper  []string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one update of every ecosystem ledger",
	Long: `Reads each ledger, asks upstream for the current revision, probes the
planned revisions and persists the ledgers that changed in a single commit.`,
	Args: cobra.NoArgs,
	RunE: runOnce,
}

func init() {
	f := runCmd.Flags()
	f.BoolVar(&runFlags.dryRun, "dry-run", false, "Probe and report without writing the store")
	f.StringArrayVar(&runFlags.upper, "upper", nil, "Pin the upstream revision of an ecosystem (eco=rev, repeatable)")
}

func runOnce(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	pinned, err := parseUpper(cfg, runFlags.upper)
	if err != nil {
		return err
	}

	src, err := newSource(cfg)
	if err != nil {
		return err
	}
	if len(pinned) > 0 {
		src = upstream.Static{Revisions: pinned, Next: src}
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore(st)

	rec := metrics.NewRecorder()
	p := newPoller(cfg, st, src, rec)
	p.DryRun = runFlags.dryRun

	report, runErr := p.Run(ctx)
	if cfg.Metrics.Textfile != "" {
		if err := rec.WriteTextfile(cfg.Metrics.Textfile); err != nil {
			slog.Warn("metrics textfile not written", "path", cfg.Metrics.Textfile, "err", err)
		}
	}
	if runErr != nil {
		return runErr
	}
	printReport(cmd.OutOrStdout(), report)
	return nil
}

func printReport(out io.Writer, report poller.Report) {
	for _, er := range report.Ecosystems {
		state := "unchanged"
		switch {
		case er.Write && report.DryRun:
			state = "changed (dry run)"
		case er.Write:
			state = "written"
		}
		fmt.Fprintf(out, "%-10s upstream r%d  probed %d  added %d  replaced %d  backlog %d  %s\n",
			er.Ecosystem, er.Upper, len(er.Probed), er.Added, er.Replaced, er.Backlog, state)
	}
	if report.Committed {
		fmt.Fprintf(out, "Committed %d ledger(s)\n", len(report.Written))
	}
}
