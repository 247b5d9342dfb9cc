package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/buildwatch/buildwatch/internal/artifact"
	"github.com/buildwatch/buildwatch/internal/config"
	"github.com/buildwatch/buildwatch/internal/store"
	"github.com/buildwatch/buildwatch/pkg/types"
)

var statusFlags struct {
	ecosystem string
	last      int
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-blob build status of the newest revisions",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	f := statusCmd.Flags()
	f.StringVar(&statusFlags.ecosystem, "ecosystem", "", "Only show this ecosystem")
	f.IntVar(&statusFlags.last, "last", 10, "Number of newest revisions to show")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	ecos := cfg.Ecosystems
	if statusFlags.ecosystem != "" {
		eco, ok := cfg.Lookup(statusFlags.ecosystem)
		if !ok {
			return fmt.Errorf("unknown ecosystem %q", statusFlags.ecosystem)
		}
		ecos = []config.Ecosystem{eco}
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore(st)

	out := cmd.OutOrStdout()
	for _, eco := range ecos {
		doc, err := st.Read(ctx, eco.Name)
		switch {
		case errors.Is(err, store.ErrNotFound):
			fmt.Fprintf(out, "%s: no ledger yet\n\n", eco.Name)
			continue
		case err != nil:
			return fmt.Errorf("read %s ledger: %w", eco.Name, err)
		}
		printStatus(out, artifact.NewLocator(eco), doc, statusFlags.last)
	}
	return nil
}

func printStatus(out io.Writer, loc *artifact.Locator, doc types.Document, last int) {
	entries := types.Dedupe(doc.Entries)
	updated := "never"
	if doc.Timestamp > 0 {
		updated = time.UnixMilli(doc.Timestamp).UTC().Format(time.RFC3339)
	}
	fmt.Fprintf(out, "%s: %d revisions, updated %s\n", loc.Ecosystem(), len(entries), updated)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprint(tw, "REV")
	for _, blob := range loc.Blobs() {
		fmt.Fprintf(tw, "\t%s", blob)
	}
	fmt.Fprintln(tw)

	shown := 0
	for i := len(entries) - 1; i >= 0; i-- {
		if last > 0 && shown == last {
			break
		}
		e := entries[i]
		fmt.Fprintf(tw, "r%d", e.Rev)
		for _, blob := range loc.Blobs() {
			status := types.BlobStatus(e,
				loc.URL(e.Rev, blob, artifact.FormArchive),
				loc.URL(e.Rev, blob, artifact.FormLog))
			fmt.Fprintf(tw, "\t%s", status)
		}
		fmt.Fprintln(tw)
		shown++
	}
	tw.Flush() //nolint:errcheck
	fmt.Fprintln(out)
}
