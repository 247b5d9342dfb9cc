package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/buildwatch/buildwatch/internal/artifact"
	"github.com/buildwatch/buildwatch/internal/collector"
	"github.com/buildwatch/buildwatch/internal/config"
	"github.com/buildwatch/buildwatch/internal/ledger"
	"github.com/buildwatch/buildwatch/internal/logging"
	"github.com/buildwatch/buildwatch/internal/metrics"
	"github.com/buildwatch/buildwatch/internal/probe"
	"github.com/buildwatch/buildwatch/internal/store"
	"github.com/buildwatch/buildwatch/internal/upstream"
	"github.com/buildwatch/buildwatch/pkg/types"
)

// Target is one tracked ecosystem and the policy bounding its runs.
type Target struct {
	Locator *artifact.Locator
	Policy  ledger.Policy
}

// Targets builds one Target per configured ecosystem, in config order.
func Targets(cfg *config.Config) []Target {
	out := make([]Target, 0, len(cfg.Ecosystems))
	for _, eco := range cfg.Ecosystems {
		out = append(out, Target{
			Locator: artifact.NewLocator(eco),
			Policy: ledger.Policy{
				Floor:     cfg.EcosystemFloor(eco),
				Window:    cfg.Poller.RecentWindow,
				BatchSize: cfg.Poller.BatchSize,
			},
		})
	}
	return out
}

// EcosystemReport is what one run did to one ecosystem.
type EcosystemReport struct {
	Ecosystem string
	ledger.Result

	// Document is the ledger as it stands after the run.
	Document types.Document

	// ColdStart is set when the stored ledger was missing or unusable.
	ColdStart bool

	// Write is set when the document must be persisted.
	Write bool

	Reachable   int
	Unreachable int
	Malformed   int
}

// Report is the outcome of one Run.
type Report struct {
	Started    time.Time
	Duration   time.Duration
	DryRun     bool
	Ecosystems []EcosystemReport

	// Written lists the ecosystems whose ledgers were persisted.
	Written   []string
	Committed bool
}

// Changed reports whether any ecosystem's ledger changed.
func (r Report) Changed() bool {
	for _, e := range r.Ecosystems {
		if e.Write {
			return true
		}
	}
	return false
}

// Poller wires the store, the upstream source and the collector together.
type Poller struct {
	store     store.Store
	source    upstream.Source
	collector *collector.Collector
	targets   []Target

	// Metrics, if set, records every run.
	Metrics *metrics.Recorder

	// DryRun computes the update but writes and commits nothing.
	DryRun bool

	now func() time.Time
	log *slog.Logger
}

// New returns a Poller over targets.
func New(st store.Store, src upstream.Source, col *collector.Collector, targets []Target) *Poller {
	return &Poller{
		store:     st,
		source:    src,
		collector: col,
		targets:   targets,
		now:       time.Now,
		log:       logging.New("poller"),
	}
}

// Run performs one update. Any error is fatal for the run; when it is
// returned no ledger has been written unless the failure happened while
// persisting.
func (p *Poller) Run(ctx context.Context) (Report, error) {
	report := Report{Started: p.now(), DryRun: p.DryRun}
	err := p.run(ctx, &report)
	report.Duration = p.now().Sub(report.Started)
	p.record(report, err == nil)

	if err != nil {
		p.log.Error("poller: run failed", "err", err, "duration", report.Duration)
		return report, err
	}
	if !report.Changed() {
		p.log.Info("poller: ledger unchanged", "duration", report.Duration)
	} else {
		p.log.Info("poller: run complete",
			"written", report.Written,
			"dry_run", p.DryRun,
			"duration", report.Duration,
		)
	}
	return report, nil
}

func (p *Poller) run(ctx context.Context, report *Report) error {
	for _, t := range p.targets {
		er, err := p.update(ctx, t)
		if err != nil {
			return err
		}
		report.Ecosystems = append(report.Ecosystems, er)
	}

	if p.DryRun {
		for _, er := range report.Ecosystems {
			if er.Write {
				p.log.Info("poller: dry run, not writing", "ecosystem", er.Ecosystem, "entries", len(er.Document.Entries))
			}
		}
		return nil
	}

	for _, er := range report.Ecosystems {
		if !er.Write {
			continue
		}
		if err := p.store.Write(ctx, er.Ecosystem, er.Document); err != nil {
			return fmt.Errorf("poller: %s: write ledger: %w", er.Ecosystem, err)
		}
		report.Written = append(report.Written, er.Ecosystem)
	}
	if len(report.Written) == 0 {
		return nil
	}

	c, ok := p.store.(store.Committer)
	if !ok {
		return nil
	}
	committed, err := c.Commit(ctx, commitMessage(report))
	if err != nil {
		return fmt.Errorf("poller: commit: %w", err)
	}
	report.Committed = committed
	return nil
}

// update computes the new ledger for one ecosystem without writing it.
func (p *Poller) update(ctx context.Context, t Target) (EcosystemReport, error) {
	eco := t.Locator.Ecosystem()
	er := EcosystemReport{Ecosystem: eco}
	log := p.log.With("ecosystem", eco)

	prev, stale, err := p.load(ctx, eco)
	if err != nil {
		return er, err
	}
	er.ColdStart = len(prev.Entries) == 0

	upper, err := p.source.CurrentRevision(ctx, eco)
	if err != nil {
		return er, fmt.Errorf("poller: %s: current revision: %w", eco, err)
	}

	u := ledger.Updater{
		Policy: t.Policy,
		Collect: func(ctx context.Context, rev int) collector.Status {
			return p.collector.Collect(ctx, rev, t.Locator.URLs(rev))
		},
		OnRevision: func(st collector.Status) {
			for _, r := range st.Results {
				switch {
				case r.OK():
					er.Reachable++
				case r.Reason == probe.ReasonMalformed:
					er.Malformed++
				default:
					er.Unreachable++
				}
			}
			log.Debug("poller: probed revision", "rev", st.Entry.Rev, "reachable", st.Reachable(), "candidates", len(st.Results))
		},
	}
	res, err := u.Update(ctx, prev.Entries, upper)
	if err != nil {
		return er, fmt.Errorf("poller: %s: %w", eco, err)
	}
	er.Result = res
	er.Write = res.Changed || stale

	if er.Write {
		er.Document = types.Document{
			Version:   types.FormatVersion,
			Timestamp: p.now().UnixMilli(),
			Ecosystem: eco,
			Entries:   res.Entries,
		}
	} else {
		er.Document = prev
	}

	log.Info("poller: ecosystem computed",
		"upstream", upper,
		"probed", len(res.Probed),
		"added", res.Added,
		"replaced", res.Replaced,
		"backlog", res.Backlog,
		"changed", er.Write,
	)
	return er, nil
}

// load reads the stored ledger. Missing, corrupt and incompatible documents
// yield an empty ledger; stale reports that an unusable document exists and
// must be overwritten.
func (p *Poller) load(ctx context.Context, eco string) (doc types.Document, stale bool, err error) {
	doc, err = p.store.Read(ctx, eco)
	switch {
	case err == nil && doc.Compatible():
		return doc, false, nil
	case err == nil:
		p.log.Warn("poller: ledger version mismatch, starting over",
			"ecosystem", eco, "version", doc.Version, "want", types.FormatVersion)
		return types.NewDocument(eco), true, nil
	case errors.Is(err, store.ErrNotFound):
		p.log.Info("poller: no ledger yet", "ecosystem", eco)
		return types.NewDocument(eco), false, nil
	case errors.Is(err, store.ErrCorrupt):
		p.log.Warn("poller: ledger corrupt, starting over", "ecosystem", eco, "err", err)
		return types.NewDocument(eco), true, nil
	default:
		return types.Document{}, false, fmt.Errorf("poller: %s: read ledger: %w", eco, err)
	}
}

// Plan reports, per target, what the next run would probe. It reads the
// store and the upstream source but probes nothing.
func (p *Poller) Plan(ctx context.Context) ([]EcosystemPlan, error) {
	out := make([]EcosystemPlan, 0, len(p.targets))
	for _, t := range p.targets {
		eco := t.Locator.Ecosystem()
		prev, _, err := p.load(ctx, eco)
		if err != nil {
			return nil, err
		}
		upper, err := p.source.CurrentRevision(ctx, eco)
		if err != nil {
			return nil, fmt.Errorf("poller: %s: current revision: %w", eco, err)
		}
		known := make(map[int]bool, len(prev.Entries))
		for _, e := range prev.Entries {
			known[e.Rev] = true
		}
		out = append(out, EcosystemPlan{
			Ecosystem: eco,
			Floor:     t.Policy.Floor,
			Known:     len(known),
			Plan:      t.Policy.Plan(known, upper),
		})
	}
	return out, nil
}

// EcosystemPlan is the planned work for one ecosystem.
type EcosystemPlan struct {
	Ecosystem string
	Floor     int
	Known     int
	ledger.Plan
}

func (p *Poller) record(report Report, success bool) {
	if p.Metrics == nil {
		return
	}
	run := metrics.Run{
		Started:  report.Started,
		Duration: report.Duration,
		Success:  success,
	}
	for _, er := range report.Ecosystems {
		run.Ecosystems = append(run.Ecosystems, metrics.EcosystemRun{
			Ecosystem:   er.Ecosystem,
			Upstream:    er.Upper,
			Probed:      len(er.Probed),
			Reachable:   er.Reachable,
			Unreachable: er.Unreachable,
			Malformed:   er.Malformed,
			Backlog:     er.Backlog,
			Entries:     len(er.Document.Entries),
			Changed:     er.Write,
		})
	}
	p.Metrics.Record(run)
}

func commitMessage(report *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Update build ledger: %s\n", strings.Join(report.Written, ", "))
	for _, er := range report.Ecosystems {
		if !er.Write {
			continue
		}
		fmt.Fprintf(&b, "\n%s: upstream r%d, %d probed, %d added, %d replaced, %d backlog",
			er.Ecosystem, er.Upper, len(er.Probed), er.Added, er.Replaced, er.Backlog)
	}
	return b.String()
}
