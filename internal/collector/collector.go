package collector

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/buildwatch/buildwatch/internal/probe"
	"github.com/buildwatch/buildwatch/pkg/types"
)

// Collector fans probes out per revision.
type Collector struct {
	prober probe.Prober

	// concurrency limits in-flight probes; zero or less means no limit.
	concurrency int
}

// New returns a Collector using p.
func New(p probe.Prober, concurrency int) *Collector {
	return &Collector{prober: p, concurrency: concurrency}
}

// Status is the collected state of one revision.
type Status struct {
	Entry   types.RevisionEntry
	Results []probe.Result // one per candidate URL, in candidate order
}

// Reachable counts confirmed URLs.
func (s Status) Reachable() int { return len(s.Entry.URLs) }

// Collect probes urls for rev and returns the reachable subset in the order
// of urls. Probes are independent: one failure never affects another.
func (c *Collector) Collect(ctx context.Context, rev int, urls []string) Status {
	results := make([]probe.Result, len(urls))

	var g errgroup.Group
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}
	for i, u := range urls {
		g.Go(func() error {
			results[i] = c.prober.Probe(ctx, u)
			return nil
		})
	}
	_ = g.Wait() // probes never fail

	entry := types.RevisionEntry{Rev: rev, URLs: make([]string, 0, len(urls))}
	for i, r := range results {
		if r.OK() {
			entry.URLs = append(entry.URLs, urls[i])
		}
	}
	return Status{Entry: entry, Results: results}
}
