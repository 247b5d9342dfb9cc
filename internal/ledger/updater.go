package ledger

import (
	"context"
	"fmt"

	"github.com/buildwatch/buildwatch/internal/collector"
	"github.com/buildwatch/buildwatch/pkg/types"
)

// CollectFunc probes one revision.
type CollectFunc func(ctx context.Context, rev int) collector.Status

// Updater applies a Policy to one ecosystem's ledger.
type Updater struct {
	Policy  Policy
	Collect CollectFunc

	// OnRevision, if set, observes every collected revision.
	OnRevision func(st collector.Status)
}

// Result is the outcome of one Update.
type Result struct {
	Plan

	// Entries is the full updated ledger, ascending by revision.
	Entries []types.RevisionEntry

	// Probed lists the revisions actually probed, in probe order.
	Probed []int

	Added    int // probed revisions that had no entry
	Replaced int // probed revisions whose entry changed
	Changed  bool
}

// Update probes the planned revisions and returns the merged ledger.
// prev may be unsorted and may contain duplicates (last one wins).
// Only context cancellation interrupts an update.
func (u *Updater) Update(ctx context.Context, prev []types.RevisionEntry, upper int) (Result, error) {
	before := types.Dedupe(prev)
	lookup := types.Index(before)

	known := make(map[int]bool, len(lookup))
	for rev := range lookup {
		known[rev] = true
	}
	res := Result{Plan: u.Policy.Plan(known, upper)}

	for _, rev := range res.Revisions {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("ledger: update interrupted at revision %d: %w", rev, err)
		}
		st := u.Collect(ctx, rev)
		st.Entry.Rev = rev
		if u.OnRevision != nil {
			u.OnRevision(st)
		}

		old, existed := lookup[rev]
		switch {
		case !existed:
			res.Added++
		case !types.EqualEntries([]types.RevisionEntry{old}, []types.RevisionEntry{st.Entry}):
			res.Replaced++
		}
		lookup[rev] = st.Entry
		res.Probed = append(res.Probed, rev)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("ledger: update interrupted: %w", err)
	}

	entries := make([]types.RevisionEntry, 0, len(lookup))
	for _, e := range lookup {
		entries = append(entries, e)
	}
	types.SortEntries(entries)

	res.Entries = entries
	res.Changed = !types.EqualEntries(prev, entries)
	return res, nil
}
