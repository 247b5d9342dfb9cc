package ledger

import (
	"math"
)

// Policy bounds the work of one run.
type Policy struct {
	Floor     int // oldest tracked revision
	Window    int // K: newest revisions re-probed every run
	BatchSize int // M: max revisions probed per run; <= 0 means unbounded
}

// Plan is the set of revisions a run will probe.
type Plan struct {
	Upper int

	// Revisions to probe, newest first.
	Revisions []int

	// Missing counts revisions in [Floor, Upper] with no entry.
	Missing int

	// Backlog counts missing revisions left for later runs by the batch cap.
	Backlog int
}

// Plan computes the revisions to probe given the known revisions and the
// current upper bound. It walks down from upper and stops once the batch is
// full, so its cost follows the batch size and the ledger size, never the
// width of [Floor, upper].
func (p Policy) Plan(known map[int]bool, upper int) Plan {
	out := Plan{Upper: upper}
	if upper < p.Floor {
		return out
	}

	inRange := 0
	for rev, ok := range known {
		if ok && rev >= p.Floor && rev <= upper {
			inRange++
		}
	}
	out.Missing = rangeLen(p.Floor, upper) - inRange

	// Revisions at or above windowLo are re-probed even when known.
	windowLo := p.Floor
	if p.Window > 0 && upper-p.Floor >= p.Window {
		windowLo = upper - p.Window + 1
	}
	if p.Window <= 0 {
		windowLo = math.MaxInt
	}

	scheduledMissing := 0
	for rev := upper; ; rev-- {
		if p.BatchSize > 0 && len(out.Revisions) == p.BatchSize {
			break
		}
		if scheduledMissing == out.Missing && rev < windowLo {
			break // nothing left to find below the window
		}
		switch {
		case !known[rev]:
			out.Revisions = append(out.Revisions, rev)
			scheduledMissing++
		case rev >= windowLo:
			out.Revisions = append(out.Revisions, rev)
		}
		if rev == p.Floor {
			break
		}
	}
	out.Backlog = out.Missing - scheduledMissing
	return out
}

// rangeLen returns the number of integers in [lo, hi], saturating at
// math.MaxInt.
func rangeLen(lo, hi int) int {
	span := hi - lo
	if span < 0 || span == math.MaxInt {
		return math.MaxInt
	}
	return span + 1
}
