// Package poller runs one full update: it reads every ecosystem's ledger,
// asks the upstream source for the current revision, probes the planned
// revisions and persists the changed ledgers in a single commit.
//
// Nothing is written until every ecosystem has been computed, so an upstream
// or probe-phase failure never leaves a partially updated store behind.
package poller
