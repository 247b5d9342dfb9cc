// Package ledger decides which revisions of an ecosystem need probing and
// merges the answers into the persisted ledger.
//
// A run schedules the union of
//   - every revision in [Floor, upper] that has no entry yet (the backlog), and
//   - the newest Window revisions up to upper, known or not, because their
//     artifacts may still be landing,
//
// sorted newest first and capped at BatchSize. A cold start with thousands
// of unseen revisions therefore fills in over many runs. Each probed revision
// replaces its entry outright; nothing is merged across probes. The result is
// always sorted ascending by revision.
//
// Updater is pure apart from the injected CollectFunc, so tests drive it with
// deterministic stubs.
package ledger
