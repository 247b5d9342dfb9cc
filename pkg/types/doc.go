// Package types defines the ledger data model shared by the poller, the
// stores and any consumer of the published JSON (the dashboard reads the
// same documents).
//
// A Document holds one ecosystem's ledger: a format version, the epoch-ms
// timestamp of its last change, and the RevisionEntry list keyed by the
// ecosystem name in JSON:
//
//	{"version": 1, "timestamp": 1700000000000, "chromium": [{"rev": 1000, "urls": [...]}]}
//
// Entries are unique per revision and persisted sorted ascending.
package types
