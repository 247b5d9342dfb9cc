// Package store persists one ledger document per ecosystem.
//
// Backends:
//   - FileStore: <dir>/<ecosystem>.json, written atomically
//   - GitStore: a FileStore inside a working copy of a data branch; Commit
//     pushes the changed documents as one commit
//   - LevelStore: a goleveldb database keyed by ecosystem
//   - MemStore: process memory, for tests and dry runs
//
// Read returns ErrNotFound for an ecosystem that was never written and
// ErrCorrupt for a document that cannot be decoded; callers treat both as a
// cold start. Any other error means the store itself is unusable.
package store
