// Package api serves the ledgers read-only over HTTP in watch mode.
//
// New(store, locators) returns an http.Handler that serves:
//
//	GET /api/v1/ledgers               one summary per configured ecosystem
//	GET /api/v1/ledgers/{ecosystem}   the stored ledger document as persisted
//	GET /api/v1/status/{ecosystem}    per-blob built/failed/missing, newest first (?last=N)
//
// All endpoints respond with Content-Type: application/json and return 405
// for non-GET methods. Unknown ecosystems and missing ledgers are 404.
package api
