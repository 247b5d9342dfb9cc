// Package collector probes every candidate URL of one revision concurrently
// and reduces the answers to a ledger entry.
package collector
