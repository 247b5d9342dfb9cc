// Package probe answers one question per URL: does the artifact host serve it?
//
// HTTPProber issues a HEAD request and reports Reachable only for a 200
// response. Every other outcome (non-200 status, DNS, TLS, timeout, reset,
// cancelled context) collapses to Unreachable; Probe never returns an error.
// A transient failure is indistinguishable from a missing object and is
// corrected the next time the revision falls in the recency window.
//
// The Result keeps the reason so callers can tell a confirmed 404 from a
// transport failure, and malformed URLs are logged separately because they
// usually point at a bad host or path template in the config.
package probe
