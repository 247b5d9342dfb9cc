// Package artifact maps an ecosystem revision to the CDN URLs its build would
// publish: one archive and one failure log per blob.
package artifact
