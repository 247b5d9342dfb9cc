// Package metrics records what each poller run did and renders it in the
// Prometheus text exposition format, either to a textfile for node_exporter
// or over HTTP in watch mode.
package metrics
