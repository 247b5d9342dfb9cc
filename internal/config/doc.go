// Package config loads and watches the buildwatch configuration file
// (buildwatch.yaml).
//
// Top-level types:
//   - Config{Poller, Ecosystems, Upstream, Store, Metrics, Logging}
//   - PollerConfig: floor, recent_window, batch_size, probe_timeout,
//     probe_concurrency, interval, user_agent
//   - Ecosystem: name, host, blobs, archive/log extensions, path template,
//     per-ecosystem floor and build-number path overrides
//   - UpstreamConfig: where the current build number comes from
//     (file | http | git)
//   - StoreConfig: where ledgers are persisted (file | git | leveldb | memory);
//     Token() resolves git push credentials from the environment
//
// Load(path) reads the YAML file, applies defaults (floor 1000, window 5,
// batch 50, 10s probe timeout, 30m interval), then validates required fields
// and enums.
//
// Watch(ctx, path, onChange) uses fsnotify to detect file changes and calls
// onChange with the newly parsed Config, re-adding the watch after editors
// replace the file on save.
package config
