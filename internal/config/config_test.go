package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimal = `
upstream:
  type: file
  path: ./playwright
ecosystems:
  - name: chromium
    host: "https://cdn.example.com/builds/"
    blobs: [chromium-linux, chromium-mac]
`

func TestLoad_Valid(t *testing.T) {
	yaml := `
poller:
  floor: 1100
  recent_window: 3
  batch_size: 20
  probe_timeout: 5s
  probe_concurrency: 4
  interval: 10m
upstream:
  type: git
  repo: https://github.com/example/browsers.git
  ref: release
ecosystems:
  - name: firefox
    host: https://cdn.example.com/builds
    blobs: [firefox-ubuntu-22.04, firefox-win64]
    archive_ext: .tar.gz
    floor: 1200
store:
  backend: git
  repo: git@github.com:example/status.git
  branch: data
  token_env: STATUS_TOKEN
metrics:
  textfile: /var/lib/node_exporter/buildwatch.prom
logging:
  level: debug
  format: text
`
	cfg := loadFromString(t, yaml)

	if cfg.Poller.Floor != 1100 {
		t.Errorf("floor: got %d", cfg.Poller.Floor)
	}
	if cfg.Poller.RecentWindow != 3 || cfg.Poller.BatchSize != 20 {
		t.Errorf("window/batch: got %d/%d", cfg.Poller.RecentWindow, cfg.Poller.BatchSize)
	}
	if cfg.Poller.ProbeTimeout != 5*time.Second {
		t.Errorf("probe_timeout: got %v", cfg.Poller.ProbeTimeout)
	}
	if cfg.Poller.Interval != 10*time.Minute {
		t.Errorf("interval: got %v", cfg.Poller.Interval)
	}
	if cfg.Upstream.Type != "git" || cfg.Upstream.Ref != "release" {
		t.Errorf("upstream: got %+v", cfg.Upstream)
	}
	if len(cfg.Ecosystems) != 1 {
		t.Fatalf("ecosystems: got %d, want 1", len(cfg.Ecosystems))
	}
	eco := cfg.Ecosystems[0]
	if eco.ArchiveExt != ".tar.gz" {
		t.Errorf("archive_ext: got %q", eco.ArchiveExt)
	}
	if eco.LogExt != DefaultLogExt {
		t.Errorf("log_ext default: got %q", eco.LogExt)
	}
	if got := cfg.EcosystemFloor(eco); got != 1200 {
		t.Errorf("EcosystemFloor: got %d, want 1200", got)
	}
	if cfg.Store.Backend != "git" || cfg.Store.Branch != "data" {
		t.Errorf("store: got %+v", cfg.Store)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("logging.format: got %q", cfg.Logging.Format)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg := loadFromString(t, minimal)

	if cfg.Poller.Floor != DefaultFloor {
		t.Errorf("default floor: got %d, want %d", cfg.Poller.Floor, DefaultFloor)
	}
	if cfg.Poller.RecentWindow != DefaultRecentWindow {
		t.Errorf("default recent_window: got %d, want %d", cfg.Poller.RecentWindow, DefaultRecentWindow)
	}
	if cfg.Poller.BatchSize != DefaultBatchSize {
		t.Errorf("default batch_size: got %d, want %d", cfg.Poller.BatchSize, DefaultBatchSize)
	}
	if cfg.Poller.ProbeTimeout != DefaultProbeTimeout {
		t.Errorf("default probe_timeout: got %v", cfg.Poller.ProbeTimeout)
	}
	if cfg.Store.Backend != "file" || cfg.Store.Path != DefaultStorePath {
		t.Errorf("default store: got %+v", cfg.Store)
	}
	eco := cfg.Ecosystems[0]
	if eco.Host != "https://cdn.example.com/builds" {
		t.Errorf("host should be trimmed: got %q", eco.Host)
	}
	if eco.PathTemplate != DefaultPathTemplate {
		t.Errorf("default path_template: got %q", eco.PathTemplate)
	}
	if eco.BuildNumberPath != DefaultBuildNumber {
		t.Errorf("default build_number_path: got %q", eco.BuildNumberPath)
	}
	if got := cfg.EcosystemFloor(eco); got != DefaultFloor {
		t.Errorf("EcosystemFloor without override: got %d", got)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"no ecosystems", "upstream: {type: file, path: .}\n", "at least one ecosystem"},
		{"missing host", `
upstream: {type: file, path: .}
ecosystems:
  - name: webkit
    blobs: [webkit-mac]
`, "host is required"},
		{"missing blobs", `
upstream: {type: file, path: .}
ecosystems:
  - name: webkit
    host: https://cdn
`, "at least one blob"},
		{"duplicate", `
upstream: {type: file, path: .}
ecosystems:
  - {name: webkit, host: https://cdn, blobs: [a]}
  - {name: webkit, host: https://cdn, blobs: [b]}
`, "duplicate name"},
		{"reserved name", `
upstream: {type: file, path: .}
ecosystems:
  - {name: timestamp, host: https://cdn, blobs: [a]}
`, "reserved"},
		{"same extensions", `
upstream: {type: file, path: .}
ecosystems:
  - {name: webkit, host: https://cdn, blobs: [a], archive_ext: .zip, log_ext: .zip}
`, "must differ"},
		{"template without revision", `
upstream: {type: file, path: .}
ecosystems:
  - {name: webkit, host: https://cdn, blobs: [a], path_template: "{host}/{blob}{ext}"}
`, "{revision}"},
		{"unknown upstream", `
upstream: {type: ftp}
ecosystems:
  - {name: webkit, host: https://cdn, blobs: [a]}
`, "unknown type"},
		{"http upstream without placeholder", `
upstream: {type: http, url: "https://raw.example.com/BUILD_NUMBER"}
ecosystems:
  - {name: webkit, host: https://cdn, blobs: [a]}
`, "{ecosystem}"},
		{"git store without repo", minimal + `
store: {backend: git}
`, "store.repo"},
		{"unknown backend", minimal + `
store: {backend: s3}
`, "unknown backend"},
		{"bad level", minimal + `
logging: {level: loud}
`, "unknown level"},
		{"zero timeout", minimal + `
poller: {probe_timeout: 0s}
`, "probe_timeout"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadStringErr(t, tc.yaml)
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tc.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestStoreConfig_Token(t *testing.T) {
	t.Setenv("TEST_PUSH_TOKEN", "ghp_secret")
	s := StoreConfig{TokenEnv: "TEST_PUSH_TOKEN"}
	if got := s.Token(); got != "ghp_secret" {
		t.Errorf("Token(): got %q", got)
	}
	if got := (StoreConfig{}).Token(); got != "" {
		t.Errorf("Token() with no TokenEnv: got %q, want empty", got)
	}
}

func TestConfig_Lookup(t *testing.T) {
	cfg := loadFromString(t, minimal)
	if _, ok := cfg.Lookup("chromium"); !ok {
		t.Error("Lookup(chromium) should succeed")
	}
	if _, ok := cfg.Lookup("webkit"); ok {
		t.Error("Lookup(webkit) should fail")
	}
}

// loadFromString writes yaml to a temp file and calls Load, failing on error.
func loadFromString(t *testing.T, content string) *Config {
	t.Helper()
	cfg, err := loadStringErr(t, content)
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	return cfg
}

// loadStringErr writes yaml to a temp file and calls Load, returning any error.
func loadStringErr(t *testing.T, content string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "buildwatch.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return Load(path)
}

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := Load("../../buildwatch.example.yaml")
	if err != nil {
		t.Fatalf("example config must load: %v", err)
	}
	if len(cfg.Ecosystems) != 3 {
		t.Errorf("ecosystems: got %d, want 3", len(cfg.Ecosystems))
	}
	wk, _ := cfg.Lookup("webkit")
	if got := cfg.EcosystemFloor(wk); got != 1900 {
		t.Errorf("webkit floor: got %d, want 1900", got)
	}
	ff, _ := cfg.Lookup("firefox")
	if ff.ArchiveExt != ".tar.xz" || ff.LogExt != DefaultLogExt {
		t.Errorf("firefox exts: %q %q", ff.ArchiveExt, ff.LogExt)
	}
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "buildwatch.yaml")
	if err := os.WriteFile(path, []byte(minimal), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, func(c *Config) { got <- c })
	}()

	updated := minimal + "  - name: webkit\n    host: https://cdn.example.com/builds\n    blobs: [webkit-mac]\n"
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(300 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case c := <-got:
			if len(c.Ecosystems) != 2 {
				t.Fatalf("reloaded ecosystems: got %d, want 2", len(c.Ecosystems))
			}
			cancel()
			if err := <-done; err != nil {
				t.Errorf("Watch returned %v", err)
			}
			return
		case <-tick.C:
			// An invalid write first: it must never reach onChange.
			_ = os.WriteFile(path, []byte("poller: [broken"), 0o644)
			_ = os.WriteFile(path, []byte(updated), 0o644)
		case <-deadline:
			t.Fatal("no reload within 5s")
		}
	}
}
