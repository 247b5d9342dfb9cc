package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/buildwatch/buildwatch/internal/api"
	"github.com/buildwatch/buildwatch/internal/config"
	"github.com/buildwatch/buildwatch/internal/metrics"
	"github.com/buildwatch/buildwatch/internal/store"
	"github.com/buildwatch/buildwatch/internal/upstream"
	"github.com/buildwatch/buildwatch/pkg/types"
)

// fixture lays out an upstream checkout, a fake CDN and a config file.
type fixture struct {
	dir    string
	config string
	cdn    *httptest.Server
}

func newFixture(t *testing.T, upper int, published ...string) *fixture {
	t.Helper()
	dir := t.TempDir()

	pub := map[string]bool{}
	for _, p := range published {
		pub[p] = true
	}
	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead && pub[r.URL.Path] {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(cdn.Close)

	bn := filepath.Join(dir, "upstream", "browser_patches", "chromium", "BUILD_NUMBER")
	require.NoError(t, os.MkdirAll(filepath.Dir(bn), 0o755))
	require.NoError(t, os.WriteFile(bn, []byte(fmt.Sprintf("%d\nchanged by someone\n", upper)), 0o644))

	cfg := fmt.Sprintf(`
poller:
  floor: 1000
  recent_window: 2
  batch_size: 10
  probe_timeout: 2s
ecosystems:
  - name: chromium
    host: %s
    blobs: [chromium-linux, chromium-mac]
upstream:
  type: file
  path: %s
store:
  backend: file
  path: %s
metrics:
  textfile: %s
logging:
  level: error
  format: text
`, cdn.URL, filepath.Join(dir, "upstream"), filepath.Join(dir, "data"), filepath.Join(dir, "buildwatch.prom"))
	path := filepath.Join(dir, "buildwatch.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o644))

	return &fixture{dir: dir, config: path, cdn: cdn}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestCommands_RunStatusPlan(t *testing.T) {
	fx := newFixture(t, 1002,
		"/chromium/1001/chromium-linux.zip",
		"/chromium/1001/chromium-mac.log.gz",
		"/chromium/1002/chromium-linux.zip",
	)

	out, err := execute(t, "run", "--config", fx.config)
	require.NoError(t, err)
	assert.Contains(t, out, "chromium")
	assert.Contains(t, out, "written")

	doc, err := store.NewFileStore(filepath.Join(fx.dir, "data")).Read(context.Background(), "chromium")
	require.NoError(t, err)
	assert.Len(t, doc.Entries, 3)
	assert.Equal(t, 1, doc.Version)
	assert.NotZero(t, doc.Timestamp)

	prom, err := os.ReadFile(filepath.Join(fx.dir, "buildwatch.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(prom), `buildwatch_upstream_revision{ecosystem="chromium"} 1002`)

	out, err = execute(t, "status", "--config", fx.config, "--last", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "chromium: 3 revisions")
	assert.Regexp(t, `r1002\s+built\s+missing`, out)
	assert.Regexp(t, `r1001\s+built\s+failed`, out)
	assert.NotContains(t, out, "r1000")

	out, err = execute(t, "plan", "--config", fx.config)
	require.NoError(t, err)
	assert.Contains(t, out, "chromium: upstream r1002, floor 1000, 3 known, 0 missing")
	assert.Contains(t, out, "probe 2 revision(s): r1002..r1001")
}

func TestCommands_MissingConfig(t *testing.T) {
	_, err := execute(t, "plan", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestParseUpper(t *testing.T) {
	cfg := &config.Config{Ecosystems: []config.Ecosystem{{Name: "chromium"}, {Name: "webkit"}}}

	tests := []struct {
		name    string
		values  []string
		want    map[string]int
		wantErr string
	}{
		{name: "none", values: nil, want: map[string]int{}},
		{name: "two", values: []string{"chromium=1200", " webkit = 2000"}, want: map[string]int{"chromium": 1200, "webkit": 2000}},
		{name: "last wins", values: []string{"chromium=1", "chromium=2"}, want: map[string]int{"chromium": 2}},
		{name: "no equals", values: []string{"chromium"}, wantErr: "want ecosystem=revision"},
		{name: "not a number", values: []string{"chromium=abc"}, wantErr: "non-negative integer"},
		{name: "negative", values: []string{"chromium=-4"}, wantErr: "non-negative integer"},
		{name: "unknown", values: []string{"firefox=3"}, wantErr: "unknown ecosystem"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseUpper(cfg, tt.values)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	t.Run("file", func(t *testing.T) {
		cfg := &config.Config{Store: config.StoreConfig{Backend: "file", Path: dir}}
		st, err := openStore(ctx, cfg)
		require.NoError(t, err)
		assert.IsType(t, &store.FileStore{}, st)
	})

	t.Run("leveldb", func(t *testing.T) {
		cfg := &config.Config{Store: config.StoreConfig{Backend: "leveldb", Path: filepath.Join(dir, "ledger.db")}}
		st, err := openStore(ctx, cfg)
		require.NoError(t, err)
		assert.IsType(t, &store.LevelStore{}, st)
		closeStore(st)
	})

	t.Run("memory", func(t *testing.T) {
		cfg := &config.Config{Store: config.StoreConfig{Backend: "memory"}}
		st, err := openStore(ctx, cfg)
		require.NoError(t, err)
		assert.IsType(t, &store.MemStore{}, st)
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := openStore(ctx, &config.Config{Store: config.StoreConfig{Backend: "s3"}})
		assert.Error(t, err)
	})
}

func TestNewSource(t *testing.T) {
	base := config.UpstreamConfig{BuildNumberPath: config.DefaultBuildNumber, Path: "/src", Dir: "/clone", Repo: "https://example.test/repo.git", Ref: "main", URL: "https://raw.test/{ecosystem}"}
	ecos := []config.Ecosystem{{Name: "chromium", BuildNumberPath: "chrome/BUILD_NUMBER"}}

	for typ, want := range map[string]upstream.Source{
		"file": &upstream.FileSource{},
		"http": &upstream.HTTPSource{},
		"git":  &upstream.GitSource{},
	} {
		t.Run(typ, func(t *testing.T) {
			u := base
			u.Type = typ
			src, err := newSource(&config.Config{Upstream: u, Ecosystems: ecos})
			require.NoError(t, err)
			assert.IsType(t, want, src)
		})
	}

	src, err := newSource(&config.Config{Upstream: base, Ecosystems: ecos})
	require.Error(t, err, "empty type")
	assert.Nil(t, src)

	base.Type = "file"
	src, err = newSource(&config.Config{Upstream: base, Ecosystems: ecos})
	require.NoError(t, err)
	fs := src.(*upstream.FileSource)
	assert.Equal(t, "chrome/BUILD_NUMBER", fs.Paths["chromium"])
	assert.Equal(t, "/src", fs.Root)
}

func TestMetricsServer_Healthz(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	ledgers := api.New(store.NewMemStore(), nil)
	srv := httptest.NewServer(metricsServer("", metrics.NewRecorder(), ledgers, &healthy).Handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	healthy.Store(false)
	resp, err = http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/v1/ledgers")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// closingStore fails reads once closed and runs onClose while closing.
type closingStore struct {
	*store.MemStore
	closed  atomic.Bool
	onClose func()
}

func (s *closingStore) Read(ctx context.Context, eco string) (types.Document, error) {
	if s.closed.Load() {
		return types.Document{}, errors.New("store closed")
	}
	return s.MemStore.Read(ctx, eco)
}

func (s *closingStore) Close() error {
	s.closed.Store(true)
	s.onClose()
	return nil
}

func TestReplaceStore_APIServesNextBeforeClose(t *testing.T) {
	ctx := context.Background()
	locs := locators(&config.Config{Ecosystems: []config.Ecosystem{{Name: "chromium"}}})

	next := store.NewMemStore()
	require.NoError(t, next.Write(ctx, "chromium", types.NewDocument("chromium")))

	var status int
	old := &closingStore{MemStore: store.NewMemStore()}
	ledgers := api.New(old, locs)
	old.onClose = func() {
		rec := httptest.NewRecorder()
		ledgers.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ledgers/chromium", nil))
		status = rec.Code
	}

	replaceStore(ledgers, old, next, locs)

	assert.True(t, old.closed.Load())
	assert.Equal(t, http.StatusOK, status, "API still pointed at the closed store")
}
