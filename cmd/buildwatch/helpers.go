package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/buildwatch/buildwatch/internal/collector"
	"github.com/buildwatch/buildwatch/internal/config"
	"github.com/buildwatch/buildwatch/internal/gitutil"
	"github.com/buildwatch/buildwatch/internal/logging"
	"github.com/buildwatch/buildwatch/internal/metrics"
	"github.com/buildwatch/buildwatch/internal/poller"
	"github.com/buildwatch/buildwatch/internal/probe"
	"github.com/buildwatch/buildwatch/internal/store"
	"github.com/buildwatch/buildwatch/internal/upstream"
)

// loadConfig reads the config file and applies its logging settings.
func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	applyLogging(cfg)
	slog.Debug("config loaded", "path", path, "ecosystems", len(cfg.Ecosystems), "store", cfg.Store.Backend)
	return cfg, nil
}

func applyLogging(cfg *config.Config) {
	err := logging.Configure(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		_ = logging.Configure(logging.Options{})
		slog.Warn("logging settings ignored", "err", err)
	}
}

// openStore builds the configured ledger store and prepares it for use.
// Callers release it with closeStore.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	var st store.Store
	switch cfg.Store.Backend {
	case "file":
		st = store.NewFileStore(cfg.Store.Path)
	case "git":
		git := gitutil.Exec{Env: gitutil.TokenEnv(cfg.Store.Token())}
		gs := store.NewGitStore(git, cfg.Store.Repo, cfg.Store.Branch, cfg.Store.Path)
		gs.AuthorName = cfg.Store.AuthorName
		gs.AuthorEmail = cfg.Store.AuthorEmail
		st = gs
	case "leveldb":
		ls, err := store.OpenLevelStore(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		st = ls
	case "memory":
		st = store.NewMemStore()
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	if o, ok := st.(store.Opener); ok {
		if err := o.Open(ctx); err != nil {
			closeStore(st)
			return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
		}
	}
	return st, nil
}

func closeStore(st store.Store) {
	if c, ok := st.(store.Closer); ok {
		if err := c.Close(); err != nil {
			slog.Warn("store close failed", "err", err)
		}
	}
}

// newSource builds the configured upstream revision source. Ecosystems are
// resolved through their own build-number paths.
func newSource(cfg *config.Config) (upstream.Source, error) {
	paths := make(map[string]string, len(cfg.Ecosystems))
	for _, e := range cfg.Ecosystems {
		paths[e.Name] = e.BuildNumberPath
	}

	switch cfg.Upstream.Type {
	case "file":
		return &upstream.FileSource{Root: cfg.Upstream.Path, Paths: paths, Default: cfg.Upstream.BuildNumberPath}, nil
	case "http":
		return upstream.NewHTTPSource(cfg.Upstream.URL), nil
	case "git":
		return &upstream.GitSource{
			Files: &upstream.FileSource{Root: cfg.Upstream.Dir, Paths: paths, Default: cfg.Upstream.BuildNumberPath},
			Git:   gitutil.Exec{},
			Repo:  cfg.Upstream.Repo,
			Ref:   cfg.Upstream.Ref,
		}, nil
	}
	return nil, fmt.Errorf("unknown upstream type %q", cfg.Upstream.Type)
}

// newPoller wires a poller over st and src using the configured prober.
func newPoller(cfg *config.Config, st store.Store, src upstream.Source, rec *metrics.Recorder) *poller.Poller {
	prober := probe.New(probe.Options{
		Timeout:   cfg.Poller.ProbeTimeout,
		UserAgent: cfg.Poller.UserAgent,
	})
	p := poller.New(st, src, collector.New(prober, cfg.Poller.ProbeConcurrency), poller.Targets(cfg))
	p.Metrics = rec
	return p
}

// parseUpper parses repeated eco=rev overrides and checks that every
// ecosystem is configured.
func parseUpper(cfg *config.Config, values []string) (map[string]int, error) {
	out := make(map[string]int, len(values))
	for _, v := range values {
		eco, rev, ok := strings.Cut(v, "=")
		eco = strings.TrimSpace(eco)
		if !ok || eco == "" {
			return nil, fmt.Errorf("--upper %q: want ecosystem=revision", v)
		}
		n, err := strconv.Atoi(strings.TrimSpace(rev))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("--upper %q: revision must be a non-negative integer", v)
		}
		if _, found := cfg.Lookup(eco); !found {
			return nil, fmt.Errorf("--upper %q: unknown ecosystem %q", v, eco)
		}
		out[eco] = n
	}
	return out, nil
}
