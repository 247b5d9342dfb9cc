package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/buildwatch/buildwatch/internal/api"
	"github.com/buildwatch/buildwatch/internal/artifact"
	"github.com/buildwatch/buildwatch/internal/config"
	"github.com/buildwatch/buildwatch/internal/metrics"
	"github.com/buildwatch/buildwatch/internal/store"
)

var watchFlags struct {
	every time.Duration
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run updates periodically until interrupted",
	Long: `Runs an update immediately and then every poller.interval (or --every).
The config file is reloaded when it changes. When metrics.listen is set,
/metrics, /healthz and the read-only /api/v1 ledger API are served there.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchFlags.every, "every", 0, "Override poller.interval")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { closeStore(st) }()

	rec := metrics.NewRecorder()
	ledgers := api.New(st, locators(cfg))
	var healthy atomic.Bool
	healthy.Store(true)

	if cfg.Metrics.Listen != "" {
		srv := metricsServer(cfg.Metrics.Listen, rec, ledgers, &healthy)
		go func() {
			slog.Info("HTTP server listening", "addr", cfg.Metrics.Listen)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("HTTP server stopped", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck
		}()
	}

	reloads := make(chan *config.Config, 1)
	go func() {
		if err := config.Watch(ctx, configPath, func(updated *config.Config) {
			// Keep only the newest pending reload.
			select {
			case <-reloads:
			default:
			}
			reloads <- updated
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	interval := func(c *config.Config) time.Duration {
		if watchFlags.every > 0 {
			return watchFlags.every
		}
		return c.Poller.Interval
	}

	fresh := true // the store was just opened; no refresh needed
	tick := func() {
		err := watchOnce(ctx, cfg, st, rec, !fresh)
		fresh = false
		healthy.Store(err == nil)
	}
	tick()

	ticker := time.NewTicker(interval(cfg))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("buildwatch shutting down")
			return nil

		case updated := <-reloads:
			if updated.Store != cfg.Store {
				next, err := openStore(ctx, updated)
				if err != nil {
					slog.Error("config reload rejected, store unavailable", "err", err)
					continue
				}
				replaceStore(ledgers, st, next, locators(updated))
				st = next
				fresh = true
			}
			cfg = updated
			applyLogging(cfg)
			ledgers.Set(st, locators(cfg))
			ticker.Reset(interval(cfg))
			slog.Info("config hot-reloaded", "ecosystems", len(cfg.Ecosystems), "interval", interval(cfg))

		case <-ticker.C:
			tick()
		}
	}
}

// replaceStore points the ledger API at next before closing old, so a request
// arriving during a reload never reads from a closed store.
func replaceStore(ledgers *api.Handler, old, next store.Store, locs []*artifact.Locator) {
	ledgers.Set(next, locs)
	closeStore(old)
}

// watchOnce runs one update. refresh re-syncs stores backed by a remote
// working copy so each run starts from the current branch head.
func watchOnce(ctx context.Context, cfg *config.Config, st store.Store, rec *metrics.Recorder, refresh bool) error {
	if o, ok := st.(store.Opener); ok && refresh {
		if err := o.Open(ctx); err != nil {
			slog.Error("store refresh failed", "err", err)
			return err
		}
	}
	src, err := newSource(cfg)
	if err != nil {
		slog.Error("upstream source", "err", err)
		return err
	}

	_, err = newPoller(cfg, st, src, rec).Run(ctx)
	if cfg.Metrics.Textfile != "" {
		if werr := rec.WriteTextfile(cfg.Metrics.Textfile); werr != nil {
			slog.Warn("metrics textfile not written", "path", cfg.Metrics.Textfile, "err", werr)
		}
	}
	return err
}

func locators(cfg *config.Config) []*artifact.Locator {
	out := make([]*artifact.Locator, 0, len(cfg.Ecosystems))
	for _, eco := range cfg.Ecosystems {
		out = append(out, artifact.NewLocator(eco))
	}
	return out
}

// metricsServer serves the recorder, the ledger API and a health probe
// reflecting the last run.
func metricsServer(addr string, rec *metrics.Recorder, ledgers http.Handler, healthy *atomic.Bool) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", rec.Handler())
	mux.Handle("/api/", ledgers)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if !healthy.Load() {
			http.Error(w, "last run failed", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok\n")) //nolint:errcheck
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
