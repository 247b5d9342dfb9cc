package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options selects the level, format and destination of the default logger.
type Options struct {
	Level  string // debug, info, warn or error; empty means info
	Format string // json or text; empty means json
	Writer io.Writer
}

// Configure installs a new slog default built from opts. Loggers returned by
// New before the call write through the new handler from then on.
func Configure(opts Options) error {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return err
	}
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	ho := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(opts.Format) {
	case "", "json":
		h = slog.NewJSONHandler(w, ho)
	case "text":
		h = slog.NewTextHandler(w, ho)
	default:
		return fmt.Errorf("logging: unknown format %q", opts.Format)
	}
	slog.SetDefault(slog.New(h))
	return nil
}

// ParseLevel maps a config level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("logging: unknown level %q", s)
}

// New returns a logger tagged with component. It resolves slog.Default on
// every record, so it is safe to create at package init or in constructors.
func New(component string) *slog.Logger {
	return slog.New(deferred{}).With(slog.String("component", component))
}

// deferred replays its attrs and groups onto the current default handler.
type deferred struct {
	wrap []func(slog.Handler) slog.Handler
}

func (d deferred) handler() slog.Handler {
	h := slog.Default().Handler()
	for _, w := range d.wrap {
		h = w(h)
	}
	return h
}

func (d deferred) Enabled(ctx context.Context, l slog.Level) bool {
	return slog.Default().Handler().Enabled(ctx, l)
}

func (d deferred) Handle(ctx context.Context, r slog.Record) error {
	return d.handler().Handle(ctx, r)
}

func (d deferred) WithAttrs(attrs []slog.Attr) slog.Handler {
	return d.with(func(h slog.Handler) slog.Handler { return h.WithAttrs(attrs) })
}

func (d deferred) WithGroup(name string) slog.Handler {
	return d.with(func(h slog.Handler) slog.Handler { return h.WithGroup(name) })
}

func (d deferred) with(f func(slog.Handler) slog.Handler) deferred {
	wrap := make([]func(slog.Handler) slog.Handler, len(d.wrap), len(d.wrap)+1)
	copy(wrap, d.wrap)
	return deferred{wrap: append(wrap, f)}
}
