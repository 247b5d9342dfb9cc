package gitutil

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Runner executes one git invocation in dir and returns its stdout.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, dir string, args ...string) (string, error)

// Run calls f(ctx, dir, args...).
func (f RunnerFunc) Run(ctx context.Context, dir string, args ...string) (string, error) {
	return f(ctx, dir, args...)
}

// Exec runs the git binary found on PATH.
type Exec struct {
	// Env is appended to the process environment.
	Env []string
}

// Run executes git with args in dir. The error includes git's stderr.
func (e Exec) Run(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	cmd.Env = append(cmd.Env, e.Env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("git %s: %w: %s", redact(args), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// IsRepo reports whether dir looks like a git working copy.
func IsRepo(dir string) bool {
	fi, err := os.Stat(filepath.Join(dir, ".git"))
	return err == nil && fi.IsDir()
}

// Sync makes dir a shallow working copy of ref from repo: cloning when dir
// is not a repository yet, otherwise fetching and hard-resetting to the
// remote head so every run starts from a fresh snapshot.
func Sync(ctx context.Context, r Runner, repo, ref, dir string) error {
	if !IsRepo(dir) {
		if err := os.MkdirAll(filepath.Dir(filepath.Clean(dir)), 0o755); err != nil {
			return fmt.Errorf("gitutil: create parent of %s: %w", dir, err)
		}
		if _, err := r.Run(ctx, "", "clone", "--depth", "1", "--branch", ref, repo, dir); err != nil {
			return fmt.Errorf("gitutil: clone: %w", err)
		}
		return nil
	}
	if _, err := r.Run(ctx, dir, "fetch", "--depth", "1", "origin", ref); err != nil {
		return fmt.Errorf("gitutil: fetch: %w", err)
	}
	if _, err := r.Run(ctx, dir, "reset", "--hard", "FETCH_HEAD"); err != nil {
		return fmt.Errorf("gitutil: reset: %w", err)
	}
	return nil
}

// TokenEnv returns environment entries that authenticate https remotes with
// token through an http.extraHeader set via GIT_CONFIG_*. The token never
// appears in a remote URL, so it is not written to .git/config. An empty
// token yields nil.
func TokenEnv(token string) []string {
	if token == "" {
		return nil
	}
	basic := base64.StdEncoding.EncodeToString([]byte("x-access-token:" + token))
	return []string{
		"GIT_CONFIG_COUNT=1",
		"GIT_CONFIG_KEY_0=http.extraHeader",
		"GIT_CONFIG_VALUE_0=Authorization: Basic " + basic,
	}
}

// redact hides credentials embedded in URL arguments.
func redact(args []string) string {
	out := make([]string, len(args))
	for i, a := range args {
		if u, err := url.Parse(a); err == nil && u.User != nil {
			u.User = url.User("***")
			a = u.String()
		}
		out[i] = a
	}
	return strings.Join(out, " ")
}
