package upstream

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/buildwatch/buildwatch/internal/gitutil"
)

// ErrBadBuildNumber is returned when a build-number file does not start with
// a non-negative integer.
var ErrBadBuildNumber = errors.New("upstream: malformed build number")

// Source reports the newest revision of an ecosystem.
type Source interface {
	CurrentRevision(ctx context.Context, ecosystem string) (int, error)
}

// ParseBuildNumber reads the revision from the first non-empty line of r.
func ParseBuildNumber(r io.Reader) (int, error) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		n, err := strconv.Atoi(line)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: %q", ErrBadBuildNumber, line)
		}
		return n, nil
	}
	if err := sc.Err(); err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("%w: empty file", ErrBadBuildNumber)
}

func expand(tmpl, ecosystem string) string {
	return strings.ReplaceAll(tmpl, "{ecosystem}", ecosystem)
}

// FileSource reads build numbers from a local checkout.
type FileSource struct {
	Root string

	// Paths maps an ecosystem to its build-number path template; ecosystems
	// not listed use Default.
	Paths   map[string]string
	Default string
}

// CurrentRevision reads Root/<path> for ecosystem.
func (s *FileSource) CurrentRevision(_ context.Context, ecosystem string) (int, error) {
	tmpl, ok := s.Paths[ecosystem]
	if !ok {
		tmpl = s.Default
	}
	path := filepath.Join(s.Root, filepath.FromSlash(expand(tmpl, ecosystem)))
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("upstream: %s: %w", ecosystem, err)
	}
	defer f.Close()

	n, err := ParseBuildNumber(f)
	if err != nil {
		return 0, fmt.Errorf("upstream: %s: %s: %w", ecosystem, path, err)
	}
	return n, nil
}

// GitSource keeps a shallow clone of the upstream repository and reads build
// numbers from it. The clone is refreshed once per Source value.
type GitSource struct {
	Files *FileSource
	Git   gitutil.Runner
	Repo  string
	Ref   string

	once    sync.Once
	syncErr error
}

// CurrentRevision syncs the checkout on first use, then reads the file.
func (s *GitSource) CurrentRevision(ctx context.Context, ecosystem string) (int, error) {
	s.once.Do(func() {
		s.syncErr = gitutil.Sync(ctx, s.Git, s.Repo, s.Ref, s.Files.Root)
	})
	if s.syncErr != nil {
		return 0, fmt.Errorf("upstream: sync %s: %w", s.Repo, s.syncErr)
	}
	return s.Files.CurrentRevision(ctx, ecosystem)
}

// Static answers from a fixed map, falling back to Next for other ecosystems.
type Static struct {
	Revisions map[string]int
	Next      Source
}

// CurrentRevision returns the pinned revision or asks Next.
func (s Static) CurrentRevision(ctx context.Context, ecosystem string) (int, error) {
	if n, ok := s.Revisions[ecosystem]; ok {
		return n, nil
	}
	if s.Next == nil {
		return 0, fmt.Errorf("upstream: no revision for %s", ecosystem)
	}
	return s.Next.CurrentRevision(ctx, ecosystem)
}
