package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/buildwatch/buildwatch/internal/gitutil"
	"github.com/buildwatch/buildwatch/internal/logging"
	"github.com/buildwatch/buildwatch/pkg/types"
)

var logger = logging.New("store")

// GitStore keeps ledgers as JSON files on a branch of a git repository,
// the branch acting as the database. Concurrent runs are serialized by the
// remote: a push that is not a fast-forward fails and surfaces as an error.
type GitStore struct {
	files *FileStore
	git   gitutil.Runner

	Repo        string
	Branch      string
	Dir         string
	AuthorName  string
	AuthorEmail string
}

// NewGitStore returns a GitStore that checks out branch of repo into dir.
func NewGitStore(git gitutil.Runner, repo, branch, dir string) *GitStore {
	return &GitStore{
		files:       NewFileStore(dir),
		git:         git,
		Repo:        repo,
		Branch:      branch,
		Dir:         dir,
		AuthorName:  "buildwatch",
		AuthorEmail: "buildwatch@localhost",
	}
}

// Open clones or refreshes the data branch.
func (s *GitStore) Open(ctx context.Context) error {
	if err := gitutil.Sync(ctx, s.git, s.Repo, s.Branch, s.Dir); err != nil {
		return fmt.Errorf("store: open %s: %w", s.Branch, err)
	}
	return nil
}

// Read loads the ledger for ecosystem from the working copy.
func (s *GitStore) Read(ctx context.Context, ecosystem string) (types.Document, error) {
	return s.files.Read(ctx, ecosystem)
}

// Write updates the ledger file in the working copy. Nothing leaves the
// machine until Commit.
func (s *GitStore) Write(ctx context.Context, ecosystem string, doc types.Document) error {
	return s.files.Write(ctx, ecosystem, doc)
}

// Commit records all written ledgers and pushes them to the branch.
// An empty working-copy diff is not committed and yields false.
func (s *GitStore) Commit(ctx context.Context, message string) (bool, error) {
	if _, err := s.git.Run(ctx, s.Dir, "add", "-A", "."); err != nil {
		return false, fmt.Errorf("store: stage: %w", err)
	}
	status, err := s.git.Run(ctx, s.Dir, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("store: status: %w", err)
	}
	if strings.TrimSpace(status) == "" {
		logger.Info("nothing to commit", "branch", s.Branch)
		return false, nil
	}
	if _, err := s.git.Run(ctx, s.Dir,
		"-c", "user.name="+s.AuthorName,
		"-c", "user.email="+s.AuthorEmail,
		"commit", "-m", message,
	); err != nil {
		return false, fmt.Errorf("store: commit: %w", err)
	}
	if _, err := s.git.Run(ctx, s.Dir, "push", "origin", "HEAD:"+s.Branch); err != nil {
		return false, fmt.Errorf("store: push %s: %w", s.Branch, err)
	}
	logger.Info("pushed ledger", "branch", s.Branch)
	return true, nil
}
