package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/buildwatch/buildwatch/pkg/types"
)

// FileStore keeps each ledger in <Dir>/<ecosystem>.json.
type FileStore struct {
	Dir string
}

// NewFileStore returns a FileStore rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

// Path returns the file holding ecosystem's ledger.
func (s *FileStore) Path(ecosystem string) string {
	return filepath.Join(s.Dir, ecosystem+".json")
}

// Read loads the ledger for ecosystem.
func (s *FileStore) Read(_ context.Context, ecosystem string) (types.Document, error) {
	b, err := os.ReadFile(s.Path(ecosystem))
	if errors.Is(err, fs.ErrNotExist) {
		return types.Document{}, fmt.Errorf("%w: %s", ErrNotFound, ecosystem)
	}
	if err != nil {
		return types.Document{}, fmt.Errorf("store: read %s: %w", ecosystem, err)
	}
	return decode(ecosystem, b)
}

// Write replaces the ledger for ecosystem. The file is written to a
// temporary name and renamed so readers never see a partial document.
func (s *FileStore) Write(_ context.Context, ecosystem string, doc types.Document) error {
	raw, err := encode(ecosystem, doc)
	if err != nil {
		return err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, raw, "", "  "); err != nil {
		return fmt.Errorf("store: indent %s: %w", ecosystem, err)
	}
	out.WriteByte('\n')

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("store: create %s: %w", s.Dir, err)
	}
	tmp, err := os.CreateTemp(s.Dir, "."+ecosystem+".*.tmp")
	if err != nil {
		return fmt.Errorf("store: write %s: %w", ecosystem, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(out.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("store: write %s: %w", ecosystem, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: write %s: %w", ecosystem, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("store: write %s: %w", ecosystem, err)
	}
	if err := os.Rename(tmp.Name(), s.Path(ecosystem)); err != nil {
		return fmt.Errorf("store: write %s: %w", ecosystem, err)
	}
	return nil
}
