package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/buildwatch/buildwatch/pkg/types"
)

var (
	// ErrNotFound is returned by Read when no document exists for an ecosystem.
	ErrNotFound = errors.New("store: ledger not found")

	// ErrCorrupt is returned by Read when the stored bytes are not a ledger.
	ErrCorrupt = errors.New("store: ledger corrupt")
)

// Store reads and writes ledger documents.
type Store interface {
	Read(ctx context.Context, ecosystem string) (types.Document, error)
	Write(ctx context.Context, ecosystem string, doc types.Document) error
}

// Opener is implemented by stores that must be prepared before use, such as
// cloning a data branch.
type Opener interface {
	Open(ctx context.Context) error
}

// Committer is implemented by stores whose writes only become durable once
// committed. Commit is called once per run after all writes.
type Committer interface {
	// Commit reports whether a commit was made; a store with nothing
	// pending returns false and no error.
	Commit(ctx context.Context, message string) (bool, error)
}

// Closer releases backend resources.
type Closer interface {
	Close() error
}

// decode parses stored bytes, mapping decode failures to ErrCorrupt.
func decode(ecosystem string, b []byte) (types.Document, error) {
	var doc types.Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return types.Document{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, ecosystem, err)
	}
	if doc.Ecosystem != ecosystem {
		return types.Document{}, fmt.Errorf("%w: %s: document holds ecosystem %q", ErrCorrupt, ecosystem, doc.Ecosystem)
	}
	return doc, nil
}

// encode renders doc for storage under ecosystem.
func encode(ecosystem string, doc types.Document) ([]byte, error) {
	if doc.Ecosystem == "" {
		doc.Ecosystem = ecosystem
	}
	if doc.Ecosystem != ecosystem {
		return nil, fmt.Errorf("store: document for %q written as %q", doc.Ecosystem, ecosystem)
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("store: encode %s: %w", ecosystem, err)
	}
	return b, nil
}
