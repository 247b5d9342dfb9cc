package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/buildwatch/buildwatch/pkg/types"
)

// LevelStore keeps ledgers in a goleveldb database under "l:<ecosystem>".
type LevelStore struct {
	db *leveldb.DB
}

// OpenLevelStore opens or creates the database at path.
func OpenLevelStore(path string) (*LevelStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open leveldb %s: %w", path, err)
	}
	return &LevelStore{db: db}, nil
}

func levelKey(ecosystem string) []byte { return []byte("l:" + ecosystem) }

// Read loads the ledger for ecosystem.
func (s *LevelStore) Read(_ context.Context, ecosystem string) (types.Document, error) {
	b, err := s.db.Get(levelKey(ecosystem), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return types.Document{}, fmt.Errorf("%w: %s", ErrNotFound, ecosystem)
	}
	if err != nil {
		return types.Document{}, fmt.Errorf("store: read %s: %w", ecosystem, err)
	}
	return decode(ecosystem, b)
}

// Write replaces the ledger for ecosystem with a synced write.
func (s *LevelStore) Write(_ context.Context, ecosystem string, doc types.Document) error {
	b, err := encode(ecosystem, doc)
	if err != nil {
		return err
	}
	batch := new(leveldb.Batch)
	batch.Put(levelKey(ecosystem), b)
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("store: write %s: %w", ecosystem, err)
	}
	return nil
}

// Close closes the database.
func (s *LevelStore) Close() error {
	return s.db.Close()
}
