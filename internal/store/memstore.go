package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/buildwatch/buildwatch/pkg/types"
)

// MemStore is a thread-safe in-memory store keyed by ecosystem. Documents
// are held encoded so a Read never aliases a previously written value.
type MemStore struct {
	mu     sync.RWMutex
	data   map[string][]byte
	writes int
	now    func() time.Time // injectable for deterministic tests
	last   map[string]time.Time
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		data: make(map[string][]byte),
		now:  time.Now,
		last: make(map[string]time.Time),
	}
}

// Read returns the stored ledger for ecosystem.
func (s *MemStore) Read(_ context.Context, ecosystem string) (types.Document, error) {
	s.mu.RLock()
	b, ok := s.data[ecosystem]
	s.mu.RUnlock()
	if !ok {
		return types.Document{}, fmt.Errorf("%w: %s", ErrNotFound, ecosystem)
	}
	return decode(ecosystem, b)
}

// Write stores or replaces the ledger for ecosystem.
func (s *MemStore) Write(_ context.Context, ecosystem string, doc types.Document) error {
	b, err := encode(ecosystem, doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[ecosystem] = b
	s.writes++
	s.last[ecosystem] = s.now()
	return nil
}

// Put stores raw bytes for ecosystem, bypassing encoding. Used to seed
// corrupt or foreign documents.
func (s *MemStore) Put(ecosystem string, raw []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[ecosystem] = append([]byte(nil), raw...)
}

// Raw returns the stored bytes for ecosystem.
func (s *MemStore) Raw(ecosystem string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data[ecosystem]
	return append([]byte(nil), b...), ok
}

// Writes returns the number of successful Write calls.
func (s *MemStore) Writes() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.writes
}

// LastWrite returns when ecosystem was last written.
func (s *MemStore) LastWrite(ecosystem string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.last[ecosystem]
	return t, ok
}

// Count returns the number of ecosystems held.
func (s *MemStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
