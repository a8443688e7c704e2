// Package storage provides lullaby record and audio blob persistence.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hammamikhairi/guardian/internal/domain"
	"github.com/hammamikhairi/guardian/internal/logger"
)

// Compile-time interface check.
var _ domain.RecordStore = (*MemoryStore)(nil)

// MemoryStore is an in-memory record store. Safe for concurrent access.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*domain.LullabyRecord
	log     *logger.Logger
}

// NewMemoryStore creates an empty in-memory record store.
func NewMemoryStore(log *logger.Logger) *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*domain.LullabyRecord),
		log:     log,
	}
}

// Insert stores a copy of the record. IDs must be unique.
func (s *MemoryStore) Insert(ctx context.Context, rec *domain.LullabyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.ID]; ok {
		return fmt.Errorf("record %s already exists", rec.ID)
	}
	cp := *rec
	s.records[rec.ID] = &cp
	s.log.Debug("inserted record %s (owner=%s, kind=%s)", rec.ID, rec.OwnerID, rec.Kind)
	return nil
}

// Get retrieves a record by ID.
func (s *MemoryStore) Get(ctx context.Context, id string) (*domain.LullabyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		s.log.Debug("record not found: %s", id)
		return nil, domain.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// Find returns matching records, newest first.
func (s *MemoryStore) Find(ctx context.Context, filter domain.RecordFilter) ([]*domain.LullabyRecord, error) {
	s.mu.RLock()
	out := make([]*domain.LullabyRecord, 0, len(s.records))
	for _, rec := range s.records {
		if filter.Match(rec) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	s.log.Debug("find records (owner=%q kind=%q), count=%d", filter.OwnerID, filter.Kind, len(out))
	return out, nil
}

// Delete removes a record by ID.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return domain.ErrNotFound
	}
	delete(s.records, id)
	s.log.Debug("deleted record %s", id)
	return nil
}
