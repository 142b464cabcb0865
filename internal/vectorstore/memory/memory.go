// Package memory is an in-process vector store with brute-force search.
package memory

import (
	"context"
	"sync"

	"orgrag/internal/vectorstore"
)

type Store struct {
	mu   sync.RWMutex
	dims int
	orgs map[string]map[string]vectorstore.Record
}

// New creates an empty store. dims of 0 adopts the dimension of the first write.
func New(dims int) *Store {
	return &Store{dims: dims, orgs: make(map[string]map[string]vectorstore.Record)}
}

func (s *Store) Upsert(_ context.Context, rec vectorstore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.validate(rec); err != nil {
		return err
	}
	s.put(rec)
	return nil
}

func (s *Store) ReplaceDocument(_ context.Context, organizationID, documentID string, recs []vectorstore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range recs {
		if err := s.validate(rec); err != nil {
			return err
		}
	}
	s.removeDocument(organizationID, documentID)
	for _, rec := range recs {
		s.put(rec)
	}
	return nil
}

func (s *Store) Search(_ context.Context, organizationID string, query []float32, k int) ([]vectorstore.Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if k <= 0 {
		return nil, nil
	}
	if s.dims > 0 && len(query) != s.dims {
		return nil, vectorstore.ErrDimensionMismatch
	}

	chunks := s.orgs[organizationID]
	hits := make([]vectorstore.Hit, 0, len(chunks))
	for _, rec := range chunks {
		h := vectorstore.Hit{Record: rec, Score: vectorstore.Cosine(query, rec.Vector)}
		h.Vector = nil
		hits = append(hits, h)
	}
	return vectorstore.TopK(hits, k), nil
}

func (s *Store) DeleteDocument(_ context.Context, organizationID, documentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeDocument(organizationID, documentID), nil
}

func (s *Store) Close() error { return nil }

// Count returns the number of chunks stored for an organization.
func (s *Store) Count(organizationID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.orgs[organizationID])
}

func (s *Store) validate(rec vectorstore.Record) error {
	if err := rec.Validate(s.dims); err != nil {
		return err
	}
	if s.dims == 0 {
		s.dims = len(rec.Vector)
	}
	return nil
}

func (s *Store) put(rec vectorstore.Record) {
	chunks, ok := s.orgs[rec.OrganizationID]
	if !ok {
		chunks = make(map[string]vectorstore.Record)
		s.orgs[rec.OrganizationID] = chunks
	}
	rec.Vector = append([]float32(nil), rec.Vector...)
	chunks[rec.ChunkID] = rec
}

func (s *Store) removeDocument(organizationID, documentID string) int {
	chunks := s.orgs[organizationID]
	removed := 0
	for id, rec := range chunks {
		if rec.DocumentID == documentID {
			delete(chunks, id)
			removed++
		}
	}
	return removed
}
