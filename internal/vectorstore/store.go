// Package vectorstore defines the organization-scoped chunk index and its backends.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	ErrStoreUnavailable  = errors.New("vector store unavailable")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrInvalidRecord     = errors.New("invalid vector record")
)

// Record is one chunk as written to a store.
type Record struct {
	ChunkID        string
	OrganizationID string
	DocumentID     string
	Sequence       int
	Text           string
	Language       string
	Vector         []float32
	Metadata       map[string]string
}

// Hit is a record returned by Search. Vector may be nil.
type Hit struct {
	Record
	Score float64
}

// Store is implemented by every backend. Callers go through isolation.Guard.
type Store interface {
	// Upsert writes one record; writing the same ChunkID again replaces it.
	Upsert(ctx context.Context, rec Record) error
	// ReplaceDocument publishes recs as the complete chunk set of one document,
	// removing whatever was stored for it before, in a single logical step.
	ReplaceDocument(ctx context.Context, organizationID, documentID string, recs []Record) error
	// Search returns at most k hits of organizationID ordered by SortHits.
	Search(ctx context.Context, organizationID string, query []float32, k int) ([]Hit, error)
	// DeleteDocument removes all chunks of one document and reports how many went.
	DeleteDocument(ctx context.Context, organizationID, documentID string) (int, error)
	Close() error
}

// Validate checks the fields every backend relies on.
func (r Record) Validate(dims int) error {
	if r.ChunkID == "" || r.OrganizationID == "" || r.DocumentID == "" {
		return fmt.Errorf("%w: chunk, organization and document ids are required", ErrInvalidRecord)
	}
	if len(r.Vector) == 0 {
		return fmt.Errorf("%w: empty vector for chunk %s", ErrInvalidRecord, r.ChunkID)
	}
	if dims > 0 && len(r.Vector) != dims {
		return fmt.Errorf("%w: chunk %s has %d, store expects %d", ErrDimensionMismatch, r.ChunkID, len(r.Vector), dims)
	}
	return nil
}

// Cosine returns the cosine similarity of a and b, or 0 when undefined.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// SortHits orders by descending score, then ascending sequence, document id
// and chunk id, so equal scores always come back in the same order.
func SortHits(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Sequence != b.Sequence {
			return a.Sequence < b.Sequence
		}
		if a.DocumentID != b.DocumentID {
			return a.DocumentID < b.DocumentID
		}
		return a.ChunkID < b.ChunkID
	})
}

// TopK sorts hits and keeps the first k.
func TopK(hits []Hit, k int) []Hit {
	SortHits(hits)
	if k >= 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// Unavailable wraps a backend failure as ErrStoreUnavailable.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, op, err)
}
