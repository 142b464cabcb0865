// Package storetest holds behaviour checks shared by every vector store backend.
package storetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgrag/internal/model"
	"orgrag/internal/vectorstore"
)

// Dims is the vector dimension used by the shared checks.
const Dims = 4

// Factory returns an empty store accepting Dims-dimensional vectors.
type Factory func(t *testing.T) vectorstore.Store

// Rec builds a record with a derived chunk id.
func Rec(org, doc string, seq int, text string, vec ...float32) vectorstore.Record {
	return vectorstore.Record{
		ChunkID:        model.ChunkID(doc, seq),
		OrganizationID: org,
		DocumentID:     doc,
		Sequence:       seq,
		Text:           text,
		Vector:         vec,
		Metadata:       map[string]string{"source": "test"},
	}
}

// Run exercises the Store contract against a fresh store per subtest.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()
	orgA := "11111111-1111-1111-1111-111111111111"
	orgB := "22222222-2222-2222-2222-222222222222"
	docA := "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"
	docB := "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"

	t.Run("Search never returns another organization's chunks", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.ReplaceDocument(ctx, orgA, docA, []vectorstore.Record{
			Rec(orgA, docA, 0, "a0", 0, 1, 0, 0),
		}))
		require.NoError(t, s.ReplaceDocument(ctx, orgB, docB, []vectorstore.Record{
			Rec(orgB, docB, 0, "b0", 1, 0, 0, 0),
			Rec(orgB, docB, 1, "b1", 1, 0.1, 0, 0),
		}))

		hits, err := s.Search(ctx, orgA, []float32{1, 0, 0, 0}, 10)

		require.NoError(t, err)
		require.Len(t, hits, 1, "Expected only organization A's chunk")
		assert.Equal(t, orgA, hits[0].OrganizationID)
		assert.Equal(t, "a0", hits[0].Text)
	})

	t.Run("Search ranks by similarity and breaks ties by sequence", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.ReplaceDocument(ctx, orgA, docA, []vectorstore.Record{
			Rec(orgA, docA, 0, "far", 0, 0, 1, 0),
			Rec(orgA, docA, 1, "tie-1", 1, 1, 0, 0),
			Rec(orgA, docA, 2, "tie-2", 1, 1, 0, 0),
			Rec(orgA, docA, 3, "best", 1, 0, 0, 0),
		}))

		for i := 0; i < 3; i++ {
			hits, err := s.Search(ctx, orgA, []float32{1, 0.2, 0, 0}, 3)
			require.NoError(t, err)
			require.Len(t, hits, 3)
			assert.Equal(t, []string{"best", "tie-1", "tie-2"}, []string{hits[0].Text, hits[1].Text, hits[2].Text}, "Expected stable order on call %d", i)
			assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
		}
	})

	t.Run("Upsert with the same chunk id replaces the vector", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Upsert(ctx, Rec(orgA, docA, 0, "v1", 1, 0, 0, 0)))
		require.NoError(t, s.Upsert(ctx, Rec(orgA, docA, 0, "v2", 0, 1, 0, 0)))

		hits, err := s.Search(ctx, orgA, []float32{0, 1, 0, 0}, 10)

		require.NoError(t, err)
		require.Len(t, hits, 1, "Expected no duplicate after re-upsert")
		assert.Equal(t, "v2", hits[0].Text)
		assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
	})

	t.Run("ReplaceDocument drops the previous generation", func(t *testing.T) {
		s := newStore(t)
		var first []vectorstore.Record
		for i := 0; i < 5; i++ {
			first = append(first, Rec(orgA, docA, i, fmt.Sprintf("old-%d", i), 1, float32(i), 0, 0))
		}
		require.NoError(t, s.ReplaceDocument(ctx, orgA, docA, first))
		require.NoError(t, s.ReplaceDocument(ctx, orgA, docA, []vectorstore.Record{
			Rec(orgA, docA, 0, "new-0", 1, 0, 0, 0),
			Rec(orgA, docA, 1, "new-1", 1, 1, 0, 0),
		}))

		hits, err := s.Search(ctx, orgA, []float32{1, 0, 0, 0}, 10)

		require.NoError(t, err)
		require.Len(t, hits, 2)
		for _, h := range hits {
			assert.Contains(t, []string{"new-0", "new-1"}, h.Text)
		}
	})

	t.Run("DeleteDocument removes every chunk of the document", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.ReplaceDocument(ctx, orgA, docA, []vectorstore.Record{
			Rec(orgA, docA, 0, "unique-0", 1, 0, 0, 0),
			Rec(orgA, docA, 1, "unique-1", 1, 0.5, 0, 0),
		}))
		require.NoError(t, s.ReplaceDocument(ctx, orgA, docB, []vectorstore.Record{
			Rec(orgA, docB, 0, "other", 0, 1, 0, 0),
		}))

		removed, err := s.DeleteDocument(ctx, orgA, docA)
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		hits, err := s.Search(ctx, orgA, []float32{1, 0, 0, 0}, 10)
		require.NoError(t, err)
		for _, h := range hits {
			assert.NotEqual(t, docA, h.DocumentID, "Expected no chunk of the deleted document")
		}
	})

	t.Run("DeleteDocument is scoped to the organization", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.ReplaceDocument(ctx, orgA, docA, []vectorstore.Record{
			Rec(orgA, docA, 0, "a0", 1, 0, 0, 0),
		}))

		removed, err := s.DeleteDocument(ctx, orgB, docA)
		require.NoError(t, err)
		assert.Equal(t, 0, removed)

		hits, err := s.Search(ctx, orgA, []float32{1, 0, 0, 0}, 10)
		require.NoError(t, err)
		assert.Len(t, hits, 1, "Expected chunk to survive a delete under the wrong organization")
	})

	t.Run("Empty organization returns no hits", func(t *testing.T) {
		s := newStore(t)

		hits, err := s.Search(ctx, orgB, []float32{1, 0, 0, 0}, 5)

		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("Metadata and sequence round trip", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Upsert(ctx, Rec(orgA, docA, 7, "seven", 0, 0, 0, 1)))

		hits, err := s.Search(ctx, orgA, []float32{0, 0, 0, 1}, 1)

		require.NoError(t, err)
		require.Len(t, hits, 1)
		assert.Equal(t, 7, hits[0].Sequence)
		assert.Equal(t, docA, hits[0].DocumentID)
		assert.Equal(t, model.ChunkID(docA, 7), hits[0].ChunkID)
		assert.Equal(t, "test", hits[0].Metadata["source"])
	})
}
