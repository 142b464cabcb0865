package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosine(t *testing.T) {
	t.Run("Identical vectors score one", func(t *testing.T) {
		assert.InDelta(t, 1.0, Cosine([]float32{1, 2, 3}, []float32{1, 2, 3}), 1e-9)
	})

	t.Run("Orthogonal vectors score zero", func(t *testing.T) {
		assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	})

	t.Run("Mismatched or zero vectors score zero", func(t *testing.T) {
		assert.Equal(t, 0.0, Cosine([]float32{1}, []float32{1, 0}))
		assert.Equal(t, 0.0, Cosine([]float32{0, 0}, []float32{1, 0}))
	})
}

func TestSortHits(t *testing.T) {
	t.Run("Ties break by ascending sequence", func(t *testing.T) {
		hits := []Hit{
			{Record: Record{ChunkID: "c", DocumentID: "d", Sequence: 2}, Score: 0.5},
			{Record: Record{ChunkID: "a", DocumentID: "d", Sequence: 0}, Score: 0.5},
			{Record: Record{ChunkID: "z", DocumentID: "d", Sequence: 9}, Score: 0.9},
			{Record: Record{ChunkID: "b", DocumentID: "d", Sequence: 1}, Score: 0.5},
		}

		SortHits(hits)

		ids := []string{hits[0].ChunkID, hits[1].ChunkID, hits[2].ChunkID, hits[3].ChunkID}
		assert.Equal(t, []string{"z", "a", "b", "c"}, ids)
	})

	t.Run("TopK trims after sorting", func(t *testing.T) {
		hits := []Hit{{Score: 0.1}, {Score: 0.3}, {Score: 0.2}}

		top := TopK(hits, 2)

		require.Len(t, top, 2)
		assert.Equal(t, 0.3, top[0].Score)
		assert.Equal(t, 0.2, top[1].Score)
	})
}

func TestRecordValidate(t *testing.T) {
	rec := Record{ChunkID: "c", OrganizationID: "o", DocumentID: "d", Vector: []float32{1, 0}}

	assert.NoError(t, rec.Validate(2))
	assert.ErrorIs(t, rec.Validate(3), ErrDimensionMismatch)

	rec.OrganizationID = ""
	assert.ErrorIs(t, rec.Validate(2), ErrInvalidRecord)
}
