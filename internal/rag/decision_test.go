package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgrag/internal/model"
)

func cand(id string, score float64) model.RetrievalCandidate {
	return model.RetrievalCandidate{Chunk: model.Chunk{ID: id, Text: id}, Score: score}
}

func TestDecide(t *testing.T) {
	t.Run("No candidates falls back", func(t *testing.T) {
		d := Decide(nil, 0.3)

		assert.Equal(t, OutcomeFallback, d.Outcome)
		assert.Equal(t, model.FallbackNoCandidates, d.Reason)
		assert.Empty(t, d.Candidates)
	})

	t.Run("Best score below threshold falls back", func(t *testing.T) {
		d := Decide([]model.RetrievalCandidate{cand("a", 0.29), cand("b", 0.1)}, 0.3)

		assert.Equal(t, OutcomeFallback, d.Outcome)
		assert.Equal(t, model.FallbackLowConfidence, d.Reason)
		assert.Equal(t, 0.29, d.BestScore)
		assert.Empty(t, d.Candidates)
	})

	t.Run("Score equal to threshold is grounded", func(t *testing.T) {
		d := Decide([]model.RetrievalCandidate{cand("a", 0.3)}, 0.3)

		assert.Equal(t, OutcomeGrounded, d.Outcome)
	})

	t.Run("Grounded keeps only candidates at or above threshold in order", func(t *testing.T) {
		d := Decide([]model.RetrievalCandidate{cand("a", 0.9), cand("b", 0.5), cand("c", 0.2)}, 0.4)

		require.Equal(t, OutcomeGrounded, d.Outcome)
		require.Len(t, d.Candidates, 2)
		assert.Equal(t, "a", d.Candidates[0].Chunk.ID)
		assert.Equal(t, "b", d.Candidates[1].Chunk.ID)
		assert.Equal(t, 0.9, d.BestScore)
	})

	t.Run("Decision ignores chunk text", func(t *testing.T) {
		a := Decide([]model.RetrievalCandidate{{Chunk: model.Chunk{Text: "weather"}, Score: 0.5}}, 0.4)
		b := Decide([]model.RetrievalCandidate{{Chunk: model.Chunk{Text: "claims"}, Score: 0.5}}, 0.4)

		assert.Equal(t, a.Outcome, b.Outcome)
	})
}
