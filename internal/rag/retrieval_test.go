package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgrag/internal/embedding"
	"orgrag/internal/isolation"
)

const claimsPolicy = `Claim requirements. Every claim must include the policy number, the incident date and a signed claim form.
Claims without a signed form are returned to the submitter.

Office hours. The support desk is open Monday to Friday from nine to five.`

func TestRetrieve(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T) *fixture {
		f := newFixture(t, embedding.NewHashing(256), 120, 10)
		_, err := f.pipeline.Run(ctx, IngestJob{OrganizationID: orgOne, DocumentID: "claims", Format: "txt", Data: []byte(claimsPolicy)})
		require.NoError(t, err)
		return f
	}

	t.Run("Relevant chunk ranks first", func(t *testing.T) {
		f := seed(t)
		r := NewRetriever(f.embedder, f.guard, RetrievalConfig{TopK: 3})

		candidates, err := r.Retrieve(ctx, orgOne, "What are the claim requirements?")

		require.NoError(t, err)
		require.NotEmpty(t, candidates)
		assert.Contains(t, candidates[0].Chunk.Text, "Claim requirements")
		assert.Equal(t, orgOne, candidates[0].Chunk.OrganizationID)
		for i := 1; i < len(candidates); i++ {
			assert.GreaterOrEqual(t, candidates[i-1].Score, candidates[i].Score)
		}
		assert.True(t, Decide(candidates, 0.2).Outcome == OutcomeGrounded)
	})

	t.Run("Unrelated question does not clear the threshold", func(t *testing.T) {
		f := seed(t)
		r := NewRetriever(f.embedder, f.guard, RetrievalConfig{})

		candidates, err := r.Retrieve(ctx, orgOne, "What is the weather in Paris tomorrow?")

		require.NoError(t, err)
		d := Decide(candidates, 0.2)
		assert.Equal(t, OutcomeFallback, d.Outcome)
	})

	t.Run("Organization without documents gets no candidates", func(t *testing.T) {
		f := seed(t)
		r := NewRetriever(f.embedder, f.guard, RetrievalConfig{})

		candidates, err := r.Retrieve(ctx, orgTwo, "What are the claim requirements?")

		require.NoError(t, err)
		assert.Empty(t, candidates)
	})

	t.Run("Empty organization is an isolation violation", func(t *testing.T) {
		f := seed(t)
		r := NewRetriever(f.embedder, f.guard, RetrievalConfig{})

		_, err := r.Retrieve(ctx, "", "What are the claim requirements?")

		assert.ErrorIs(t, err, isolation.ErrViolation)
	})

	t.Run("Embedding failure is a retrieval error", func(t *testing.T) {
		f := seed(t)
		r := NewRetriever(brokenEmbedder{Hashing: embedding.NewHashing(256)}, f.guard, RetrievalConfig{})

		_, err := r.Retrieve(ctx, orgOne, "anything")

		kind, ok := KindOf(err)
		require.True(t, ok)
		assert.Equal(t, KindEmbeddingFailure, kind)
	})

	t.Run("Unavailable store is a retrieval error, not a fallback", func(t *testing.T) {
		guard := isolation.NewGuard(brokenStore{}, quietLogger(), nil)
		r := NewRetriever(embedding.NewHashing(256), guard, RetrievalConfig{})

		candidates, err := r.Retrieve(ctx, orgOne, "anything")

		assert.Nil(t, candidates)
		kind, _ := KindOf(err)
		assert.Equal(t, KindStoreUnavailable, kind)
	})
}
