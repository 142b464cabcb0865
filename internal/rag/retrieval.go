package rag

import (
	"context"
	"errors"
	"strings"

	"orgrag/internal/embedding"
	"orgrag/internal/isolation"
	"orgrag/internal/model"
)

type RetrievalConfig struct {
	TopK int
}

// Retriever embeds a question and searches one organization's chunks. There
// is no translation step; cross-lingual matches come from the embedding space.
type Retriever struct {
	embedder embedding.Service
	guard    *isolation.Guard
	cfg      RetrievalConfig
}

func NewRetriever(embedder embedding.Service, guard *isolation.Guard, cfg RetrievalConfig) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	return &Retriever{embedder: embedder, guard: guard, cfg: cfg}
}

func (r *Retriever) TopK() int { return r.cfg.TopK }

// Retrieve returns candidates ranked by descending score. The confidence
// threshold is applied afterwards by Decide.
func (r *Retriever) Retrieve(ctx context.Context, organizationID, question string) ([]model.RetrievalCandidate, error) {
	if organizationID == "" {
		// Let the guard report it so the violation is logged and counted.
		_, err := r.guard.Search(ctx, organizationID, nil, r.cfg.TopK)
		return nil, err
	}

	vec, err := r.embedder.Embed(ctx, strings.TrimSpace(question))
	if err != nil {
		return nil, &RetrievalError{Kind: KindEmbeddingFailure, Err: err}
	}

	hits, err := r.guard.Search(ctx, organizationID, vec, r.cfg.TopK)
	if err != nil {
		if errors.Is(err, isolation.ErrViolation) {
			return nil, err
		}
		return nil, &RetrievalError{Kind: KindStoreUnavailable, Err: err}
	}

	candidates := make([]model.RetrievalCandidate, len(hits))
	for i, h := range hits {
		candidates[i] = model.RetrievalCandidate{
			Chunk: model.Chunk{
				ID:             h.ChunkID,
				OrganizationID: h.OrganizationID,
				DocumentID:     h.DocumentID,
				Sequence:       h.Sequence,
				Text:           h.Text,
				Language:       h.Language,
			},
			Score: h.Score,
		}
	}
	return candidates, nil
}
