package rag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"orgrag/internal/ai"
	"orgrag/internal/chunker"
	"orgrag/internal/embedding"
	"orgrag/internal/isolation"
	"orgrag/internal/vectorstore"
	"orgrag/internal/vectorstore/memory"
)

const (
	orgOne = "00000000-0000-0000-0000-0000000000a1"
	orgTwo = "00000000-0000-0000-0000-0000000000a2"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	store    *memory.Store
	guard    *isolation.Guard
	embedder embedding.Service
	pipeline *Pipeline
}

func newFixture(t *testing.T, embedder embedding.Service, size, overlap int) *fixture {
	t.Helper()
	c, err := chunker.New(chunker.WithSize(size), chunker.WithOverlap(overlap))
	require.NoError(t, err)
	store := memory.New(0)
	guard := isolation.NewGuard(store, quietLogger(), nil)
	return &fixture{
		store:    store,
		guard:    guard,
		embedder: embedder,
		pipeline: NewPipeline(c, embedder, guard, PipelineConfig{BatchSize: 2, EmbedConcurrency: 3}, quietLogger()),
	}
}

// failingEmbedder fails batch calls after the first allowed ones.
type failingEmbedder struct {
	*embedding.Hashing
	mu      sync.Mutex
	allowed int
}

func (f *failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.allowed <= 0 {
		return nil, fmt.Errorf("%w: model unavailable", embedding.ErrEmbeddingFailure)
	}
	f.allowed--
	return f.Hashing.EmbedBatch(ctx, texts)
}

// limitedInput reports a maximum input length and enforces it.
type limitedInput struct {
	*embedding.Hashing
	max int
}

func (l *limitedInput) MaxInputLength() int { return l.max }

func (l *limitedInput) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	for _, t := range texts {
		if len([]rune(t)) > l.max {
			return nil, embedding.ErrInputTooLong
		}
	}
	return l.Hashing.EmbedBatch(ctx, texts)
}

// brokenEmbedder fails every call.
type brokenEmbedder struct {
	*embedding.Hashing
}

func (brokenEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("%w: connection reset", embedding.ErrEmbeddingFailure)
}

// brokenStore fails every search.
type brokenStore struct {
	vectorstore.Store
}

func (brokenStore) Search(context.Context, string, []float32, int) ([]vectorstore.Hit, error) {
	return nil, vectorstore.Unavailable("search", errors.New("connection refused"))
}

type scriptedModel struct {
	mu       sync.Mutex
	replies  []error
	answer   string
	calls    int
	messages [][]ai.ChatMessage
	block    bool
}

func (s *scriptedModel) Complete(ctx context.Context, messages []ai.ChatMessage) (string, error) {
	s.mu.Lock()
	i := s.calls
	s.calls++
	s.messages = append(s.messages, messages)
	block := s.block
	var err error
	if i < len(s.replies) {
		err = s.replies[i]
	}
	s.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err != nil {
		return "", err
	}
	return s.answer, nil
}

func (s *scriptedModel) Name() string { return "scripted" }

func (s *scriptedModel) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
