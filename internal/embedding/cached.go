package embedding

import (
	"context"
	"log/slog"
)

// VectorCache stores query embeddings keyed by model and text.
type VectorCache interface {
	GetVector(ctx context.Context, model, text string) ([]float32, bool, error)
	SetVector(ctx context.Context, model, text string, vector []float32) error
}

// Cached serves repeated query embeddings from a cache. Batch calls are not
// cached since ingestion text rarely repeats. Cache errors never fail a call.
type Cached struct {
	inner  Service
	cache  VectorCache
	logger *slog.Logger
}

func NewCached(inner Service, cache VectorCache, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{inner: inner, cache: cache, logger: logger}
}

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	model := c.inner.ModelName()
	if vec, ok, err := c.cache.GetVector(ctx, model, text); err != nil {
		c.logger.Warn("query embedding cache read failed", "error", err)
	} else if ok && (c.inner.Dimensions() <= 0 || len(vec) == c.inner.Dimensions()) {
		return vec, nil
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.cache.SetVector(ctx, model, text, vec); err != nil {
		c.logger.Warn("query embedding cache write failed", "error", err)
	}
	return vec, nil
}

func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.inner.EmbedBatch(ctx, texts)
}

func (c *Cached) Dimensions() int     { return c.inner.Dimensions() }
func (c *Cached) ModelName() string   { return c.inner.ModelName() }
func (c *Cached) MaxInputLength() int { return c.inner.MaxInputLength() }
func (c *Cached) Close() error        { return c.inner.Close() }
