package embedding

import (
	"context"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

type LimitConfig struct {
	// BulkConcurrency bounds concurrent EmbedBatch calls (ingestion).
	BulkConcurrency int
	// InteractiveConcurrency bounds concurrent Embed calls (queries).
	InteractiveConcurrency int
	// RequestsPerSecond is shared by both lanes; 0 disables rate limiting.
	RequestsPerSecond float64
	Burst             int
}

// Limited puts bulk and interactive traffic in separate lanes so a large upload
// cannot take every slot a query needs.
type Limited struct {
	inner       Service
	bulk        *semaphore.Weighted
	interactive *semaphore.Weighted
	limiter     *rate.Limiter
}

func NewLimited(inner Service, cfg LimitConfig) *Limited {
	if cfg.BulkConcurrency <= 0 {
		cfg.BulkConcurrency = 2
	}
	if cfg.InteractiveConcurrency <= 0 {
		cfg.InteractiveConcurrency = 4
	}
	l := &Limited{
		inner:       inner,
		bulk:        semaphore.NewWeighted(int64(cfg.BulkConcurrency)),
		interactive: semaphore.NewWeighted(int64(cfg.InteractiveConcurrency)),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		l.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return l
}

func (l *Limited) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := l.acquire(ctx, l.interactive); err != nil {
		return nil, err
	}
	defer l.interactive.Release(1)
	return l.inner.Embed(ctx, text)
}

func (l *Limited) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := l.acquire(ctx, l.bulk); err != nil {
		return nil, err
	}
	defer l.bulk.Release(1)
	return l.inner.EmbedBatch(ctx, texts)
}

func (l *Limited) acquire(ctx context.Context, sem *semaphore.Weighted) error {
	if err := sem.Acquire(ctx, 1); err != nil {
		return wrapFailure("wait for embedding slot", err)
	}
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			sem.Release(1)
			return wrapFailure("wait for embedding rate limit", err)
		}
	}
	return nil
}

func (l *Limited) Dimensions() int     { return l.inner.Dimensions() }
func (l *Limited) ModelName() string   { return l.inner.ModelName() }
func (l *Limited) MaxInputLength() int { return l.inner.MaxInputLength() }
func (l *Limited) Close() error        { return l.inner.Close() }
