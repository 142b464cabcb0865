package embedding

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgrag/internal/ai"
)

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestHashing(t *testing.T) {
	ctx := context.Background()
	h := NewHashing(512)

	t.Run("Same text gives the same vector", func(t *testing.T) {
		a, err := h.Embed(ctx, "Claim requirements for travel insurance")
		require.NoError(t, err)
		b, err := h.Embed(ctx, "Claim requirements for travel insurance")
		require.NoError(t, err)

		assert.Equal(t, a, b)
	})

	t.Run("Vectors are unit length", func(t *testing.T) {
		v, err := h.Embed(ctx, "policy number and incident date")
		require.NoError(t, err)

		assert.InDelta(t, 1.0, math.Sqrt(dot(v, v)), 1e-5)
	})

	t.Run("Related text scores higher than unrelated text", func(t *testing.T) {
		q, _ := h.Embed(ctx, "What are the claim requirements?")
		related, _ := h.Embed(ctx, "Claim requirements: every claim needs a policy number.")
		unrelated, _ := h.Embed(ctx, "The cafeteria opens at nine on weekdays.")

		assert.Greater(t, dot(q, related), dot(q, unrelated))
	})

	t.Run("Stop words only gives a zero vector", func(t *testing.T) {
		v, err := h.Embed(ctx, "what is the")
		require.NoError(t, err)

		assert.Equal(t, 0.0, dot(v, v))
	})

	t.Run("Batch matches single calls", func(t *testing.T) {
		batch, err := h.EmbedBatch(ctx, []string{"alpha", "beta"})
		require.NoError(t, err)
		single, _ := h.Embed(ctx, "beta")

		require.Len(t, batch, 2)
		assert.Equal(t, single, batch[1])
	})
}

func TestTokens(t *testing.T) {
	assert.Equal(t, []string{"claim", "requirement"}, Tokens("What are the CLAIM requirements?"))
	assert.Equal(t, []string{"address"}, Tokens("address"), "Expected double s words to keep their suffix")
}

func TestOpenAIInputLimit(t *testing.T) {
	o := NewOpenAI(ai.NewOpenAICompatibleClient(), ai.EmbeddingConfig{BaseURL: "http://127.0.0.1:0", Model: "m"}, 5)

	_, err := o.EmbedBatch(context.Background(), []string{"short", "much too long"})

	assert.ErrorIs(t, err, ErrEmbeddingFailure)
	assert.ErrorIs(t, err, ErrInputTooLong)
}

type blockingService struct {
	*Hashing
	release chan struct{}
	active  atomic.Int32
	peak    atomic.Int32
}

func (b *blockingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	n := b.active.Add(1)
	for {
		p := b.peak.Load()
		if n <= p || b.peak.CompareAndSwap(p, n) {
			break
		}
	}
	defer b.active.Add(-1)
	<-b.release
	return b.Hashing.EmbedBatch(ctx, texts)
}

func TestLimited(t *testing.T) {
	ctx := context.Background()

	t.Run("Bulk calls are bounded and queries still pass", func(t *testing.T) {
		inner := &blockingService{Hashing: NewHashing(16), release: make(chan struct{})}
		l := NewLimited(inner, LimitConfig{BulkConcurrency: 2, InteractiveConcurrency: 1})

		var wg sync.WaitGroup
		for i := 0; i < 5; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = l.EmbedBatch(ctx, []string{"bulk"})
			}()
		}

		require.Eventually(t, func() bool { return inner.active.Load() == 2 }, time.Second, 5*time.Millisecond)

		queryCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		_, err := l.Embed(queryCtx, "question")
		assert.NoError(t, err, "Expected query to bypass the saturated bulk lane")

		close(inner.release)
		wg.Wait()
		assert.LessOrEqual(t, inner.peak.Load(), int32(2))
	})

	t.Run("Cancelled wait is an embedding failure", func(t *testing.T) {
		inner := &blockingService{Hashing: NewHashing(16), release: make(chan struct{})}
		l := NewLimited(inner, LimitConfig{BulkConcurrency: 1})

		go func() { _, _ = l.EmbedBatch(ctx, []string{"hold"}) }()
		require.Eventually(t, func() bool { return inner.active.Load() == 1 }, time.Second, 5*time.Millisecond)

		waitCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err := l.EmbedBatch(waitCtx, []string{"blocked"})

		assert.ErrorIs(t, err, ErrEmbeddingFailure)
		close(inner.release)
	})
}

type countingService struct {
	*Hashing
	calls atomic.Int32
}

func (c *countingService) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	return c.Hashing.Embed(ctx, text)
}

type mapCache struct {
	mu      sync.Mutex
	data    map[string][]float32
	failGet bool
}

func (m *mapCache) GetVector(_ context.Context, model, text string) ([]float32, bool, error) {
	if m.failGet {
		return nil, false, errors.New("cache down")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[model+"|"+text]
	return v, ok, nil
}

func (m *mapCache) SetVector(_ context.Context, model, text string, vector []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[model+"|"+text] = vector
	return nil
}

func TestCached(t *testing.T) {
	ctx := context.Background()

	t.Run("Second query is served from cache", func(t *testing.T) {
		inner := &countingService{Hashing: NewHashing(32)}
		c := NewCached(inner, &mapCache{data: map[string][]float32{}}, nil)

		first, err := c.Embed(ctx, "claim requirements")
		require.NoError(t, err)
		second, err := c.Embed(ctx, "claim requirements")
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, int32(1), inner.calls.Load())
	})

	t.Run("Cache errors fall through to the model", func(t *testing.T) {
		inner := &countingService{Hashing: NewHashing(32)}
		c := NewCached(inner, &mapCache{data: map[string][]float32{}, failGet: true}, nil)

		_, err := c.Embed(ctx, "claim requirements")

		require.NoError(t, err)
		assert.Equal(t, int32(1), inner.calls.Load())
	})
}
