package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		c, err := New()

		require.NoError(t, err)
		assert.Equal(t, DefaultSize, c.Size())
		assert.Equal(t, DefaultOverlap, c.Overlap())
	})

	t.Run("Overlap equal to size is rejected", func(t *testing.T) {
		_, err := New(WithSize(10), WithOverlap(10))

		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("Non positive size is rejected", func(t *testing.T) {
		_, err := New(WithSize(0))

		assert.ErrorIs(t, err, ErrInvalidConfig)
	})

	t.Run("Negative overlap is rejected", func(t *testing.T) {
		_, err := New(WithSize(10), WithOverlap(-1))

		assert.ErrorIs(t, err, ErrInvalidConfig)
	})
}

func TestSplit(t *testing.T) {
	t.Run("Consecutive chunks share the configured overlap", func(t *testing.T) {
		c, err := New(WithSize(10), WithOverlap(3))
		require.NoError(t, err)

		pieces := c.Split("abcdefghijklmnopqrstuvwxyz")

		require.Len(t, pieces, 4)
		assert.Equal(t, "abcdefghij", pieces[0].Text)
		assert.Equal(t, "hijklmnopq", pieces[1].Text)
		assert.Equal(t, "opqrstuvwx", pieces[2].Text)
		assert.Equal(t, "vwxyz", pieces[3].Text)
		for i := 1; i < len(pieces); i++ {
			prev := pieces[i-1].Text
			assert.True(t, strings.HasPrefix(pieces[i].Text, prev[len(prev)-3:]), "Expected chunk %d to start with the tail of chunk %d", i, i-1)
		}
	})

	t.Run("Sequence numbers are contiguous", func(t *testing.T) {
		c, err := New(WithSize(12), WithOverlap(2))
		require.NoError(t, err)

		pieces := c.Split(strings.Repeat("claims need a policy number. ", 20))

		for i, p := range pieces {
			assert.Equal(t, i, p.Sequence)
		}
	})

	t.Run("Blank input yields no chunks", func(t *testing.T) {
		c, err := New()
		require.NoError(t, err)

		assert.Empty(t, c.Split(""))
		assert.Empty(t, c.Split(" \n\t  "))
	})

	t.Run("Whitespace regions never produce blank chunks", func(t *testing.T) {
		c, err := New(WithSize(8), WithOverlap(2))
		require.NoError(t, err)

		pieces := c.Split("hello" + strings.Repeat(" ", 40) + "world")

		require.NotEmpty(t, pieces)
		for _, p := range pieces {
			assert.NotEmpty(t, strings.TrimSpace(p.Text), "Expected no blank chunk")
		}
	})

	t.Run("Window ends are moved to word boundaries", func(t *testing.T) {
		c, err := New(WithSize(20), WithOverlap(0))
		require.NoError(t, err)

		pieces := c.Split("alpha beta gamma delta epsilon zeta")

		require.NotEmpty(t, pieces)
		assert.Equal(t, "alpha beta gamma", pieces[0].Text)
	})

	t.Run("Same input gives the same chunks", func(t *testing.T) {
		c, err := New(WithSize(50), WithOverlap(10))
		require.NoError(t, err)
		text := strings.Repeat("Every claim must include the policy number and the incident date. ", 10)

		assert.Equal(t, c.Split(text), c.Split(text))
	})

	t.Run("Multibyte text is split on runes", func(t *testing.T) {
		c, err := New(WithSize(4), WithOverlap(1))
		require.NoError(t, err)

		pieces := c.Split("理赔需要保单号码")

		require.NotEmpty(t, pieces)
		assert.Equal(t, "理赔需要", pieces[0].Text)
		assert.Equal(t, "要保单号", pieces[1].Text)
	})
}

func TestResplit(t *testing.T) {
	t.Run("Short text is returned as is", func(t *testing.T) {
		assert.Equal(t, []string{"short"}, Resplit(" short ", 10))
	})

	t.Run("Long text is cut into parts no longer than max", func(t *testing.T) {
		parts := Resplit(strings.Repeat("x", 25), 10)

		require.Len(t, parts, 3)
		for _, p := range parts {
			assert.LessOrEqual(t, len([]rune(p)), 10)
		}
	})

	t.Run("Blank text yields nothing", func(t *testing.T) {
		assert.Empty(t, Resplit("   ", 10))
	})
}
