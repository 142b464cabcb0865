package rag

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orgrag/internal/model"
)

func textCand(id, text string, score float64) model.RetrievalCandidate {
	return model.RetrievalCandidate{Chunk: model.Chunk{ID: id, Text: text}, Score: score}
}

func TestAssemble(t *testing.T) {
	t.Run("Budget is never exceeded", func(t *testing.T) {
		var candidates []model.RetrievalCandidate
		for i := 0; i < 20; i++ {
			candidates = append(candidates, textCand(fmt.Sprintf("c%d", i), fmt.Sprintf("snippet %d %s", i, strings.Repeat("word ", i%7+1)), 1-float64(i)/100))
		}
		for budget := 0; budget < 300; budget += 7 {
			a := NewAssembler(AssemblerConfig{Budget: budget}, RuneSizer{})

			out := a.Assemble(candidates)

			assert.LessOrEqual(t, RuneSizer{}.Size(out.Text), budget, "Expected context within budget %d", budget)
			assert.Equal(t, RuneSizer{}.Size(out.Text), out.Size)
		}
	})

	t.Run("Chunks are included whole as a ranked prefix", func(t *testing.T) {
		a := NewAssembler(AssemblerConfig{Budget: 24, Separator: "|"}, RuneSizer{})

		out := a.Assemble([]model.RetrievalCandidate{
			textCand("a", "0123456789", 0.9),
			textCand("b", "abcdefghij", 0.8),
			textCand("c", "xyz", 0.7),
		})

		assert.Equal(t, []string{"a", "b"}, out.ChunkIDs())
		assert.Equal(t, "0123456789|abcdefghij", out.Text)
		assert.Equal(t, 21, out.Size)
	})

	t.Run("Stops at the first chunk that does not fit", func(t *testing.T) {
		a := NewAssembler(AssemblerConfig{Budget: 12, Separator: "|"}, RuneSizer{})

		out := a.Assemble([]model.RetrievalCandidate{
			textCand("a", "0123456789", 0.9),
			textCand("b", "abcdefghij", 0.8),
			textCand("c", "x", 0.7),
		})

		assert.Equal(t, []string{"a"}, out.ChunkIDs(), "Expected a prefix, not a best fit")
	})

	t.Run("Near identical chunks keep the higher score", func(t *testing.T) {
		a := NewAssembler(AssemblerConfig{Budget: 1000}, RuneSizer{})
		text := "Every claim must include the policy number, the incident date and a signed claim form."

		out := a.Assemble([]model.RetrievalCandidate{
			textCand("low", strings.ToUpper(text), 0.6),
			textCand("high", text+"  ", 0.8),
			textCand("other", "Claims are paid within thirty days of approval.", 0.5),
		})

		require.Len(t, out.Candidates, 2)
		assert.Equal(t, "high", out.Candidates[0].Chunk.ID)
		assert.Equal(t, "other", out.Candidates[1].Chunk.ID)
	})

	t.Run("Dedupe happens before budgeting", func(t *testing.T) {
		a := NewAssembler(AssemblerConfig{Budget: 30, Separator: "|"}, RuneSizer{})

		out := a.Assemble([]model.RetrievalCandidate{
			textCand("a", "alpha beta gamma delta", 0.9),
			textCand("dup", "alpha beta gamma delta", 0.85),
			textCand("b", "epsilon", 0.8),
		})

		assert.Equal(t, []string{"a", "b"}, out.ChunkIDs())
	})

	t.Run("A chunk contained in a higher ranked one is dropped", func(t *testing.T) {
		a := NewAssembler(AssemblerConfig{Budget: 1000}, RuneSizer{})
		short := "Claims are paid within thirty days."

		out := a.Assemble([]model.RetrievalCandidate{
			textCand("long", short+" Late payments accrue interest at the statutory rate.", 0.9),
			textCand("short", short, 0.8),
		})

		assert.Equal(t, []string{"long"}, out.ChunkIDs(), "Expected the contained chunk to be dropped")
	})

	t.Run("Containment ignores partial words", func(t *testing.T) {
		a := NewAssembler(AssemblerConfig{Budget: 1000}, RuneSizer{})

		out := a.Assemble([]model.RetrievalCandidate{
			textCand("a", "xyz coverage", 0.9),
			textCand("b", "xy", 0.8),
		})

		assert.Equal(t, []string{"a", "b"}, out.ChunkIDs())
	})

	t.Run("Overlapping neighbours are not treated as duplicates", func(t *testing.T) {
		a := NewAssembler(AssemblerConfig{Budget: 1000}, RuneSizer{})

		out := a.Assemble([]model.RetrievalCandidate{
			textCand("a", "one two three four five six seven eight nine ten", 0.9),
			textCand("b", "nine ten eleven twelve thirteen fourteen fifteen sixteen", 0.8),
		})

		assert.Len(t, out.Candidates, 2)
	})
}
