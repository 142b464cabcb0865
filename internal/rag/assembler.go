package rag

import (
	"sort"
	"strings"

	"orgrag/internal/model"
)

const (
	DefaultSeparator       = "\n\n---\n\n"
	DefaultDedupeThreshold = 0.9
)

type AssemblerConfig struct {
	// Budget is the maximum context size in the sizer's unit.
	Budget int
	// Separator goes between snippets and counts against the budget.
	Separator string
	// DedupeThreshold is the word-shingle Jaccard similarity at which two
	// chunks count as the same text.
	DedupeThreshold float64
}

type AssembledContext struct {
	Candidates []model.RetrievalCandidate
	Text       string
	Size       int
}

func (c AssembledContext) ChunkIDs() []string {
	ids := make([]string, len(c.Candidates))
	for i, cand := range c.Candidates {
		ids[i] = cand.Chunk.ID
	}
	return ids
}

func (c AssembledContext) Snippets() []string {
	out := make([]string, len(c.Candidates))
	for i, cand := range c.Candidates {
		out[i] = cand.Chunk.Text
	}
	return out
}

type Assembler struct {
	cfg   AssemblerConfig
	sizer Sizer
}

func NewAssembler(cfg AssemblerConfig, sizer Sizer) *Assembler {
	if cfg.Separator == "" {
		cfg.Separator = DefaultSeparator
	}
	if cfg.DedupeThreshold <= 0 {
		cfg.DedupeThreshold = DefaultDedupeThreshold
	}
	if sizer == nil {
		sizer = RuneSizer{}
	}
	return &Assembler{cfg: cfg, sizer: sizer}
}

// Assemble drops near-duplicates, then keeps the longest ranked prefix that
// fits the budget. A chunk is either included whole or not at all.
func (a *Assembler) Assemble(candidates []model.RetrievalCandidate) AssembledContext {
	unique := dedupe(candidates, a.cfg.DedupeThreshold)
	sepSize := a.sizer.Size(a.cfg.Separator)

	var out AssembledContext
	texts := make([]string, 0, len(unique))
	for _, c := range unique {
		next := a.sizer.Size(c.Chunk.Text)
		if len(texts) > 0 {
			next += sepSize
		}
		if out.Size+next > a.cfg.Budget {
			break
		}
		out.Size += next
		out.Candidates = append(out.Candidates, c)
		texts = append(texts, c.Chunk.Text)
	}
	out.Text = strings.Join(texts, a.cfg.Separator)
	return out
}

func dedupe(candidates []model.RetrievalCandidate, threshold float64) []model.RetrievalCandidate {
	ranked := append([]model.RetrievalCandidate(nil), candidates...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	type seen struct {
		norm     string
		shingles map[string]struct{}
	}
	var kept []model.RetrievalCandidate
	var prints []seen
	for _, c := range ranked {
		norm := normalize(c.Chunk.Text)
		sh := shingles(norm)
		dup := false
		for _, p := range prints {
			if p.norm == norm || contains(p.norm, norm) || jaccard(p.shingles, sh) >= threshold {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		kept = append(kept, c)
		prints = append(prints, seen{norm: norm, shingles: sh})
	}
	return kept
}

// contains reports whether either normalized text holds the other on word
// boundaries.
func contains(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	a, b = " "+a+" ", " "+b+" "
	return strings.Contains(a, b) || strings.Contains(b, a)
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// shingles returns word 3-grams, or single words for very short text.
func shingles(norm string) map[string]struct{} {
	words := strings.Fields(norm)
	out := make(map[string]struct{})
	if len(words) < 3 {
		for _, w := range words {
			out[w] = struct{}{}
		}
		return out
	}
	for i := 0; i+3 <= len(words); i++ {
		out[words[i]+" "+words[i+1]+" "+words[i+2]] = struct{}{}
	}
	return out
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	inter := 0
	for k := range a {
		if _, ok := b[k]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
