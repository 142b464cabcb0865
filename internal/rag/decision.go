package rag

import "orgrag/internal/model"

type Outcome string

const (
	OutcomeGrounded Outcome = "grounded"
	OutcomeFallback Outcome = "fallback"
)

type Decision struct {
	Outcome   Outcome
	Reason    model.FallbackReason
	BestScore float64
	// Candidates holds the candidates at or above the threshold when grounded.
	Candidates []model.RetrievalCandidate
}

// Decide looks only at scores, never at chunk text.
func Decide(candidates []model.RetrievalCandidate, threshold float64) Decision {
	if len(candidates) == 0 {
		return Decision{Outcome: OutcomeFallback, Reason: model.FallbackNoCandidates}
	}

	best := candidates[0].Score
	for _, c := range candidates[1:] {
		if c.Score > best {
			best = c.Score
		}
	}
	if best < threshold {
		return Decision{Outcome: OutcomeFallback, Reason: model.FallbackLowConfidence, BestScore: best}
	}

	kept := make([]model.RetrievalCandidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Score >= threshold {
			kept = append(kept, c)
		}
	}
	return Decision{Outcome: OutcomeGrounded, BestScore: best, Candidates: kept}
}
