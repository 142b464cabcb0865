package model

type FallbackReason string

const (
	FallbackNone             FallbackReason = ""
	FallbackNoCandidates     FallbackReason = "no_candidates"
	FallbackLowConfidence    FallbackReason = "low_confidence"
	FallbackNoContext        FallbackReason = "no_context"
	FallbackGenerationFailed FallbackReason = "generation_failed"
)

type Answer struct {
	Text           string         `json:"text"`
	Fallback       bool           `json:"fallback"`
	FallbackReason FallbackReason `json:"fallback_reason,omitempty"`
	UsedChunkIDs   []string       `json:"used_chunk_ids"`
	Confidence     float64        `json:"confidence"`
	Language       string         `json:"language,omitempty"`
}
