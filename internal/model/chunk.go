package model

import (
	"strconv"

	"github.com/google/uuid"
)

var chunkNamespace = uuid.MustParse("6f1c2b6e-3f0a-4c5e-9b59-2f4f7c1d8a10")

// Chunk is a bounded segment of a document, embedded and searchable on its own.
type Chunk struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	DocumentID     string    `json:"document_id"`
	Sequence       int       `json:"sequence"`
	Text           string    `json:"text"`
	Embedding      []float32 `json:"-"`
	Language       string    `json:"language,omitempty"`
}

// ChunkID derives a stable id from the document id and sequence index, so
// re-ingesting a document overwrites its chunks instead of duplicating them.
func ChunkID(documentID string, sequence int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(documentID+":"+strconv.Itoa(sequence))).String()
}

// RetrievalCandidate is a chunk scored against one query. It is never persisted.
type RetrievalCandidate struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}
