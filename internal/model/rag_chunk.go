package model

import (
	"encoding/json"
	"time"
)

// RAGChunk is the relational row behind the gorm vector store.
// Embedding is stored as JSON array of float32 for portability.
type RAGChunk struct {
	ID             string    `gorm:"primaryKey;size:36" json:"id"`
	OrganizationID string    `gorm:"size:36;not null;index:idx_rag_chunks_org_doc,priority:1" json:"organization_id"`
	DocumentID     string    `gorm:"size:36;not null;index:idx_rag_chunks_org_doc,priority:2" json:"document_id"`
	Sequence       int       `gorm:"not null" json:"sequence"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	Language       string    `gorm:"size:8" json:"language,omitempty"`
	Embedding      string    `gorm:"type:mediumtext" json:"-"`
	Metadata       string    `gorm:"type:text" json:"-"`
	CreatedAt      time.Time `json:"created_at"`
}

// EmbeddingVector returns the parsed embedding slice; empty on parse error.
func (c *RAGChunk) EmbeddingVector() []float32 {
	if c.Embedding == "" {
		return nil
	}
	var v []float32
	_ = json.Unmarshal([]byte(c.Embedding), &v)
	return v
}

// SetEmbedding stores the embedding as JSON.
func (c *RAGChunk) SetEmbedding(vec []float32) {
	if len(vec) == 0 {
		c.Embedding = "[]"
		return
	}
	b, _ := json.Marshal(vec)
	c.Embedding = string(b)
}

func (c *RAGChunk) MetadataMap() map[string]string {
	if c.Metadata == "" {
		return nil
	}
	var m map[string]string
	_ = json.Unmarshal([]byte(c.Metadata), &m)
	return m
}

func (c *RAGChunk) SetMetadata(m map[string]string) {
	if len(m) == 0 {
		c.Metadata = ""
		return
	}
	b, _ := json.Marshal(m)
	c.Metadata = string(b)
}
