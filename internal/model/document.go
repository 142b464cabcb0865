package model

import "time"

type DocumentStatus string

const (
	DocumentPending   DocumentStatus = "pending"
	DocumentProcessed DocumentStatus = "processed"
	DocumentFailed    DocumentStatus = "failed"
)

// Document is one uploaded file owned by exactly one organization.
type Document struct {
	ID             string         `gorm:"primaryKey;size:36" json:"id"`
	OrganizationID string         `gorm:"size:36;not null;index" json:"organization_id"`
	Name           string         `gorm:"size:256;not null" json:"name"`
	Format         string         `gorm:"size:16;not null" json:"format"`
	ContentHash    string         `gorm:"size:64;index" json:"content_hash"`
	Status         DocumentStatus `gorm:"size:16;not null;index" json:"status"`
	ChunkCount     int            `json:"chunk_count"`
	Error          string         `gorm:"type:text" json:"error,omitempty"`
	UploadedBy     string         `gorm:"size:64" json:"uploaded_by,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}
