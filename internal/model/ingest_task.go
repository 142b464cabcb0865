package model

// IngestTask is the queued form of an upload. The document row already
// exists with status pending when the task is published.
type IngestTask struct {
	DocumentID     string `json:"document_id"`
	OrganizationID string `json:"organization_id"`
	Name           string `json:"name"`
	Format         string `json:"format"`
	UploadedBy     string `json:"uploaded_by,omitempty"`
	Data           []byte `json:"data"`
}
