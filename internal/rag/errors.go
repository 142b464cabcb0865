package rag

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindUnsupportedFormat ErrorKind = "unsupported_format"
	KindExtractionFailure ErrorKind = "extraction_failure"
	KindEmbeddingFailure  ErrorKind = "embedding_failure"
	KindStoreFailure      ErrorKind = "store_failure"
	KindStoreUnavailable  ErrorKind = "store_unavailable"
)

var ErrInvalidJob = errors.New("invalid ingest job")

// IngestionError is a per-document failure. It never affects other documents.
type IngestionError struct {
	Kind       ErrorKind
	DocumentID string
	Err        error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingest document %s: %s: %v", e.DocumentID, e.Kind, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// RetrievalError means the service could not search. It is not a fallback.
type RetrievalError struct {
	Kind ErrorKind
	Err  error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval: %s: %v", e.Kind, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// KindOf returns the kind of an IngestionError or RetrievalError in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var ie *IngestionError
	if errors.As(err, &ie) {
		return ie.Kind, true
	}
	var re *RetrievalError
	if errors.As(err, &re) {
		return re.Kind, true
	}
	return "", false
}
