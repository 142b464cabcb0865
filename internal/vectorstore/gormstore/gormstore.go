// Package gormstore keeps chunk vectors as rows in the relational database
// and scores them in process. It suits small corpora and MySQL deployments
// without a vector extension.
package gormstore

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"orgrag/internal/model"
	"orgrag/internal/repository"
	"orgrag/internal/vectorstore"
)

type Store struct {
	chunks *repository.RAGChunkRepository
	dims   int
}

// New migrates the chunk table and returns a store over db.
func New(db *gorm.DB, dims int) (*Store, error) {
	if err := db.AutoMigrate(&model.RAGChunk{}); err != nil {
		return nil, fmt.Errorf("migrate rag chunks failed: %w", err)
	}
	return &Store{chunks: repository.NewRAGChunkRepository(db), dims: dims}, nil
}

func (s *Store) Upsert(ctx context.Context, rec vectorstore.Record) error {
	if err := rec.Validate(s.dims); err != nil {
		return err
	}
	row := toRow(rec)
	if err := s.chunks.Upsert(ctx, &row); err != nil {
		return vectorstore.Unavailable("upsert", err)
	}
	return nil
}

func (s *Store) ReplaceDocument(ctx context.Context, organizationID, documentID string, recs []vectorstore.Record) error {
	rows := make([]model.RAGChunk, len(recs))
	for i, rec := range recs {
		if err := rec.Validate(s.dims); err != nil {
			return err
		}
		rows[i] = toRow(rec)
	}
	if err := s.chunks.ReplaceDocument(ctx, organizationID, documentID, rows); err != nil {
		return vectorstore.Unavailable("replace document", err)
	}
	return nil
}

// Search loads the organization's rows and ranks them by cosine similarity.
func (s *Store) Search(ctx context.Context, organizationID string, query []float32, k int) ([]vectorstore.Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	if s.dims > 0 && len(query) != s.dims {
		return nil, vectorstore.ErrDimensionMismatch
	}
	rows, err := s.chunks.ListByOrganizationID(ctx, organizationID)
	if err != nil {
		return nil, vectorstore.Unavailable("search", err)
	}

	hits := make([]vectorstore.Hit, 0, len(rows))
	for i := range rows {
		r := &rows[i]
		hits = append(hits, vectorstore.Hit{
			Record: vectorstore.Record{
				ChunkID:        r.ID,
				OrganizationID: r.OrganizationID,
				DocumentID:     r.DocumentID,
				Sequence:       r.Sequence,
				Text:           r.Content,
				Language:       r.Language,
				Metadata:       r.MetadataMap(),
			},
			Score: vectorstore.Cosine(query, r.EmbeddingVector()),
		})
	}
	return vectorstore.TopK(hits, k), nil
}

func (s *Store) DeleteDocument(ctx context.Context, organizationID, documentID string) (int, error) {
	n, err := s.chunks.DeleteByDocumentID(ctx, organizationID, documentID)
	if err != nil {
		return 0, vectorstore.Unavailable("delete document", err)
	}
	return int(n), nil
}

// Close leaves the shared *gorm.DB to its owner.
func (s *Store) Close() error { return nil }

func toRow(rec vectorstore.Record) model.RAGChunk {
	row := model.RAGChunk{
		ID:             rec.ChunkID,
		OrganizationID: rec.OrganizationID,
		DocumentID:     rec.DocumentID,
		Sequence:       rec.Sequence,
		Content:        rec.Text,
		Language:       rec.Language,
	}
	row.SetEmbedding(rec.Vector)
	row.SetMetadata(rec.Metadata)
	return row
}
