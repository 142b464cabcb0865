package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"orgrag/internal/model"
)

type RAGChunkRepository struct {
	db *gorm.DB
}

func NewRAGChunkRepository(db *gorm.DB) *RAGChunkRepository {
	return &RAGChunkRepository{db: db}
}

func (r *RAGChunkRepository) DB() *gorm.DB { return r.db }

// Upsert inserts chunk or replaces the row with the same id.
func (r *RAGChunkRepository) Upsert(ctx context.Context, chunk *model.RAGChunk) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(chunk).Error
	if err != nil {
		return fmt.Errorf("upsert rag chunk failed: %w", err)
	}
	return nil
}

// ReplaceDocument swaps a document's chunk rows inside one transaction.
func (r *RAGChunkRepository) ReplaceDocument(ctx context.Context, organizationID, documentID string, chunks []model.RAGChunk) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("organization_id = ? AND document_id = ?", organizationID, documentID).
			Delete(&model.RAGChunk{}).Error; err != nil {
			return err
		}
		if len(chunks) == 0 {
			return nil
		}
		return tx.CreateInBatches(&chunks, 100).Error
	})
	if err != nil {
		return fmt.Errorf("replace rag chunks failed: %w", err)
	}
	return nil
}

// ListByOrganizationID returns every chunk row of one organization.
func (r *RAGChunkRepository) ListByOrganizationID(ctx context.Context, organizationID string) ([]model.RAGChunk, error) {
	var chunks []model.RAGChunk
	if err := r.db.WithContext(ctx).Where("organization_id = ?", organizationID).Find(&chunks).Error; err != nil {
		return nil, fmt.Errorf("list rag chunks by organization failed: %w", err)
	}
	return chunks, nil
}

func (r *RAGChunkRepository) CountByDocumentID(ctx context.Context, organizationID, documentID string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.RAGChunk{}).
		Where("organization_id = ? AND document_id = ?", organizationID, documentID).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count rag chunks failed: %w", err)
	}
	return n, nil
}

func (r *RAGChunkRepository) DeleteByDocumentID(ctx context.Context, organizationID, documentID string) (int64, error) {
	res := r.db.WithContext(ctx).Where("organization_id = ? AND document_id = ?", organizationID, documentID).Delete(&model.RAGChunk{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete rag chunks by document failed: %w", res.Error)
	}
	return res.RowsAffected, nil
}
