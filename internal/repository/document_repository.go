package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"orgrag/internal/model"
)

type DocumentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func (r *DocumentRepository) Create(ctx context.Context, doc *model.Document) error {
	if err := r.db.WithContext(ctx).Create(doc).Error; err != nil {
		return fmt.Errorf("create document failed: %w", err)
	}
	return nil
}

// Save inserts doc or overwrites every column of an existing row with the same id.
func (r *DocumentRepository) Save(ctx context.Context, doc *model.Document) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(doc).Error
	if err != nil {
		return fmt.Errorf("save document failed: %w", err)
	}
	return nil
}

// GetByID ignores the organization. It exists to detect id clashes across
// organizations; reads on behalf of a caller use GetByIDAndOrganizationID.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*model.Document, error) {
	var doc model.Document
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document by id failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) GetByIDAndOrganizationID(ctx context.Context, id, organizationID string) (*model.Document, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).Where("id = ? AND organization_id = ?", id, organizationID).First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document failed: %w", err)
	}
	return &doc, nil
}

// GetByContentHash finds an earlier upload of the same bytes in the organization.
func (r *DocumentRepository) GetByContentHash(ctx context.Context, organizationID, hash string) (*model.Document, error) {
	var doc model.Document
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND content_hash = ?", organizationID, hash).
		Order("created_at DESC").
		First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get document by content hash failed: %w", err)
	}
	return &doc, nil
}

func (r *DocumentRepository) ListByOrganizationID(ctx context.Context, organizationID string) ([]model.Document, error) {
	var list []model.Document
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", organizationID).
		Order("created_at DESC").
		Find(&list).Error
	if err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	return list, nil
}

// UpdateStatus records the outcome of an ingestion run.
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id, organizationID string, status model.DocumentStatus, chunkCount int, errMsg string) error {
	res := r.db.WithContext(ctx).Model(&model.Document{}).
		Where("id = ? AND organization_id = ?", id, organizationID).
		Updates(map[string]any{
			"status":      status,
			"chunk_count": chunkCount,
			"error":       errMsg,
		})
	if res.Error != nil {
		return fmt.Errorf("update document status failed: %w", res.Error)
	}
	return nil
}

// DeleteByIDAndOrganizationID reports whether a row was removed.
func (r *DocumentRepository) DeleteByIDAndOrganizationID(ctx context.Context, id, organizationID string) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ? AND organization_id = ?", id, organizationID).Delete(&model.Document{})
	if res.Error != nil {
		return false, fmt.Errorf("delete document failed: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
