package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"orgrag/internal/model"
)

type OrganizationRepository struct {
	db *gorm.DB
}

func NewOrganizationRepository(db *gorm.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

func (r *OrganizationRepository) Create(ctx context.Context, org *model.Organization) error {
	if err := r.db.WithContext(ctx).Create(org).Error; err != nil {
		return fmt.Errorf("create organization failed: %w", err)
	}
	return nil
}

func (r *OrganizationRepository) GetByID(ctx context.Context, id string) (*model.Organization, error) {
	var org model.Organization
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&org).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query organization by id failed: %w", err)
	}
	return &org, nil
}

func (r *OrganizationRepository) GetByName(ctx context.Context, name string) (*model.Organization, error) {
	var org model.Organization
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&org).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query organization by name failed: %w", err)
	}
	return &org, nil
}

func (r *OrganizationRepository) List(ctx context.Context) ([]model.Organization, error) {
	var list []model.Organization
	if err := r.db.WithContext(ctx).Order("name ASC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list organizations failed: %w", err)
	}
	return list, nil
}

func (r *OrganizationRepository) SetActive(ctx context.Context, id string, active bool) error {
	err := r.db.WithContext(ctx).Model(&model.Organization{}).Where("id = ?", id).Update("active", active).Error
	if err != nil {
		return fmt.Errorf("update organization failed: %w", err)
	}
	return nil
}
