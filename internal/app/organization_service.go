package app

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"orgrag/internal/model"
	"orgrag/internal/repository"
)

var ErrOrganizationExists = errors.New("organization name already exists")

type OrganizationService struct {
	orgRepo *repository.OrganizationRepository
}

type CreateOrganizationInput struct {
	Name        string
	Description string
}

func NewOrganizationService(orgRepo *repository.OrganizationRepository) *OrganizationService {
	return &OrganizationService{orgRepo: orgRepo}
}

func (s *OrganizationService) Create(ctx context.Context, input CreateOrganizationInput) (*model.Organization, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, ErrInvalidInput
	}
	existing, err := s.orgRepo.GetByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrOrganizationExists
	}

	org := &model.Organization{
		ID:          uuid.NewString(),
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		Active:      true,
	}
	if err := s.orgRepo.Create(ctx, org); err != nil {
		return nil, err
	}
	return org, nil
}

func (s *OrganizationService) Get(ctx context.Context, id string) (*model.Organization, error) {
	org, err := s.orgRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, ErrOrganizationNotFound
	}
	return org, nil
}

func (s *OrganizationService) List(ctx context.Context) ([]model.Organization, error) {
	return s.orgRepo.List(ctx)
}

// SetActive toggles ingestion for the organization. Answering is unaffected.
func (s *OrganizationService) SetActive(ctx context.Context, id string, active bool) (*model.Organization, error) {
	org, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.orgRepo.SetActive(ctx, id, active); err != nil {
		return nil, err
	}
	org.Active = active
	return org, nil
}
