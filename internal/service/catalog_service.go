package service

import (
	"context"
	"strings"

	"nailbook/internal/domain"
	"nailbook/internal/models"

	"github.com/rs/zerolog"
)

// CatalogService manages treatments and their payment price references.
type CatalogService struct {
	repo   domain.Repository
	logger *zerolog.Logger
}

func NewCatalogService(repo domain.Repository, logger *zerolog.Logger) *CatalogService {
	return &CatalogService{repo: repo, logger: logger}
}

func (s *CatalogService) ListServices(ctx context.Context) ([]*models.Service, error) {
	return s.repo.ListServices(ctx)
}

func (s *CatalogService) GetService(ctx context.Context, id string) (*models.Service, error) {
	return s.repo.GetService(ctx, id)
}

func (s *CatalogService) CreateService(ctx context.Context, svc *models.Service) error {
	if err := validateService(svc); err != nil {
		return err
	}
	if err := s.repo.InsertService(ctx, svc); err != nil {
		return err
	}
	s.logger.Info().Str("service_id", svc.ID).Str("name", svc.Name).Msg("Service created")
	return nil
}

func (s *CatalogService) UpdateService(ctx context.Context, svc *models.Service) error {
	if err := validateService(svc); err != nil {
		return err
	}
	if err := s.repo.UpdateService(ctx, svc); err != nil {
		return err
	}
	s.logger.Info().Str("service_id", svc.ID).Msg("Service updated")
	return nil
}

func (s *CatalogService) DeleteService(ctx context.Context, id string) error {
	if err := s.repo.DeleteService(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("service_id", id).Msg("Service deleted")
	return nil
}

func (s *CatalogService) SetPriceMapping(ctx context.Context, mapping *models.PriceMapping) error {
	if strings.TrimSpace(mapping.ServiceID) == "" {
		return invalid("service_id", "required")
	}
	if mapping.PriceFullID == "" || mapping.PriceDepositID == "" {
		return invalid("price", "full and deposit references are required")
	}
	if _, err := s.repo.GetService(ctx, mapping.ServiceID); err != nil {
		return err
	}
	return s.repo.UpsertPriceMapping(ctx, mapping)
}

func validateService(svc *models.Service) error {
	svc.Name = strings.TrimSpace(svc.Name)
	if svc.Name == "" {
		return invalid("name", "required")
	}
	if svc.ID == models.MaintenanceServiceID {
		return invalid("id", "reserved")
	}
	if svc.Price < 0 {
		return invalid("price", "must not be negative")
	}
	return nil
}
