package suppliers

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/backoffice/internal/masterdata/shared"
	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
)

type Service struct {
	repo      Repository
	validator *validator.Validate
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, validator: httpx.NewValidator()}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Supplier, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Supplier, error) {
	if id <= 0 {
		return Supplier{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, id)
}

// Contact returns the supplier purchase orders for code are addressed to.
func (s *Service) Contact(ctx context.Context, code string) (Supplier, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return Supplier{}, shared.ErrInvalidID
	}
	return s.repo.GetByCode(ctx, code)
}

func (s *Service) Create(ctx context.Context, form SupplierForm) (Supplier, error) {
	if err := s.validate(&form); err != nil {
		return Supplier{}, err
	}
	return s.repo.Create(ctx, form.toSupplier())
}

func (s *Service) Update(ctx context.Context, id int64, form SupplierForm) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	if err := s.validate(&form); err != nil {
		return err
	}
	return s.repo.Update(ctx, id, form.toSupplier())
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	return s.repo.Delete(ctx, id)
}
