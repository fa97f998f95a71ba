package products

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/backoffice/internal/masterdata/shared"
	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/pricing"
)

type Service struct {
	repo      Repository
	validator *validator.Validate
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, validator: httpx.NewValidator()}
}

// GetAll lists products with derived tier metrics.
func (s *Service) GetAll(ctx context.Context, filters shared.ListFilters) ([]ProductView, int, error) {
	items, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, 0, err
	}
	views := make([]ProductView, 0, len(items))
	for _, p := range items {
		views = append(views, View(p))
	}
	return views, total, nil
}

func (s *Service) Get(ctx context.Context, id int64) (ProductView, error) {
	if id <= 0 {
		return ProductView{}, shared.ErrInvalidID
	}
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return ProductView{}, err
	}
	return View(p), nil
}

// Lookup returns the product stored under code.
func (s *Service) Lookup(ctx context.Context, code string) (Product, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return Product{}, shared.ErrInvalidID
	}
	return s.repo.GetByCode(ctx, code)
}

func (s *Service) Create(ctx context.Context, form ProductForm) (ProductView, error) {
	if err := s.validate(&form); err != nil {
		return ProductView{}, err
	}
	p, err := s.repo.Create(ctx, form.toProduct())
	if err != nil {
		return ProductView{}, err
	}
	return View(p), nil
}

// Preview computes tier metrics for an unsaved price list.
func (s *Service) Preview(form PreviewForm) ([]pricing.TierMetrics, error) {
	if err := s.validator.Struct(form); err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrValidation, err)
	}
	metrics, err := pricing.Calculate(pricing.Input{
		CostPriceExclVAT:    form.CostPrice,
		VATRatePercent:      form.VATRate.Rate(),
		CashbackRatePercent: form.CashbackRate,
		Tiers:               form.PricingTiers,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrValidation, err)
	}
	return metrics, nil
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return shared.ErrInvalidID
	}
	return s.repo.Delete(ctx, id)
}
