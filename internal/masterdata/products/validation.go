package products

import (
	"fmt"
	"strings"

	"github.com/odyssey-erp/backoffice/internal/masterdata/shared"
	"github.com/odyssey-erp/backoffice/internal/pricing"
)

func (s *Service) validate(form *ProductForm) error {
	form.Code = strings.ToUpper(strings.TrimSpace(form.Code))
	form.Name = strings.TrimSpace(form.Name)
	form.Supplier = strings.ToUpper(strings.TrimSpace(form.Supplier))
	form.Category = strings.TrimSpace(form.Category)
	if err := s.validator.Struct(form); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrValidation, err)
	}
	if err := pricing.Validate(form.PricingTiers); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrValidation, err)
	}
	return nil
}
