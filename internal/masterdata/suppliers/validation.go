package suppliers

import (
	"fmt"
	"strings"

	"github.com/odyssey-erp/backoffice/internal/masterdata/shared"
)

func (s *Service) validate(form *SupplierForm) error {
	form.Code = strings.ToUpper(strings.TrimSpace(form.Code))
	form.Name = strings.TrimSpace(form.Name)
	form.Email = strings.TrimSpace(form.Email)
	if err := s.validator.Struct(form); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrValidation, err)
	}
	return nil
}
