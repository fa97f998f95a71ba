package invoices

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/backoffice/internal/orders"
	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/tax"
)

// RepositoryPort describes persistence used by Service.
type RepositoryPort interface {
	Create(ctx context.Context, inv Invoice) (Invoice, error)
	Get(ctx context.Context, id int64) (Invoice, error)
	List(ctx context.Context, limit, offset int) ([]Invoice, int, error)
}

// OrderReader loads customer orders for invoicing.
type OrderReader interface {
	Get(ctx context.Context, id int64) (orders.Order, error)
}

// Service builds and stores invoices.
type Service struct {
	repo      RepositoryPort
	orders    OrderReader
	audit     shared.Auditor
	validator *validator.Validate
	logger    *slog.Logger
}

// NewService constructs the invoice service.
func NewService(repo RepositoryPort, orders OrderReader, audit shared.Auditor, logger *slog.Logger) *Service {
	if audit == nil {
		audit = shared.NopAuditor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, orders: orders, audit: audit, validator: httpx.NewValidator(), logger: logger}
}

// LineInput is one invoice line. UnitPrice is inclusive of VAT.
type LineInput struct {
	ProductCode string     `json:"product_code" validate:"omitempty,max=64"`
	ProductName string     `json:"product_name" validate:"required,max=200"`
	Quantity    float64    `json:"quantity" validate:"gte=0"`
	UnitPrice   float64    `json:"unit_price" validate:"gte=0"`
	TaxRate     *tax.Class `json:"tax_rate"`
}

// PreviewInput carries the lines to aggregate.
type PreviewInput struct {
	Items []LineInput `json:"items" validate:"required,min=1,dive"`
}

// CreateInput is a new invoice.
type CreateInput struct {
	CustomerName  string      `json:"customer_name" validate:"required,max=200"`
	CustomerEmail string      `json:"customer_email" validate:"omitempty,email"`
	Items         []LineInput `json:"items" validate:"required,min=1,dive"`
}

// Preview aggregates items without storing anything.
func (s *Service) Preview(input PreviewInput) (Invoice, error) {
	if err := s.validator.Struct(input); err != nil {
		return Invoice{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return build(toLineItems(input.Items))
}

// Create aggregates and stores an invoice.
func (s *Service) Create(ctx context.Context, input CreateInput) (Invoice, error) {
	if err := s.validator.Struct(input); err != nil {
		return Invoice{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	inv, err := build(toLineItems(input.Items))
	if err != nil {
		return Invoice{}, err
	}
	inv.CustomerName = input.CustomerName
	inv.CustomerEmail = input.CustomerEmail
	return s.store(ctx, inv)
}

// CreateFromOrder invoices a stored customer order. Each order is invoiced once.
func (s *Service) CreateFromOrder(ctx context.Context, orderID int64) (Invoice, error) {
	if s.orders == nil {
		return Invoice{}, errors.New("invoices: order reader not configured")
	}
	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return Invoice{}, err
	}
	inv, err := build(order.LineItems())
	if err != nil {
		return Invoice{}, err
	}
	inv.OrderID = &order.ID
	inv.CustomerName = order.CustomerName
	inv.CustomerEmail = order.CustomerEmail
	return s.store(ctx, inv)
}

// Get returns a stored invoice.
func (s *Service) Get(ctx context.Context, id int64) (Invoice, error) {
	inv, err := s.repo.Get(ctx, id)
	if err != nil {
		return Invoice{}, err
	}
	inv.Display = NewDisplay(inv.Summary)
	return inv, nil
}

// List returns invoice headers newest first.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Invoice, int, error) {
	items, total, err := s.repo.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	for i := range items {
		items[i].Display = NewDisplay(items[i].Summary)
	}
	return items, total, nil
}

func (s *Service) store(ctx context.Context, inv Invoice) (Invoice, error) {
	inv.CreatedAt = time.Now()
	stored, err := s.repo.Create(ctx, inv)
	if err != nil {
		return Invoice{}, err
	}
	stored.Display = NewDisplay(stored.Summary)
	if err := s.audit.Record(ctx, shared.AuditLog{
		Action:   "invoice.create",
		Entity:   "invoice",
		EntityID: fmt.Sprintf("%d", stored.ID),
		Meta:     map[string]any{"number": stored.Number, "total": stored.Summary.TotalAmount},
	}); err != nil {
		s.logger.Warn("audit record", slog.String("action", "invoice.create"), slog.Any("error", err))
	}
	return stored, nil
}

func build(items []tax.LineItem) (Invoice, error) {
	summary, err := tax.Aggregate(items)
	if err != nil {
		return Invoice{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return Invoice{Summary: summary, Display: NewDisplay(summary)}, nil
}

func toLineItems(in []LineInput) []tax.LineItem {
	out := make([]tax.LineItem, 0, len(in))
	for _, l := range in {
		class := tax.Standard(tax.RateZero)
		if l.TaxRate != nil {
			class = *l.TaxRate
		}
		out = append(out, tax.LineItem{
			ProductCode:      l.ProductCode,
			ProductName:      l.ProductName,
			Quantity:         l.Quantity,
			UnitPriceInclVAT: l.UnitPrice,
			Class:            class,
		})
	}
	return out
}
