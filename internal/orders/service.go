package orders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/backoffice/internal/masterdata/products"
	"github.com/odyssey-erp/backoffice/internal/notify"
	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/pricing"
	"github.com/odyssey-erp/backoffice/internal/tax"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Create(ctx context.Context, order Order) (Order, error)
	Get(ctx context.Context, id int64) (Order, error)
	List(ctx context.Context, status Status, limit, offset int) ([]Order, int, error)
	ListPending(ctx context.Context) ([]Order, error)
}

// Catalog resolves product details for order entry.
type Catalog interface {
	Lookup(ctx context.Context, code string) (products.Product, error)
}

// Notifier sends the order confirmation.
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, in notify.OrderConfirmation) error
}

// Service orchestrates customer orders.
type Service struct {
	repo      RepositoryPort
	catalog   Catalog
	notifier  Notifier
	validator *validator.Validate
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs the order service. catalog may be nil, in which case every item must be fully specified.
func NewService(repo RepositoryPort, catalog Catalog, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, catalog: catalog, notifier: notifier, validator: httpx.NewValidator(), logger: logger, now: time.Now}
}

// CreateInput is the order entry payload.
type CreateInput struct {
	CustomerName  string      `json:"customer_name" validate:"required,max=200"`
	CustomerEmail string      `json:"customer_email" validate:"required,email"`
	Items         []ItemInput `json:"items" validate:"required,min=1,dive"`
}

// ItemInput is one requested line. Zero UnitPrice picks the catalog tier price for the quantity.
type ItemInput struct {
	ProductCode string     `json:"product_code" validate:"required"`
	ProductName string     `json:"product_name"`
	Supplier    string     `json:"supplier"`
	Category    string     `json:"category"`
	Quantity    float64    `json:"quantity" validate:"gt=0"`
	UnitPrice   float64    `json:"unit_price" validate:"gte=0"`
	TaxRate     *tax.Class `json:"tax_rate"`
}

// Create stores a pending order and emails the confirmation. When the email fails the stored
// order is still returned together with an error wrapping ErrConfirmationNotSent.
func (s *Service) Create(ctx context.Context, input CreateInput) (Order, error) {
	if err := s.validator.Struct(input); err != nil {
		return Order{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	items := make([]Item, 0, len(input.Items))
	for i, in := range input.Items {
		item, err := s.resolve(ctx, in)
		if err != nil {
			return Order{}, fmt.Errorf("%w: item %d: %w", ErrValidation, i+1, err)
		}
		items = append(items, item)
	}
	order := Order{
		Number:        generateNumber("ORD"),
		CustomerName:  strings.TrimSpace(input.CustomerName),
		CustomerEmail: strings.TrimSpace(input.CustomerEmail),
		Status:        StatusPending,
		Items:         items,
		CreatedAt:     s.now(),
	}
	summary, err := tax.Aggregate(order.LineItems())
	if err != nil {
		return Order{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	order.Subtotal = summary.Subtotal
	order.TaxAmount = summary.TaxAmount
	order.TotalAmount = summary.TotalAmount

	created, err := s.repo.Create(ctx, order)
	if err != nil {
		return Order{}, err
	}
	s.logger.Info("order created", slog.String("number", created.Number), slog.Int("items", len(created.Items)))

	if err := s.sendConfirmation(ctx, created, summary); err != nil {
		s.logger.Error("order confirmation failed", slog.String("number", created.Number), slog.Any("error", err))
		return created, fmt.Errorf("%w: %w", ErrConfirmationNotSent, err)
	}
	return created, nil
}

func (s *Service) resolve(ctx context.Context, in ItemInput) (Item, error) {
	item := Item{
		ProductCode: strings.ToUpper(strings.TrimSpace(in.ProductCode)),
		ProductName: strings.TrimSpace(in.ProductName),
		Supplier:    strings.ToUpper(strings.TrimSpace(in.Supplier)),
		Category:    strings.TrimSpace(in.Category),
		Quantity:    in.Quantity,
		UnitPrice:   in.UnitPrice,
	}
	if in.TaxRate != nil {
		item.Class = *in.TaxRate
	}
	if s.catalog != nil {
		p, err := s.catalog.Lookup(ctx, item.ProductCode)
		switch {
		case err == nil:
			item.ProductName = firstNonEmpty(item.ProductName, p.Name)
			item.Supplier = firstNonEmpty(item.Supplier, p.Supplier)
			item.Category = firstNonEmpty(item.Category, p.Category)
			if in.TaxRate == nil {
				item.Class = p.VATRate
			}
			if item.UnitPrice == 0 {
				tier, ok := pricing.Select(p.PricingTiers, int(math.Ceil(item.Quantity)))
				if !ok {
					return Item{}, fmt.Errorf("no pricing tier for quantity %g of %s", item.Quantity, item.ProductCode)
				}
				item.UnitPrice = tier.SellingPriceInclVAT
			}
		case errors.Is(err, httpx.ErrNotFound):
		default:
			return Item{}, err
		}
	}
	if item.Supplier == "" || item.Category == "" {
		return Item{}, fmt.Errorf("supplier and category required for %s", item.ProductCode)
	}
	if item.ProductName == "" {
		item.ProductName = item.ProductCode
	}
	return item, nil
}

func (s *Service) sendConfirmation(ctx context.Context, order Order, summary tax.Summary) error {
	if s.notifier == nil {
		return errors.New("notifier not configured")
	}
	lines := make([]notify.OrderLine, 0, len(summary.Lines))
	for _, l := range summary.Lines {
		lines = append(lines, notify.OrderLine{Name: l.ProductName, Quantity: l.Quantity, UnitPrice: l.UnitPriceInclVAT, Total: l.ItemTotal})
	}
	return s.notifier.SendOrderConfirmation(ctx, notify.OrderConfirmation{
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		OrderNumber:   order.Number,
		Lines:         lines,
		Subtotal:      summary.Subtotal,
		Tax:           summary.TaxAmount,
		Total:         summary.TotalAmount,
	})
}

// Get returns one order.
func (s *Service) Get(ctx context.Context, id int64) (Order, error) {
	if id <= 0 {
		return Order{}, ErrNotFound
	}
	return s.repo.Get(ctx, id)
}

// List returns orders filtered by status.
func (s *Service) List(ctx context.Context, status Status, limit, offset int) ([]Order, int, error) {
	switch status {
	case "", StatusPending, StatusProcessed:
	default:
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	return s.repo.List(ctx, status, limit, offset)
}

// ListPending returns orders awaiting purchasing.
func (s *Service) ListPending(ctx context.Context) ([]Order, error) {
	return s.repo.ListPending(ctx)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
