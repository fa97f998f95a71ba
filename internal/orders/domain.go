// Package orders stores customer orders and feeds pending ones to purchasing.
package orders

import (
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/tax"
)

// Status is the order lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
)

// Item is one ordered product. UnitPrice is inclusive of VAT.
type Item struct {
	ID          int64     `json:"id"`
	ProductCode string    `json:"product_code"`
	ProductName string    `json:"product_name"`
	Supplier    string    `json:"supplier"`
	Category    string    `json:"category"`
	Quantity    float64   `json:"quantity"`
	UnitPrice   float64   `json:"unit_price"`
	Class       tax.Class `json:"tax_rate"`
}

// Order is a customer order.
type Order struct {
	ID            int64      `json:"id"`
	Number        string     `json:"order_number"`
	CustomerName  string     `json:"customer_name"`
	CustomerEmail string     `json:"customer_email"`
	Status        Status     `json:"status"`
	Items         []Item     `json:"items"`
	Subtotal      float64    `json:"subtotal"`
	TaxAmount     float64    `json:"tax_amount"`
	TotalAmount   float64    `json:"total_amount"`
	CreatedAt     time.Time  `json:"created_at"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
}

// LineItems converts order items for the tax aggregator.
func (o Order) LineItems() []tax.LineItem {
	out := make([]tax.LineItem, 0, len(o.Items))
	for _, it := range o.Items {
		out = append(out, tax.LineItem{
			ProductCode:      it.ProductCode,
			ProductName:      it.ProductName,
			Quantity:         it.Quantity,
			UnitPriceInclVAT: it.UnitPrice,
			Class:            it.Class,
		})
	}
	return out
}

var (
	// ErrNotFound indicates the order does not exist.
	ErrNotFound = fmt.Errorf("orders: %w", httpx.ErrNotFound)
	// ErrValidation indicates invalid input.
	ErrValidation = fmt.Errorf("orders: %w", httpx.ErrValidation)
	// ErrConfirmationNotSent is returned alongside a stored order whose email failed.
	ErrConfirmationNotSent = errors.New("orders: confirmation email not sent")
)
