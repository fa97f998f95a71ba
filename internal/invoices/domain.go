// Package invoices stores customer tax invoices built by the VAT aggregator.
package invoices

import (
	"fmt"
	"time"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/platform/money"
	"github.com/odyssey-erp/backoffice/internal/tax"
)

// Invoice is a stored tax invoice. Lines and buckets come from tax.Aggregate.
type Invoice struct {
	ID            int64       `json:"id,omitempty"`
	Number        string      `json:"invoice_number,omitempty"`
	OrderID       *int64      `json:"order_id,omitempty"`
	CustomerName  string      `json:"customer_name"`
	CustomerEmail string      `json:"customer_email,omitempty"`
	Summary       tax.Summary `json:"summary"`
	Display       Display     `json:"display"`
	CreatedAt     time.Time   `json:"created_at,omitempty"`
}

// DisplayBucket is a bucket with amounts formatted in KES.
type DisplayBucket struct {
	TaxableAmount string `json:"taxable_amount"`
	TaxAmount     string `json:"tax_amount"`
	TotalAmount   string `json:"total_amount"`
}

// Display holds the KES renderings of the invoice totals.
type Display struct {
	Subtotal    string                          `json:"subtotal"`
	TaxAmount   string                          `json:"tax_amount"`
	TotalAmount string                          `json:"total_amount"`
	Buckets     map[tax.BucketKey]DisplayBucket `json:"buckets"`
}

// NewDisplay formats s for presentation.
func NewDisplay(s tax.Summary) Display {
	d := Display{
		Subtotal:    money.FormatKES(s.Subtotal),
		TaxAmount:   money.FormatKES(s.TaxAmount),
		TotalAmount: money.FormatKES(s.TotalAmount),
		Buckets:     make(map[tax.BucketKey]DisplayBucket, len(s.Buckets)),
	}
	for key, b := range s.Buckets {
		d.Buckets[key] = DisplayBucket{
			TaxableAmount: money.FormatKES(b.TaxableAmount),
			TaxAmount:     money.FormatKES(b.TaxAmount),
			TotalAmount:   money.FormatKES(b.TotalAmount),
		}
	}
	return d
}

var (
	// ErrNotFound indicates record missing.
	ErrNotFound = fmt.Errorf("invoices: %w", httpx.ErrNotFound)
	// ErrValidation indicates invalid input.
	ErrValidation = fmt.Errorf("invoices: %w", httpx.ErrValidation)
	// ErrAlreadyInvoiced is returned when an order already has an invoice.
	ErrAlreadyInvoiced = fmt.Errorf("invoices: order already invoiced: %w", httpx.ErrDuplicate)
)
