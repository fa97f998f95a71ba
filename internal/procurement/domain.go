package procurement

import (
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/tax"
)

// Purchase order lifecycle statuses.
type POStatus string

const (
	POStatusOpen              POStatus = "open"
	POStatusPartiallyReceived POStatus = "partially_received"
	POStatusReceived          POStatus = "received"
	POStatusCancelled         POStatus = "cancelled"
)

// POSource records how a purchase order came to exist.
type POSource string

const (
	SourceBatch  POSource = "batch"
	SourceManual POSource = "manual"
)

// LineStatus is the receipt state of a GRN line or of a whole GRN.
type LineStatus string

const (
	LinePending  LineStatus = "pending"
	LinePartial  LineStatus = "partial"
	LineComplete LineStatus = "complete"
)

// POLine is one product on a purchase order. VAT is added on top of UnitPrice. Batch lines
// carry the customer order's unit price unchanged; manual lines take the price as entered.
type POLine struct {
	ID          int64     `json:"id,omitempty"`
	ProductCode string    `json:"product_code"`
	ProductName string    `json:"product_name"`
	Quantity    float64   `json:"quantity"`
	UnitPrice   float64   `json:"unit_price"`
	TotalValue  float64   `json:"total_value"`
	Class       tax.Class `json:"tax_rate"`
	TaxAmount   float64   `json:"tax_amount"`
	Amount      float64   `json:"amount"`
}

// Totals are the money totals of a purchase order.
type Totals struct {
	Subtotal      float64 `json:"subtotal"`
	TotalTax      float64 `json:"total_tax"`
	TotalDiscount float64 `json:"total_discount"`
	GrandTotal    float64 `json:"grand_total"`
}

// PurchaseOrderDraft is a purchase order before it is stored.
type PurchaseOrderDraft struct {
	Number         string    `json:"po_number"`
	Supplier       string    `json:"supplier"`
	Category       string    `json:"category"`
	DueDate        time.Time `json:"due_date"`
	Lines          []POLine  `json:"items"`
	Totals         Totals    `json:"totals"`
	SourceOrderIDs []int64   `json:"source_order_ids,omitempty"`
}

// PurchaseOrder is a stored purchase order.
type PurchaseOrder struct {
	ID int64 `json:"id"`
	PurchaseOrderDraft
	Status     POStatus  `json:"status"`
	Source     POSource  `json:"source"`
	EmailSent  bool      `json:"email_sent"`
	EmailError string    `json:"email_error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// GRNLine is the receipt of one purchase order line.
type GRNLine struct {
	ProductCode      string     `json:"product_code"`
	ProductName      string     `json:"product_name"`
	OrderedQuantity  float64    `json:"ordered_quantity"`
	ReceivedQuantity float64    `json:"received_quantity"`
	PendingQuantity  float64    `json:"pending_quantity"`
	UnitPrice        float64    `json:"unit_price"`
	ReceivedValue    float64    `json:"received_value"`
	Status           LineStatus `json:"status"`
}

// GRNTotals sums quantities and value across a GRN.
type GRNTotals struct {
	OrderedQuantity  float64 `json:"ordered_quantity"`
	ReceivedQuantity float64 `json:"received_quantity"`
	PendingQuantity  float64 `json:"pending_quantity"`
	ReceivedValue    float64 `json:"received_value"`
}

// GRNRecord is a goods received note reconciled against a purchase order.
type GRNRecord struct {
	ID         int64      `json:"id,omitempty"`
	Number     string     `json:"grn_number"`
	POID       int64      `json:"purchase_order_id"`
	PONumber   string     `json:"po_number"`
	Supplier   string     `json:"supplier"`
	Lines      []GRNLine  `json:"items"`
	Totals     GRNTotals  `json:"totals"`
	Status     LineStatus `json:"status"`
	ReceivedAt time.Time  `json:"received_at"`
	Note       string     `json:"note,omitempty"`
}

// ListFilters narrows purchase order listings.
type ListFilters struct {
	Status    POStatus
	Supplier  string
	EmailSent *bool
	Search    string
}

var (
	// ErrInvalidState occurs when action violates status workflow.
	ErrInvalidState = fmt.Errorf("procurement: invalid state transition: %w", httpx.ErrConflict)
	// ErrNotFound indicates record missing.
	ErrNotFound = fmt.Errorf("procurement: %w", httpx.ErrNotFound)
	// ErrValidation indicates invalid input.
	ErrValidation = fmt.Errorf("procurement: %w", httpx.ErrValidation)
	// ErrBatchInProgress is returned when another process holds the batch lock.
	ErrBatchInProgress = fmt.Errorf("procurement: batch already running: %w", httpx.ErrConflict)
	// ErrBatchConflict is returned when source orders changed under the batch; nothing was committed.
	ErrBatchConflict = fmt.Errorf("procurement: pending orders changed during batch: %w", httpx.ErrConflict)
	// ErrDuplicateGRN is returned when a GRN number was already posted.
	ErrDuplicateGRN = fmt.Errorf("procurement: goods receipt already posted: %w", httpx.ErrDuplicate)
	// ErrEmailNotSent accompanies a stored purchase order whose supplier email failed.
	ErrEmailNotSent = errors.New("procurement: supplier email not sent")
)
