package invoices

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/orders"
	"github.com/odyssey-erp/backoffice/internal/tax"
)

type memoryInvoiceRepo struct {
	items   []Invoice
	ordered map[int64]bool
}

func (r *memoryInvoiceRepo) Create(ctx context.Context, inv Invoice) (Invoice, error) {
	if inv.OrderID != nil {
		if r.ordered[*inv.OrderID] {
			return Invoice{}, ErrAlreadyInvoiced
		}
		r.ordered[*inv.OrderID] = true
	}
	inv.ID = int64(len(r.items) + 1)
	inv.Number = fmt.Sprintf("INV-202603-%05d", inv.ID)
	r.items = append(r.items, inv)
	return inv, nil
}

func (r *memoryInvoiceRepo) Get(ctx context.Context, id int64) (Invoice, error) {
	for _, inv := range r.items {
		if inv.ID == id {
			inv.Display = Display{}
			return inv, nil
		}
	}
	return Invoice{}, ErrNotFound
}

func (r *memoryInvoiceRepo) List(ctx context.Context, limit, offset int) ([]Invoice, int, error) {
	return r.items, len(r.items), nil
}

type memoryOrders map[int64]orders.Order

func (m memoryOrders) Get(ctx context.Context, id int64) (orders.Order, error) {
	o, ok := m[id]
	if !ok {
		return orders.Order{}, orders.ErrNotFound
	}
	return o, nil
}

func newTestService() (*Service, *memoryInvoiceRepo) {
	repo := &memoryInvoiceRepo{ordered: map[int64]bool{}}
	src := memoryOrders{7: {
		ID: 7, CustomerName: "Amina", CustomerEmail: "amina@example.com",
		Items: []orders.Item{{ProductCode: "SUG", ProductName: "Sugar", Quantity: 1, UnitPrice: 165, Class: tax.Standard(16)}},
	}}
	return NewService(repo, src, nil, slog.Default()), repo
}

func TestPreviewFormatsKES(t *testing.T) {
	svc, _ := newTestService()
	exempt := tax.Exempt()
	vat16 := tax.Standard(tax.RateStandard)
	inv, err := svc.Preview(PreviewInput{Items: []LineInput{
		{ProductName: "Sugar", Quantity: 1, UnitPrice: 165, TaxRate: &vat16},
		{ProductName: "Maize flour", Quantity: 2, UnitPrice: 500, TaxRate: &exempt},
	}})
	require.NoError(t, err)
	require.Equal(t, 1142.24, inv.Summary.Subtotal)
	require.Equal(t, 22.76, inv.Summary.TaxAmount)
	require.Equal(t, "KES 1,165.00", inv.Display.TotalAmount)
	require.Equal(t, "KES 22.76", inv.Display.Buckets[tax.Bucket16].TaxAmount)
	require.Equal(t, "KES 1,000.00", inv.Display.Buckets[tax.BucketExempt].TotalAmount)
	require.Len(t, inv.Display.Buckets, len(tax.BucketOrder))
}

func TestPreviewMissingRateIsZeroRated(t *testing.T) {
	svc, _ := newTestService()
	var in PreviewInput
	require.NoError(t, json.Unmarshal([]byte(`{"items":[{"product_name":"Sugar","quantity":1,"unit_price":116}]}`), &in))

	inv, err := svc.Preview(in)
	require.NoError(t, err)
	require.Zero(t, inv.Summary.TaxAmount)
	require.Equal(t, tax.Bucket{TaxableAmount: 116, TotalAmount: 116}, inv.Summary.Buckets[tax.Bucket0])
	require.Equal(t, tax.Bucket{}, inv.Summary.Buckets[tax.Bucket16])
}

func TestPreviewValidation(t *testing.T) {
	svc, _ := newTestService()
	_, err := svc.Preview(PreviewInput{})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Preview(PreviewInput{Items: []LineInput{{ProductName: "Sugar", Quantity: -1, UnitPrice: 10}}})
	require.ErrorIs(t, err, ErrValidation)
}

func TestCreateAndGet(t *testing.T) {
	svc, repo := newTestService()
	inv, err := svc.Create(context.Background(), CreateInput{
		CustomerName: "Juma",
		Items:        []LineInput{{ProductName: "Sugar", Quantity: 2, UnitPrice: 165}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), inv.ID)
	require.False(t, inv.CreatedAt.IsZero())
	require.Len(t, repo.items, 1)

	got, err := svc.Get(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Equal(t, "KES 330.00", got.Display.TotalAmount)

	_, err = svc.Get(context.Background(), 42)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateFromOrderOnce(t *testing.T) {
	svc, _ := newTestService()
	inv, err := svc.CreateFromOrder(context.Background(), 7)
	require.NoError(t, err)
	require.Equal(t, "Amina", inv.CustomerName)
	require.Equal(t, 165.0, inv.Summary.TotalAmount)
	require.NotNil(t, inv.OrderID)

	_, err = svc.CreateFromOrder(context.Background(), 7)
	require.ErrorIs(t, err, ErrAlreadyInvoiced)

	_, err = svc.CreateFromOrder(context.Background(), 8)
	require.ErrorIs(t, err, orders.ErrNotFound)
}

func TestHandlerPreviewEnvelope(t *testing.T) {
	svc, _ := newTestService()
	r := chi.NewRouter()
	NewHandler(slog.Default(), svc).MountRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/preview", strings.NewReader(`{"items":[{"product_name":"Sugar","quantity":1,"unit_price":165,"tax_rate":16}]}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Success bool    `json:"success"`
		Data    Invoice `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.Success)
	require.Equal(t, "KES 165.00", body.Data.Display.TotalAmount)

	req = httptest.NewRequest(http.MethodPost, "/preview", strings.NewReader(`{"items":[]}`))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
