package orders

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	mdshared "github.com/odyssey-erp/backoffice/internal/masterdata/shared"
	"github.com/odyssey-erp/backoffice/internal/masterdata/products"
	"github.com/odyssey-erp/backoffice/internal/notify"
	"github.com/odyssey-erp/backoffice/internal/pricing"
	"github.com/odyssey-erp/backoffice/internal/tax"
)

type memoryOrderRepo struct {
	orders []Order
}

func (r *memoryOrderRepo) Create(ctx context.Context, o Order) (Order, error) {
	o.ID = int64(len(r.orders) + 1)
	r.orders = append(r.orders, o)
	return o, nil
}

func (r *memoryOrderRepo) Get(ctx context.Context, id int64) (Order, error) {
	for _, o := range r.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return Order{}, ErrNotFound
}

func (r *memoryOrderRepo) List(ctx context.Context, status Status, limit, offset int) ([]Order, int, error) {
	var out []Order
	for _, o := range r.orders {
		if status == "" || o.Status == status {
			out = append(out, o)
		}
	}
	return out, len(out), nil
}

func (r *memoryOrderRepo) ListPending(ctx context.Context) ([]Order, error) {
	out, _, err := r.List(ctx, StatusPending, 0, 0)
	return out, err
}

type memoryCatalog map[string]products.Product

func (c memoryCatalog) Lookup(ctx context.Context, code string) (products.Product, error) {
	p, ok := c[code]
	if !ok {
		return products.Product{}, mdshared.ErrNotFound
	}
	return p, nil
}

func newTestService(sender notify.Sender) (*Service, *memoryOrderRepo) {
	repo := &memoryOrderRepo{}
	catalog := memoryCatalog{"SUG": {
		Code: "SUG", Name: "Sugar 2kg", Supplier: "MUMIAS", Category: "Groceries",
		VATRate: tax.Standard(16),
		PricingTiers: []pricing.Tier{
			{MinQty: 1, MaxQty: 9, SellingPriceInclVAT: 165},
			{MinQty: 10, SellingPriceInclVAT: 150},
		},
	}}
	n := notify.NewNotifier(sender, notify.NotifierConfig{FrontendURL: "https://app.example.com"}, slog.Default())
	return NewService(repo, catalog, n, slog.Default()), repo
}

func TestCreateResolvesCatalogAndTotals(t *testing.T) {
	sender := notify.NewMemorySender()
	svc, repo := newTestService(sender)

	order, err := svc.Create(context.Background(), CreateInput{
		CustomerName:  "Achieng",
		CustomerEmail: "achieng@example.com",
		Items:         []ItemInput{{ProductCode: "sug", Quantity: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, order.Status)
	require.Len(t, repo.orders, 1)

	item := order.Items[0]
	require.Equal(t, "Sugar 2kg", item.ProductName)
	require.Equal(t, "MUMIAS", item.Supplier)
	require.Equal(t, 165.0, item.UnitPrice)
	require.Equal(t, 142.24, order.Subtotal)
	require.Equal(t, 22.76, order.TaxAmount)
	require.Equal(t, 165.0, order.TotalAmount)

	msgs := sender.Messages()
	require.Len(t, msgs, 1)
	require.Contains(t, msgs[0].HTML, "KES 165.00")
}

func TestCreatePicksTierByQuantity(t *testing.T) {
	svc, _ := newTestService(notify.NewMemorySender())
	order, err := svc.Create(context.Background(), CreateInput{
		CustomerName:  "Achieng",
		CustomerEmail: "achieng@example.com",
		Items:         []ItemInput{{ProductCode: "SUG", Quantity: 12}},
	})
	require.NoError(t, err)
	require.Equal(t, 150.0, order.Items[0].UnitPrice)
	require.Equal(t, 1800.0, order.TotalAmount)
}

func TestCreateKeepsOrderWhenEmailFails(t *testing.T) {
	sender := notify.NewMemorySender()
	sender.Err = errors.New("smtp down")
	svc, repo := newTestService(sender)

	order, err := svc.Create(context.Background(), CreateInput{
		CustomerName:  "Achieng",
		CustomerEmail: "achieng@example.com",
		Items:         []ItemInput{{ProductCode: "SUG", Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrConfirmationNotSent)
	require.NotZero(t, order.ID)
	require.Len(t, repo.orders, 1)
}

func TestCreateValidation(t *testing.T) {
	svc, repo := newTestService(notify.NewMemorySender())

	_, err := svc.Create(context.Background(), CreateInput{CustomerName: "A", CustomerEmail: "bad"})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(context.Background(), CreateInput{
		CustomerName:  "A",
		CustomerEmail: "a@example.com",
		Items:         []ItemInput{{ProductCode: "UNKNOWN", Quantity: 1, UnitPrice: 10}},
	})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.Create(context.Background(), CreateInput{
		CustomerName:  "A",
		CustomerEmail: "a@example.com",
		Items:         []ItemInput{{ProductCode: "SUG", Quantity: 0}},
	})
	require.ErrorIs(t, err, ErrValidation)
	require.Empty(t, repo.orders)
}

func TestHandlerCreateReportsEmailWarning(t *testing.T) {
	sender := notify.NewMemorySender()
	sender.Err = errors.New("smtp down")
	svc, _ := newTestService(sender)
	r := chi.NewRouter()
	NewHandler(slog.Default(), svc).MountRoutes(r)

	body := `{"customer_name":"Achieng","customer_email":"achieng@example.com","items":[{"product_code":"SUG","quantity":2,"tax_rate":"exempt"}]}`
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var env struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
		Data    Order  `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.True(t, env.Success)
	require.Contains(t, env.Message, "confirmation email")
	require.Equal(t, tax.KindExempt, env.Data.Items[0].Class.Kind())
	require.Zero(t, env.Data.TaxAmount)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?status=bogus", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
