package products

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/backoffice/internal/masterdata/shared"
	"github.com/odyssey-erp/backoffice/internal/pricing"
	"github.com/odyssey-erp/backoffice/internal/tax"
)

type memoryProductRepo struct {
	items  []Product
	nextID int64
}

func (r *memoryProductRepo) List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
	var out []Product
	for _, p := range r.items {
		if filters.LowStock && !p.IsLowStock() {
			continue
		}
		out = append(out, p)
	}
	return out, len(out), nil
}

func (r *memoryProductRepo) Get(ctx context.Context, id int64) (Product, error) {
	for _, p := range r.items {
		if p.ID == id {
			return p, nil
		}
	}
	return Product{}, shared.ErrNotFound
}

func (r *memoryProductRepo) GetByCode(ctx context.Context, code string) (Product, error) {
	for _, p := range r.items {
		if p.Code == code {
			return p, nil
		}
	}
	return Product{}, shared.ErrNotFound
}

func (r *memoryProductRepo) Create(ctx context.Context, p Product) (Product, error) {
	if _, err := r.GetByCode(ctx, p.Code); err == nil {
		return Product{}, shared.ErrDuplicate
	}
	r.nextID++
	p.ID = r.nextID
	r.items = append(r.items, p)
	return p, nil
}

func (r *memoryProductRepo) Delete(ctx context.Context, id int64) error {
	for i, p := range r.items {
		if p.ID == id {
			r.items = append(r.items[:i], r.items[i+1:]...)
			return nil
		}
	}
	return shared.ErrNotFound
}

func sugarForm() ProductForm {
	return ProductForm{
		Name:         "Sugar 2kg",
		Code:         "sug-2",
		Category:     "Groceries",
		Supplier:     "mumias",
		CostPrice:    100,
		VATRate:      tax.Standard(tax.RateStandard),
		CashbackRate: 2,
		PricingTiers: []pricing.Tier{
			{MinQty: 1, MaxQty: 9, SellingPriceInclVAT: 174},
			{MinQty: 10, SellingPriceInclVAT: 145},
		},
		StockUnits:    5,
		AlertQuantity: 10,
	}
}

func TestCreateDerivesTierMetrics(t *testing.T) {
	svc := NewService(&memoryProductRepo{})
	view, err := svc.Create(context.Background(), sugarForm())
	require.NoError(t, err)
	require.Equal(t, "SUG-2", view.Code)
	require.Equal(t, "MUMIAS", view.Supplier)
	require.True(t, view.LowStock)
	require.Len(t, view.PricingTiers, 2)
	require.Equal(t, 150.0, view.PricingTiers[0].SellingPriceExclVAT)
	require.Equal(t, 50.0, view.PricingTiers[0].GPPercent)
	require.Equal(t, 3.48, view.PricingTiers[0].CashbackAmount)

	_, err = svc.Create(context.Background(), sugarForm())
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestCreateRejectsBadTiers(t *testing.T) {
	svc := NewService(&memoryProductRepo{})

	form := sugarForm()
	form.PricingTiers = []pricing.Tier{{MinQty: 1}, {MinQty: 5, MaxQty: 9}}
	_, err := svc.Create(context.Background(), form)
	require.ErrorIs(t, err, shared.ErrValidation)
	require.ErrorIs(t, err, pricing.ErrTierRange)

	form = sugarForm()
	form.PricingTiers = nil
	_, err = svc.Create(context.Background(), form)
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestPreviewHandlesZeroCost(t *testing.T) {
	svc := NewService(&memoryProductRepo{})
	metrics, err := svc.Preview(PreviewForm{VATRate: tax.Standard(16), PricingTiers: []pricing.Tier{{MinQty: 1, SellingPriceInclVAT: 116}}})
	require.NoError(t, err)
	require.Zero(t, metrics[0].GPPercent)
}

func TestHandlerEnvelope(t *testing.T) {
	h := NewHandler(slog.Default(), NewService(&memoryProductRepo{}))
	r := chi.NewRouter()
	h.MountRoutes(r)

	body := `{"product_name":"Sugar","product_code":"SUG","category":"Groceries","supplier":"MUMIAS","cost_price":100,
		"vat_rate":16,"cashback_rate":2,"pricing_tiers":[{"min_qty":1,"max_qty":0,"selling_price":174}],
		"stock_units":50,"alert_quantity":10}`
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var env struct {
		Success bool `json:"success"`
		Data    []struct {
			Code         string  `json:"product_code"`
			StockUnits   float64 `json:"stock_units"`
			LowStock     bool    `json:"low_stock"`
			VATRate      float64 `json:"vat_rate"`
			PricingTiers []struct {
				SellingPrice float64 `json:"selling_price"`
				NPPercent    float64 `json:"np_percent"`
			} `json:"pricing_tiers"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.True(t, env.Success)
	require.Len(t, env.Data, 1)
	require.Equal(t, "SUG", env.Data[0].Code)
	require.False(t, env.Data[0].LowStock)
	require.Equal(t, 16.0, env.Data[0].VATRate)
	require.Equal(t, 174.0, env.Data[0].PricingTiers[0].SellingPrice)
	require.Equal(t, 28.74, env.Data[0].PricingTiers[0].NPPercent)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/abc", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
