package suppliers

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
	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
)

type memorySupplierRepo struct {
	items  map[int64]Supplier
	nextID int64
}

func newMemorySupplierRepo() *memorySupplierRepo {
	return &memorySupplierRepo{items: map[int64]Supplier{}}
}

func (r *memorySupplierRepo) List(ctx context.Context, filters shared.ListFilters) ([]Supplier, int, error) {
	var out []Supplier
	for id := int64(1); id <= r.nextID; id++ {
		if s, ok := r.items[id]; ok {
			out = append(out, s)
		}
	}
	return out, len(out), nil
}

func (r *memorySupplierRepo) Get(ctx context.Context, id int64) (Supplier, error) {
	s, ok := r.items[id]
	if !ok {
		return Supplier{}, shared.ErrNotFound
	}
	return s, nil
}

func (r *memorySupplierRepo) GetByCode(ctx context.Context, code string) (Supplier, error) {
	for _, s := range r.items {
		if s.Code == code {
			return s, nil
		}
	}
	return Supplier{}, shared.ErrNotFound
}

func (r *memorySupplierRepo) Create(ctx context.Context, s Supplier) (Supplier, error) {
	if _, err := r.GetByCode(ctx, s.Code); err == nil {
		return Supplier{}, shared.ErrDuplicate
	}
	r.nextID++
	s.ID = r.nextID
	r.items[s.ID] = s
	return s, nil
}

func (r *memorySupplierRepo) Update(ctx context.Context, id int64, s Supplier) error {
	if _, ok := r.items[id]; !ok {
		return shared.ErrNotFound
	}
	s.ID = id
	r.items[id] = s
	return nil
}

func (r *memorySupplierRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := r.items[id]; !ok {
		return shared.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func TestServiceCreateNormalisesAndLooksUpContact(t *testing.T) {
	svc := NewService(newMemorySupplierRepo())
	ctx := context.Background()

	created, err := svc.Create(ctx, SupplierForm{Code: " mumias ", Name: "Mumias Sugar", Email: "orders@mumias.example.com"})
	require.NoError(t, err)
	require.Equal(t, "MUMIAS", created.Code)

	contact, err := svc.Contact(ctx, "mumias")
	require.NoError(t, err)
	require.Equal(t, "orders@mumias.example.com", contact.Email)

	_, err = svc.Create(ctx, SupplierForm{Code: "MUMIAS", Name: "Dup", Email: "x@example.com"})
	require.ErrorIs(t, err, shared.ErrDuplicate)

	_, err = svc.Contact(ctx, "unknown")
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestServiceRejectsInvalidForm(t *testing.T) {
	svc := NewService(newMemorySupplierRepo())
	_, err := svc.Create(context.Background(), SupplierForm{Code: "A", Name: "A", Email: "not-email"})
	require.ErrorIs(t, err, httpx.ErrValidation)
	require.Contains(t, httpx.Message(err), "email must be a valid email")
}

func TestHandlerCreateAndDelete(t *testing.T) {
	h := NewHandler(slog.Default(), NewService(newMemorySupplierRepo()))
	r := chi.NewRouter()
	h.MountRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"bidco","name":"Bidco","email":"po@bidco.example.com"}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var env struct {
		Success bool     `json:"success"`
		Data    Supplier `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.True(t, env.Success)
	require.Equal(t, "BIDCO", env.Data.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/1", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
