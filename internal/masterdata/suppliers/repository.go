package suppliers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/backoffice/internal/masterdata/shared"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
)

// Repository persists suppliers.
type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Supplier, int, error)
	Get(ctx context.Context, id int64) (Supplier, error)
	GetByCode(ctx context.Context, code string) (Supplier, error)
	Create(ctx context.Context, supplier Supplier) (Supplier, error)
	Update(ctx context.Context, id int64, supplier Supplier) error
	Delete(ctx context.Context, id int64) error
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository returns the Postgres repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const selectSupplier = `SELECT id, code, name, email, phone, address, created_at, updated_at FROM suppliers`

// supplierRow adds the window count used to page without a second query.
type supplierRow struct {
	Supplier
	Total int `db:"total"`
}

func (r *pgRepository) List(ctx context.Context, filters shared.ListFilters) ([]Supplier, int, error) {
	query, args := listQuery(filters)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list suppliers: %w", err)
	}
	found, err := pgx.CollectRows(rows, pgx.RowToStructByName[supplierRow])
	if err != nil {
		return nil, 0, fmt.Errorf("scan suppliers: %w", err)
	}
	out := make([]Supplier, len(found))
	total := 0
	for i, row := range found {
		out[i] = row.Supplier
		total = row.Total
	}
	if len(found) == 0 && filters.Page > 1 {
		// past the last page the window count is gone
		query, args := countQuery(filters)
		if err := r.pool.QueryRow(ctx, query, args...).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("count suppliers: %w", err)
		}
	}
	return out, total, nil
}

func listQuery(filters shared.ListFilters) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT id, code, name, email, phone, address, created_at, updated_at, COUNT(*) OVER() AS total FROM suppliers`)
	args := searchArgs(filters, &b)
	b.WriteString(" ORDER BY " + sortOrder(filters.SortBy, filters.SortDir) + ", id")
	if filters.Limit > 0 {
		args = append(args, filters.Limit, filters.Offset())
		fmt.Fprintf(&b, " LIMIT $%d OFFSET $%d", len(args)-1, len(args))
	}
	return b.String(), args
}

func countQuery(filters shared.ListFilters) (string, []any) {
	var b strings.Builder
	b.WriteString(`SELECT COUNT(*) FROM suppliers`)
	args := searchArgs(filters, &b)
	return b.String(), args
}

func searchArgs(filters shared.ListFilters, b *strings.Builder) []any {
	if filters.Search == "" {
		return nil
	}
	b.WriteString(` WHERE name ILIKE $1 OR code ILIKE $1`)
	return []any{"%" + filters.Search + "%"}
}

func (r *pgRepository) Get(ctx context.Context, id int64) (Supplier, error) {
	return r.one(ctx, selectSupplier+` WHERE id = $1`, id)
}

func (r *pgRepository) GetByCode(ctx context.Context, code string) (Supplier, error) {
	return r.one(ctx, selectSupplier+` WHERE code = $1`, code)
}

func (r *pgRepository) one(ctx context.Context, query string, arg any) (Supplier, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return Supplier{}, fmt.Errorf("get supplier: %w", err)
	}
	s, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByName[Supplier])
	if db.IsNoRows(err) {
		return Supplier{}, shared.ErrNotFound
	}
	return s, err
}

func (r *pgRepository) Create(ctx context.Context, supplier Supplier) (Supplier, error) {
	now := time.Now().UTC()
	err := r.pool.QueryRow(ctx, `
		INSERT INTO suppliers (code, name, email, phone, address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id`,
		supplier.Code, supplier.Name, supplier.Email, supplier.Phone, supplier.Address, now,
	).Scan(&supplier.ID)
	if db.IsUniqueViolation(err) {
		return Supplier{}, shared.ErrDuplicate
	}
	if err != nil {
		return Supplier{}, fmt.Errorf("insert supplier: %w", err)
	}
	supplier.CreatedAt, supplier.UpdatedAt = now, now
	return supplier, nil
}

func (r *pgRepository) Update(ctx context.Context, id int64, supplier Supplier) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE suppliers
		SET code = $1, name = $2, email = $3, phone = $4, address = $5, updated_at = $6
		WHERE id = $7`,
		supplier.Code, supplier.Name, supplier.Email, supplier.Phone, supplier.Address, time.Now().UTC(), id,
	)
	return mutation("update supplier", tag.RowsAffected(), err)
}

func (r *pgRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM suppliers WHERE id = $1`, id)
	return mutation("delete supplier", tag.RowsAffected(), err)
}

func mutation(op string, affected int64, err error) error {
	switch {
	case db.IsUniqueViolation(err):
		return shared.ErrDuplicate
	case db.IsForeignKeyViolation(err):
		return shared.ErrInUse
	case err != nil:
		return fmt.Errorf("%s: %w", op, err)
	case affected == 0:
		return shared.ErrNotFound
	}
	return nil
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if strings.EqualFold(sortDir, shared.SortDesc) {
		dir = "DESC"
	}
	column := "name"
	switch sortBy {
	case "code", "created_at", "email":
		column = sortBy
	}
	return column + " " + dir
}
