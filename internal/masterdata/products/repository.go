package products

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/backoffice/internal/masterdata/shared"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/pricing"
	"github.com/odyssey-erp/backoffice/internal/tax"
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error)
	Get(ctx context.Context, id int64) (Product, error)
	GetByCode(ctx context.Context, code string) (Product, error)
	Create(ctx context.Context, product Product) (Product, error)
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const productColumns = `id, product_name, product_code, category, supplier_code, cost_price, vat_rate, cashback_rate,
	pricing_tiers, stock_units, alert_quantity, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		n := strconv.Itoa(len(args))
		where += ` AND (product_name ILIKE $` + n + ` OR product_code ILIKE $` + n + `)`
	}
	if filters.Category != "" {
		args = append(args, filters.Category)
		where += ` AND category = $` + strconv.Itoa(len(args))
	}
	if filters.Supplier != "" {
		args = append(args, filters.Supplier)
		where += ` AND supplier_code = $` + strconv.Itoa(len(args))
	}
	if filters.LowStock {
		where += ` AND stock_units <= alert_quantity`
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + productColumns + ` FROM products` + where + ` ORDER BY ` + sortOrder(filters.SortBy, filters.SortDir)
	if filters.Limit > 0 {
		n := len(args)
		query += ` LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
		args = append(args, filters.Limit, filters.Offset())
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return Product{}, shared.ErrNotFound
	}
	return p, err
}

func (r *repository) GetByCode(ctx context.Context, code string) (Product, error) {
	p, err := scanProduct(r.db.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE product_code = $1`, code))
	if db.IsNoRows(err) {
		return Product{}, shared.ErrNotFound
	}
	return p, err
}

func (r *repository) Create(ctx context.Context, product Product) (Product, error) {
	query := `INSERT INTO products (product_name, product_code, category, supplier_code, cost_price, vat_rate, cashback_rate,
	pricing_tiers, stock_units, alert_quantity, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11) RETURNING id`
	now := time.Now()
	err := r.db.QueryRow(ctx, query,
		product.Name, product.Code, product.Category, product.Supplier, product.CostPrice, product.VATRate.Percent(),
		product.CashbackRate, product.PricingTiers, product.StockUnits, product.AlertQuantity, now,
	).Scan(&product.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return Product{}, fmt.Errorf("%w: product_code %s already exists", shared.ErrDuplicate, product.Code)
		}
		return Product{}, err
	}
	product.CreatedAt = now
	product.UpdatedAt = now
	return product, nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// AddStockInTx increments stock_units for code inside the caller's transaction.
func AddStockInTx(ctx context.Context, tx pgx.Tx, code string, qty float64) error {
	tag, err := tx.Exec(ctx, `UPDATE products SET stock_units = stock_units + $1, updated_at = NOW() WHERE product_code = $2`, qty, code)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: product %s", shared.ErrNotFound, code)
	}
	return nil
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	var vat float64
	var tiers []pricing.Tier
	err := row.Scan(&p.ID, &p.Name, &p.Code, &p.Category, &p.Supplier, &p.CostPrice, &vat, &p.CashbackRate,
		&tiers, &p.StockUnits, &p.AlertQuantity, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return Product{}, err
	}
	p.VATRate = tax.FromPercent(vat)
	p.PricingTiers = tiers
	return p, nil
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == shared.SortDesc {
		dir = "DESC"
	}
	switch sortBy {
	case "code":
		return "product_code " + dir
	case "stock":
		return "stock_units " + dir
	case "created_at":
		return "created_at " + dir
	default:
		return "product_name " + dir
	}
}
