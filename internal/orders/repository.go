package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/tax"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts the order header and items in one transaction.
func (r *Repository) Create(ctx context.Context, order Order) (Order, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO customer_orders (number, customer_name, customer_email, status, subtotal, tax_amount, total_amount, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
			order.Number, order.CustomerName, order.CustomerEmail, string(order.Status), order.Subtotal, order.TaxAmount, order.TotalAmount, order.CreatedAt,
		).Scan(&order.ID)
		if err != nil {
			return err
		}
		for i := range order.Items {
			it := &order.Items[i]
			err := tx.QueryRow(ctx, `INSERT INTO customer_order_items (order_id, line_no, product_code, product_name, supplier_code, category, quantity, unit_price, tax_rate)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
				order.ID, i+1, it.ProductCode, it.ProductName, it.Supplier, it.Category, it.Quantity, it.UnitPrice, it.Class.Percent(),
			).Scan(&it.ID)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Order{}, fmt.Errorf("orders: create: %w", err)
	}
	return order, nil
}

const orderColumns = `id, number, customer_name, customer_email, status, subtotal, tax_amount, total_amount, created_at, processed_at`

// Get returns an order with its items.
func (r *Repository) Get(ctx context.Context, id int64) (Order, error) {
	order, err := scanOrder(r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM customer_orders WHERE id = $1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return Order{}, ErrNotFound
		}
		return Order{}, err
	}
	items, err := r.items(ctx, []int64{id})
	if err != nil {
		return Order{}, err
	}
	order.Items = items[id]
	return order, nil
}

// List returns orders newest first, optionally filtered by status.
func (r *Repository) List(ctx context.Context, status Status, limit, offset int) ([]Order, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM customer_orders WHERE ($1::text = '' OR status = $1)`, string(status)).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM customer_orders WHERE ($1::text = '' OR status = $1)
ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, string(status), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	orders, err := r.collect(ctx, rows)
	return orders, total, err
}

// ListPending returns every pending order oldest first.
func (r *Repository) ListPending(ctx context.Context) ([]Order, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM customer_orders WHERE status = $1 ORDER BY created_at, id`, string(StatusPending))
	if err != nil {
		return nil, err
	}
	return r.collect(ctx, rows)
}

func (r *Repository) collect(ctx context.Context, rows pgx.Rows) ([]Order, error) {
	defer rows.Close()
	var orders []Order
	var ids []int64
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return orders, nil
	}
	items, err := r.items(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Items = items[orders[i].ID]
	}
	return orders, nil
}

func (r *Repository) items(ctx context.Context, ids []int64) (map[int64][]Item, error) {
	rows, err := r.pool.Query(ctx, `SELECT order_id, id, product_code, product_name, supplier_code, category, quantity, unit_price, tax_rate
FROM customer_order_items WHERE order_id = ANY($1) ORDER BY order_id, line_no`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64][]Item, len(ids))
	for rows.Next() {
		var orderID int64
		var it Item
		var rate float64
		if err := rows.Scan(&orderID, &it.ID, &it.ProductCode, &it.ProductName, &it.Supplier, &it.Category, &it.Quantity, &it.UnitPrice, &rate); err != nil {
			return nil, err
		}
		it.Class = tax.FromPercent(rate)
		out[orderID] = append(out[orderID], it)
	}
	return out, rows.Err()
}

// MarkProcessedInTx flips pending orders to processed and reports how many rows changed.
// Orders that are no longer pending are left untouched, so a short count signals a concurrent batch.
func MarkProcessedInTx(ctx context.Context, tx pgx.Tx, ids []int64, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := tx.Exec(ctx, `UPDATE customer_orders SET status = $1, processed_at = $2 WHERE id = ANY($3) AND status = $4`,
		string(StatusProcessed), at, ids, string(StatusPending))
	if err != nil {
		return 0, fmt.Errorf("orders: mark processed: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var status string
	err := row.Scan(&o.ID, &o.Number, &o.CustomerName, &o.CustomerEmail, &status, &o.Subtotal, &o.TaxAmount, &o.TotalAmount, &o.CreatedAt, &o.ProcessedAt)
	o.Status = Status(status)
	return o, err
}
