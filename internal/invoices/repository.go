package invoices

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/tax"
)

// Repository provides PostgreSQL backed persistence for invoices.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create stores the header, lines and bucket rows in one transaction. The invoice number
// is drawn from the database sequence.
func (r *Repository) Create(ctx context.Context, inv Invoice) (Invoice, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `INSERT INTO invoices (number, order_id, customer_name, customer_email, subtotal, tax_amount, total_amount, created_at)
VALUES (generate_invoice_number(), $1, $2, NULLIF($3, ''), $4, $5, $6, $7) RETURNING id, number`,
			inv.OrderID, inv.CustomerName, inv.CustomerEmail, inv.Summary.Subtotal, inv.Summary.TaxAmount,
			inv.Summary.TotalAmount, inv.CreatedAt,
		).Scan(&inv.ID, &inv.Number)
		if err != nil {
			if db.IsUniqueViolation(err) {
				return ErrAlreadyInvoiced
			}
			return fmt.Errorf("invoices: insert: %w", err)
		}
		batch := &pgx.Batch{}
		for i, l := range inv.Summary.Lines {
			batch.Queue(`INSERT INTO invoice_lines (invoice_id, line_no, product_code, product_name, quantity, unit_price,
	tax_rate, item_total, tax_amount, taxable_amount, total_amount) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
				inv.ID, i+1, l.ProductCode, l.ProductName, l.Quantity, l.UnitPriceInclVAT, l.Class.Percent(),
				l.ItemTotal, l.TaxAmount, l.TaxableAmount, l.TotalAmount)
		}
		for _, key := range tax.BucketOrder {
			b := inv.Summary.Buckets[key]
			batch.Queue(`INSERT INTO invoice_tax_buckets (invoice_id, bucket, taxable_amount, tax_amount, total_amount)
VALUES ($1, $2, $3, $4, $5)`, inv.ID, string(key), b.TaxableAmount, b.TaxAmount, b.TotalAmount)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return Invoice{}, err
	}
	return inv, nil
}

const invoiceColumns = `id, number, order_id, customer_name, COALESCE(customer_email, ''), subtotal, tax_amount, total_amount, created_at`

// Get loads an invoice with its lines and buckets.
func (r *Repository) Get(ctx context.Context, id int64) (Invoice, error) {
	inv, err := scanInvoice(r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return Invoice{}, ErrNotFound
		}
		return Invoice{}, err
	}

	rows, err := r.pool.Query(ctx, `SELECT COALESCE(product_code, ''), product_name, quantity, unit_price, tax_rate,
	item_total, tax_amount, taxable_amount, total_amount FROM invoice_lines WHERE invoice_id = $1 ORDER BY line_no`, id)
	if err != nil {
		return Invoice{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l tax.ComputedLine
		var rate float64
		if err := rows.Scan(&l.ProductCode, &l.ProductName, &l.Quantity, &l.UnitPriceInclVAT, &rate,
			&l.ItemTotal, &l.TaxAmount, &l.TaxableAmount, &l.TotalAmount); err != nil {
			return Invoice{}, err
		}
		l.Class = tax.FromPercent(rate)
		inv.Summary.Lines = append(inv.Summary.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return Invoice{}, err
	}

	bucketRows, err := r.pool.Query(ctx, `SELECT bucket, taxable_amount, tax_amount, total_amount
FROM invoice_tax_buckets WHERE invoice_id = $1`, id)
	if err != nil {
		return Invoice{}, err
	}
	defer bucketRows.Close()
	inv.Summary.Buckets = make(map[tax.BucketKey]tax.Bucket, len(tax.BucketOrder))
	for bucketRows.Next() {
		var key string
		var b tax.Bucket
		if err := bucketRows.Scan(&key, &b.TaxableAmount, &b.TaxAmount, &b.TotalAmount); err != nil {
			return Invoice{}, err
		}
		inv.Summary.Buckets[tax.BucketKey(key)] = b
	}
	return inv, bucketRows.Err()
}

// List returns invoice headers newest first.
func (r *Repository) List(ctx context.Context, limit, offset int) ([]Invoice, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM invoices`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, inv)
	}
	return out, total, rows.Err()
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.OrderID, &inv.CustomerName, &inv.CustomerEmail,
		&inv.Summary.Subtotal, &inv.Summary.TaxAmount, &inv.Summary.TotalAmount, &inv.CreatedAt)
	return inv, err
}
