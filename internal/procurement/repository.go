package procurement

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/backoffice/internal/masterdata/products"
	"github.com/odyssey-erp/backoffice/internal/orders"
	"github.com/odyssey-erp/backoffice/internal/platform/db"
	"github.com/odyssey-erp/backoffice/internal/shared"
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

// TxRepository exposes transactional operations.
type TxRepository interface {
	CreatePO(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error)
	MarkOrdersProcessed(ctx context.Context, ids []int64, at time.Time) (int64, error)
	UpdatePOStatus(ctx context.Context, id int64, status POStatus) error
	CreateGRN(ctx context.Context, grn GRNRecord) (int64, error)
	AddStock(ctx context.Context, productCode string, qty float64) error
	ClaimKey(ctx context.Context, key, module string) error
	LockPO(ctx context.Context, id int64) (PurchaseOrder, error)
	ReceivedQuantities(ctx context.Context, poID int64) (map[string]float64, error)
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

func (t *txRepo) CreatePO(ctx context.Context, po PurchaseOrder) (PurchaseOrder, error) {
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_orders (number, supplier_code, category, status, source, due_date,
	subtotal, total_tax, total_discount, grand_total, email_sent, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE, $11) RETURNING id`,
		po.Number, po.Supplier, po.Category, string(po.Status), string(po.Source), po.DueDate,
		po.Totals.Subtotal, po.Totals.TotalTax, po.Totals.TotalDiscount, po.Totals.GrandTotal, po.CreatedAt,
	).Scan(&po.ID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return PurchaseOrder{}, fmt.Errorf("%w: po number %s exists", ErrValidation, po.Number)
		}
		return PurchaseOrder{}, fmt.Errorf("procurement: insert po: %w", err)
	}

	batch := &pgx.Batch{}
	for i, l := range po.Lines {
		batch.Queue(`INSERT INTO purchase_order_lines (po_id, line_no, product_code, product_name, quantity, unit_price,
	total_value, tax_rate, tax_amount, amount) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			po.ID, i+1, l.ProductCode, l.ProductName, l.Quantity, l.UnitPrice, l.TotalValue, l.Class.Percent(), l.TaxAmount, l.Amount)
	}
	for _, orderID := range po.SourceOrderIDs {
		batch.Queue(`INSERT INTO purchase_order_sources (po_id, order_id) VALUES ($1, $2)`, po.ID, orderID)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return PurchaseOrder{}, fmt.Errorf("procurement: insert po lines: %w", err)
	}
	return po, nil
}

func (t *txRepo) MarkOrdersProcessed(ctx context.Context, ids []int64, at time.Time) (int64, error) {
	return orders.MarkProcessedInTx(ctx, t.tx, ids, at)
}

func (t *txRepo) UpdatePOStatus(ctx context.Context, id int64, status POStatus) error {
	tag, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) CreateGRN(ctx context.Context, grn GRNRecord) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO goods_receipts (number, po_id, status, ordered_quantity, received_quantity,
	pending_quantity, received_value, received_at, note) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING id`,
		grn.Number, grn.POID, string(grn.Status), grn.Totals.OrderedQuantity, grn.Totals.ReceivedQuantity,
		grn.Totals.PendingQuantity, grn.Totals.ReceivedValue, grn.ReceivedAt, grn.Note,
	).Scan(&id)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return 0, ErrDuplicateGRN
		}
		return 0, fmt.Errorf("procurement: insert grn: %w", err)
	}
	batch := &pgx.Batch{}
	for i, l := range grn.Lines {
		batch.Queue(`INSERT INTO goods_receipt_lines (grn_id, line_no, product_code, product_name, ordered_quantity,
	received_quantity, pending_quantity, unit_price, received_value, status) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			id, i+1, l.ProductCode, l.ProductName, l.OrderedQuantity, l.ReceivedQuantity, l.PendingQuantity, l.UnitPrice, l.ReceivedValue, string(l.Status))
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("procurement: insert grn lines: %w", err)
	}
	return id, nil
}

func (t *txRepo) AddStock(ctx context.Context, productCode string, qty float64) error {
	return products.AddStockInTx(ctx, t.tx, productCode, qty)
}

func (t *txRepo) ClaimKey(ctx context.Context, key, module string) error {
	return shared.ClaimKey(ctx, t.tx, key, module)
}

// LockPO loads a purchase order and holds its row lock until the transaction ends.
func (t *txRepo) LockPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	return loadPO(ctx, t.tx, id, true)
}

func (t *txRepo) ReceivedQuantities(ctx context.Context, poID int64) (map[string]float64, error) {
	return receivedQuantities(ctx, t.tx, poID)
}

const poColumns = `id, number, supplier_code, category, status, source, due_date, subtotal, total_tax, total_discount,
	grand_total, email_sent, COALESCE(email_error, ''), created_at`

// GetPO returns a purchase order with its lines and source orders.
func (r *Repository) GetPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	return loadPO(ctx, r.pool, id, false)
}

func loadPO(ctx context.Context, q querier, id int64, lock bool) (PurchaseOrder, error) {
	query := `SELECT ` + poColumns + ` FROM purchase_orders WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	po, err := scanPO(q.QueryRow(ctx, query, id))
	if err != nil {
		if db.IsNoRows(err) {
			return PurchaseOrder{}, ErrNotFound
		}
		return PurchaseOrder{}, err
	}
	rows, err := q.Query(ctx, `SELECT id, product_code, product_name, quantity, unit_price, total_value, tax_rate, tax_amount, amount
FROM purchase_order_lines WHERE po_id = $1 ORDER BY line_no`, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l POLine
		var rate float64
		if err := rows.Scan(&l.ID, &l.ProductCode, &l.ProductName, &l.Quantity, &l.UnitPrice, &l.TotalValue, &rate, &l.TaxAmount, &l.Amount); err != nil {
			return PurchaseOrder{}, err
		}
		l.Class = tax.FromPercent(rate)
		po.Lines = append(po.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return PurchaseOrder{}, err
	}
	srcRows, err := q.Query(ctx, `SELECT order_id FROM purchase_order_sources WHERE po_id = $1 ORDER BY order_id`, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.SourceOrderIDs, err = pgx.CollectRows(srcRows, pgx.RowTo[int64])
	if err != nil {
		return PurchaseOrder{}, err
	}
	return po, nil
}

// ListPOs returns purchase order headers newest first.
func (r *Repository) ListPOs(ctx context.Context, limit, offset int, filters ListFilters) ([]PurchaseOrder, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	if filters.Status != "" {
		args = append(args, string(filters.Status))
		where += ` AND status = $` + strconv.Itoa(len(args))
	}
	if filters.Supplier != "" {
		args = append(args, filters.Supplier)
		where += ` AND supplier_code = $` + strconv.Itoa(len(args))
	}
	if filters.EmailSent != nil {
		args = append(args, *filters.EmailSent)
		where += ` AND email_sent = $` + strconv.Itoa(len(args))
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		where += ` AND number ILIKE $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	n := len(args)
	query := `SELECT ` + poColumns + ` FROM purchase_orders` + where +
		` ORDER BY created_at DESC, id DESC LIMIT $` + strconv.Itoa(n+1) + ` OFFSET $` + strconv.Itoa(n+2)
	rows, err := r.pool.Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []PurchaseOrder
	for rows.Next() {
		po, err := scanPO(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, po)
	}
	return items, total, rows.Err()
}

// SetEmailStatus records the outcome of the supplier notification.
func (r *Repository) SetEmailStatus(ctx context.Context, id int64, sent bool, errMsg string) error {
	_, err := r.pool.Exec(ctx, `UPDATE purchase_orders SET email_sent = $1, email_error = NULLIF($2, ''),
	emailed_at = CASE WHEN $1 THEN NOW() ELSE emailed_at END WHERE id = $3`, sent, errMsg, id)
	return err
}

// ReceivedQuantities sums quantities already received against a purchase order by product.
func (r *Repository) ReceivedQuantities(ctx context.Context, poID int64) (map[string]float64, error) {
	return receivedQuantities(ctx, r.pool, poID)
}

func receivedQuantities(ctx context.Context, q querier, poID int64) (map[string]float64, error) {
	rows, err := q.Query(ctx, `SELECT l.product_code, SUM(l.received_quantity)
FROM goods_receipt_lines l JOIN goods_receipts g ON g.id = l.grn_id
WHERE g.po_id = $1 GROUP BY l.product_code`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]float64{}
	for rows.Next() {
		var code string
		var qty float64
		if err := rows.Scan(&code, &qty); err != nil {
			return nil, err
		}
		out[code] = qty
	}
	return out, rows.Err()
}

const grnColumns = `g.id, g.number, g.po_id, p.number, p.supplier_code, g.status, g.ordered_quantity, g.received_quantity,
	g.pending_quantity, g.received_value, g.received_at, COALESCE(g.note, '')`

// GetGRN returns a goods receipt with its lines.
func (r *Repository) GetGRN(ctx context.Context, id int64) (GRNRecord, error) {
	grn, err := scanGRN(r.pool.QueryRow(ctx, `SELECT `+grnColumns+` FROM goods_receipts g JOIN purchase_orders p ON p.id = g.po_id WHERE g.id = $1`, id))
	if err != nil {
		if db.IsNoRows(err) {
			return GRNRecord{}, ErrNotFound
		}
		return GRNRecord{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT product_code, product_name, ordered_quantity, received_quantity, pending_quantity,
	unit_price, received_value, status FROM goods_receipt_lines WHERE grn_id = $1 ORDER BY line_no`, id)
	if err != nil {
		return GRNRecord{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l GRNLine
		var status string
		if err := rows.Scan(&l.ProductCode, &l.ProductName, &l.OrderedQuantity, &l.ReceivedQuantity, &l.PendingQuantity,
			&l.UnitPrice, &l.ReceivedValue, &status); err != nil {
			return GRNRecord{}, err
		}
		l.Status = LineStatus(status)
		grn.Lines = append(grn.Lines, l)
	}
	return grn, rows.Err()
}

// ListGRNs returns the goods receipt headers of a purchase order.
func (r *Repository) ListGRNs(ctx context.Context, poID int64) ([]GRNRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+grnColumns+` FROM goods_receipts g JOIN purchase_orders p ON p.id = g.po_id
WHERE g.po_id = $1 ORDER BY g.received_at, g.id`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []GRNRecord
	for rows.Next() {
		grn, err := scanGRN(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, grn)
	}
	return out, rows.Err()
}

func scanPO(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	var status, source string
	err := row.Scan(&po.ID, &po.Number, &po.Supplier, &po.Category, &status, &source, &po.DueDate,
		&po.Totals.Subtotal, &po.Totals.TotalTax, &po.Totals.TotalDiscount, &po.Totals.GrandTotal,
		&po.EmailSent, &po.EmailError, &po.CreatedAt)
	po.Status = POStatus(status)
	po.Source = POSource(source)
	return po, err
}

func scanGRN(row pgx.Row) (GRNRecord, error) {
	var g GRNRecord
	var status string
	err := row.Scan(&g.ID, &g.Number, &g.POID, &g.PONumber, &g.Supplier, &status, &g.Totals.OrderedQuantity,
		&g.Totals.ReceivedQuantity, &g.Totals.PendingQuantity, &g.Totals.ReceivedValue, &g.ReceivedAt, &g.Note)
	g.Status = LineStatus(status)
	return g, err
}
