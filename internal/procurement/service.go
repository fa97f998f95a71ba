package procurement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/backoffice/internal/masterdata/suppliers"
	"github.com/odyssey-erp/backoffice/internal/notify"
	"github.com/odyssey-erp/backoffice/internal/observability"
	"github.com/odyssey-erp/backoffice/internal/orders"
	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
	"github.com/odyssey-erp/backoffice/internal/tax"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPO(ctx context.Context, id int64) (PurchaseOrder, error)
	ListPOs(ctx context.Context, limit, offset int, filters ListFilters) ([]PurchaseOrder, int, error)
	SetEmailStatus(ctx context.Context, id int64, sent bool, errMsg string) error
	ReceivedQuantities(ctx context.Context, poID int64) (map[string]float64, error)
	GetGRN(ctx context.Context, id int64) (GRNRecord, error)
	ListGRNs(ctx context.Context, poID int64) ([]GRNRecord, error)
}

// OrderSource supplies the pending customer orders to batch.
type OrderSource interface {
	ListPending(ctx context.Context) ([]orders.Order, error)
}

// SupplierDirectory resolves supplier contact details by code.
type SupplierDirectory interface {
	Contact(ctx context.Context, code string) (suppliers.Supplier, error)
}

// Notifier delivers purchase orders to suppliers.
type Notifier interface {
	SendPurchaseOrder(ctx context.Context, in notify.PurchaseOrderEmail) error
}

// Locker runs a function under a cross-process lock.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// Dependencies groups the collaborators of Service.
type Dependencies struct {
	Repo      RepositoryPort
	Orders    OrderSource
	Suppliers SupplierDirectory
	Notifier  Notifier
	Locker    Locker
	Audit     shared.Auditor
	Metrics   *observability.Metrics
	Logger    *slog.Logger
}

// Config tunes batching.
type Config struct {
	DueIn             time.Duration
	NotifyConcurrency int
	LockTTL           time.Duration
}

// Service orchestrates purchase order batching and goods receipt.
type Service struct {
	repo      RepositoryPort
	orders    OrderSource
	suppliers SupplierDirectory
	notifier  Notifier
	locker    Locker
	audit     shared.Auditor
	metrics   *observability.Metrics
	logger    *slog.Logger
	validator *validator.Validate
	cfg       Config
	group     singleflight.Group
	now       func() time.Time
}

// NewService constructs procurement service.
func NewService(deps Dependencies, cfg Config) *Service {
	if cfg.DueIn <= 0 {
		cfg.DueIn = DefaultDueIn
	}
	if cfg.NotifyConcurrency <= 0 {
		cfg.NotifyConcurrency = 4
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	if deps.Audit == nil {
		deps.Audit = shared.NopAuditor{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		repo:      deps.Repo,
		orders:    deps.Orders,
		suppliers: deps.Suppliers,
		notifier:  deps.Notifier,
		locker:    deps.Locker,
		audit:     deps.Audit,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		validator: httpx.NewValidator(),
		cfg:       cfg,
		now:       time.Now,
	}
}

// EmailFailure reports a purchase order whose supplier was not notified.
type EmailFailure struct {
	POID     int64  `json:"purchase_order_id"`
	PONumber string `json:"po_number"`
	Supplier string `json:"supplier"`
	Error    string `json:"error"`
}

// BatchResult summarises one batch run.
type BatchResult struct {
	PurchaseOrders  []PurchaseOrder `json:"purchase_orders"`
	ProcessedOrders int             `json:"processed_orders"`
	Failed          []EmailFailure  `json:"failed_emails"`
}

// RunBatch turns every pending customer order into supplier purchase orders. Purchase
// orders and the pending to processed transition commit together; supplier emails go out
// after the commit and failures are reported in the result.
func (s *Service) RunBatch(ctx context.Context) (BatchResult, error) {
	v, err, _ := s.group.Do("batch", func() (any, error) {
		var result BatchResult
		run := func(ctx context.Context) error {
			var err error
			result, err = s.runBatch(ctx)
			return err
		}
		var err error
		if s.locker != nil {
			err = s.locker.TryLock(ctx, shared.PurchaseBatchLockKey, s.cfg.LockTTL, run)
		} else {
			err = run(ctx)
		}
		if errors.Is(err, shared.ErrLockHeld) {
			err = ErrBatchInProgress
		}
		return result, err
	})
	result, _ := v.(BatchResult)
	switch {
	case errors.Is(err, ErrBatchInProgress):
		s.metrics.ObserveBatch(observability.BatchSkipped, 0)
		s.logger.Info("purchase batch skipped", slog.String("reason", "lock held"))
	case err != nil:
		s.metrics.ObserveBatch(observability.BatchFailed, 0)
		s.logger.Error("purchase batch failed", slog.Any("error", err))
	case len(result.PurchaseOrders) == 0:
		s.metrics.ObserveBatch(observability.BatchEmpty, 0)
	default:
		s.metrics.ObserveBatch(observability.BatchOK, len(result.PurchaseOrders))
	}
	return result, err
}

func (s *Service) runBatch(ctx context.Context) (BatchResult, error) {
	pending, err := s.orders.ListPending(ctx)
	if err != nil {
		return BatchResult{}, fmt.Errorf("procurement: load pending orders: %w", err)
	}
	now := s.now()
	drafts := BuildDrafts(pending, now, BatchOptions{DueIn: s.cfg.DueIn})
	if len(drafts) == 0 {
		return BatchResult{}, nil
	}
	orderIDs := SourceOrderIDs(drafts)

	created := make([]PurchaseOrder, 0, len(drafts))
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created = created[:0]
		for _, draft := range drafts {
			po, err := tx.CreatePO(ctx, PurchaseOrder{
				PurchaseOrderDraft: draft,
				Status:             POStatusOpen,
				Source:             SourceBatch,
				CreatedAt:          now,
			})
			if err != nil {
				return err
			}
			created = append(created, po)
		}
		n, err := tx.MarkOrdersProcessed(ctx, orderIDs, now)
		if err != nil {
			return err
		}
		if n != int64(len(orderIDs)) {
			return fmt.Errorf("%w: marked %d of %d orders", ErrBatchConflict, n, len(orderIDs))
		}
		return nil
	})
	if err != nil {
		return BatchResult{}, err
	}

	result := BatchResult{PurchaseOrders: created, ProcessedOrders: len(orderIDs)}
	result.Failed = s.notifyAll(ctx, result.PurchaseOrders)
	s.recordAudit(ctx, "purchase_batch.run", created[0].ID, map[string]any{
		"purchase_orders":  len(created),
		"processed_orders": len(orderIDs),
		"failed_emails":    len(result.Failed),
	})
	s.logger.Info("purchase batch complete",
		slog.Int("purchase_orders", len(created)),
		slog.Int("processed_orders", len(orderIDs)),
		slog.Int("failed_emails", len(result.Failed)))
	return result, nil
}

// notifyAll emails every supplier with bounded concurrency and updates pos in place.
func (s *Service) notifyAll(ctx context.Context, pos []PurchaseOrder) []EmailFailure {
	var (
		mu     sync.Mutex
		failed []EmailFailure
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.NotifyConcurrency)
	for i := range pos {
		g.Go(func() error {
			if err := s.deliver(gctx, &pos[i]); err != nil {
				mu.Lock()
				failed = append(failed, EmailFailure{POID: pos[i].ID, PONumber: pos[i].Number, Supplier: pos[i].Supplier, Error: err.Error()})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	sort.Slice(failed, func(i, j int) bool { return failed[i].PONumber < failed[j].PONumber })
	return failed
}

// deliver emails one purchase order and records the outcome on it.
func (s *Service) deliver(ctx context.Context, po *PurchaseOrder) error {
	err := s.sendPurchaseOrder(ctx, *po)
	s.metrics.ObserveEmail("purchase_order", err)
	po.EmailSent = err == nil
	po.EmailError = ""
	if err != nil {
		po.EmailError = err.Error()
		s.logger.Warn("supplier email failed",
			slog.String("po_number", po.Number),
			slog.String("supplier", po.Supplier),
			slog.Any("error", err))
	}
	if uerr := s.repo.SetEmailStatus(context.WithoutCancel(ctx), po.ID, po.EmailSent, po.EmailError); uerr != nil {
		s.logger.Error("record email status", slog.Int64("po_id", po.ID), slog.Any("error", uerr))
	}
	return err
}

func (s *Service) sendPurchaseOrder(ctx context.Context, po PurchaseOrder) error {
	if s.notifier == nil {
		return errors.New("procurement: notifier not configured")
	}
	contact, err := s.suppliers.Contact(ctx, po.Supplier)
	if err != nil {
		return fmt.Errorf("supplier %s: %w", po.Supplier, err)
	}
	lines := make([]notify.PurchaseOrderLine, 0, len(po.Lines))
	for _, l := range po.Lines {
		lines = append(lines, notify.PurchaseOrderLine{
			Code:      l.ProductCode,
			Name:      l.ProductName,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Tax:       l.TaxAmount,
			Amount:    l.Amount,
		})
	}
	return s.notifier.SendPurchaseOrder(ctx, notify.PurchaseOrderEmail{
		SupplierName:  contact.Name,
		SupplierEmail: contact.Email,
		PONumber:      po.Number,
		DueDate:       po.DueDate,
		Lines:         lines,
		Subtotal:      po.Totals.Subtotal,
		Tax:           po.Totals.TotalTax,
		GrandTotal:    po.Totals.GrandTotal,
	})
}

// CreatePOInput is a manually raised purchase order.
type CreatePOInput struct {
	Supplier string        `json:"supplier" validate:"required,max=64"`
	Category string        `json:"category" validate:"omitempty,max=100"`
	DueDate  time.Time     `json:"due_date"`
	Lines    []POLineInput `json:"items" validate:"required,min=1,dive"`
}

// POLineInput is one product of a manual purchase order. UnitPrice is exclusive of VAT.
type POLineInput struct {
	ProductCode string     `json:"product_code" validate:"required,max=64"`
	ProductName string     `json:"product_name" validate:"required,max=200"`
	Quantity    float64    `json:"quantity" validate:"gt=0"`
	UnitPrice   float64    `json:"unit_price" validate:"gte=0"`
	TaxRate     *tax.Class `json:"tax_rate"`
}

// CreatePurchaseOrder stores a manual purchase order and emails the supplier. A stored
// order whose email failed is returned together with ErrEmailNotSent.
func (s *Service) CreatePurchaseOrder(ctx context.Context, input CreatePOInput) (PurchaseOrder, error) {
	if err := s.validator.Struct(input); err != nil {
		return PurchaseOrder{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	now := s.now()
	due := input.DueDate
	if due.IsZero() {
		due = now.Add(s.cfg.DueIn)
	}
	if due.Before(now.Truncate(24 * time.Hour)) {
		return PurchaseOrder{}, fmt.Errorf("%w: due date in the past", ErrValidation)
	}
	draft := PurchaseOrderDraft{
		Number:   generateNumber("PO"),
		Supplier: strings.TrimSpace(input.Supplier),
		Category: strings.TrimSpace(input.Category),
		DueDate:  due,
	}
	index := map[string]int{}
	for _, in := range input.Lines {
		if in.Quantity <= 0 || in.UnitPrice < 0 {
			return PurchaseOrder{}, fmt.Errorf("%w: item %s quantity and price", ErrValidation, in.ProductCode)
		}
		class := tax.Standard(tax.RateZero)
		if in.TaxRate != nil {
			class = *in.TaxRate
		}
		value := decimal.NewFromFloat(in.Quantity).Mul(decimal.NewFromFloat(in.UnitPrice))
		if i, ok := index[in.ProductCode]; ok {
			line := &draft.Lines[i]
			line.Quantity = decimal.NewFromFloat(line.Quantity).Add(decimal.NewFromFloat(in.Quantity)).InexactFloat64()
			line.TotalValue = decimal.NewFromFloat(line.TotalValue).Add(value).InexactFloat64()
			line.UnitPrice = decimal.NewFromFloat(line.TotalValue).Div(decimal.NewFromFloat(line.Quantity)).Round(4).InexactFloat64()
			continue
		}
		index[in.ProductCode] = len(draft.Lines)
		draft.Lines = append(draft.Lines, POLine{
			ProductCode: in.ProductCode,
			ProductName: in.ProductName,
			Quantity:    in.Quantity,
			UnitPrice:   in.UnitPrice,
			TotalValue:  value.InexactFloat64(),
			Class:       class,
		})
	}
	PriceDraft(&draft)

	var po PurchaseOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.CreatePO(ctx, PurchaseOrder{
			PurchaseOrderDraft: draft,
			Status:             POStatusOpen,
			Source:             SourceManual,
			CreatedAt:          now,
		})
		return err
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.metrics.ObservePurchaseOrder()
	s.recordAudit(ctx, "purchase_order.create", po.ID, map[string]any{"number": po.Number, "supplier": po.Supplier})
	if err := s.deliver(ctx, &po); err != nil {
		return po, fmt.Errorf("%w: %v", ErrEmailNotSent, err)
	}
	return po, nil
}

// ResendPurchaseOrderEmail retries the supplier notification for a purchase order.
func (s *Service) ResendPurchaseOrderEmail(ctx context.Context, poID int64) (PurchaseOrder, error) {
	po, err := s.repo.GetPO(ctx, poID)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if po.EmailSent {
		return po, fmt.Errorf("%w: email already sent", ErrInvalidState)
	}
	if po.Status == POStatusCancelled {
		return po, ErrInvalidState
	}
	if err := s.deliver(ctx, &po); err != nil {
		return po, fmt.Errorf("%w: %v", ErrEmailNotSent, err)
	}
	s.recordAudit(ctx, "purchase_order.email_resent", po.ID, nil)
	return po, nil
}

// CreateGRNInput describes a goods receipt against a purchase order. A nil Received map
// receives every outstanding quantity in full.
type CreateGRNInput struct {
	POID     int64              `json:"purchase_order_id"`
	Number   string             `json:"grn_number"`
	Received map[string]float64 `json:"received"`
	Note     string             `json:"note"`
}

// PreviewGoodsReceipt reconciles input without storing anything.
func (s *Service) PreviewGoodsReceipt(ctx context.Context, input CreateGRNInput) (GRNRecord, error) {
	if input.POID <= 0 {
		return GRNRecord{}, fmt.Errorf("%w: purchase order id", ErrValidation)
	}
	po, err := s.repo.GetPO(ctx, input.POID)
	if err != nil {
		return GRNRecord{}, err
	}
	prior, err := s.repo.ReceivedQuantities(ctx, po.ID)
	if err != nil {
		return GRNRecord{}, err
	}
	return s.reconcile(po, outstanding(po, prior), input), nil
}

// CreateGoodsReceipt posts a goods receipt, adds received quantities to product stock and
// advances the purchase order status in one transaction. The purchase order row stays locked
// while outstanding quantities are computed, so concurrent receipts never exceed the order.
func (s *Service) CreateGoodsReceipt(ctx context.Context, input CreateGRNInput) (GRNRecord, error) {
	if input.POID <= 0 {
		return GRNRecord{}, fmt.Errorf("%w: purchase order id", ErrValidation)
	}
	number := strings.TrimSpace(input.Number)
	if number == "" {
		number = generateNumber("GRN")
	}
	var (
		po  PurchaseOrder
		grn GRNRecord
	)
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.LockPO(ctx, input.POID)
		if err != nil {
			return err
		}
		if po.Status == POStatusReceived || po.Status == POStatusCancelled {
			return ErrInvalidState
		}
		prior, err := tx.ReceivedQuantities(ctx, po.ID)
		if err != nil {
			return err
		}
		grn = s.reconcile(po, outstanding(po, prior), input)
		grn.Number = number
		if grn.Totals.ReceivedQuantity <= 0 {
			return fmt.Errorf("%w: nothing received", ErrValidation)
		}
		if err := tx.ClaimKey(ctx, "GRN:"+grn.Number, "procurement"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return ErrDuplicateGRN
			}
			return err
		}
		id, err := tx.CreateGRN(ctx, grn)
		if err != nil {
			return err
		}
		grn.ID = id
		for _, line := range grn.Lines {
			if line.ReceivedQuantity <= 0 {
				continue
			}
			if err := tx.AddStock(ctx, line.ProductCode, line.ReceivedQuantity); err != nil {
				return err
			}
		}
		next := POStatusPartiallyReceived
		if grn.Status == LineComplete {
			next = POStatusReceived
		}
		return tx.UpdatePOStatus(ctx, po.ID, next)
	})
	if err != nil {
		return GRNRecord{}, err
	}
	s.metrics.ObserveGoodsReceipt()
	s.recordAudit(ctx, "goods_receipt.create", grn.ID, map[string]any{
		"number":   grn.Number,
		"po":       po.Number,
		"status":   string(grn.Status),
		"received": grn.Totals.ReceivedQuantity,
	})
	return grn, nil
}

// outstanding returns a copy of po whose line quantities are what is still to arrive.
func outstanding(po PurchaseOrder, prior map[string]float64) PurchaseOrderDraft {
	out := po.PurchaseOrderDraft
	out.Lines = make([]POLine, len(po.Lines))
	for i, line := range po.Lines {
		left := decimal.NewFromFloat(line.Quantity).Sub(decimal.NewFromFloat(prior[line.ProductCode]))
		if left.IsNegative() {
			left = decimal.Zero
		}
		line.Quantity = left.InexactFloat64()
		out.Lines[i] = line
	}
	return out
}

func (s *Service) reconcile(po PurchaseOrder, outstanding PurchaseOrderDraft, input CreateGRNInput) GRNRecord {
	var grn GRNRecord
	if input.Received == nil {
		grn = ReceiveAll(outstanding)
	} else {
		grn = Reconcile(outstanding, input.Received)
	}
	grn.POID = po.ID
	grn.Number = strings.TrimSpace(input.Number)
	grn.Note = input.Note
	grn.ReceivedAt = s.now()
	return grn
}

// GetPO returns a purchase order.
func (s *Service) GetPO(ctx context.Context, id int64) (PurchaseOrder, error) {
	return s.repo.GetPO(ctx, id)
}

// ListPOs returns paginated purchase orders.
func (s *Service) ListPOs(ctx context.Context, limit, offset int, filters ListFilters) ([]PurchaseOrder, int, error) {
	switch filters.Status {
	case "", POStatusOpen, POStatusPartiallyReceived, POStatusReceived, POStatusCancelled:
	default:
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrValidation, filters.Status)
	}
	return s.repo.ListPOs(ctx, limit, offset, filters)
}

// GetGRN returns a goods receipt.
func (s *Service) GetGRN(ctx context.Context, id int64) (GRNRecord, error) {
	return s.repo.GetGRN(ctx, id)
}

// ListGRNs returns the goods receipts posted against a purchase order.
func (s *Service) ListGRNs(ctx context.Context, poID int64) ([]GRNRecord, error) {
	return s.repo.ListGRNs(ctx, poID)
}

func (s *Service) recordAudit(ctx context.Context, action string, entityID int64, meta map[string]any) {
	if err := s.audit.Record(ctx, shared.AuditLog{Action: action, Entity: "procurement", EntityID: fmt.Sprintf("%d", entityID), Meta: meta}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

func generateNumber(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
}
