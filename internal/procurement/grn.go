package procurement

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/platform/money"
)

// ClampReceived limits a received quantity to [0, ordered].
func ClampReceived(ordered, received float64) float64 {
	switch {
	case received < 0:
		return 0
	case received > ordered:
		return ordered
	default:
		return received
	}
}

// LineStatusFor derives the status of a line from its quantities.
func LineStatusFor(ordered, received float64) LineStatus {
	received = ClampReceived(ordered, received)
	switch {
	case ordered-received == 0:
		return LineComplete
	case received > 0:
		return LinePartial
	default:
		return LinePending
	}
}

// AggregateStatus is complete when every line is, partial when anything was received.
func AggregateStatus(lines []GRNLine) LineStatus {
	if len(lines) == 0 {
		return LinePending
	}
	complete := true
	anyReceived := false
	for _, l := range lines {
		if l.Status != LineComplete {
			complete = false
		}
		if l.ReceivedQuantity > 0 {
			anyReceived = true
		}
	}
	switch {
	case complete:
		return LineComplete
	case anyReceived:
		return LinePartial
	default:
		return LinePending
	}
}

// Reconcile builds a GRN from per-product received quantities. Missing products count as
// nothing received. Received quantities are clamped to what was ordered.
func Reconcile(po PurchaseOrderDraft, received map[string]float64) GRNRecord {
	rec := GRNRecord{PONumber: po.Number, Supplier: po.Supplier, Lines: make([]GRNLine, 0, len(po.Lines))}
	var ordered, got, pending, value decimal.Decimal
	for _, line := range po.Lines {
		qty := ClampReceived(line.Quantity, received[line.ProductCode])
		l := GRNLine{
			ProductCode:      line.ProductCode,
			ProductName:      line.ProductName,
			OrderedQuantity:  line.Quantity,
			ReceivedQuantity: qty,
			PendingQuantity:  decimal.NewFromFloat(line.Quantity).Sub(decimal.NewFromFloat(qty)).InexactFloat64(),
			UnitPrice:        line.UnitPrice,
			ReceivedValue:    money.Round2(qty * line.UnitPrice),
			Status:           LineStatusFor(line.Quantity, qty),
		}
		rec.Lines = append(rec.Lines, l)
		ordered = ordered.Add(decimal.NewFromFloat(l.OrderedQuantity))
		got = got.Add(decimal.NewFromFloat(l.ReceivedQuantity))
		pending = pending.Add(decimal.NewFromFloat(l.PendingQuantity))
		value = value.Add(money.Dec(l.ReceivedValue))
	}
	rec.Totals = GRNTotals{
		OrderedQuantity:  ordered.InexactFloat64(),
		ReceivedQuantity: got.InexactFloat64(),
		PendingQuantity:  pending.InexactFloat64(),
		ReceivedValue:    value.InexactFloat64(),
	}
	rec.Status = AggregateStatus(rec.Lines)
	return rec
}

// ReceiveAll reconciles po as if every line arrived in full.
func ReceiveAll(po PurchaseOrderDraft) GRNRecord {
	received := make(map[string]float64, len(po.Lines))
	for _, line := range po.Lines {
		received[line.ProductCode] += line.Quantity
	}
	return Reconcile(po, received)
}
