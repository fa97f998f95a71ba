package procurement

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/orders"
	"github.com/odyssey-erp/backoffice/internal/platform/money"
	"github.com/odyssey-erp/backoffice/internal/tax"
)

// DefaultDueIn is the delivery window given to suppliers when none is configured.
const DefaultDueIn = 7 * 24 * time.Hour

// BatchOptions tunes draft generation.
type BatchOptions struct {
	DueIn time.Duration
}

// GroupKey identifies the purchase order a line item is batched into.
func GroupKey(supplier, category string) string {
	return supplier + "_" + category
}

type group struct {
	supplier string
	category string
	lines    []POLine
	index    map[string]int
	prices   map[string]bool
	orderIDs []int64
}

// BuildDrafts groups the items of pending orders by supplier and category and emits one
// draft per group in key order. Items sharing a product code within a group merge into a
// single line whose quantity is the sum of the inputs. Orders that are not pending and
// items with zero quantity are ignored.
func BuildDrafts(pending []orders.Order, now time.Time, opts BatchOptions) []PurchaseOrderDraft {
	if opts.DueIn <= 0 {
		opts.DueIn = DefaultDueIn
	}
	groups := map[string]*group{}
	for _, order := range pending {
		if order.Status != orders.StatusPending {
			continue
		}
		for _, item := range order.Items {
			if item.Quantity <= 0 {
				continue
			}
			key := GroupKey(item.Supplier, item.Category)
			g, ok := groups[key]
			if !ok {
				g = &group{supplier: item.Supplier, category: item.Category, index: map[string]int{}, prices: map[string]bool{}}
				groups[key] = g
			}
			if !slices.Contains(g.orderIDs, order.ID) {
				g.orderIDs = append(g.orderIDs, order.ID)
			}
			value := decimal.NewFromFloat(item.Quantity).Mul(decimal.NewFromFloat(item.UnitPrice))
			if i, ok := g.index[item.ProductCode]; ok {
				line := &g.lines[i]
				if line.UnitPrice != item.UnitPrice {
					g.prices[item.ProductCode] = true
				}
				line.Quantity = decimal.NewFromFloat(line.Quantity).Add(decimal.NewFromFloat(item.Quantity)).InexactFloat64()
				line.TotalValue = decimal.NewFromFloat(line.TotalValue).Add(value).InexactFloat64()
				continue
			}
			g.index[item.ProductCode] = len(g.lines)
			g.lines = append(g.lines, POLine{
				ProductCode: item.ProductCode,
				ProductName: item.ProductName,
				Quantity:    item.Quantity,
				UnitPrice:   item.UnitPrice,
				TotalValue:  value.InexactFloat64(),
				Class:       item.Class,
			})
		}
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	stamp := now.UnixMilli()
	drafts := make([]PurchaseOrderDraft, 0, len(keys))
	for i, key := range keys {
		g := groups[key]
		for j := range g.lines {
			line := &g.lines[j]
			if g.prices[line.ProductCode] {
				line.UnitPrice = decimal.NewFromFloat(line.TotalValue).Div(decimal.NewFromFloat(line.Quantity)).Round(4).InexactFloat64()
			}
		}
		draft := PurchaseOrderDraft{
			Number:         fmt.Sprintf("PO-%d-%d", stamp, i+1),
			Supplier:       g.supplier,
			Category:       g.category,
			DueDate:        now.Add(opts.DueIn),
			Lines:          g.lines,
			SourceOrderIDs: g.orderIDs,
		}
		PriceDraft(&draft)
		drafts = append(drafts, draft)
	}
	return drafts
}

// PriceDraft applies VAT on top of each line value and recomputes the draft totals.
func PriceDraft(d *PurchaseOrderDraft) {
	subtotal := decimal.Zero
	totalTax := decimal.Zero
	for i := range d.Lines {
		line := &d.Lines[i]
		if line.TotalValue == 0 {
			line.TotalValue = decimal.NewFromFloat(line.Quantity).Mul(decimal.NewFromFloat(line.UnitPrice)).InexactFloat64()
		}
		line.TaxAmount, line.Amount = tax.Exclusive(1, line.TotalValue, line.Class)
		line.TotalValue = money.Round2(line.TotalValue)
		subtotal = subtotal.Add(money.Dec(line.TotalValue))
		totalTax = totalTax.Add(money.Dec(line.TaxAmount))
	}
	d.Totals = Totals{
		Subtotal:      subtotal.InexactFloat64(),
		TotalTax:      totalTax.InexactFloat64(),
		TotalDiscount: 0,
		GrandTotal:    subtotal.Add(totalTax).InexactFloat64(),
	}
}

// SourceOrderIDs returns the ascending, de-duplicated ids of the orders that contributed a
// line to any of drafts. Only these orders are flipped to processed.
func SourceOrderIDs(drafts []PurchaseOrderDraft) []int64 {
	var ids []int64
	for _, d := range drafts {
		ids = append(ids, d.SourceOrderIDs...)
	}
	slices.Sort(ids)
	return slices.Compact(ids)
}
