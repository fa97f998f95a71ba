package tax

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/backoffice/internal/platform/money"
)

// BucketKey identifies one of the five summary buckets.
type BucketKey string

const (
	Bucket16     BucketKey = "vat_16"
	Bucket8      BucketKey = "vat_8"
	Bucket0      BucketKey = "vat_0"
	BucketNonVAT BucketKey = "non_vat"
	BucketExempt BucketKey = "exempt"
)

// BucketOrder lists bucket keys in display order.
var BucketOrder = []BucketKey{Bucket16, Bucket8, Bucket0, BucketNonVAT, BucketExempt}

// ErrNegativeQuantity is returned for lines with quantity below zero.
var ErrNegativeQuantity = errors.New("tax: quantity must not be negative")

// LineItem is an invoice line priced inclusive of VAT.
type LineItem struct {
	ProductCode      string  `json:"product_code"`
	ProductName      string  `json:"product_name"`
	Quantity         float64 `json:"quantity"`
	UnitPriceInclVAT float64 `json:"unit_price"`
	Class            Class   `json:"tax_rate"`
}

// ComputedLine carries the derived amounts of a line.
type ComputedLine struct {
	LineItem
	ItemTotal     float64 `json:"item_total"`
	TaxAmount     float64 `json:"tax_amount"`
	TaxableAmount float64 `json:"taxable_amount"`
	TotalAmount   float64 `json:"total_amount"`
}

// Bucket accumulates totals for one tax class.
type Bucket struct {
	TaxableAmount float64 `json:"taxable_amount"`
	TaxAmount     float64 `json:"tax_amount"`
	TotalAmount   float64 `json:"total_amount"`
}

// Summary is the result of aggregating an invoice.
type Summary struct {
	Lines       []ComputedLine       `json:"lines"`
	Buckets     map[BucketKey]Bucket `json:"buckets"`
	Subtotal    float64              `json:"subtotal"`
	TaxAmount   float64              `json:"tax_amount"`
	TotalAmount float64              `json:"total_amount"`
}

type bucketAcc struct {
	taxable decimal.Decimal
	tax     decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// Aggregate back-calculates VAT from inclusive prices and groups totals by class.
// Every stored amount is rounded to two decimals before it is summed.
func Aggregate(items []LineItem) (Summary, error) {
	acc := make(map[BucketKey]*bucketAcc, len(BucketOrder))
	for _, key := range BucketOrder {
		acc[key] = &bucketAcc{}
	}
	summary := Summary{Lines: make([]ComputedLine, 0, len(items))}
	subtotal := decimal.Zero
	taxTotal := decimal.Zero
	for i, item := range items {
		if item.Quantity < 0 {
			return Summary{}, fmt.Errorf("%w: line %d", ErrNegativeQuantity, i+1)
		}
		itemTotal, itemTax, taxable := inclusive(item)
		b := acc[item.Class.Bucket()]
		b.taxable = b.taxable.Add(taxable)
		b.tax = b.tax.Add(itemTax)
		subtotal = subtotal.Add(taxable)
		taxTotal = taxTotal.Add(itemTax)
		summary.Lines = append(summary.Lines, ComputedLine{
			LineItem:      item,
			ItemTotal:     itemTotal.InexactFloat64(),
			TaxAmount:     itemTax.InexactFloat64(),
			TaxableAmount: taxable.InexactFloat64(),
			TotalAmount:   taxable.Add(itemTax).InexactFloat64(),
		})
	}
	summary.Buckets = make(map[BucketKey]Bucket, len(acc))
	for key, b := range acc {
		summary.Buckets[key] = Bucket{
			TaxableAmount: b.taxable.InexactFloat64(),
			TaxAmount:     b.tax.InexactFloat64(),
			TotalAmount:   b.taxable.Add(b.tax).InexactFloat64(),
		}
	}
	summary.Subtotal = subtotal.InexactFloat64()
	summary.TaxAmount = taxTotal.InexactFloat64()
	summary.TotalAmount = subtotal.Add(taxTotal).InexactFloat64()
	return summary, nil
}

func inclusive(item LineItem) (itemTotal, itemTax, taxable decimal.Decimal) {
	itemTotal = decimal.NewFromFloat(item.Quantity).Mul(decimal.NewFromFloat(item.UnitPriceInclVAT)).Round(money.Scale)
	if item.Class.Kind() != KindStandard {
		return itemTotal, decimal.Zero, itemTotal
	}
	rate := decimal.NewFromFloat(item.Class.Rate())
	itemTax = itemTotal.Mul(rate).Div(hundred.Add(rate)).Round(money.Scale)
	return itemTotal, itemTax, itemTotal.Sub(itemTax)
}

// Exclusive applies VAT on top of a tax-exclusive price:
// tax = q*p*r/100 and amount = q*p*(1+r/100), both rounded to two decimals.
func Exclusive(quantity, unitPrice float64, c Class) (taxAmount, amount float64) {
	base := decimal.NewFromFloat(quantity).Mul(decimal.NewFromFloat(unitPrice))
	rate := decimal.NewFromFloat(c.Rate())
	t := base.Mul(rate).Div(hundred).Round(money.Scale)
	a := base.Mul(hundred.Add(rate)).Div(hundred).Round(money.Scale)
	return t.InexactFloat64(), a.InexactFloat64()
}
