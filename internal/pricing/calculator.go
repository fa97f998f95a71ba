// Package pricing derives margin and cashback figures for quantity-tiered selling prices.
package pricing

import (
	"errors"
	"fmt"
	"math"

	"github.com/odyssey-erp/backoffice/internal/platform/money"
)

// MaxTiers is the number of quantity tiers a product may carry.
const MaxTiers = 3

var (
	// ErrTierCount is returned when a product has no tiers or more than MaxTiers.
	ErrTierCount = errors.New("pricing: between 1 and 3 pricing tiers required")
	// ErrNegativeInput is returned for negative cost, VAT, cashback or price values.
	ErrNegativeInput = errors.New("pricing: negative input")
	// ErrTierRange is returned for overlapping or inverted quantity ranges.
	ErrTierRange = errors.New("pricing: invalid tier range")
)

// Tier is one quantity band of a product's price list. MaxQty zero means open ended.
type Tier struct {
	MinQty              int     `json:"min_qty"`
	MaxQty              int     `json:"max_qty"`
	SellingPriceInclVAT float64 `json:"selling_price"`
}

// Input groups the values shared by all tiers of a product.
type Input struct {
	CostPriceExclVAT    float64
	VATRatePercent      float64
	CashbackRatePercent float64
	Tiers               []Tier
}

// TierMetrics holds the derived figures for a tier. They are recomputed on demand and never stored.
type TierMetrics struct {
	Tier
	SellingPriceExclVAT float64 `json:"selling_price_excl_vat"`
	GrossProfit         float64 `json:"gross_profit"`
	GPPercent           float64 `json:"gp_percent"`
	NPPercent           float64 `json:"np_percent"`
	CashbackAmount      float64 `json:"cashback_amount"`
}

// Calculate returns metrics for every tier in input order.
func Calculate(in Input) ([]TierMetrics, error) {
	if len(in.Tiers) == 0 || len(in.Tiers) > MaxTiers {
		return nil, ErrTierCount
	}
	if in.CostPriceExclVAT < 0 || in.VATRatePercent < 0 || in.CashbackRatePercent < 0 {
		return nil, ErrNegativeInput
	}
	out := make([]TierMetrics, 0, len(in.Tiers))
	for i, tier := range in.Tiers {
		if tier.SellingPriceInclVAT < 0 {
			return nil, fmt.Errorf("%w: tier %d selling price", ErrNegativeInput, i+1)
		}
		out = append(out, Metrics(in.CostPriceExclVAT, in.VATRatePercent, in.CashbackRatePercent, tier))
	}
	return out, nil
}

// Metrics computes the figures for a single tier. Zero denominators yield zero.
func Metrics(costExclVAT, vatRate, cashbackRate float64, tier Tier) TierMetrics {
	price := tier.SellingPriceInclVAT
	exclVAT := safeDiv(price, 1+vatRate/100)
	gp := exclVAT - costExclVAT
	return TierMetrics{
		Tier:                tier,
		SellingPriceExclVAT: money.Round2(exclVAT),
		GrossProfit:         money.Round2(gp),
		GPPercent:           money.Round2(safeDiv(gp, costExclVAT) * 100),
		NPPercent:           money.Round2(safeDiv(gp, price) * 100),
		CashbackAmount:      money.Round2(price * cashbackRate / 100),
	}
}

func safeDiv(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	v := num / den
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
