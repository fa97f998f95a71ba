package products

import (
	"time"

	"github.com/odyssey-erp/backoffice/internal/pricing"
	"github.com/odyssey-erp/backoffice/internal/tax"
)

// Product represents a product entity. Tier metrics are never stored.
type Product struct {
	ID            int64          `json:"id"`
	Name          string         `json:"product_name"`
	Code          string         `json:"product_code"`
	Category      string         `json:"category"`
	Supplier      string         `json:"supplier"`
	CostPrice     float64        `json:"cost_price"`
	VATRate       tax.Class      `json:"vat_rate"`
	CashbackRate  float64        `json:"cashback_rate"`
	PricingTiers  []pricing.Tier `json:"pricing_tiers"`
	StockUnits    float64        `json:"stock_units"`
	AlertQuantity float64        `json:"alert_quantity"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// IsLowStock reports whether stock has fallen to the alert threshold.
func (p Product) IsLowStock() bool {
	return p.StockUnits <= p.AlertQuantity
}

// ProductView is the API representation with derived tier figures.
type ProductView struct {
	Product
	PricingTiers []pricing.TierMetrics `json:"pricing_tiers"`
	LowStock     bool                  `json:"low_stock"`
}

// View derives tier metrics for p.
func View(p Product) ProductView {
	metrics := make([]pricing.TierMetrics, 0, len(p.PricingTiers))
	for _, tier := range p.PricingTiers {
		metrics = append(metrics, pricing.Metrics(p.CostPrice, p.VATRate.Rate(), p.CashbackRate, tier))
	}
	return ProductView{Product: p, PricingTiers: metrics, LowStock: p.IsLowStock()}
}
