package products

import (
	"github.com/odyssey-erp/backoffice/internal/pricing"
	"github.com/odyssey-erp/backoffice/internal/tax"
)

type ProductForm struct {
	Name          string         `json:"product_name" validate:"required,max=200"`
	Code          string         `json:"product_code" validate:"required,max=64"`
	Category      string         `json:"category" validate:"required,max=100"`
	Supplier      string         `json:"supplier" validate:"required,max=64"`
	CostPrice     float64        `json:"cost_price" validate:"gte=0"`
	VATRate       tax.Class      `json:"vat_rate"`
	CashbackRate  float64        `json:"cashback_rate" validate:"gte=0,lte=100"`
	PricingTiers  []pricing.Tier `json:"pricing_tiers" validate:"required,min=1,max=3"`
	StockUnits    float64        `json:"stock_units" validate:"gte=0"`
	AlertQuantity float64        `json:"alert_quantity" validate:"gte=0"`
}

// PreviewForm asks for tier metrics without persisting anything.
type PreviewForm struct {
	CostPrice    float64        `json:"cost_price" validate:"gte=0"`
	VATRate      tax.Class      `json:"vat_rate"`
	CashbackRate float64        `json:"cashback_rate" validate:"gte=0,lte=100"`
	PricingTiers []pricing.Tier `json:"pricing_tiers" validate:"required,min=1,max=3"`
}

func (f ProductForm) toProduct() Product {
	return Product{
		Name:          f.Name,
		Code:          f.Code,
		Category:      f.Category,
		Supplier:      f.Supplier,
		CostPrice:     f.CostPrice,
		VATRate:       f.VATRate,
		CashbackRate:  f.CashbackRate,
		PricingTiers:  f.PricingTiers,
		StockUnits:    f.StockUnits,
		AlertQuantity: f.AlertQuantity,
	}
}
