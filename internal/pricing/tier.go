package pricing

import "fmt"

// Validate checks tier count, ordering and that ranges do not overlap.
// Only the last tier may be open ended.
func Validate(tiers []Tier) error {
	if len(tiers) == 0 || len(tiers) > MaxTiers {
		return ErrTierCount
	}
	for i, t := range tiers {
		if t.MinQty < 1 {
			return fmt.Errorf("%w: tier %d min_qty must be at least 1", ErrTierRange, i+1)
		}
		if t.SellingPriceInclVAT < 0 {
			return fmt.Errorf("%w: tier %d selling price", ErrNegativeInput, i+1)
		}
		last := i == len(tiers)-1
		if t.MaxQty == 0 && !last {
			return fmt.Errorf("%w: tier %d is open ended but not last", ErrTierRange, i+1)
		}
		if t.MaxQty != 0 && t.MaxQty < t.MinQty {
			return fmt.Errorf("%w: tier %d max_qty below min_qty", ErrTierRange, i+1)
		}
		if i > 0 && t.MinQty <= tiers[i-1].MaxQty {
			return fmt.Errorf("%w: tier %d overlaps tier %d", ErrTierRange, i+1, i)
		}
	}
	return nil
}

// Select returns the tier whose quantity range contains qty.
func Select(tiers []Tier, qty int) (Tier, bool) {
	for _, t := range tiers {
		if qty >= t.MinQty && (t.MaxQty == 0 || qty <= t.MaxQty) {
			return t, true
		}
	}
	return Tier{}, false
}
