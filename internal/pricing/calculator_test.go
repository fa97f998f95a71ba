package pricing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCalculateTiers(t *testing.T) {
	metrics, err := Calculate(Input{
		CostPriceExclVAT:    100,
		VATRatePercent:      16,
		CashbackRatePercent: 2,
		Tiers: []Tier{
			{MinQty: 1, MaxQty: 9, SellingPriceInclVAT: 174},
			{MinQty: 10, MaxQty: 49, SellingPriceInclVAT: 145},
			{MinQty: 50, SellingPriceInclVAT: 116},
		},
	})
	require.NoError(t, err)
	require.Len(t, metrics, 3)

	first := metrics[0]
	require.Equal(t, 150.0, first.SellingPriceExclVAT)
	require.Equal(t, 50.0, first.GrossProfit)
	require.Equal(t, 50.0, first.GPPercent)
	require.Equal(t, 28.74, first.NPPercent)
	require.Equal(t, 3.48, first.CashbackAmount)

	second := metrics[1]
	require.Equal(t, 125.0, second.SellingPriceExclVAT)
	require.Equal(t, 25.0, second.GPPercent)

	last := metrics[2]
	require.Equal(t, 100.0, last.SellingPriceExclVAT)
	require.Zero(t, last.GrossProfit)
	require.Zero(t, last.GPPercent)
	require.Zero(t, last.NPPercent)
}

func TestMetricsDegenerateDenominators(t *testing.T) {
	zeroCost := Metrics(0, 16, 5, Tier{MinQty: 1, SellingPriceInclVAT: 116})
	require.Zero(t, zeroCost.GPPercent)
	require.Equal(t, 100.0, zeroCost.SellingPriceExclVAT)
	require.InDelta(t, 86.21, zeroCost.NPPercent, 0.001)
	require.False(t, math.IsNaN(zeroCost.GPPercent))

	zeroPrice := Metrics(50, 16, 5, Tier{MinQty: 1})
	require.Zero(t, zeroPrice.NPPercent)
	require.Equal(t, -100.0, zeroPrice.GPPercent)
	require.Zero(t, zeroPrice.CashbackAmount)

	both := Metrics(0, 0, 0, Tier{MinQty: 1})
	require.Zero(t, both.GPPercent)
	require.Zero(t, both.NPPercent)
}

func TestCalculateRejectsBadInput(t *testing.T) {
	_, err := Calculate(Input{CostPriceExclVAT: 10})
	require.ErrorIs(t, err, ErrTierCount)

	_, err = Calculate(Input{CostPriceExclVAT: 10, Tiers: make([]Tier, 4)})
	require.ErrorIs(t, err, ErrTierCount)

	_, err = Calculate(Input{CostPriceExclVAT: -1, Tiers: []Tier{{MinQty: 1, SellingPriceInclVAT: 5}}})
	require.ErrorIs(t, err, ErrNegativeInput)

	_, err = Calculate(Input{Tiers: []Tier{{MinQty: 1, SellingPriceInclVAT: -5}}})
	require.ErrorIs(t, err, ErrNegativeInput)
}

func TestValidateTiers(t *testing.T) {
	require.NoError(t, Validate([]Tier{{MinQty: 1, MaxQty: 5}, {MinQty: 6}}))
	require.NoError(t, Validate([]Tier{{MinQty: 1}}))

	require.ErrorIs(t, Validate(nil), ErrTierCount)
	require.ErrorIs(t, Validate([]Tier{{MinQty: 0}}), ErrTierRange)
	require.ErrorIs(t, Validate([]Tier{{MinQty: 1}, {MinQty: 5}}), ErrTierRange)
	require.ErrorIs(t, Validate([]Tier{{MinQty: 5, MaxQty: 2}}), ErrTierRange)
	require.ErrorIs(t, Validate([]Tier{{MinQty: 1, MaxQty: 10}, {MinQty: 10, MaxQty: 20}}), ErrTierRange)
}

func TestSelect(t *testing.T) {
	tiers := []Tier{
		{MinQty: 1, MaxQty: 9, SellingPriceInclVAT: 174},
		{MinQty: 10, MaxQty: 49, SellingPriceInclVAT: 145},
		{MinQty: 50, SellingPriceInclVAT: 116},
	}
	tier, ok := Select(tiers, 1)
	require.True(t, ok)
	require.Equal(t, 174.0, tier.SellingPriceInclVAT)

	tier, ok = Select(tiers, 49)
	require.True(t, ok)
	require.Equal(t, 145.0, tier.SellingPriceInclVAT)

	tier, ok = Select(tiers, 1000)
	require.True(t, ok)
	require.Equal(t, 116.0, tier.SellingPriceInclVAT)

	_, ok = Select(tiers, 0)
	require.False(t, ok)
}
