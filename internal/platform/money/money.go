// Package money provides KES rounding and display helpers.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// Scale is the number of fractional digits stored for monetary values.
const Scale = 2

var (
	kenya = language.MustParse("en-KE")
	kes   = currency.MustParseISO("KES")
)

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(Scale).InexactFloat64()
}

// Dec converts a float into a decimal rounded to the monetary scale.
func Dec(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(Scale)
}

// FormatKES renders an amount as "KES 1,234.50" using en-KE grouping.
func FormatKES(amount float64) string {
	p := message.NewPrinter(kenya)
	return fmt.Sprintf("%s %s", kes, p.Sprint(number.Decimal(Round2(amount), number.Scale(Scale))))
}
