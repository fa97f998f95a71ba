// Package tax classifies line items into VAT classes and aggregates invoice totals.
package tax

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Kind distinguishes VAT-bearing classes from non-VAT and exempt supplies.
type Kind uint8

const (
	KindStandard Kind = iota
	KindNonVAT
	KindExempt
)

// Legacy wire values used by older clients in place of a percentage.
const (
	LegacyNonVAT = -1
	LegacyExempt = -2
)

// Supported VAT rates in percent.
const (
	RateStandard = 16
	RateReduced  = 8
	RateZero     = 0
)

// Class is the tax treatment of a line. The zero value is zero-rated VAT.
type Class struct {
	kind Kind
	rate float64
}

// Standard returns a VAT class. Rates outside the supported set are zero rated.
func Standard(rate float64) Class {
	switch rate {
	case RateStandard, RateReduced:
		return Class{kind: KindStandard, rate: rate}
	default:
		return Class{kind: KindStandard, rate: RateZero}
	}
}

// NonVAT returns the class for supplies outside the VAT net.
func NonVAT() Class { return Class{kind: KindNonVAT} }

// Exempt returns the class for VAT exempt supplies.
func Exempt() Class { return Class{kind: KindExempt} }

// FromPercent maps the legacy numeric representation onto a Class.
func FromPercent(p float64) Class {
	switch p {
	case LegacyNonVAT:
		return NonVAT()
	case LegacyExempt:
		return Exempt()
	default:
		return Standard(p)
	}
}

// Parse accepts a percentage ("16") or a class name ("non_vat", "exempt").
// Anything unrecognised is zero rated.
func Parse(s string) Class {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "non_vat", "nonvat", "non-vat":
		return NonVAT()
	case "exempt":
		return Exempt()
	}
	p, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		return Standard(RateZero)
	}
	return FromPercent(p)
}

// Kind reports the class kind.
func (c Class) Kind() Kind { return c.kind }

// Rate is the VAT percentage, zero for non-VAT and exempt classes.
func (c Class) Rate() float64 {
	if c.kind != KindStandard {
		return 0
	}
	return c.rate
}

// Percent returns the legacy numeric representation.
func (c Class) Percent() float64 {
	switch c.kind {
	case KindNonVAT:
		return LegacyNonVAT
	case KindExempt:
		return LegacyExempt
	default:
		return c.rate
	}
}

// Bucket returns the summary bucket this class accumulates into.
func (c Class) Bucket() BucketKey {
	switch c.kind {
	case KindNonVAT:
		return BucketNonVAT
	case KindExempt:
		return BucketExempt
	}
	switch c.rate {
	case RateStandard:
		return Bucket16
	case RateReduced:
		return Bucket8
	default:
		return Bucket0
	}
}

func (c Class) String() string {
	switch c.kind {
	case KindNonVAT:
		return "non_vat"
	case KindExempt:
		return "exempt"
	default:
		return strconv.FormatFloat(c.rate, 'f', -1, 64) + "%"
	}
}

// MarshalJSON emits the legacy numeric form so existing clients keep working.
func (c Class) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Percent())
}

// UnmarshalJSON accepts a number, a string or null.
func (c *Class) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = Standard(RateZero)
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Parse(s)
		return nil
	}
	var p float64
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = FromPercent(p)
	return nil
}
