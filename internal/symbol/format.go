package symbol

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/reallocbot/internal/domain"
)

// NotOrderable is returned by FormatQuantity in place of a zero quantity.
const NotOrderable = "not-orderable"

// defaultQtyDecimals applies when a rule carries neither a step nor a
// precision.
const defaultQtyDecimals = 8

// FormatQuantity rounds q down to the rule's step size and precision and
// renders it without insignificant trailing zeros. The result never exceeds
// q. Non-positive input, or input that rounds to zero, yields NotOrderable.
func FormatQuantity(q float64, rule domain.VenueInstrumentRule) (string, decimal.Decimal, bool) {
	if q <= 0 || math.IsNaN(q) || math.IsInf(q, 0) {
		return NotOrderable, decimal.Zero, false
	}

	v := decimal.NewFromFloat(q)
	step := decimal.Zero
	if rule.StepSize > 0 {
		step = decimal.NewFromFloat(rule.StepSize)
	}

	decimals := rule.QtyPrecision
	if decimals <= 0 {
		decimals = stepDecimals(step)
		if decimals < 0 {
			decimals = defaultQtyDecimals
		}
	}
	v = v.Truncate(int32(decimals))

	if step.IsPositive() {
		// QuoRem at precision 0 is an exact integer quotient truncated toward
		// zero, so the product is the largest step multiple <= v.
		n, _ := v.QuoRem(step, 0)
		v = n.Mul(step)
	}

	if !v.IsPositive() {
		return NotOrderable, decimal.Zero, false
	}
	return v.String(), v, true
}

// stepDecimals returns the number of decimals a step size implies, or -1
// when no step is set. 0.00100 -> 3, 1 -> 0.
func stepDecimals(step decimal.Decimal) int {
	if !step.IsPositive() {
		return -1
	}
	exp := step.Exponent()
	if exp >= 0 {
		return 0
	}
	return int(-exp)
}

// FormatPrice truncates a price to the rule's display precision.
func FormatPrice(p float64, rule domain.VenueInstrumentRule) string {
	if rule.PricePrecision <= 0 {
		return decimal.NewFromFloat(p).String()
	}
	return decimal.NewFromFloat(p).Truncate(int32(rule.PricePrecision)).String()
}

// CheckOrder rejects quantities the venue would refuse. A failure here means
// an extraction is too small to place; it is classified as ErrOrderRejected.
func CheckOrder(qty decimal.Decimal, price float64, rule domain.VenueInstrumentRule) error {
	if !qty.IsPositive() {
		return fmt.Errorf("symbol: %s on %s: non-positive quantity: %w", rule.NativeSymbol, rule.Venue, domain.ErrOrderRejected)
	}
	if rule.MinQty > 0 && qty.LessThan(decimal.NewFromFloat(rule.MinQty)) {
		return fmt.Errorf("symbol: %s on %s: quantity %s below min %v: %w",
			rule.NativeSymbol, rule.Venue, qty.String(), rule.MinQty, domain.ErrOrderRejected)
	}
	if rule.MinNotional > 0 {
		notional := qty.Mul(decimal.NewFromFloat(price))
		if notional.LessThan(decimal.NewFromFloat(rule.MinNotional)) {
			return fmt.Errorf("symbol: %s on %s: notional %s below min %v: %w",
				rule.NativeSymbol, rule.Venue, notional.StringFixed(2), rule.MinNotional, domain.ErrOrderRejected)
		}
	}
	return nil
}
