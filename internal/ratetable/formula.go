package ratetable

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Evaluate converts a carrier's quoted rate into the charged rate using rec's
// pricing fields: the fixed cost and quoted rate, plus the per-weight-unit
// charge above the lower weight limit, plus a percentage of that running
// total rounded to cents. The result is never negative.
//
// A nil record yields zero ("free"), or not applicable (false) when
// limitToConfigured is set.
func Evaluate(rec *Record, quoted, weight decimal.Decimal, limitToConfigured bool) (decimal.Decimal, bool) {
	if rec == nil {
		if limitToConfigured {
			return decimal.Zero, false
		}
		return decimal.Zero, true
	}

	total := rec.AdditionalFixedCost.Add(quoted)

	if rec.RatePerWeightUnit.IsPositive() {
		chargeable := weight.Sub(rec.LowerWeightLimit)
		if chargeable.IsNegative() {
			chargeable = decimal.Zero
		}
		total = total.Add(rec.RatePerWeightUnit.Mul(chargeable))
	}

	if rec.PercentageRateOfSubtotal.IsPositive() {
		total = total.Add(total.Mul(rec.PercentageRateOfSubtotal).Div(hundred).Round(2))
	}

	if total.IsNegative() {
		return decimal.Zero, true
	}
	return total, true
}
