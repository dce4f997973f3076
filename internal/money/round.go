package money

import "github.com/shopspring/decimal"

// Places is the precision every monetary composition step is rounded to.
const Places = 2

// Round rounds x to two decimal places, half away from zero.
func Round(x float64) float64 {
	return RoundTo(x, Places)
}

// RoundTo rounds x to the given number of decimal places, half away from zero.
func RoundTo(x float64, places int32) float64 {
	return decimal.NewFromFloat(x).Round(places).InexactFloat64()
}

// Mul returns round(a * b).
func Mul(a, b float64) float64 {
	return decimal.NewFromFloat(a).Mul(decimal.NewFromFloat(b)).Round(Places).InexactFloat64()
}

// Percent returns round(base * rate / 100) at the given precision.
func Percent(base, rate float64, places int32) float64 {
	return decimal.NewFromFloat(base).
		Mul(decimal.NewFromFloat(rate)).
		Div(decimal.NewFromInt(100)).
		Round(places).
		InexactFloat64()
}

// Sum returns the rounded sum of values.
func Sum(values ...float64) float64 {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(decimal.NewFromFloat(v))
	}
	return total.Round(Places).InexactFloat64()
}

// Sub returns round(a - b). The subtraction is exact, so Sub(a, b) + b == a
// whenever a and b already carry at most two decimals.
func Sub(a, b float64) float64 {
	return decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Round(Places).InexactFloat64()
}

// Cmp compares a and b after rounding both to two decimals.
func Cmp(a, b float64) int {
	return decimal.NewFromFloat(a).Round(Places).Cmp(decimal.NewFromFloat(b).Round(Places))
}

// AbsDiff returns |a - b| without float residue.
func AbsDiff(a, b float64) float64 {
	return decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Abs().InexactFloat64()
}
