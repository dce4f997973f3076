package invoice

import (
	"errors"
	"strings"

	"github.com/noah-isme/tagihan-wa/internal/money"
)

// ErrNoItems is returned when an invoice carries no line items to recompute from.
var ErrNoItems = errors.New("invoice has no items")

// RecalculateInvoice recalculates inv with the zero-value Calculator.
func RecalculateInvoice(inv Invoice) (RecalculationResult, error) {
	return defaultCalculator.RecalculateInvoice(inv)
}

// RecalculateInvoice recomputes inv's totals from its line items using the
// adjustments found in its claimed calculations, and compares grand totals.
// It only fails when inv has no items; a mismatch or a calculation fault is a
// reportable outcome with IsAccurate false.
func (c Calculator) RecalculateInvoice(inv Invoice) (RecalculationResult, error) {
	if len(inv.Items) == 0 {
		return RecalculationResult{}, &money.Error{Kind: money.KindStructuralInvalidity, Field: "items", Message: ErrNoItems.Error(), Err: ErrNoItems}
	}

	out := RecalculationResult{Original: inv.Calculations}
	res := c.CalculateInvoiceTotal(inv.Items, OptionsFromClaimed(inv.Calculations))
	if !res.Success {
		out.Error = res.Error
		out.Err = res.Err
		return out, nil
	}
	out.Recalculated = res.Calculations
	out.Warnings = res.Validation.Warnings

	var claimed money.Number
	if inv.Calculations != nil {
		claimed = inv.Calculations.GrandTotal
	}
	out.Difference = money.Round(money.AbsDiff(claimed.Or(0), res.Calculations.GrandTotal))
	out.IsAccurate = claimed.Valid && out.Difference < Tolerance
	return out, nil
}

// OptionsFromClaimed derives calculation options from an invoice's claimed
// calculations. Unparsable figures are treated as absent.
func OptionsFromClaimed(claimed *Claimed) Options {
	opts := Options{Currency: money.DefaultCurrency}
	if claimed == nil {
		return opts
	}
	opts.Currency = money.NormalizeCurrency(claimed.Currency)
	if claimed.TaxEnabled != nil {
		opts.TaxEnabled = *claimed.TaxEnabled
	} else {
		opts.TaxEnabled = claimed.TaxAmount.Or(0) > 0
	}
	if claimed.TaxRate.Valid {
		opts.TaxRate = Rate(claimed.TaxRate.Value)
	}
	opts.ShippingCost = claimed.ShippingCost.Or(0)

	switch {
	case strings.EqualFold(claimed.DiscountType, string(DiscountPercentage)) && claimed.DiscountRate.Valid:
		opts.DiscountRate = claimed.DiscountRate.Value
	case claimed.Discount.Valid:
		opts.DiscountAmount = claimed.Discount.Value
	case claimed.DiscountRate.Valid:
		opts.DiscountRate = claimed.DiscountRate.Value
	}
	return opts
}

// Authoritative returns the recomputed calculations that replace the claimed
// block on persistence. ok is false when recalculation faulted.
func (r RecalculationResult) Authoritative() (Calculations, bool) {
	if r.Recalculated == nil {
		return Calculations{}, false
	}
	return *r.Recalculated, true
}
