package invoice

import (
	"errors"
	"time"

	"github.com/noah-isme/tagihan-wa/internal/money"
)

// ErrEmptyItems is returned when an invoice is calculated without line items.
var ErrEmptyItems = errors.New("items cannot be empty")

// Calculator composes the line, adjustment and total steps. The zero value is
// ready to use; it holds no mutable state and is safe for concurrent use.
type Calculator struct {
	Now                 func() time.Time
	DefaultTaxRate      float64
	LargeTotalThreshold float64
}

var defaultCalculator Calculator

// CalculateInvoiceTotal calculates items with the zero-value Calculator.
func CalculateInvoiceTotal(items []LineItem, opts Options) Result {
	return defaultCalculator.CalculateInvoiceTotal(items, opts)
}

// Calculate is the fail-fast form of CalculateInvoiceTotal.
func Calculate(items []LineItem, opts Options) (Calculations, []string, error) {
	return defaultCalculator.Calculate(items, opts)
}

// CalculateInvoiceTotal never returns an error: faults are reported through
// Result.Success and Result.Error so batches of untrusted invoices can be
// processed without per-item error plumbing.
func (c Calculator) CalculateInvoiceTotal(items []LineItem, opts Options) Result {
	calc, warnings, err := c.Calculate(items, opts)
	if err != nil {
		return Result{Success: false, Error: err.Error(), Err: err}
	}
	return Result{
		Success:      true,
		Calculations: &calc,
		Validation:   &Validation{Warnings: warnings},
	}
}

// Calculate runs subtotal, tax, discount and grand total in order, rounding
// after every step, and returns advisory warnings alongside the totals.
func (c Calculator) Calculate(items []LineItem, opts Options) (Calculations, []string, error) {
	if len(items) == 0 {
		return Calculations{}, nil, &money.Error{Kind: money.KindStructuralInvalidity, Message: ErrEmptyItems.Error(), Err: ErrEmptyItems}
	}
	subtotal, err := Subtotal(items)
	if err != nil {
		return Calculations{}, nil, err
	}

	rate := c.taxRate(opts)
	taxAmount := 0.0
	if opts.TaxEnabled {
		taxAmount, err = Tax(subtotal, &rate)
		if err != nil {
			return Calculations{}, nil, err
		}
	}

	shipping, err := money.ValidateNumber(opts.ShippingCost, "shippingCost", true)
	if err != nil {
		return Calculations{}, nil, err
	}
	shipping = money.Round(shipping)

	discount, discountType, err := Discount(subtotal, opts.DiscountRate, opts.DiscountAmount)
	if err != nil {
		return Calculations{}, nil, err
	}

	grandTotal, err := GrandTotal(subtotal, taxAmount, shipping, discount)
	if err != nil {
		return Calculations{}, nil, err
	}

	calc := Calculations{
		Subtotal:     subtotal,
		TaxAmount:    taxAmount,
		TaxRate:      rate,
		TaxEnabled:   opts.TaxEnabled,
		ShippingCost: shipping,
		Discount:     discount,
		DiscountType: discountType,
		GrandTotal:   grandTotal,
		Currency:     money.NormalizeCurrency(opts.Currency),
		ItemCount:    len(items),
		CalculatedAt: c.now(),
	}
	if discountType == DiscountPercentage {
		calc.DiscountRate = opts.DiscountRate
	}
	warnings := c.warnings(calc)
	if discountType == DiscountAmount && opts.DiscountRate > 0 {
		warnings = append(warnings, "discount rate ignored because a fixed discount amount is set")
	}
	return calc, warnings, nil
}

func (c Calculator) warnings(calc Calculations) []string {
	warnings := []string{}
	if calc.GrandTotal == 0 {
		warnings = append(warnings, "grand total is zero")
	}
	if calc.Subtotal > 0 && calc.Discount > calc.Subtotal*0.5 {
		warnings = append(warnings, "discount is more than 50% of subtotal")
	}
	if calc.ShippingCost > calc.Subtotal {
		warnings = append(warnings, "shipping cost exceeds subtotal")
	}
	if calc.TaxAmount == 0 {
		warnings = append(warnings, "no tax applied")
	}
	if calc.GrandTotal > c.largeTotal() {
		warnings = append(warnings, "grand total is unusually large, please double-check")
	}
	return warnings
}

func (c Calculator) taxRate(opts Options) float64 {
	if opts.TaxRate != nil {
		return *opts.TaxRate
	}
	if c.DefaultTaxRate > 0 {
		return c.DefaultTaxRate
	}
	return DefaultTaxRate
}

func (c Calculator) largeTotal() float64 {
	if c.LargeTotalThreshold > 0 {
		return c.LargeTotalThreshold
	}
	return LargeTotalThreshold
}

func (c Calculator) now() time.Time {
	if c.Now != nil {
		return c.Now().UTC()
	}
	return time.Now().UTC()
}
