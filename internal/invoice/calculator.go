package invoice

import (
	"errors"
	"fmt"
	"strings"

	"github.com/noah-isme/tagihan-wa/internal/money"
)

var (
	// ErrNegativeGrandTotal is returned when adjustments exceed the invoice value.
	ErrNegativeGrandTotal = errors.New("grand total cannot be negative")
	// ErrDiscountExceedsSubtotal is returned when a fixed discount is larger than the subtotal.
	ErrDiscountExceedsSubtotal = errors.New("discount amount cannot exceed subtotal")
)

// LineTotal returns round(quantity * unitPrice). Quantity must be positive;
// a zero unit price is allowed for free items.
func LineTotal(quantity, unitPrice any) (float64, error) {
	return lineTotal(quantity, unitPrice, "quantity", "unitPrice")
}

func lineTotal(quantity, unitPrice any, qtyField, priceField string) (float64, error) {
	qty, err := money.ValidateNumber(quantity, qtyField, false)
	if err != nil {
		return 0, err
	}
	price, err := money.ValidateNumber(unitPrice, priceField, true)
	if err != nil {
		return 0, err
	}
	return money.Mul(qty, price), nil
}

// Subtotal sums the line totals of items. An empty list yields zero.
func Subtotal(items []LineItem) (float64, error) {
	totals := make([]float64, 0, len(items))
	for i, item := range items {
		field := fmt.Sprintf("items[%d]", i)
		if !item.Quantity.Present() || (item.Quantity.Valid && item.Quantity.Value == 0) {
			return 0, money.Structural(field, "item %s is missing a quantity", describe(item, i))
		}
		if !item.UnitPrice.Present() {
			return 0, money.Structural(field, "item %s is missing a unit price", describe(item, i))
		}
		total, err := lineTotal(item.Quantity, item.UnitPrice, field+".quantity", field+".unitPrice")
		if err != nil {
			return 0, err
		}
		totals = append(totals, total)
	}
	return money.Sum(totals...), nil
}

func describe(item LineItem, index int) string {
	if name := strings.TrimSpace(item.Name); name != "" {
		return fmt.Sprintf("%q", name)
	}
	return fmt.Sprintf("#%d", index+1)
}

// Tax returns round(subtotal * rate / 100). An absent or zero rate means no
// tax and is not an error.
func Tax(subtotal float64, rate *float64) (float64, error) {
	if rate == nil || *rate == 0 {
		return 0, nil
	}
	base, err := money.ValidateNumber(subtotal, "subtotal", true)
	if err != nil {
		return 0, err
	}
	r, err := money.ValidateNumber(*rate, "taxRate", true)
	if err != nil {
		return 0, err
	}
	if r > 100 {
		return 0, money.Validation("taxRate", "cannot exceed 100")
	}
	return money.Percent(base, r, money.Places), nil
}

// Discount resolves the single active discount. A positive amount wins over
// a rate; the two are never summed.
func Discount(subtotal, rate, amount float64) (float64, DiscountType, error) {
	base, err := money.ValidateNumber(subtotal, "subtotal", true)
	if err != nil {
		return 0, DiscountNone, err
	}
	amt, err := money.ValidateNumber(amount, "discountAmount", true)
	if err != nil {
		return 0, DiscountNone, err
	}
	if amt > 0 {
		if money.Cmp(amt, base) > 0 {
			return 0, DiscountNone, money.Violation(ErrDiscountExceedsSubtotal)
		}
		return money.Round(amt), DiscountAmount, nil
	}
	r, err := money.ValidateNumber(rate, "discountRate", true)
	if err != nil {
		return 0, DiscountNone, err
	}
	if r == 0 {
		return 0, DiscountNone, nil
	}
	if r > 100 {
		return 0, DiscountNone, money.Validation("discountRate", "cannot exceed 100")
	}
	return money.Percent(base, r, money.Places), DiscountPercentage, nil
}

// GrandTotal returns round(subtotal + tax + shipping - discount) and fails
// rather than clamping when the result is negative.
func GrandTotal(subtotal, taxAmount, shippingCost, discount float64) (float64, error) {
	parts := []struct {
		name  string
		value float64
	}{
		{"subtotal", subtotal},
		{"taxAmount", taxAmount},
		{"shippingCost", shippingCost},
		{"discount", discount},
	}
	for _, p := range parts {
		if _, err := money.ValidateNumber(p.value, p.name, true); err != nil {
			return 0, err
		}
	}
	total := money.Sub(money.Sum(subtotal, taxAmount, shippingCost), discount)
	if total < 0 {
		return 0, money.Violation(ErrNegativeGrandTotal)
	}
	return total, nil
}
