package invoice

import (
	"time"

	"github.com/noah-isme/tagihan-wa/internal/money"
)

// DefaultTaxRate is the Indonesian VAT (PPN) rate applied when tax is enabled
// without an explicit rate.
const DefaultTaxRate = 11.0

// LargeTotalThreshold is the grand total above which a warning is emitted.
const LargeTotalThreshold = 100_000_000.0

// Tolerance is the largest grand total divergence still considered accurate.
const Tolerance = 0.01

// LineItem is one invoice line. Name, SKU and Unit are descriptive only.
type LineItem struct {
	Name      string       `json:"name,omitempty"`
	SKU       string       `json:"sku,omitempty"`
	Unit      string       `json:"unit,omitempty"`
	Quantity  money.Number `json:"quantity"`
	UnitPrice money.Number `json:"unitPrice"`
}

// Item builds a line item from plain numbers.
func Item(name string, quantity, unitPrice float64) LineItem {
	return LineItem{Name: name, Quantity: money.N(quantity), UnitPrice: money.N(unitPrice)}
}

// Options configures a calculation. DiscountAmount takes precedence over
// DiscountRate when both are positive.
type Options struct {
	TaxEnabled     bool     `json:"taxEnabled"`
	TaxRate        *float64 `json:"taxRate,omitempty" validate:"omitempty,gte=0,lte=100"`
	ShippingCost   float64  `json:"shippingCost" validate:"gte=0"`
	DiscountRate   float64  `json:"discountRate" validate:"gte=0,lte=100"`
	DiscountAmount float64  `json:"discountAmount" validate:"gte=0"`
	Currency       string   `json:"currency" validate:"omitempty,len=3,alpha"`
}

// DefaultOptions returns the options used when a caller supplies none.
func DefaultOptions() Options {
	rate := DefaultTaxRate
	return Options{TaxRate: &rate, Currency: money.DefaultCurrency}
}

// Rate returns a pointer to rate for use in Options.TaxRate.
func Rate(rate float64) *float64 {
	return &rate
}

// DiscountType records which discount mode produced Calculations.Discount.
type DiscountType string

const (
	DiscountNone       DiscountType = "none"
	DiscountAmount     DiscountType = "amount"
	DiscountPercentage DiscountType = "percentage"
)

// Calculations is the authoritative totals record of an invoice.
type Calculations struct {
	Subtotal     float64      `json:"subtotal"`
	TaxAmount    float64      `json:"taxAmount"`
	TaxRate      float64      `json:"taxRate"`
	TaxEnabled   bool         `json:"taxEnabled"`
	ShippingCost float64      `json:"shippingCost"`
	Discount     float64      `json:"discount"`
	DiscountType DiscountType `json:"discountType"`
	DiscountRate float64      `json:"discountRate"`
	GrandTotal   float64      `json:"grandTotal"`
	Currency     string       `json:"currency"`
	ItemCount    int          `json:"itemCount"`
	CalculatedAt time.Time    `json:"calculatedAt"`
}

// Validation carries non-fatal advisories.
type Validation struct {
	Warnings []string `json:"warnings"`
}

// Result is the outcome of CalculateInvoiceTotal. It never carries both
// Calculations and Error.
type Result struct {
	Success      bool          `json:"success"`
	Calculations *Calculations `json:"calculations"`
	Validation   *Validation   `json:"validation,omitempty"`
	Error        string        `json:"error,omitempty"`

	Err error `json:"-"`
}

// Claimed is the calculations block attached to an externally produced
// invoice. Every figure is untrusted.
type Claimed struct {
	Subtotal     money.Number `json:"subtotal"`
	TaxAmount    money.Number `json:"taxAmount"`
	TaxRate      money.Number `json:"taxRate"`
	TaxEnabled   *bool        `json:"taxEnabled,omitempty"`
	ShippingCost money.Number `json:"shippingCost"`
	Discount     money.Number `json:"discount"`
	DiscountType string       `json:"discountType,omitempty"`
	DiscountRate money.Number `json:"discountRate"`
	GrandTotal   money.Number `json:"grandTotal"`
	Currency     string       `json:"currency,omitempty"`
}

// Invoice is an invoice as produced by the order extractor.
type Invoice struct {
	ID            string     `json:"id,omitempty"`
	InvoiceNumber string     `json:"invoiceNumber,omitempty"`
	MerchantID    string     `json:"merchantId,omitempty"`
	CustomerName  string     `json:"customerName,omitempty"`
	CustomerPhone string     `json:"customerPhone,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	Items         []LineItem `json:"items"`
	Calculations  *Claimed   `json:"calculations,omitempty"`
	CreatedAt     time.Time  `json:"createdAt,omitzero"`
}

// RecalculationResult compares an invoice's claimed totals against totals
// recomputed from its line items. A mismatch is reported, never corrected.
type RecalculationResult struct {
	IsAccurate   bool          `json:"isAccurate"`
	Difference   float64       `json:"difference"`
	Original     *Claimed      `json:"original"`
	Recalculated *Calculations `json:"recalculated"`
	Warnings     []string      `json:"warnings,omitempty"`
	Error        string        `json:"error,omitempty"`

	Err error `json:"-"`
}
