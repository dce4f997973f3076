package billing

import (
	"github.com/noah-isme/tagihan-wa/internal/money"
)

// Summary is a display-ready view of a record, suitable for a chat reply.
type Summary struct {
	InvoiceID        string `json:"invoiceId"`
	InvoiceNumber    string `json:"invoiceNumber,omitempty"`
	CustomerName     string `json:"customerName,omitempty"`
	Status           Status `json:"status"`
	Currency         string `json:"currency"`
	ItemCount        int    `json:"itemCount"`
	Subtotal         string `json:"subtotal"`
	Tax              string `json:"tax"`
	Shipping         string `json:"shipping"`
	Discount         string `json:"discount"`
	GrandTotal       string `json:"grandTotal"`
	DownPayment      string `json:"downPayment,omitempty"`
	RemainingBalance string `json:"remainingBalance,omitempty"`
	TotalPaid        string `json:"totalPaid,omitempty"`
	Outstanding      string `json:"outstanding,omitempty"`
	PaymentStatus    string `json:"paymentStatus,omitempty"`
}

// NewSummary formats rec's amounts in its currency.
func NewSummary(rec Record, locale string) Summary {
	c := rec.Calculations
	format := func(amount float64) string {
		return money.FormatCurrency(amount, c.Currency, locale)
	}
	out := Summary{
		InvoiceID:     rec.Invoice.ID,
		InvoiceNumber: rec.Invoice.InvoiceNumber,
		CustomerName:  rec.Invoice.CustomerName,
		Status:        rec.Status,
		Currency:      money.NormalizeCurrency(c.Currency),
		ItemCount:     c.ItemCount,
		Subtotal:      format(c.Subtotal),
		Tax:           format(c.TaxAmount),
		Shipping:      format(c.ShippingCost),
		Discount:      format(c.Discount),
		GrandTotal:    format(c.GrandTotal),
	}
	if ps := rec.PaymentSchedule; ps != nil {
		out.DownPayment = format(ps.DownPayment.Amount)
		out.RemainingBalance = format(ps.RemainingBalance.Amount)
		out.TotalPaid = format(ps.PaymentStatus.TotalPaid)
		out.Outstanding = format(ps.PaymentStatus.RemainingAmount)
		out.PaymentStatus = string(ps.PaymentStatus.Status)
	}
	return out
}
