package schedule

import (
	"errors"
	"time"

	"github.com/noah-isme/tagihan-wa/internal/money"
)

// ScheduleTypeDownPayment is the only schedule type produced by this package.
const ScheduleTypeDownPayment = "down_payment"

// Status is the aggregate payment state of a schedule.
type Status string

const (
	StatusPending Status = "pending"
	StatusPartial Status = "partial"
	StatusPaid    Status = "paid"
)

// PaymentTypePayment marks a history entry as an incoming payment.
const PaymentTypePayment = "payment"

var (
	// ErrOverpayment is returned when a payment would exceed the schedule total.
	ErrOverpayment = errors.New("payment exceeds remaining balance")
	// ErrInvalidPercentage is returned for a down payment outside (0, 100].
	ErrInvalidPercentage = errors.New("down payment percentage must be greater than 0 and at most 100")
)

// Installment is one leg of the schedule.
type Installment struct {
	Percentage float64   `json:"percentage,omitempty"`
	Amount     float64   `json:"amount"`
	DueDate    time.Time `json:"dueDate"`
	Status     Status    `json:"status"`
}

// Payment is an immutable history record.
type Payment struct {
	Amount float64   `json:"amount"`
	Date   time.Time `json:"date"`
	Type   string    `json:"type"`
}

// PaymentStatus aggregates what has been paid so far.
type PaymentStatus struct {
	Status          Status     `json:"status"`
	TotalPaid       float64    `json:"totalPaid"`
	RemainingAmount float64    `json:"remainingAmount"`
	LastPaymentDate *time.Time `json:"lastPaymentDate"`
	PaymentHistory  []Payment  `json:"paymentHistory"`
}

// PaymentSchedule splits a verified grand total into a down payment and a
// remaining balance. DownPayment.Amount + RemainingBalance.Amount always
// equals TotalAmount.
type PaymentSchedule struct {
	ScheduleType     string        `json:"scheduleType"`
	TotalAmount      float64       `json:"totalAmount"`
	Currency         string        `json:"currency"`
	DownPayment      Installment   `json:"downPayment"`
	RemainingBalance Installment   `json:"remainingBalance"`
	PaymentStatus    PaymentStatus `json:"paymentStatus"`
	CreatedAt        time.Time     `json:"createdAt"`
}

// Clone returns a deep copy of s.
func (s PaymentSchedule) Clone() PaymentSchedule {
	out := s
	if s.PaymentStatus.LastPaymentDate != nil {
		last := *s.PaymentStatus.LastPaymentDate
		out.PaymentStatus.LastPaymentDate = &last
	}
	out.PaymentStatus.PaymentHistory = make([]Payment, len(s.PaymentStatus.PaymentHistory))
	copy(out.PaymentStatus.PaymentHistory, s.PaymentStatus.PaymentHistory)
	return out
}

// Options configures CalculatePaymentSchedule.
type Options struct {
	DownPaymentPercentage float64   `json:"downPaymentPercentage" validate:"gt=0,lte=100"`
	DownPaymentDays       int       `json:"downPaymentDays" validate:"gte=0"`
	FinalPaymentDays      int       `json:"finalPaymentDays" validate:"gte=0"`
	InvoiceDate           time.Time `json:"invoiceDate"`
	Currency              string    `json:"currency" validate:"omitempty,len=3,alpha"`
}

// DefaultOptions returns a 50% down payment due immediately with the balance
// due after 30 days.
func DefaultOptions() Options {
	return Options{
		DownPaymentPercentage: 50,
		DownPaymentDays:       0,
		FinalPaymentDays:      30,
		Currency:              money.DefaultCurrency,
	}
}

// Validation carries non-fatal advisories.
type Validation struct {
	Warnings []string `json:"warnings"`
}

// Result is the outcome of CalculatePaymentSchedule.
type Result struct {
	Success         bool             `json:"success"`
	PaymentSchedule *PaymentSchedule `json:"paymentSchedule"`
	Validation      *Validation      `json:"validation,omitempty"`
	Error           string           `json:"error,omitempty"`

	Err error `json:"-"`
}

// CalculatePaymentSchedule never returns an error; faults are reported on
// the Result.
func CalculatePaymentSchedule(grandTotal float64, opts Options) Result {
	s, warnings, err := Build(grandTotal, opts)
	if err != nil {
		return Result{Success: false, Error: err.Error(), Err: err}
	}
	return Result{Success: true, PaymentSchedule: &s, Validation: &Validation{Warnings: warnings}}
}

// Build is the fail-fast form of CalculatePaymentSchedule. The down payment
// is rounded to the currency's settlement precision and the remaining
// balance is obtained by exact subtraction so the two legs reconcile.
func Build(grandTotal float64, opts Options) (PaymentSchedule, []string, error) {
	total, err := money.ValidateNumber(grandTotal, "grandTotal", false)
	if err != nil {
		return PaymentSchedule{}, nil, err
	}
	pct, err := money.ValidateNumber(opts.DownPaymentPercentage, "downPaymentPercentage", false)
	if err != nil {
		return PaymentSchedule{}, nil, err
	}
	if pct > 100 {
		return PaymentSchedule{}, nil, &money.Error{Kind: money.KindInputValidation, Field: "downPaymentPercentage", Message: ErrInvalidPercentage.Error(), Err: ErrInvalidPercentage}
	}
	if opts.DownPaymentDays < 0 || opts.FinalPaymentDays < 0 {
		return PaymentSchedule{}, nil, money.Validation("paymentDays", "cannot be negative")
	}

	currency := money.NormalizeCurrency(opts.Currency)
	total = money.Round(total)
	downPayment := money.Percent(total, pct, money.Precision(currency))
	remaining := money.Sub(total, downPayment)

	issued := opts.InvoiceDate
	if issued.IsZero() {
		issued = time.Now()
	}
	issued = issued.UTC()

	s := PaymentSchedule{
		ScheduleType: ScheduleTypeDownPayment,
		TotalAmount:  total,
		Currency:     currency,
		DownPayment: Installment{
			Percentage: pct,
			Amount:     downPayment,
			DueDate:    issued.AddDate(0, 0, opts.DownPaymentDays),
			Status:     StatusPending,
		},
		RemainingBalance: Installment{
			Amount:  remaining,
			DueDate: issued.AddDate(0, 0, opts.FinalPaymentDays),
			Status:  StatusPending,
		},
		PaymentStatus: PaymentStatus{
			Status:          StatusPending,
			RemainingAmount: total,
			PaymentHistory:  []Payment{},
		},
		CreatedAt: issued,
	}
	return s, warnings(s), nil
}

func warnings(s PaymentSchedule) []string {
	out := []string{}
	if s.DownPayment.Percentage < 10 {
		out = append(out, "down payment is less than 10% of total")
	}
	if s.DownPayment.Percentage > 80 {
		out = append(out, "down payment is more than 80% of total")
	}
	if s.RemainingBalance.Amount > 0 && s.RemainingBalance.Amount < s.TotalAmount*0.05 {
		out = append(out, "remaining balance is very small, consider full payment")
	}
	return out
}
