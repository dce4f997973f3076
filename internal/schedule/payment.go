package schedule

import (
	"time"

	"github.com/noah-isme/tagihan-wa/internal/money"
)

// UpdateResult is the outcome of ApplyPayment.
type UpdateResult struct {
	Success         bool             `json:"success"`
	UpdatedSchedule *PaymentSchedule `json:"updatedSchedule"`
	Error           string           `json:"error,omitempty"`

	Err error `json:"-"`
}

// ApplyPayment wraps UpdatePaymentStatus in a Result.
func ApplyPayment(s PaymentSchedule, amount float64, date time.Time) UpdateResult {
	updated, err := UpdatePaymentStatus(s, amount, date)
	if err != nil {
		return UpdateResult{Success: false, Error: err.Error(), Err: err}
	}
	return UpdateResult{Success: true, UpdatedSchedule: &updated}
}

// UpdatePaymentStatus records a payment and returns the updated copy; s is
// never modified. Overpayment is rejected rather than clamped. The aggregate
// status only moves forward (pending, partial, paid) and the two leg
// statuses flip to paid once cumulative payments cover them.
func UpdatePaymentStatus(s PaymentSchedule, amount float64, date time.Time) (PaymentSchedule, error) {
	paid, err := money.ValidateNumber(amount, "paymentAmount", false)
	if err != nil {
		return PaymentSchedule{}, err
	}
	paid = money.Round(paid)
	if paid == 0 {
		return PaymentSchedule{}, money.Validation("paymentAmount", "must be at least 0.01")
	}
	totalPaid := money.Sum(s.PaymentStatus.TotalPaid, paid)
	if money.Cmp(totalPaid, s.TotalAmount) > 0 {
		return PaymentSchedule{}, &money.Error{
			Kind:    money.KindInvariantViolation,
			Field:   "paymentAmount",
			Message: ErrOverpayment.Error(),
			Err:     ErrOverpayment,
		}
	}
	if date.IsZero() {
		date = time.Now()
	}
	date = date.UTC()

	out := s.Clone()
	out.PaymentStatus.PaymentHistory = append(out.PaymentStatus.PaymentHistory, Payment{
		Amount: paid,
		Date:   date,
		Type:   PaymentTypePayment,
	})
	out.PaymentStatus.TotalPaid = totalPaid
	out.PaymentStatus.RemainingAmount = money.Sub(out.TotalAmount, totalPaid)
	out.PaymentStatus.LastPaymentDate = &date

	switch {
	case money.Cmp(totalPaid, out.TotalAmount) >= 0:
		out.PaymentStatus.Status = StatusPaid
	case totalPaid > 0:
		out.PaymentStatus.Status = StatusPartial
	default:
		out.PaymentStatus.Status = StatusPending
	}
	if money.Cmp(totalPaid, out.DownPayment.Amount) >= 0 {
		out.DownPayment.Status = StatusPaid
	}
	if out.PaymentStatus.Status == StatusPaid {
		out.RemainingBalance.Status = StatusPaid
	}
	return out, nil
}

// Outstanding reports what is still owed on each leg.
func (s PaymentSchedule) Outstanding() (downPayment, remaining float64) {
	paid := s.PaymentStatus.TotalPaid
	downPayment = money.Sub(s.DownPayment.Amount, paid)
	if downPayment < 0 {
		downPayment = 0
	}
	remaining = money.Sub(s.TotalAmount, paid)
	if remaining > s.RemainingBalance.Amount {
		remaining = s.RemainingBalance.Amount
	}
	return downPayment, remaining
}
