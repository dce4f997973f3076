package billing_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/tagihan-wa/internal/billing"
	"github.com/noah-isme/tagihan-wa/internal/common"
	"github.com/noah-isme/tagihan-wa/internal/events"
	"github.com/noah-isme/tagihan-wa/internal/invoice"
	"github.com/noah-isme/tagihan-wa/internal/lock"
	"github.com/noah-isme/tagihan-wa/internal/money"
	"github.com/noah-isme/tagihan-wa/internal/schedule"
	"github.com/noah-isme/tagihan-wa/internal/store"
)

var fixedNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newService(t *testing.T) *billing.Service {
	t.Helper()
	return &billing.Service{
		Store:  store.NewMemory(),
		Locker: &lock.Local{},
		Now:    func() time.Time { return fixedNow },
		Defaults: billing.Defaults{
			Currency: "IDR",
			TaxRate:  invoice.DefaultTaxRate,
			Schedule: schedule.DefaultOptions(),
		},
	}
}

func claimedInvoice(grandTotal float64) invoice.Invoice {
	taxOn := true
	return invoice.Invoice{
		InvoiceNumber: "INV-20250301-001",
		CustomerName:  "Bu Sari",
		Items: []invoice.LineItem{
			invoice.Item("Kaos polos", 2, 100000),
			invoice.Item("Topi", 1, 50000),
		},
		Calculations: &invoice.Claimed{
			TaxEnabled:   &taxOn,
			TaxRate:      money.N(11),
			ShippingCost: money.N(20000),
			GrandTotal:   money.N(grandTotal),
			Currency:     "IDR",
		},
	}
}

func plainInvoice(id string, price float64) invoice.Invoice {
	return invoice.Invoice{
		ID:           id,
		Items:        []invoice.LineItem{invoice.Item("Paket katering", 1, price)},
		Calculations: &invoice.Claimed{GrandTotal: money.N(price)},
	}
}

func TestQuote(t *testing.T) {
	svc := newService(t)
	res := svc.Quote(context.Background(), billing.CalculateRequest{
		Items:   []invoice.LineItem{invoice.Item("Kaos polos", 2, 100000), invoice.Item("Topi", 1, 50000)},
		Options: &invoice.Options{TaxEnabled: true, TaxRate: invoice.Rate(11), ShippingCost: 20000},
	})
	require.True(t, res.Success, res.Error)
	require.Equal(t, 297500.0, res.Calculations.GrandTotal)
	require.Equal(t, "IDR", res.Calculations.Currency)
	require.Equal(t, fixedNow, res.Calculations.CalculatedAt)

	res = svc.Quote(context.Background(), billing.CalculateRequest{Items: []invoice.LineItem{invoice.Item("kopi", 1, 10000)}})
	require.True(t, res.Success)
	require.False(t, res.Calculations.TaxEnabled)
	require.Equal(t, 10000.0, res.Calculations.GrandTotal)
}

func TestQuoteRejectsInvalidOptions(t *testing.T) {
	svc := newService(t)
	res := svc.Quote(context.Background(), billing.CalculateRequest{
		Items:   []invoice.LineItem{invoice.Item("kopi", 1, 10000)},
		Options: &invoice.Options{TaxEnabled: true, TaxRate: invoice.Rate(150)},
	})
	require.False(t, res.Success)
	require.Nil(t, res.Calculations)
	require.Equal(t, money.KindInputValidation, money.KindOf(res.Err))
	require.Equal(t, "taxRate", money.FieldOf(res.Err))

	res = svc.Quote(context.Background(), billing.CalculateRequest{})
	require.False(t, res.Success)
	require.ErrorIs(t, res.Err, invoice.ErrEmptyItems)
}

func TestSubmitAccurateInvoiceIsVerified(t *testing.T) {
	svc := newService(t)
	ctx := common.WithMerchantID(context.Background(), "toko-sari")

	rec, err := svc.Submit(ctx, claimedInvoice(297500))
	require.NoError(t, err)
	require.NotEmpty(t, rec.Invoice.ID)
	require.Equal(t, "toko-sari", rec.Invoice.MerchantID)
	require.Equal(t, billing.StatusVerified, rec.Status)
	require.Equal(t, 297500.0, rec.Calculations.GrandTotal)
	require.True(t, rec.Verification.IsAccurate)
	require.Equal(t, 297500.0, *rec.Verification.ClaimedGrandTotal)
	require.Nil(t, rec.Invoice.Calculations)
	require.Equal(t, fixedNow, rec.Invoice.CreatedAt)

	loaded, err := svc.Get(ctx, rec.Invoice.ID)
	require.NoError(t, err)
	require.Equal(t, rec.Status, loaded.Status)
	require.Equal(t, rec.Calculations.GrandTotal, loaded.Calculations.GrandTotal)
	require.Equal(t, rec.Invoice.Items, loaded.Invoice.Items)
	require.True(t, rec.Invoice.CreatedAt.Equal(loaded.Invoice.CreatedAt))
}

func TestSubmitMismatchIsProvisionalUntilConfirmed(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	rec, err := svc.Submit(ctx, claimedInvoice(300000))
	require.NoError(t, err)
	require.Equal(t, billing.StatusProvisional, rec.Status)
	require.Equal(t, 297500.0, rec.Calculations.GrandTotal)
	require.Equal(t, 2500.0, rec.Verification.Difference)
	require.Equal(t, 300000.0, rec.Verification.Claimed.GrandTotal.Value)

	_, _, err = svc.CreateSchedule(ctx, rec.Invoice.ID, billing.ScheduleRequest{})
	require.ErrorIs(t, err, billing.ErrProvisional)

	confirmed, err := svc.ConfirmTotals(ctx, rec.Invoice.ID)
	require.NoError(t, err)
	require.Equal(t, billing.StatusVerified, confirmed.Status)
	require.NotNil(t, confirmed.Verification.ConfirmedAt)

	again, err := svc.ConfirmTotals(ctx, rec.Invoice.ID)
	require.NoError(t, err)
	require.Equal(t, billing.StatusVerified, again.Status)

	pct := 30.0
	scheduled, warnings, err := svc.CreateSchedule(ctx, rec.Invoice.ID, billing.ScheduleRequest{DownPaymentPercentage: &pct})
	require.NoError(t, err)
	require.Empty(t, warnings)
	require.Equal(t, 89250.0, scheduled.PaymentSchedule.DownPayment.Amount)
	require.Equal(t, 208250.0, scheduled.PaymentSchedule.RemainingBalance.Amount)
	require.Equal(t, fixedNow.AddDate(0, 0, 30), scheduled.PaymentSchedule.RemainingBalance.DueDate)

	_, _, err = svc.CreateSchedule(ctx, rec.Invoice.ID, billing.ScheduleRequest{})
	require.ErrorIs(t, err, billing.ErrScheduleExists)
}

func TestSubmitRejectsFaults(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, invoice.Invoice{Calculations: &invoice.Claimed{GrandTotal: money.N(1000)}})
	require.ErrorIs(t, err, invoice.ErrNoItems)

	inv := plainInvoice("", 10000)
	inv.Calculations.Discount = money.N(15000)
	_, err = svc.Submit(ctx, inv)
	require.ErrorIs(t, err, invoice.ErrDiscountExceedsSubtotal)
	require.Equal(t, money.KindInvariantViolation, money.KindOf(err))

	_, err = svc.Submit(ctx, plainInvoice("inv-dup", 10000))
	require.NoError(t, err)
	_, err = svc.Submit(ctx, plainInvoice("inv-dup", 10000))
	require.ErrorIs(t, err, billing.ErrInvoiceExists)
}

func TestApplyPaymentPartialThenPaid(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	_, err := svc.Submit(ctx, plainInvoice("inv-1", 100000))
	require.NoError(t, err)

	_, err = svc.ApplyPayment(ctx, "inv-1", billing.PaymentRequest{Amount: money.N(10000)})
	require.ErrorIs(t, err, billing.ErrNoSchedule)

	pct := 30.0
	_, _, err = svc.CreateSchedule(ctx, "inv-1", billing.ScheduleRequest{DownPaymentPercentage: &pct})
	require.NoError(t, err)

	rec, err := svc.ApplyPayment(ctx, "inv-1", billing.PaymentRequest{Amount: money.N(60000)})
	require.NoError(t, err)
	require.Equal(t, schedule.StatusPartial, rec.PaymentSchedule.PaymentStatus.Status)
	require.Equal(t, schedule.StatusPaid, rec.PaymentSchedule.DownPayment.Status)

	_, err = svc.ApplyPayment(ctx, "inv-1", billing.PaymentRequest{Amount: money.N(50000)})
	require.ErrorIs(t, err, schedule.ErrOverpayment)

	paidAt := fixedNow.AddDate(0, 0, 10)
	rec, err = svc.ApplyPayment(ctx, "inv-1", billing.PaymentRequest{Amount: money.N(40000), Date: &paidAt})
	require.NoError(t, err)
	status := rec.PaymentSchedule.PaymentStatus
	require.Equal(t, schedule.StatusPaid, status.Status)
	require.Zero(t, status.RemainingAmount)
	require.Len(t, status.PaymentHistory, 2)
	require.True(t, paidAt.Equal(*status.LastPaymentDate))

	stored, err := svc.Get(ctx, "inv-1")
	require.NoError(t, err)
	require.Len(t, stored.PaymentSchedule.PaymentStatus.PaymentHistory, 2)
}

func TestApplyPaymentValidatesAmount(t *testing.T) {
	svc := newService(t)
	_, err := svc.ApplyPayment(context.Background(), "inv-1", billing.PaymentRequest{})
	require.Error(t, err)
	require.Equal(t, "paymentAmount", money.FieldOf(err))

	_, err = svc.ApplyPayment(context.Background(), "missing", billing.PaymentRequest{Amount: money.N(1)})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestConcurrentPaymentsAreSerialised(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	_, err := svc.Submit(ctx, plainInvoice("inv-busy", 100000))
	require.NoError(t, err)
	_, _, err = svc.CreateSchedule(ctx, "inv-busy", billing.ScheduleRequest{})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.ApplyPayment(ctx, "inv-busy", billing.PaymentRequest{Amount: money.N(10000)})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	rec, err := svc.Get(ctx, "inv-busy")
	require.NoError(t, err)
	require.Equal(t, 100000.0, rec.PaymentSchedule.PaymentStatus.TotalPaid)
	require.Equal(t, schedule.StatusPaid, rec.PaymentSchedule.PaymentStatus.Status)
	require.Len(t, rec.PaymentSchedule.PaymentStatus.PaymentHistory, 10)
}

func TestGetIsScopedToMerchant(t *testing.T) {
	svc := newService(t)
	owner := common.WithMerchantID(context.Background(), "toko-sari")
	rec, err := svc.Submit(owner, claimedInvoice(297500))
	require.NoError(t, err)

	_, err = svc.Get(common.WithMerchantID(context.Background(), "toko-lain"), rec.Invoice.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = svc.Get(owner, rec.Invoice.ID)
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), rec.Invoice.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSubmitDoesNotRevealOtherMerchantsIDs(t *testing.T) {
	svc := newService(t)
	sari := common.WithMerchantID(context.Background(), "toko-sari")
	lain := common.WithMerchantID(context.Background(), "toko-lain")

	first := plainInvoice("inv-shared", 100000)
	first.MerchantID = "toko-lain"
	_, err := svc.Submit(sari, first)
	require.NoError(t, err)

	other, err := svc.Submit(lain, plainInvoice("inv-shared", 50000))
	require.NoError(t, err)
	require.Equal(t, "toko-lain", other.Invoice.MerchantID)

	_, err = svc.Submit(sari, plainInvoice("inv-shared", 100000))
	require.ErrorIs(t, err, billing.ErrInvoiceExists)

	mine, err := svc.Get(sari, "inv-shared")
	require.NoError(t, err)
	require.Equal(t, "toko-sari", mine.Invoice.MerchantID)
	require.Equal(t, 100000.0, mine.Calculations.GrandTotal)

	theirs, err := svc.Get(lain, "inv-shared")
	require.NoError(t, err)
	require.Equal(t, 50000.0, theirs.Calculations.GrandTotal)
}

func TestSummaryFormatsAmounts(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	rec, err := svc.Submit(ctx, claimedInvoice(297500))
	require.NoError(t, err)
	_, _, err = svc.CreateSchedule(ctx, rec.Invoice.ID, billing.ScheduleRequest{})
	require.NoError(t, err)

	summary, err := svc.Summary(ctx, rec.Invoice.ID, "")
	require.NoError(t, err)
	require.Equal(t, "Rp 250.000", summary.Subtotal)
	require.Equal(t, "Rp 27.500", summary.Tax)
	require.Equal(t, "Rp 297.500", summary.GrandTotal)
	require.Equal(t, "Rp 148.750", summary.DownPayment)
	require.Equal(t, "Rp 148.750", summary.RemainingBalance)
	require.Equal(t, "pending", summary.PaymentStatus)
	require.Equal(t, "Bu Sari", summary.CustomerName)
}

func TestLifecycleEmitsEvents(t *testing.T) {
	svc := newService(t)
	rec := &events.Recorder{}
	svc.Events = &events.Bus{Sink: rec}
	ctx := common.WithMerchantID(context.Background(), "toko-sari")

	_, err := svc.Submit(ctx, plainInvoice("inv-ev", 100000))
	require.NoError(t, err)
	_, err = svc.ConfirmTotals(ctx, "inv-ev")
	require.NoError(t, err)
	_, _, err = svc.CreateSchedule(ctx, "inv-ev", billing.ScheduleRequest{})
	require.NoError(t, err)
	_, err = svc.ApplyPayment(ctx, "inv-ev", billing.PaymentRequest{Amount: money.N(100000)})
	require.NoError(t, err)

	var topics []string
	for _, ev := range rec.Events {
		topics = append(topics, ev.Topic)
		require.Equal(t, "inv-ev", ev.AggregateID)
		require.Equal(t, "toko-sari", ev.MerchantID)
	}
	// confirming an already verified record emits nothing
	require.Equal(t, []string{
		events.TopicInvoiceSubmitted,
		events.TopicScheduleCreated,
		events.TopicPaymentApplied,
		events.TopicInvoicePaid,
	}, topics)
}
