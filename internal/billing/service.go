package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/tagihan-wa/internal/common"
	"github.com/noah-isme/tagihan-wa/internal/events"
	"github.com/noah-isme/tagihan-wa/internal/invoice"
	"github.com/noah-isme/tagihan-wa/internal/lock"
	"github.com/noah-isme/tagihan-wa/internal/money"
	"github.com/noah-isme/tagihan-wa/internal/obs"
	"github.com/noah-isme/tagihan-wa/internal/schedule"
	"github.com/noah-isme/tagihan-wa/internal/store"
)

// Status marks whether a record's totals may be used for scheduling.
type Status string

const (
	StatusVerified    Status = "verified"
	StatusProvisional Status = "provisional"
)

var (
	// ErrProvisional is returned when scheduling against totals the merchant has not confirmed.
	ErrProvisional = errors.New("invoice totals are provisional, confirm them before scheduling payments")
	// ErrScheduleExists is returned when an invoice already carries a schedule.
	ErrScheduleExists = errors.New("invoice already has a payment schedule")
	// ErrNoSchedule is returned when a payment arrives for an unscheduled invoice.
	ErrNoSchedule = errors.New("invoice has no payment schedule")
	// ErrInvoiceExists is returned when submitting an ID that is already stored.
	ErrInvoiceExists = errors.New("invoice already exists")
)

// Verification records how the submitted totals compared to the recomputed ones.
type Verification struct {
	IsAccurate        bool             `json:"isAccurate"`
	Difference        float64          `json:"difference"`
	ClaimedGrandTotal *float64         `json:"claimedGrandTotal"`
	Claimed           *invoice.Claimed `json:"claimed,omitempty"`
	Warnings          []string         `json:"warnings"`
	VerifiedAt        time.Time        `json:"verifiedAt"`
	ConfirmedAt       *time.Time       `json:"confirmedAt,omitempty"`
}

// Record is the persisted invoice document. Calculations always holds the
// recomputed totals, never the submitted ones.
type Record struct {
	Invoice         invoice.Invoice           `json:"invoice"`
	Calculations    invoice.Calculations      `json:"calculations"`
	Verification    Verification              `json:"verification"`
	Status          Status                    `json:"status"`
	PaymentSchedule *schedule.PaymentSchedule `json:"paymentSchedule,omitempty"`
	UpdatedAt       time.Time                 `json:"updatedAt"`
}

// Defaults holds merchant-wide fallbacks applied when a request omits them.
type Defaults struct {
	Currency   string
	TaxEnabled bool
	TaxRate    float64
	Schedule   schedule.Options
}

// CalculateRequest asks for totals without persisting anything.
type CalculateRequest struct {
	Items   []invoice.LineItem `json:"items"`
	Options *invoice.Options   `json:"options,omitempty"`
}

// ScheduleRequest overrides the default schedule terms.
type ScheduleRequest struct {
	DownPaymentPercentage *float64   `json:"downPaymentPercentage,omitempty" validate:"omitempty,gt=0,lte=100"`
	DownPaymentDays       *int       `json:"downPaymentDays,omitempty" validate:"omitempty,gte=0"`
	FinalPaymentDays      *int       `json:"finalPaymentDays,omitempty" validate:"omitempty,gte=0"`
	InvoiceDate           *time.Time `json:"invoiceDate,omitempty"`
}

// PaymentRequest records an incoming payment.
type PaymentRequest struct {
	Amount money.Number `json:"amount"`
	Date   *time.Time   `json:"date,omitempty"`
}

// Service verifies, persists and schedules invoices.
type Service struct {
	Store    store.Store
	Locker   lock.Locker
	Validate *validator.Validate
	Logger   zerolog.Logger
	Now      func() time.Time
	LockTTL  time.Duration
	Defaults Defaults
	// Events receives lifecycle events after each committed change. Optional.
	Events *events.Bus

	local lock.Local
}

const recordPrefix = "invoice:"

// recordKey namespaces ids per merchant so one merchant's ids never collide
// with, or reveal, another's.
func recordKey(merchant, id string) string {
	if merchant == "" {
		return recordPrefix + id
	}
	return recordPrefix + merchant + ":" + id
}

func merchantOf(ctx context.Context) string {
	merchant, _ := common.MerchantID(ctx)
	return merchant
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) calculator() invoice.Calculator {
	return invoice.Calculator{Now: s.now, DefaultTaxRate: s.Defaults.TaxRate}
}

func (s *Service) defaultOptions() invoice.Options {
	opts := invoice.Options{
		TaxEnabled: s.Defaults.TaxEnabled,
		Currency:   money.NormalizeCurrency(s.Defaults.Currency),
	}
	if s.Defaults.TaxRate > 0 {
		opts.TaxRate = invoice.Rate(s.Defaults.TaxRate)
	}
	return opts
}

// Quote calculates totals for an ad-hoc item list.
func (s *Service) Quote(ctx context.Context, req CalculateRequest) invoice.Result {
	_, span := otel.Tracer("billing.Service").Start(ctx, "BillingService.Quote")
	defer span.End()

	opts := s.defaultOptions()
	if req.Options != nil {
		opts = *req.Options
		if opts.Currency == "" {
			opts.Currency = s.Defaults.Currency
		}
	}
	var res invoice.Result
	if err := s.check(opts); err != nil {
		res = invoice.Result{Success: false, Error: err.Error(), Err: err}
	} else {
		res = s.calculator().CalculateInvoiceTotal(req.Items, opts)
	}
	s.observeCalculation(res)
	span.SetAttributes(attribute.Bool("invoice.success", res.Success), attribute.Int("invoice.items", len(req.Items)))
	if !res.Success {
		span.SetStatus(codes.Error, res.Error)
	}
	return res
}

// Verify recomputes inv's totals and compares them with the submitted ones.
func (s *Service) Verify(ctx context.Context, inv invoice.Invoice) (invoice.RecalculationResult, error) {
	_, span := otel.Tracer("billing.Service").Start(ctx, "BillingService.Verify")
	defer span.End()

	if inv.Calculations != nil && inv.Calculations.Currency == "" && s.Defaults.Currency != "" {
		claimed := *inv.Calculations
		claimed.Currency = s.Defaults.Currency
		inv.Calculations = &claimed
	}
	res, err := s.calculator().RecalculateInvoice(inv)
	switch {
	case err != nil || res.Err != nil:
		obs.CountResult(obs.InvoiceRecalculationTotal, "fault")
	case res.IsAccurate:
		obs.CountResult(obs.InvoiceRecalculationTotal, "accurate")
	default:
		obs.CountResult(obs.InvoiceRecalculationTotal, "mismatch")
		if obs.InvoiceRecalculationDifference != nil {
			obs.InvoiceRecalculationDifference.Observe(res.Difference)
		}
	}
	if err != nil {
		span.RecordError(err)
		return res, err
	}
	span.SetAttributes(
		attribute.Bool("invoice.accurate", res.IsAccurate),
		attribute.Float64("invoice.difference", res.Difference),
	)
	return res, nil
}

// Submit verifies inv and persists it with the recomputed totals. Records
// whose submitted grand total disagrees are stored as provisional.
func (s *Service) Submit(ctx context.Context, inv invoice.Invoice) (Record, error) {
	ctx, span := otel.Tracer("billing.Service").Start(ctx, "BillingService.Submit")
	defer span.End()

	verification, err := s.Verify(ctx, inv)
	if err != nil {
		return Record{}, err
	}
	calc, ok := verification.Authoritative()
	if !ok {
		return Record{}, verification.Err
	}

	now := s.now()
	if inv.ID == "" {
		inv.ID = uuid.NewString()
	}
	// ownership comes from the caller, never from the extracted body
	inv.MerchantID = merchantOf(ctx)
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = now
	}
	claimed := inv.Calculations
	inv.Calculations = nil

	rec := Record{
		Invoice:      inv,
		Calculations: calc,
		Verification: Verification{
			IsAccurate: verification.IsAccurate,
			Difference: verification.Difference,
			Claimed:    claimed,
			Warnings:   verification.Warnings,
			VerifiedAt: now,
		},
		Status:    StatusProvisional,
		UpdatedAt: now,
	}
	if claimed != nil && claimed.GrandTotal.Valid {
		total := claimed.GrandTotal.Value
		rec.Verification.ClaimedGrandTotal = &total
	}
	if verification.IsAccurate {
		rec.Status = StatusVerified
	}
	span.SetAttributes(attribute.String("invoice.id", inv.ID), attribute.String("invoice.status", string(rec.Status)))

	err = s.withLock(ctx, inv.ID, func(ctx context.Context) error {
		if _, err := s.Store.Get(ctx, recordKey(inv.MerchantID, inv.ID)); err == nil {
			return fmt.Errorf("invoice %s: %w", inv.ID, ErrInvoiceExists)
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return s.save(ctx, rec)
	})
	if err != nil {
		span.RecordError(err)
		return Record{}, err
	}
	s.Logger.Info().
		Str("invoice_id", inv.ID).
		Str("merchant_id", inv.MerchantID).
		Str("status", string(rec.Status)).
		Float64("grand_total", calc.GrandTotal).
		Float64("difference", verification.Difference).
		Msg("invoice submitted")
	s.emit(ctx, events.TopicInvoiceSubmitted, rec, map[string]any{
		"status":     rec.Status,
		"grandTotal": calc.GrandTotal,
		"difference": verification.Difference,
	})
	return rec, nil
}

// Get loads a stored record.
func (s *Service) Get(ctx context.Context, id string) (Record, error) {
	return s.load(ctx, id)
}

// ConfirmTotals marks a provisional record as verified after the merchant
// has accepted the recomputed totals. Confirming a verified record is a no-op.
func (s *Service) ConfirmTotals(ctx context.Context, id string) (Record, error) {
	ctx, span := otel.Tracer("billing.Service").Start(ctx, "BillingService.ConfirmTotals")
	defer span.End()
	span.SetAttributes(attribute.String("invoice.id", id))

	var (
		out       Record
		confirmed bool
	)
	err := s.withLock(ctx, id, func(ctx context.Context) error {
		rec, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if rec.Status == StatusVerified {
			out = rec
			return nil
		}
		now := s.now()
		rec.Status = StatusVerified
		rec.Verification.ConfirmedAt = &now
		rec.UpdatedAt = now
		if err := s.save(ctx, rec); err != nil {
			return err
		}
		out, confirmed = rec, true
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return Record{}, err
	}
	if confirmed {
		s.emit(ctx, events.TopicInvoiceConfirmed, out, map[string]any{"grandTotal": out.Calculations.GrandTotal})
	}
	return out, nil
}

// CreateSchedule splits the record's verified grand total into a down
// payment and remaining balance.
func (s *Service) CreateSchedule(ctx context.Context, id string, req ScheduleRequest) (Record, []string, error) {
	ctx, span := otel.Tracer("billing.Service").Start(ctx, "BillingService.CreateSchedule")
	defer span.End()
	span.SetAttributes(attribute.String("invoice.id", id))

	if err := s.check(req); err != nil {
		obs.CountResult(obs.PaymentScheduleTotal, "invalid")
		return Record{}, nil, err
	}

	var (
		out      Record
		warnings []string
	)
	err := s.withLock(ctx, id, func(ctx context.Context) error {
		rec, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if rec.Status != StatusVerified {
			return ErrProvisional
		}
		if rec.PaymentSchedule != nil {
			return ErrScheduleExists
		}
		opts := s.scheduleOptions(rec, req)
		built, w, err := schedule.Build(rec.Calculations.GrandTotal, opts)
		if err != nil {
			return err
		}
		rec.PaymentSchedule = &built
		rec.UpdatedAt = s.now()
		if err := s.save(ctx, rec); err != nil {
			return err
		}
		out, warnings = rec, w
		return nil
	})
	if err != nil {
		obs.CountResult(obs.PaymentScheduleTotal, "rejected")
		span.RecordError(err)
		return Record{}, nil, err
	}
	obs.CountResult(obs.PaymentScheduleTotal, "created")
	s.Logger.Info().
		Str("invoice_id", id).
		Float64("down_payment", out.PaymentSchedule.DownPayment.Amount).
		Float64("remaining_balance", out.PaymentSchedule.RemainingBalance.Amount).
		Msg("payment schedule created")
	s.emit(ctx, events.TopicScheduleCreated, out, out.PaymentSchedule)
	return out, warnings, nil
}

func (s *Service) scheduleOptions(rec Record, req ScheduleRequest) schedule.Options {
	opts := s.Defaults.Schedule
	if opts.DownPaymentPercentage == 0 {
		def := schedule.DefaultOptions()
		opts.DownPaymentPercentage = def.DownPaymentPercentage
		if opts.FinalPaymentDays == 0 && opts.DownPaymentDays == 0 {
			opts.FinalPaymentDays = def.FinalPaymentDays
		}
	}
	if req.DownPaymentPercentage != nil {
		opts.DownPaymentPercentage = *req.DownPaymentPercentage
	}
	if req.DownPaymentDays != nil {
		opts.DownPaymentDays = *req.DownPaymentDays
	}
	if req.FinalPaymentDays != nil {
		opts.FinalPaymentDays = *req.FinalPaymentDays
	}
	opts.InvoiceDate = rec.Invoice.CreatedAt
	if req.InvoiceDate != nil {
		opts.InvoiceDate = *req.InvoiceDate
	}
	opts.Currency = rec.Calculations.Currency
	return opts
}

// ApplyPayment records a payment against the record's schedule. Concurrent
// payments for the same invoice are serialised so none is lost.
func (s *Service) ApplyPayment(ctx context.Context, id string, req PaymentRequest) (Record, error) {
	ctx, span := otel.Tracer("billing.Service").Start(ctx, "BillingService.ApplyPayment")
	defer span.End()
	span.SetAttributes(attribute.String("invoice.id", id))

	amount, err := money.ValidateNumber(req.Amount, "paymentAmount", false)
	if err != nil {
		obs.CountResult(obs.PaymentApplicationTotal, "invalid")
		return Record{}, err
	}

	var out Record
	err = s.withLock(ctx, id, func(ctx context.Context) error {
		rec, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		if rec.PaymentSchedule == nil {
			return ErrNoSchedule
		}
		date := s.now()
		if req.Date != nil {
			date = req.Date.UTC()
		}
		updated, err := schedule.UpdatePaymentStatus(*rec.PaymentSchedule, amount, date)
		if err != nil {
			return err
		}
		rec.PaymentSchedule = &updated
		rec.UpdatedAt = s.now()
		if err := s.save(ctx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		obs.CountResult(obs.PaymentApplicationTotal, "rejected")
		span.RecordError(err)
		s.Logger.Warn().Err(err).Str("invoice_id", id).Float64("amount", amount).Msg("payment rejected")
		return Record{}, err
	}
	status := out.PaymentSchedule.PaymentStatus
	obs.CountResult(obs.PaymentApplicationTotal, string(status.Status))
	span.SetAttributes(attribute.String("payment.status", string(status.Status)))
	s.Logger.Info().
		Str("invoice_id", id).
		Float64("amount", amount).
		Float64("total_paid", status.TotalPaid).
		Float64("remaining", status.RemainingAmount).
		Str("payment_status", string(status.Status)).
		Msg("payment applied")
	s.emit(ctx, events.TopicPaymentApplied, out, map[string]any{
		"amount":    amount,
		"totalPaid": status.TotalPaid,
		"remaining": status.RemainingAmount,
		"status":    status.Status,
	})
	if status.Status == schedule.StatusPaid {
		s.emit(ctx, events.TopicInvoicePaid, out, map[string]any{"totalPaid": status.TotalPaid})
	}
	return out, nil
}

// Summary renders a record's amounts for display.
func (s *Service) Summary(ctx context.Context, id, locale string) (Summary, error) {
	rec, err := s.load(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	return NewSummary(rec, locale), nil
}

func (s *Service) withLock(ctx context.Context, id string, fn func(context.Context) error) error {
	var locker lock.Locker = &s.local
	if s.Locker != nil {
		locker = s.Locker
	}
	return locker.WithLock(ctx, recordKey(merchantOf(ctx), id), s.LockTTL, fn)
}

func (s *Service) load(ctx context.Context, id string) (Record, error) {
	if s.Store == nil {
		return Record{}, errors.New("billing: store not configured")
	}
	raw, err := s.Store.Get(ctx, recordKey(merchantOf(ctx), id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Record{}, fmt.Errorf("invoice %s: %w", id, store.ErrNotFound)
		}
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("decode invoice %s: %w", id, err)
	}
	if rec.Invoice.MerchantID != merchantOf(ctx) {
		return Record{}, fmt.Errorf("invoice %s: %w", id, store.ErrNotFound)
	}
	return rec, nil
}

// emit publishes after the change is stored; failures are logged only.
func (s *Service) emit(ctx context.Context, topic string, rec Record, payload any) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, topic, rec.Invoice.ID, rec.Invoice.MerchantID, payload); err != nil {
		s.Logger.Warn().Err(err).Str("topic", topic).Str("invoice_id", rec.Invoice.ID).Msg("emit invoice event")
	}
}

func (s *Service) save(ctx context.Context, rec Record) error {
	if s.Store == nil {
		return errors.New("billing: store not configured")
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode invoice %s: %w", rec.Invoice.ID, err)
	}
	return s.Store.Put(ctx, recordKey(rec.Invoice.MerchantID, rec.Invoice.ID), raw)
}

func (s *Service) observeCalculation(res invoice.Result) {
	if !res.Success {
		obs.CountResult(obs.InvoiceCalculationTotal, "fault")
		return
	}
	obs.CountResult(obs.InvoiceCalculationTotal, "ok")
	for _, w := range res.Validation.Warnings {
		obs.CountResult(obs.InvoiceWarningsTotal, w)
	}
}
