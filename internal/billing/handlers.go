package billing

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/noah-isme/tagihan-wa/internal/common"
	"github.com/noah-isme/tagihan-wa/internal/invoice"
	"github.com/noah-isme/tagihan-wa/internal/money"
	"github.com/noah-isme/tagihan-wa/internal/resilience"
	"github.com/noah-isme/tagihan-wa/internal/store"
)

// Handler serves the invoice HTTP API on top of Service.
type Handler struct {
	Svc    *Service
	Logger zerolog.Logger
}

// Mount registers the invoice routes on r. Mutating routes are wrapped with
// writes, typically the idempotency middleware.
func (h *Handler) Mount(r chi.Router, writes ...func(http.Handler) http.Handler) {
	r.Route("/invoices", func(r chi.Router) {
		r.Post("/quote", h.Quote)
		r.Post("/verify", h.Verify)
		r.With(writes...).Post("/", h.Submit)
		r.Get("/{id}", h.Get)
		r.Get("/{id}/summary", h.Summary)
		r.With(writes...).Post("/{id}/confirm", h.Confirm)
		r.With(writes...).Post("/{id}/schedule", h.Schedule)
		r.With(writes...).Post("/{id}/payments", h.Payment)
	})
}

func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req CalculateRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	res := h.Svc.Quote(r.Context(), req)
	if !res.Success {
		h.writeError(w, res.Err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": res})
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var inv invoice.Invoice
	if err := common.DecodeJSON(r, &inv); err != nil {
		common.WriteError(w, err)
		return
	}
	res, err := h.Svc.Verify(r.Context(), inv)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": res})
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var inv invoice.Invoice
	if err := common.DecodeJSON(r, &inv); err != nil {
		common.WriteError(w, err)
		return
	}
	rec, err := h.Svc.Submit(r.Context(), inv)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/invoices/"+rec.Invoice.ID)
	common.JSON(w, http.StatusCreated, map[string]any{"data": rec})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	rec, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rec})
}

func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	summary, err := h.Svc.Summary(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("locale"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": summary})
}

func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	rec, err := h.Svc.ConfirmTotals(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rec})
}

func (h *Handler) Schedule(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req ScheduleRequest
	if r.ContentLength != 0 {
		if err := common.DecodeJSON(r, &req); err != nil {
			common.WriteError(w, err)
			return
		}
	}
	rec, warnings, err := h.Svc.CreateSchedule(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{
		"data":       rec,
		"validation": warningsBody(warnings),
	})
}

func (h *Handler) Payment(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w) {
		return
	}
	var req PaymentRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	rec, err := h.Svc.ApplyPayment(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rec})
}

func (h *Handler) ready(w http.ResponseWriter) bool {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, common.CodeInternal, "billing service not configured", nil)
		return false
	}
	return true
}

// writeError maps service faults onto the canonical error body.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	common.WriteError(w, h.toAppError(err))
}

func (h *Handler) toAppError(err error) error {
	switch {
	case err == nil:
		return common.NewAppError(common.CodeInternal, "unknown error", http.StatusInternalServerError, nil)
	case common.IsAppError(err):
		return err
	case errors.Is(err, store.ErrNotFound):
		return common.NewAppError(common.CodeNotFound, "invoice not found", http.StatusNotFound, err)
	case errors.Is(err, ErrProvisional), errors.Is(err, ErrScheduleExists), errors.Is(err, ErrNoSchedule):
		return common.NewAppError(common.CodeBusinessRule, err.Error(), http.StatusConflict, err)
	case errors.Is(err, ErrInvoiceExists):
		return common.NewAppError(common.CodeConflict, err.Error(), http.StatusConflict, err)
	case errors.Is(err, context.DeadlineExceeded):
		return common.NewAppError(common.CodeConflict, "invoice is being updated, retry shortly", http.StatusConflict, err)
	case errors.Is(err, resilience.ErrOpenCircuit):
		return common.NewAppError(common.CodeUnavailable, "invoice storage temporarily unavailable", http.StatusServiceUnavailable, err)
	}

	var merr *money.Error
	if errors.As(err, &merr) {
		var details any
		if merr.Field != "" {
			details = map[string]any{"field": merr.Field}
		}
		switch merr.Kind {
		case money.KindInputValidation:
			return common.NewAppError(common.CodeValidation, err.Error(), http.StatusUnprocessableEntity, err).WithDetails(details)
		case money.KindStructuralInvalidity:
			return common.NewAppError(common.CodeInvalidInvoice, err.Error(), http.StatusUnprocessableEntity, err).WithDetails(details)
		case money.KindInvariantViolation:
			return common.NewAppError(common.CodeBusinessRule, err.Error(), http.StatusConflict, err).WithDetails(details)
		}
	}
	h.Logger.Error().Err(err).Msg("billing request failed")
	return err
}

func warningsBody(warnings []string) map[string]any {
	if warnings == nil {
		warnings = []string{}
	}
	return map[string]any{"warnings": warnings}
}
