package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/storefront/internal/service"
	apperrors "github.com/utafrali/storefront/pkg/errors"
	"github.com/utafrali/storefront/pkg/httputil"
	"github.com/utafrali/storefront/pkg/validator"
)

// CheckoutHandler handles selection, checkout and payment finalization.
type CheckoutHandler struct {
	service *service.CheckoutService
	logger  *slog.Logger
}

// NewCheckoutHandler creates a new checkout HTTP handler.
func NewCheckoutHandler(svc *service.CheckoutService, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		service: svc,
		logger:  logger,
	}
}

// SetSelection handles PUT /api/v1/cart/selection
func (h *CheckoutHandler) SetSelection(w http.ResponseWriter, r *http.Request) {
	var req service.SelectionInput
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	quote := h.service.Select(r.Context(), sessionFromContext(r.Context()), identityFromRequest(r), req)
	httputil.WriteData(w, http.StatusOK, quote)
}

// GetQuote handles GET /api/v1/checkout/quote
func (h *CheckoutHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	quote := h.service.Quote(r.Context(), sessionFromContext(r.Context()), identityFromRequest(r))
	httputil.WriteData(w, http.StatusOK, quote)
}

// BeginCheckout handles POST /api/v1/checkout
func (h *CheckoutHandler) BeginCheckout(w http.ResponseWriter, r *http.Request) {
	var req service.BeginCheckoutInput
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	co, err := h.service.Begin(r.Context(), sessionFromContext(r.Context()), identityFromRequest(r), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, co)
}

// Finalize handles POST /api/v1/checkout/finalize
func (h *CheckoutHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	var req service.FinalizeInput
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, r, err)
		return
	}

	res, err := h.service.Finalize(r.Context(), sessionFromContext(r.Context()), identityFromRequest(r), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, res)
}

// Unmount handles DELETE /api/v1/checkout/finalize/{reference}
func (h *CheckoutHandler) Unmount(w http.ResponseWriter, r *http.Request) {
	reference := chi.URLParam(r, "reference")
	if reference == "" {
		httputil.WriteError(w, r, apperrors.InvalidInput("reference is required"), h.logger)
		return
	}

	if !h.service.Unmount(r.Context(), sessionFromContext(r.Context()), reference) {
		httputil.WriteError(w, r, apperrors.NotFound("finalization", reference), h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
