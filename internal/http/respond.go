package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/trendora/storefront/internal/checkout"
	"github.com/trendora/storefront/internal/orders"
	"github.com/trendora/storefront/internal/products"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: "",
	})
}

// handleCheckoutError maps orchestrator failures onto the error taxonomy:
// validation blocks the step, transient failures are retryable, and the
// reconciliation gap gets its own distinct code so the UI can route the user
// to support instead of a retry button.
func handleCheckoutError(w http.ResponseWriter, err error) {
	var vErr *checkout.ValidationError
	switch {
	case errors.As(err, &vErr):
		respondError(w, http.StatusUnprocessableEntity, "validation_failed", vErr.Error())
	case errors.Is(err, checkout.ErrSessionNotFound):
		respondError(w, http.StatusNotFound, "not_found", "checkout session not found")
	case errors.Is(err, checkout.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, "empty_cart", "cart is empty, nothing to checkout")
	case errors.Is(err, checkout.IllegalStepError):
		respondError(w, http.StatusConflict, "illegal_step", "operation not allowed in the current checkout step")
	case errors.Is(err, checkout.ErrPaymentPending):
		respondError(w, http.StatusConflict, "payment_pending", "a payment attempt is already in progress")
	case errors.Is(err, checkout.ErrNoPaymentPending):
		respondError(w, http.StatusConflict, "no_payment_pending", "no payment attempt is in progress")
	case errors.Is(err, checkout.ErrPaymentNotRecorded):
		respondError(w, http.StatusBadGateway, "payment_not_recorded",
			"payment succeeded but the order could not be recorded, contact support")
	case errors.Is(err, checkout.ErrPaymentFailed):
		respondError(w, http.StatusBadGateway, "payment_failed", "payment failed, you can retry")
	case errors.Is(err, checkout.ErrOrderPersist):
		respondError(w, http.StatusServiceUnavailable, "order_persist_failed", "could not record the order, you can retry")
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func handleOrdersError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orders.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, "not_found", "order not found")
	case errors.Is(err, orders.ErrIllegalTransition):
		respondError(w, http.StatusConflict, "illegal_transition", err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func handleProductsError(w http.ResponseWriter, err error) {
	if errors.Is(err, products.ErrProductNotFound) {
		respondError(w, http.StatusNotFound, "not_found", "product not found")
		return
	}
	respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}
