package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/trendora/storefront/internal/checkout"
	"github.com/trendora/storefront/internal/domain"
	"github.com/trendora/storefront/internal/payment"
	"github.com/trendora/storefront/internal/products"
)

type CheckoutHandler struct {
	orchestrator  *checkout.Orchestrator
	products      products.RepoInterface
	webhookSecret string
	timeout       time.Duration
}

func NewCheckoutHandler(
	orchestrator *checkout.Orchestrator,
	productsRepo products.RepoInterface,
	webhookSecret string,
	timeout time.Duration,
) *CheckoutHandler {
	return &CheckoutHandler{
		orchestrator:  orchestrator,
		products:      productsRepo,
		webhookSecret: webhookSecret,
		timeout:       timeout,
	}
}

type BeginCheckoutRequestDTO struct {
	BuyNow *struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
		Variant   string `json:"variant,omitempty"`
	} `json:"buy_now,omitempty"`
}

type ShippingRequestDTO struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
}

type PaymentMethodRequestDTO struct {
	Method string `json:"method"`
}

type SessionResponseDTO struct {
	ID          string               `json:"id"`
	Step        string               `json:"step"`
	Items       []domain.OrderItem   `json:"items"`
	Quote       checkout.Quote       `json:"quote"`
	Method      domain.PaymentMethod `json:"method"`
	LastError   string               `json:"last_error,omitempty"`
	IntentToken string               `json:"intent_token,omitempty"`
	Order       *domain.Order        `json:"order,omitempty"`
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Begin(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, ok := ownerFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing cart owner")
		return
	}

	var req BeginCheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	var buyNow *domain.CartLine
	if req.BuyNow != nil {
		if req.BuyNow.ProductID == "" {
			respondError(w, http.StatusBadRequest, "invalid_product_id", "buy_now.product_id is required")
			return
		}
		product, err := h.products.GetProduct(ctx, req.BuyNow.ProductID)
		if err != nil {
			handleProductsError(w, err)
			return
		}
		buyNow = &domain.CartLine{
			ProductID: product.ID,
			Name:      product.Name,
			UnitPrice: product.Price,
			Quantity:  req.BuyNow.Quantity,
			Variant:   req.BuyNow.Variant,
			ImageURL:  product.ImageURL,
		}
	}

	session, err := h.orchestrator.Begin(ctx, owner, buyNow)
	if err != nil {
		handleCheckoutError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, h.sessionDTO(session))
}

// GET /api/v1/checkout/{session_id}
func (h *CheckoutHandler) Get(w http.ResponseWriter, r *http.Request) {
	session, ok := h.ownedSession(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, h.sessionDTO(session))
}

// POST /api/v1/checkout/{session_id}/shipping
func (h *CheckoutHandler) SubmitShipping(w http.ResponseWriter, r *http.Request) {
	session, ok := h.ownedSession(w, r)
	if !ok {
		return
	}

	var req ShippingRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	err := h.orchestrator.SubmitShipping(session.ID, domain.ShippingInfo{
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Phone:      req.Phone,
		Email:      req.Email,
		Address:    req.Address,
		City:       req.City,
		PostalCode: req.PostalCode,
	})
	if err != nil {
		handleCheckoutError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, h.sessionDTO(session))
}

// POST /api/v1/checkout/{session_id}/payment-method
func (h *CheckoutHandler) SelectPaymentMethod(w http.ResponseWriter, r *http.Request) {
	session, ok := h.ownedSession(w, r)
	if !ok {
		return
	}

	var req PaymentMethodRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	method := domain.PaymentMethod(req.Method)
	if method != "" && method != domain.PaymentMethodCOD && method != domain.PaymentMethodGateway {
		respondError(w, http.StatusBadRequest, "invalid_method", "method must be cod or gateway")
		return
	}

	if err := h.orchestrator.SelectPaymentMethod(session.ID, method); err != nil {
		handleCheckoutError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, h.sessionDTO(session))
}

// POST /api/v1/checkout/{session_id}/place
func (h *CheckoutHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	session, ok := h.ownedSession(w, r)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	// The DTO carries the outcome either way: the recorded order for COD, or
	// the intent token the client takes to the gateway UI.
	if _, err := h.orchestrator.PlaceOrder(ctx, session.ID); err != nil {
		handleCheckoutError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, h.sessionDTO(session))
}

// POST /webhooks/gateway/{session_id}
// Invoked by the payment gateway, authenticated by signature, not by owner.
func (h *CheckoutHandler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "session_id")

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "could not read body")
		return
	}

	result, err := payment.ParseWebhook(body, r.Header.Get("X-Gateway-Signature"), h.webhookSecret)
	if err != nil {
		if errors.Is(err, payment.ErrBadSignature) {
			respondError(w, http.StatusUnauthorized, "bad_signature", "webhook signature mismatch")
			return
		}
		respondError(w, http.StatusBadRequest, "invalid_request", "malformed webhook payload")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, err := h.orchestrator.ResolveGatewayPayment(ctx, sessionID, result)
	if err != nil {
		handleCheckoutError(w, err)
		return
	}

	if order == nil {
		// Dismissed: no order, session stays in review.
		respondJSON(w, http.StatusOK, map[string]string{"status": "dismissed"})
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// DELETE /api/v1/checkout/{session_id}
func (h *CheckoutHandler) Abandon(w http.ResponseWriter, r *http.Request) {
	session, ok := h.ownedSession(w, r)
	if !ok {
		return
	}
	h.orchestrator.Abandon(session.ID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *CheckoutHandler) ownedSession(w http.ResponseWriter, r *http.Request) (*checkout.Session, bool) {
	owner, ok := ownerFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing cart owner")
		return nil, false
	}

	session, err := h.orchestrator.Get(chi.URLParam(r, "session_id"))
	if err != nil {
		handleCheckoutError(w, err)
		return nil, false
	}
	if session.Owner != owner {
		respondError(w, http.StatusForbidden, "permission_denied", "not your checkout session")
		return nil, false
	}
	return session, true
}

func (h *CheckoutHandler) sessionDTO(s *checkout.Session) SessionResponseDTO {
	snap := s.Snapshot()
	return SessionResponseDTO{
		ID:          snap.ID,
		Step:        snap.Step.String(),
		Items:       snap.Items,
		Quote:       h.orchestrator.Quote(s),
		Method:      snap.Method,
		LastError:   snap.LastError,
		IntentToken: snap.IntentToken,
		Order:       snap.Order,
	}
}
