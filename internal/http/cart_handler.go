package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/trendora/storefront/internal/cart"
	"github.com/trendora/storefront/internal/domain"
	"github.com/trendora/storefront/internal/identity"
	"github.com/trendora/storefront/internal/products"
)

type CartHandler struct {
	carts        *cart.Service
	products     products.RepoInterface
	provider     identity.Provider
	pollInterval time.Duration
	awaitTimeout time.Duration
	timeout      time.Duration
}

func NewCartHandler(
	carts *cart.Service,
	productsRepo products.RepoInterface,
	provider identity.Provider,
	pollInterval, awaitTimeout, timeout time.Duration,
) *CartHandler {
	return &CartHandler{
		carts:        carts,
		products:     productsRepo,
		provider:     provider,
		pollInterval: pollInterval,
		awaitTimeout: awaitTimeout,
		timeout:      timeout,
	}
}

type AddItemRequestDTO struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Variant   string `json:"variant,omitempty"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type MergeRequestDTO struct {
	GuestID string `json:"guest_id"`
}

type CartResponseDTO struct {
	Lines     []domain.CartLine `json:"lines"`
	Total     float64           `json:"total"`
	UnitCount int               `json:"unit_count"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, ok := ownerFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing cart owner")
		return
	}

	c, err := h.carts.GetCart(ctx, owner)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load cart")
		return
	}

	respondJSON(w, http.StatusOK, CartResponseDTO{
		Lines:     c.Lines,
		Total:     c.Total(),
		UnitCount: c.UnitCount(),
	})
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, ok := ownerFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing cart owner")
		return
	}

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}
	if req.Quantity <= 0 || req.Quantity > 99 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	// Name and price come from the catalog, never from the client.
	product, err := h.products.GetProduct(ctx, req.ProductID)
	if err != nil {
		handleProductsError(w, err)
		return
	}

	line := domain.CartLine{
		ProductID: product.ID,
		Name:      product.Name,
		UnitPrice: product.Price,
		Quantity:  req.Quantity,
		Variant:   req.Variant,
		ImageURL:  product.ImageURL,
	}

	if err := h.carts.AddItem(ctx, owner, line); err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to add item")
		return
	}

	h.respondCart(ctx, w, owner, http.StatusCreated)
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, ok := ownerFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing cart owner")
		return
	}

	productID := chi.URLParam(r, "product_id")
	if productID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	// Zero or negative removes the line.
	if err := h.carts.UpdateQuantity(ctx, owner, productID, req.Quantity); err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to update quantity")
		return
	}

	h.respondCart(ctx, w, owner, http.StatusOK)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, ok := ownerFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing cart owner")
		return
	}

	productID := chi.URLParam(r, "product_id")
	if productID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}

	if err := h.carts.RemoveItem(ctx, owner, productID); err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to remove item")
		return
	}

	h.respondCart(ctx, w, owner, http.StatusOK)
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	owner, ok := ownerFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing cart owner")
		return
	}

	if err := h.carts.Clear(ctx, owner); err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to clear cart")
		return
	}

	respondJSON(w, http.StatusOK, CartResponseDTO{Lines: []domain.CartLine{}})
}

// MergeGuestCart is called by the client after an external sign-in redirect.
// The session record may lag the redirect, so the handler waits for it with
// a bounded poll before folding the guest cart in.
func (h *CartHandler) MergeGuestCart(w http.ResponseWriter, r *http.Request) {
	token := sessionTokenFromRequest(r)
	if token == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing session token")
		return
	}

	var req MergeRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.GuestID == "" {
		req.GuestID = guestIDFromRequest(r)
	}
	if req.GuestID == "" {
		respondError(w, http.StatusBadRequest, "missing_guest_id", "guest_id is required")
		return
	}

	watcher := identity.NewWatcher(h.provider, token, h.pollInterval, h.awaitTimeout)
	session, err := watcher.Await(r.Context())
	if err != nil {
		if errors.Is(err, identity.ErrAwaitTimeout) {
			respondError(w, http.StatusGatewayTimeout, "timeout", "sign-in did not complete in time")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to resolve session")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.carts.MergeGuestCart(ctx, req.GuestID, session.UserID); err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to merge carts")
		return
	}
	clearGuestCookie(w)

	h.respondCart(ctx, w, domain.Owner{Mode: domain.OwnerModeUser, ID: session.UserID}, http.StatusOK)
}

func (h *CartHandler) respondCart(ctx context.Context, w http.ResponseWriter, owner domain.Owner, status int) {
	c, err := h.carts.GetCart(ctx, owner)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to load cart")
		return
	}
	respondJSON(w, status, CartResponseDTO{
		Lines:     c.Lines,
		Total:     c.Total(),
		UnitCount: c.UnitCount(),
	})
}
