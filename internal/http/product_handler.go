package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/trendora/storefront/internal/products"
)

type ProductHandler struct {
	repo    products.RepoInterface
	timeout time.Duration
}

func NewProductHandler(repo products.RepoInterface, timeout time.Duration) *ProductHandler {
	return &ProductHandler{
		repo:    repo,
		timeout: timeout,
	}
}

// GET /api/v1/products?category=...
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	list, err := h.repo.ListProducts(ctx, r.URL.Query().Get("category"))
	if err != nil {
		handleProductsError(w, err)
		return
	}
	if list == nil {
		list = []*products.Product{}
	}

	respondJSON(w, http.StatusOK, list)
}

// GET /api/v1/products/{product_id}
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	product, err := h.repo.GetProduct(ctx, chi.URLParam(r, "product_id"))
	if err != nil {
		handleProductsError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, product)
}
