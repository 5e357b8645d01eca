package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/trendora/storefront/internal/cart"
	"github.com/trendora/storefront/internal/identity"
)

type RouterDeps struct {
	Carts          *cart.Service
	Provider       identity.Provider
	CartHandler    *CartHandler
	Checkout       *CheckoutHandler
	Orders         *OrdersHandler
	Products       *ProductHandler
	AdminKey       string
	RequestTimeout time.Duration
}

func NewRouter(deps RouterDeps) chi.Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Timeout(deps.RequestTimeout))
	r.Use(middleware.Compress(5))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(IdentityMiddleware(deps.Provider, deps.Carts))

		r.Route("/products", func(r chi.Router) {
			r.Get("/", deps.Products.ListProducts)
			r.Get("/{product_id}", deps.Products.GetProduct)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", deps.CartHandler.GetCart)
			r.Delete("/", deps.CartHandler.ClearCart)
			r.Post("/items", deps.CartHandler.AddItem)
			r.Put("/items/{product_id}", deps.CartHandler.UpdateQuantity)
			r.Delete("/items/{product_id}", deps.CartHandler.RemoveItem)
			r.Post("/merge", deps.CartHandler.MergeGuestCart)
		})

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/", deps.Checkout.Begin)
			r.Get("/{session_id}", deps.Checkout.Get)
			r.Delete("/{session_id}", deps.Checkout.Abandon)
			r.Post("/{session_id}/shipping", deps.Checkout.SubmitShipping)
			r.Post("/{session_id}/payment-method", deps.Checkout.SelectPaymentMethod)
			r.Post("/{session_id}/place", deps.Checkout.PlaceOrder)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", deps.Orders.ListOrders)
			r.Get("/{order_id}", deps.Orders.GetOrder)
		})
	})

	// Gateway webhook: signature-authenticated, no identity resolution.
	r.Post("/webhooks/gateway/{session_id}", deps.Checkout.PaymentCallback)

	// Back-office routes
	r.Route("/admin", func(r chi.Router) {
		r.Use(AdminKeyMiddleware(deps.AdminKey))
		r.Patch("/orders/{order_id}/status", deps.Orders.UpdateStatus)
	})

	return r
}
