package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(products *ProductHandler, carts *CartHandler, orders *OrderHandler, checkout *CheckoutHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Get("/health", healthHandler)

	r.Route("/api", func(r chi.Router) {
		r.Get("/products", products.List)
		r.Post("/products", products.Create)
		r.Get("/products/{productId}", products.Get)

		r.Route("/carts", func(r chi.Router) {
			r.Post("/", carts.Create)
			r.Get("/{cartId}", carts.Get)
			r.Post("/{cartId}/items", carts.AddItem)
			r.Put("/{cartId}/items/{productId}", carts.UpdateItem)
			r.Delete("/{cartId}/items/{productId}", carts.RemoveItem)
			r.Delete("/{cartId}/items", carts.Clear)
		})

		// The provider posts webhooks without customer identity; everything
		// else on the checkout/order surface requires it.
		r.Post("/checkout/webhook", checkout.Webhook)

		r.Group(func(r chi.Router) {
			r.Use(RequireCustomer)
			r.Post("/checkout", checkout.Checkout)
			r.Get("/orders", orders.List)
			r.Get("/orders/{orderId}", orders.Get)
		})
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "store-backend",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
