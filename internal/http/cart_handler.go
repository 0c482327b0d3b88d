package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/palla98/store-backend/internal/cart"
	"github.com/palla98/store-backend/internal/catalog"
)

type CartHandler struct {
	carts *cart.Service
}

func NewCartHandler(carts *cart.Service) *CartHandler {
	return &CartHandler{carts: carts}
}

func (h *CartHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	c, err := h.carts.Create(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create cart")
		return
	}

	writeJSON(w, http.StatusCreated, cartResponse(c))
}

func (h *CartHandler) Get(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cartId")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	c, err := h.carts.Get(ctx, cartID)
	if err != nil {
		writeCartError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, cartResponse(c))
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cartId")

	var body struct {
		ProductID string `json:"productId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if body.ProductID == "" {
		writeError(w, http.StatusBadRequest, "missing productId")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	it, err := h.carts.AddItem(ctx, cartID, body.ProductID)
	if err != nil {
		writeCartError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, it)
}

func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cartId")
	productID := chi.URLParam(r, "productId")

	var body struct {
		Quantity int `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	it, err := h.carts.UpdateItemQuantity(ctx, cartID, productID, body.Quantity)
	if err != nil {
		writeCartError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, it)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cartId")
	productID := chi.URLParam(r, "productId")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.carts.RemoveItem(ctx, cartID, productID); err != nil {
		writeCartError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) Clear(w http.ResponseWriter, r *http.Request) {
	cartID := chi.URLParam(r, "cartId")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	if err := h.carts.Clear(ctx, cartID); err != nil {
		writeCartError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeCartError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, cart.ErrCartNotFound):
		writeError(w, http.StatusNotFound, "cart not found")
	case errors.Is(err, cart.ErrItemNotFound):
		writeError(w, http.StatusNotFound, "item not found in cart")
	case errors.Is(err, cart.ErrInvalidQuantity):
		writeError(w, http.StatusBadRequest, cart.ErrInvalidQuantity.Error())
	case errors.Is(err, catalog.ErrProductNotFound):
		writeError(w, http.StatusBadRequest, "product not found")
	default:
		writeError(w, http.StatusInternalServerError, "cart operation failed")
	}
}

func cartResponse(c *cart.Cart) map[string]any {
	items := c.Items
	if items == nil {
		items = []cart.Item{}
	}
	return map[string]any{
		"cartId":     c.ID,
		"createdAt":  c.CreatedAt,
		"items":      items,
		"totalPrice": c.TotalPrice(),
	}
}
