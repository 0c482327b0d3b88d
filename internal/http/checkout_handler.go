package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/palla98/store-backend/internal/cart"
	"github.com/palla98/store-backend/internal/checkout"
	"github.com/palla98/store-backend/internal/order"
	"github.com/palla98/store-backend/internal/payment"
)

const maxWebhookBody = 1 << 20 // 1 MiB

type CheckoutService interface {
	Checkout(ctx context.Context, cartID, customerID string) (*checkout.Result, error)
	HandleWebhookEvent(ctx context.Context, payload []byte, header http.Header) error
}

type CheckoutHandler struct {
	checkout CheckoutService
	logger   *log.Logger
}

func NewCheckoutHandler(svc CheckoutService, logger *log.Logger) *CheckoutHandler {
	return &CheckoutHandler{checkout: svc, logger: logger}
}

func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	customerID := CustomerID(r.Context())

	var body struct {
		CartID string `json:"cartId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if body.CartID == "" {
		writeError(w, http.StatusBadRequest, "missing cartId")
		return
	}

	// Covers the gateway call plus local persistence.
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	res, err := h.checkout.Checkout(ctx, body.CartID, customerID)
	if err != nil {
		switch {
		case errors.Is(err, cart.ErrCartNotFound):
			writeError(w, http.StatusNotFound, "cart not found")
		case errors.Is(err, cart.ErrCartEmpty):
			writeError(w, http.StatusBadRequest, "cart is empty")
		default:
			h.logger.Printf("checkout failed: %v", err)
			writeError(w, http.StatusInternalServerError, "checkout failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// Webhook receives asynchronous provider notifications. A bad signature gets
// a 4xx so forged events are refused; other failures get a 5xx so the
// provider redelivers.
func (h *CheckoutHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable payload")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.checkout.HandleWebhookEvent(ctx, payload, r.Header); err != nil {
		switch {
		case errors.Is(err, payment.ErrPayment):
			writeError(w, http.StatusBadRequest, "webhook verification failed")
		case errors.Is(err, order.ErrOrderNotFound):
			h.logger.Printf("webhook correlation failure: %v", err)
			writeError(w, http.StatusInternalServerError, "unknown order")
		default:
			h.logger.Printf("webhook processing failed: %v", err)
			writeError(w, http.StatusInternalServerError, "webhook processing failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}
