package checkout

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/palla98/store-backend/internal/cart"
	"github.com/palla98/store-backend/internal/order"
	"github.com/palla98/store-backend/internal/payment"
)

// CartStore is the slice of the cart repository the saga needs.
type CartStore interface {
	Get(ctx context.Context, cartID string) (*cart.Cart, error)
	Clear(ctx context.Context, cartID string) error
}

// EventPublisher receives domain events after successful state changes.
// Publishing is best-effort; a broker outage never fails a checkout.
type EventPublisher interface {
	PublishOrderCreated(ctx context.Context, o *order.Order) error
	PublishOrderPaymentUpdated(ctx context.Context, o *order.Order, status order.Status) error
}

// ProcessedEventStore remembers applied provider webhook events.
type ProcessedEventStore interface {
	WasProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) error
}

type Result struct {
	OrderID     string `json:"orderId"`
	CheckoutURL string `json:"checkoutUrl,omitempty"`
}

// Service drives the checkout saga and reconciles provider webhooks back onto
// orders. Both paths mutate the same order rows; the status transition is
// guarded by the repository's conditional update.
type Service struct {
	carts     CartStore
	orders    order.Repository
	gateway   payment.Gateway
	events    EventPublisher
	processed ProcessedEventStore
	logger    *log.Logger

	locks cartLocks
}

func NewService(
	carts CartStore,
	orders order.Repository,
	gateway payment.Gateway,
	events EventPublisher,
	processed ProcessedEventStore,
	logger *log.Logger,
) *Service {
	return &Service{
		carts:     carts,
		orders:    orders,
		gateway:   gateway,
		events:    events,
		processed: processed,
		logger:    logger,
	}
}

// Checkout turns the cart into a durable order and opens a payment session
// for it:
//
//  1. load and validate the cart;
//  2. persist the order snapshot before contacting the provider, so the
//     correlation id exists even for a webhook racing the synchronous call;
//  3. create the remote session. On success the cart is cleared and the
//     redirect URL returned. On a payment error the order is deleted again
//     and the caller gets the order id with no URL; the error is not
//     propagated.
//
// Nothing here retries. Checkouts for the same cart are serialized so two
// concurrent calls cannot both snapshot it.
func (s *Service) Checkout(ctx context.Context, cartID, customerID string) (*Result, error) {
	unlock := s.locks.lock(cartID)
	defer unlock()

	c, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}
	if c.IsEmpty() {
		return nil, cart.ErrCartEmpty
	}

	o, err := order.FromCart(c, customerID)
	if err != nil {
		return nil, err
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	sess, err := s.gateway.CreateCheckoutSession(ctx, o)
	if err != nil {
		s.logger.Printf("checkout session for order %s failed: %v", o.ID, err)

		// Compensate: the remote call cannot be rolled back, the local
		// order can.
		if delErr := s.orders.Delete(ctx, o.ID); delErr != nil {
			return nil, fmt.Errorf("compensate order %s: %w", o.ID, delErr)
		}

		if errors.Is(err, payment.ErrPayment) {
			// The caller sees an order id with no payable session, not an
			// error.
			return &Result{OrderID: o.ID}, nil
		}
		return nil, err
	}

	// Clearing only on success keeps the customer's cart intact when no
	// session was created.
	if err := s.carts.Clear(ctx, cartID); err != nil {
		return nil, fmt.Errorf("clear cart %s: %w", cartID, err)
	}

	if err := s.events.PublishOrderCreated(ctx, o); err != nil {
		s.logger.Printf("publish OrderCreated for %s: %v", o.ID, err)
	}

	return &Result{OrderID: o.ID, CheckoutURL: sess.URL}, nil
}

// HandleWebhookEvent verifies and applies one provider notification.
//
// A verification failure propagates so the transport can answer with an error
// status and the provider's retry policy engages. Events of irrelevant kinds,
// re-deliveries, and transitions on already-settled orders are all accepted
// no-ops. A result pointing at a missing order is a correlation bug and comes
// back as an error, never silently dropped.
func (s *Service) HandleWebhookEvent(ctx context.Context, payload []byte, header http.Header) error {
	res, err := s.gateway.ParseWebhookEvent(payload, header)
	if err != nil {
		return err
	}
	if res == nil {
		return nil
	}

	seen, err := s.processed.WasProcessed(ctx, res.Provider, res.EventID)
	if err != nil {
		return fmt.Errorf("check processed events: %w", err)
	}
	if seen {
		s.logger.Printf("webhook event %s already processed, ignoring", res.EventID)
		return nil
	}

	o, err := s.orders.GetByID(ctx, res.OrderID)
	if err != nil {
		if errors.Is(err, order.ErrOrderNotFound) {
			return fmt.Errorf("webhook event %s references order %s: %w",
				res.EventID, res.OrderID, err)
		}
		return err
	}

	applied, err := s.orders.UpdateStatus(ctx, o.ID, res.Status)
	if err != nil {
		return fmt.Errorf("update order %s: %w", o.ID, err)
	}
	if !applied {
		// Duplicate or late delivery: the order already reached a terminal
		// state and stays there.
		s.logger.Printf("order %s already settled, event %s ignored", o.ID, res.EventID)
		return nil
	}

	if err := s.processed.MarkProcessed(ctx, res.Provider, res.EventID); err != nil {
		s.logger.Printf("record webhook event %s: %v", res.EventID, err)
	}
	if err := s.events.PublishOrderPaymentUpdated(ctx, o, res.Status); err != nil {
		s.logger.Printf("publish OrderPaymentUpdated for %s: %v", o.ID, err)
	}

	s.logger.Printf("order %s marked %s by event %s", o.ID, res.Status, res.EventID)
	return nil
}
