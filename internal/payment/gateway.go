package payment

import (
	"context"
	"errors"
	"net/http"

	"github.com/palla98/store-backend/internal/order"
)

// ErrPayment wraps every provider-side failure: rejected session creation,
// transport errors and timeouts, bad webhook signatures, undecodable events.
// Callers decide disposition; nothing in this package retries.
var ErrPayment = errors.New("payment provider error")

// Session is the provider-side checkout session. It is returned to the
// customer and never stored.
type Session struct {
	ID  string `json:"sessionId"`
	URL string `json:"checkoutUrl"`
}

// Result is a normalized webhook outcome. OrderID comes from the correlation
// metadata attached when the session was created, never from name or
// description matching.
type Result struct {
	Provider string
	EventID  string
	OrderID  string
	Status   order.Status
}

// Gateway is the capability the checkout saga depends on.
//
// ParseWebhookEvent returns (nil, nil) for authentic events of a kind this
// system does not care about; providers send many of those and they are not
// failures.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, o *order.Order) (*Session, error)
	ParseWebhookEvent(payload []byte, header http.Header) (*Result, error)
}
