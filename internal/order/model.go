package order

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/palla98/store-backend/internal/cart"
)

var ErrOrderNotFound = errors.New("order not found")

// Item freezes a copy of the product reference, its name, and its unit price
// at order creation time. Later catalog price changes never alter an order.
type Item struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unitPrice"`
	Quantity  int     `json:"quantity"`
}

func (it Item) TotalPrice() float64 {
	return it.UnitPrice * float64(it.Quantity)
}

// Order is an immutable-priced snapshot of a cart. Only Status changes after
// creation.
type Order struct {
	ID         string    `json:"orderId"`
	CustomerID string    `json:"customerId"`
	Status     Status    `json:"status"`
	Items      []Item    `json:"items"`
	CreatedAt  time.Time `json:"createdAt"`
}

// FromCart snapshots the cart into a new unpaid order owned by the customer.
// The cart must not be empty; callers check this before building the order.
func FromCart(c *cart.Cart, customerID string) (*Order, error) {
	if c.IsEmpty() {
		return nil, cart.ErrCartEmpty
	}

	o := &Order{
		ID:         uuid.NewString(),
		CustomerID: customerID,
		Status:     StatusUnpaid,
		CreatedAt:  time.Now().UTC(),
	}
	for _, it := range c.Items {
		o.Items = append(o.Items, Item{
			ProductID: it.ProductID,
			Name:      it.Name,
			UnitPrice: it.UnitPrice,
			Quantity:  it.Quantity,
		})
	}
	return o, nil
}

func (o *Order) TotalPrice() float64 {
	total := 0.0
	for _, it := range o.Items {
		total += it.TotalPrice()
	}
	return total
}

// PlacedBy reports whether the order belongs to the customer. Used by the
// transport layer to authorize order reads.
func (o *Order) PlacedBy(customerID string) bool {
	return o.CustomerID == customerID
}
