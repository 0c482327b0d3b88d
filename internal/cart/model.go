package cart

import (
	"time"

	"github.com/palla98/store-backend/internal/catalog"
)

type Item struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	UnitPrice float64 `json:"unitPrice"`
	Quantity  int     `json:"quantity"`
}

func (it Item) TotalPrice() float64 {
	return it.UnitPrice * float64(it.Quantity)
}

// Cart holds one item per product, in insertion order. Item prices are not
// snapshotted: Name and UnitPrice always reflect the catalog at load time, so
// TotalPrice follows live catalog prices until checkout freezes them into an
// order.
type Cart struct {
	ID        string    `json:"cartId"`
	CreatedAt time.Time `json:"createdAt"`
	Items     []Item    `json:"items"`
}

func (c *Cart) Item(productID string) *Item {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return &c.Items[i]
		}
	}
	return nil
}

// AddItem increments the quantity of an existing item for the product, or
// appends a new item with quantity 1.
func (c *Cart) AddItem(p catalog.Product) *Item {
	if it := c.Item(p.ID); it != nil {
		it.Quantity++
		return it
	}

	c.Items = append(c.Items, Item{
		ProductID: p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		Quantity:  1,
	})
	return &c.Items[len(c.Items)-1]
}

// RemoveItem deletes the item for the product. Absent products are a no-op.
func (c *Cart) RemoveItem(productID string) {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			return
		}
	}
}

// UpdateItemQuantity sets the quantity of the item for the product. A quantity
// of zero or less removes the item, keeping the quantity >= 1 invariant.
func (c *Cart) UpdateItemQuantity(productID string, quantity int) error {
	it := c.Item(productID)
	if it == nil {
		return ErrItemNotFound
	}
	if quantity <= 0 {
		c.RemoveItem(productID)
		return nil
	}
	it.Quantity = quantity
	return nil
}

// Clear empties the cart. The cart itself, and its identifier, survive.
func (c *Cart) Clear() {
	c.Items = nil
}

func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

func (c *Cart) TotalPrice() float64 {
	total := 0.0
	for _, it := range c.Items {
		total += it.TotalPrice()
	}
	return total
}
