package cart

import (
	"context"
	"fmt"

	"github.com/palla98/store-backend/internal/catalog"
)

const maxItemQuantity = 100

// Service applies cart mutations against the catalog and persists the result.
type Service struct {
	carts    Repository
	products catalog.Repository
}

func NewService(carts Repository, products catalog.Repository) *Service {
	return &Service{carts: carts, products: products}
}

func (s *Service) Create(ctx context.Context) (*Cart, error) {
	c := &Cart{}
	if err := s.carts.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create cart: %w", err)
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, cartID string) (*Cart, error) {
	return s.carts.Get(ctx, cartID)
}

func (s *Service) AddItem(ctx context.Context, cartID, productID string) (*Item, error) {
	c, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}

	it := c.AddItem(*p)
	if err := s.carts.Save(ctx, c); err != nil {
		return nil, err
	}
	return it, nil
}

func (s *Service) UpdateItemQuantity(ctx context.Context, cartID, productID string, quantity int) (*Item, error) {
	if quantity < 1 || quantity > maxItemQuantity {
		return nil, ErrInvalidQuantity
	}

	c, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return nil, err
	}

	if err := c.UpdateItemQuantity(productID, quantity); err != nil {
		return nil, err
	}
	if err := s.carts.Save(ctx, c); err != nil {
		return nil, err
	}
	return c.Item(productID), nil
}

func (s *Service) RemoveItem(ctx context.Context, cartID, productID string) error {
	c, err := s.carts.Get(ctx, cartID)
	if err != nil {
		return err
	}

	c.RemoveItem(productID)
	return s.carts.Save(ctx, c)
}

func (s *Service) Clear(ctx context.Context, cartID string) error {
	if _, err := s.carts.Get(ctx, cartID); err != nil {
		return err
	}
	return s.carts.Clear(ctx, cartID)
}
