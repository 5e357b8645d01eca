package repository

import (
	"context"

	"github.com/trendora/storefront/internal/domain"
)

// CartRepository defines the interface for cart data operations
// Consumers define this interface, not the MongoDB implementation
type CartRepository interface {
	GetCart(ctx context.Context, owner domain.Owner) (*domain.Cart, error)
	UpsertCart(ctx context.Context, cart *domain.Cart) error
	AddItem(ctx context.Context, owner domain.Owner, line domain.CartLine) error
	UpdateLineQuantity(ctx context.Context, owner domain.Owner, productID string, quantity int) error
	RemoveItem(ctx context.Context, owner domain.Owner, productID string) error
	DeleteCart(ctx context.Context, owner domain.Owner) error
}
