package repository

import (
	"context"

	"github.com/utafrali/storefront/internal/domain"
)

// CartRepository persists each identity's cart between sessions.
type CartRepository interface {
	// Load returns the persisted items for id. A missing cart is a NotFound
	// AppError.
	Load(ctx context.Context, id domain.Identity) ([]domain.LineItem, error)

	// Save overwrites id's persisted items and refreshes the TTL.
	Save(ctx context.Context, id domain.Identity, items []domain.LineItem) error

	// Delete removes id's persisted cart.
	Delete(ctx context.Context, id domain.Identity) error
}
