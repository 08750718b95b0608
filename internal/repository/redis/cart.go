package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// KeyPrefix namespaces persisted carts.
const KeyPrefix = "storefront:cart:"

// storedCart is the JSON document kept under each key.
type storedCart struct {
	Identity  string            `json:"identity"`
	Items     []domain.LineItem `json:"items"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// CartRepository implements repository.CartRepository using Redis.
type CartRepository struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewCartRepository creates a Redis-backed cart repository. A zero ttl keeps
// carts forever.
func NewCartRepository(client redis.UniversalClient, ttl time.Duration) *CartRepository {
	return &CartRepository{
		client: client,
		ttl:    ttl,
	}
}

// Key returns the Redis key holding id's cart.
func Key(id domain.Identity) string {
	return KeyPrefix + string(id)
}

// Load retrieves id's cart from Redis.
func (r *CartRepository) Load(ctx context.Context, id domain.Identity) ([]domain.LineItem, error) {
	data, err := r.client.Get(ctx, Key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound("cart", string(id))
		}
		return nil, fmt.Errorf("redis get cart: %w", err)
	}

	var cart storedCart
	if err := json.Unmarshal(data, &cart); err != nil {
		return nil, fmt.Errorf("unmarshal cart: %w", err)
	}
	if cart.Items == nil {
		cart.Items = []domain.LineItem{}
	}
	return cart.Items, nil
}

// Save persists id's cart with the configured TTL.
func (r *CartRepository) Save(ctx context.Context, id domain.Identity, items []domain.LineItem) error {
	if items == nil {
		items = []domain.LineItem{}
	}
	data, err := json.Marshal(storedCart{
		Identity:  string(id),
		Items:     items,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal cart: %w", err)
	}

	if err := r.client.Set(ctx, Key(id), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set cart: %w", err)
	}
	return nil
}

// Delete removes id's cart from Redis.
func (r *CartRepository) Delete(ctx context.Context, id domain.Identity) error {
	if err := r.client.Del(ctx, Key(id)).Err(); err != nil {
		return fmt.Errorf("redis del cart: %w", err)
	}
	return nil
}
