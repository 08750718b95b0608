package service

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/utafrali/storefront/internal/cartstore"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/repository"
	"github.com/utafrali/storefront/internal/session"
)

// AddItemInput holds the parameters for adding an item to the cart.
type AddItemInput struct {
	ProductID string          `json:"product_id" validate:"required,max=128"`
	Name      string          `json:"name" validate:"required,max=256"`
	Price     decimal.Decimal `json:"price" validate:"gte=0"`
	Quantity  int             `json:"quantity" validate:"required,gte=1"`
	Stock     int             `json:"stock" validate:"gte=0"`
	Image     string          `json:"image" validate:"max=2048"`
}

// UpdateQuantityInput holds the requested quantity for a line item.
type UpdateQuantityInput struct {
	Quantity int `json:"quantity"`
}

// Cart is the view of the active identity's cart returned to clients.
type Cart struct {
	Identity    string            `json:"identity,omitempty"`
	Items       []domain.LineItem `json:"items"`
	ItemCount   int               `json:"item_count"`
	TotalAmount decimal.Decimal   `json:"total_amount"`
}

func newCartView(id domain.Identity, items []domain.LineItem) *Cart {
	return &Cart{
		Identity:    string(id),
		Items:       items,
		ItemCount:   domain.ItemCount(items),
		TotalAmount: domain.TotalAmount(items),
	}
}

// CartService applies cart operations to a session's store and keeps the
// persisted copy and the event stream in step. Store semantics are kept:
// operations without an identity or on unknown products change nothing and
// are not errors.
type CartService struct {
	state  cartSync
	logger *slog.Logger
}

// NewCartService creates a new cart service.
func NewCartService(repo repository.CartRepository, producer EventPublisher, logger *slog.Logger) *CartService {
	return &CartService{
		state:  cartSync{repo: repo, producer: producer, logger: logger},
		logger: logger,
	}
}

// mutate runs op against sess's store for id and persists the result when
// it changed anything. A change to the product order drops the checkout
// selection, whose indices would otherwise point at other products.
func (s *CartService) mutate(ctx context.Context, sess *session.Session, id domain.Identity, op func(*cartstore.Store)) (*Cart, bool) {
	sess.Lock()
	defer sess.Unlock()

	s.state.activate(ctx, sess, id)
	before := sess.Store.Items(id)
	op(sess.Store)
	after := sess.Store.Items(id)

	if !cartstore.SameOrder(before, after) {
		sess.Selection.Clear()
	}
	changed := !sameItems(before, after)
	if changed {
		s.state.persist(ctx, id, after, len(after) == 0 && len(before) > 0)
	}
	return newCartView(id, after), changed
}

// GetCart returns id's cart as currently persisted.
func (s *CartService) GetCart(ctx context.Context, sess *session.Session, id domain.Identity) *Cart {
	sess.Lock()
	defer sess.Unlock()

	s.state.activate(ctx, sess, id)
	return newCartView(id, sess.Store.Items(id))
}

// AddItem adds input to the cart, merging with an existing line for the
// same product.
func (s *CartService) AddItem(ctx context.Context, sess *session.Session, id domain.Identity, input AddItemInput) *Cart {
	item := domain.LineItem{
		ProductID: input.ProductID,
		Name:      input.Name,
		Price:     input.Price,
		Quantity:  input.Quantity,
		Stock:     input.Stock,
		Image:     input.Image,
	}
	cart, changed := s.mutate(ctx, sess, id, func(store *cartstore.Store) {
		store.AddItem(item)
	})

	if changed {
		s.logger.InfoContext(ctx, "item added to cart",
			slog.String("identity", string(id)),
			slog.String("product_id", input.ProductID),
			slog.Int("quantity", input.Quantity),
		)
	}
	return cart
}

// SetQuantity sets a line's quantity, clamped to [1, stock] with the
// default ceiling when stock is unknown.
func (s *CartService) SetQuantity(ctx context.Context, sess *session.Session, id domain.Identity, productID string, qty int) *Cart {
	cart, changed := s.mutate(ctx, sess, id, func(store *cartstore.Store) {
		items := store.Items(id)
		i := domain.IndexOf(items, productID)
		if i < 0 {
			return
		}
		store.SetQty(productID, domain.ClampQuantity(qty, items[i].Stock))
	})

	if changed {
		s.logger.InfoContext(ctx, "cart quantity updated",
			slog.String("identity", string(id)),
			slog.String("product_id", productID),
			slog.Int("requested", qty),
		)
	}
	return cart
}

// RemoveItem drops productID from the cart.
func (s *CartService) RemoveItem(ctx context.Context, sess *session.Session, id domain.Identity, productID string) *Cart {
	cart, changed := s.mutate(ctx, sess, id, func(store *cartstore.Store) {
		store.RemoveItem(productID)
	})

	if changed {
		s.logger.InfoContext(ctx, "item removed from cart",
			slog.String("identity", string(id)),
			slog.String("product_id", productID),
		)
	}
	return cart
}

// ClearCart empties the cart.
func (s *CartService) ClearCart(ctx context.Context, sess *session.Session, id domain.Identity) *Cart {
	cart, changed := s.mutate(ctx, sess, id, func(store *cartstore.Store) {
		store.Clear()
	})

	if changed {
		s.logger.InfoContext(ctx, "cart cleared", slog.String("identity", string(id)))
	}
	return cart
}
