package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/utafrali/storefront/internal/cartstore"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/repository"
	"github.com/utafrali/storefront/internal/session"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// EventPublisher publishes storefront domain events. *event.Producer
// satisfies it.
type EventPublisher interface {
	PublishCartUpdated(ctx context.Context, id domain.Identity, items []domain.LineItem) error
	PublishCartCleared(ctx context.Context, id domain.Identity) error
	PublishPurchaseFinalized(ctx context.Context, data event.PurchaseFinalizedData) error
}

// cartSync carries a session's in-memory carts to and from the repository.
// I/O failures are logged and never undo an in-memory change.
type cartSync struct {
	repo     repository.CartRepository
	producer EventPublisher
	logger   *slog.Logger
}

// activate points sess at id and refreshes id's working copy from the
// repository. The caller holds sess.Lock.
func (c *cartSync) activate(ctx context.Context, sess *session.Session, id domain.Identity) {
	sess.Identity.Set(id)
	c.refresh(ctx, sess, id)
}

// refresh replaces sess's copy of id's cart with the persisted one, so
// writes from other sessions of the same identity are seen before this
// session mutates and saves. A missing cart means an empty one. When the
// repository cannot be read the working copy is kept. The caller holds
// sess.Lock.
func (c *cartSync) refresh(ctx context.Context, sess *session.Session, id domain.Identity) {
	if !id.IsSet() {
		return
	}

	items, err := c.repo.Load(ctx, id)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		items = []domain.LineItem{}
	case err != nil:
		c.logger.WarnContext(ctx, "failed to load persisted cart, using session copy",
			slog.String("identity", string(id)),
			slog.String("error", err.Error()),
		)
		return
	}

	if sess.Store.Replace(id, items) {
		sess.Selection.Clear()
		c.logger.DebugContext(ctx, "cart refreshed from repository",
			slog.String("identity", string(id)),
			slog.Int("item_count", len(items)),
		)
	}
}

// persist saves id's items and publishes the matching event. A cleared
// cart is deleted rather than saved empty.
func (c *cartSync) persist(ctx context.Context, id domain.Identity, items []domain.LineItem, cleared bool) {
	if !id.IsSet() {
		return
	}

	var err error
	if cleared {
		err = c.repo.Delete(ctx, id)
	} else {
		err = c.repo.Save(ctx, id, items)
	}
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to persist cart",
			slog.String("identity", string(id)),
			slog.Bool("cleared", cleared),
			slog.String("error", err.Error()),
		)
	}

	if cleared {
		err = c.producer.PublishCartCleared(ctx, id)
	} else {
		err = c.producer.PublishCartUpdated(ctx, id, items)
	}
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to publish cart event",
			slog.String("identity", string(id)),
			slog.String("error", err.Error()),
		)
	}
}

// sameItems reports whether two snapshots hold the same products in the
// same order with the same quantities. Other fields are not compared: a
// merge only ever changes a quantity, and AddItemInput's gte=1 rule keeps
// that change non-zero.
func sameItems(a, b []domain.LineItem) bool {
	if !cartstore.SameOrder(a, b) {
		return false
	}
	for i := range a {
		if a[i].Quantity != b[i].Quantity {
			return false
		}
	}
	return true
}
