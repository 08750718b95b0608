// Package identity keeps a cart store's active identity in step with the
// externally owned signed-in identity.
package identity

import (
	"log/slog"

	"github.com/utafrali/storefront/internal/domain"
)

// Observable is an identity value that announces its changes. Subscribe
// must deliver the current value to fn before returning.
type Observable interface {
	Subscribe(fn func(domain.Identity)) (unsubscribe func())
}

// ActiveTarget is the part of the cart store the binder drives.
type ActiveTarget interface {
	ActiveIdentity() domain.Identity
	SetActiveIdentity(id domain.Identity)
}

// Binder mirrors an Observable into an ActiveTarget. It holds no state of its
// own besides the subscription.
type Binder struct {
	target      ActiveTarget
	logger      *slog.Logger
	unsubscribe func()
}

// Bind syncs target with source now and on every later change.
func Bind(source Observable, target ActiveTarget, logger *slog.Logger) *Binder {
	b := &Binder{
		target: target,
		logger: logger,
	}
	b.unsubscribe = source.Subscribe(b.sync)
	return b
}

// Close stops following the source.
func (b *Binder) Close() {
	b.unsubscribe()
}

func (b *Binder) sync(id domain.Identity) {
	active := b.target.ActiveIdentity()

	switch {
	case id.IsSet() && id != active:
		b.target.SetActiveIdentity(id)
		b.logger.Debug("cart identity activated", slog.String("identity", string(id)))
	case !id.IsSet() && active.IsSet():
		b.target.SetActiveIdentity(domain.NoIdentity)
		b.logger.Debug("cart identity cleared", slog.String("previous", string(active)))
	}
}
