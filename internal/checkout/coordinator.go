// Package checkout prices the selected part of a cart and hands it off to
// the payment gateway for the chosen method.
package checkout

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// CartReader is the read side of the cart store.
type CartReader interface {
	Items(id domain.Identity) []domain.LineItem
}

// Gateway starts an external payment for one method.
type Gateway interface {
	Method() domain.PaymentMethod
	Charge(ctx context.Context, req domain.ChargeRequest) (*domain.Handoff, error)
}

// Coordinator reads the selection from the cart store, prices it and
// initiates payment.
type Coordinator struct {
	store    CartReader
	pricing  Pricing
	gateways map[domain.PaymentMethod]Gateway
	logger   *slog.Logger
}

// NewCoordinator creates a coordinator with the given gateways. A later
// gateway for the same method replaces an earlier one.
func NewCoordinator(store CartReader, pricing Pricing, logger *slog.Logger, gateways ...Gateway) *Coordinator {
	c := &Coordinator{
		store:    store,
		pricing:  pricing,
		gateways: make(map[domain.PaymentMethod]Gateway, len(gateways)),
		logger:   logger,
	}
	for _, g := range gateways {
		c.gateways[g.Method()] = g
	}
	return c
}

// Quote prices the items of id's cart recorded in sel.
func (c *Coordinator) Quote(id domain.Identity, sel *Selection) Quote {
	return c.pricing.Quote(sel.Pick(id, c.store.Items(id)))
}

// Begin prices the selection and hands it to the gateway for method. The
// returned quote is the one the gateway charged.
func (c *Coordinator) Begin(ctx context.Context, id domain.Identity, sel *Selection, method domain.PaymentMethod) (*domain.Handoff, Quote, error) {
	if !id.IsSet() {
		return nil, Quote{}, apperrors.Unauthorized("sign in to check out")
	}
	if !method.IsValid() {
		return nil, Quote{}, apperrors.InvalidInput(fmt.Sprintf("unsupported payment method %q", method))
	}
	gw, ok := c.gateways[method]
	if !ok {
		return nil, Quote{}, apperrors.InvalidInput(fmt.Sprintf("payment method %q is not enabled", method))
	}

	quote := c.Quote(id, sel)
	if len(quote.Items) == 0 {
		return nil, quote, apperrors.InvalidInput("no items selected for checkout")
	}

	handoff, err := gw.Charge(ctx, domain.ChargeRequest{
		Identity: id,
		Items:    quote.Items,
		Subtotal: quote.Subtotal,
		Discount: quote.Discount,
		Total:    quote.Total,
	})
	if err != nil {
		return nil, quote, fmt.Errorf("start %s payment: %w", method, err)
	}

	c.logger.InfoContext(ctx, "checkout handed off",
		slog.String("method", string(method)),
		slog.String("reference", handoff.Reference),
		slog.Int("item_count", quote.ItemCount),
		slog.String("total", quote.Total.StringFixed(2)),
	)
	return handoff, quote, nil
}
