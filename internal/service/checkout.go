package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/utafrali/storefront/internal/checkout"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/event"
	"github.com/utafrali/storefront/internal/finalize"
	"github.com/utafrali/storefront/internal/repository"
	"github.com/utafrali/storefront/internal/session"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

// SelectionInput lists the product IDs chosen for checkout.
type SelectionInput struct {
	ProductIDs []string `json:"product_ids" validate:"required,dive,required"`
}

// BeginCheckoutInput picks the payment method for the current selection.
type BeginCheckoutInput struct {
	Method domain.PaymentMethod `json:"method" validate:"required,oneof=cod card esewa"`
}

// FinalizeInput carries what the payment flow returned with. SessionID is
// the card checkout session, TransactionUUID the eSewa transaction.
type FinalizeInput struct {
	SessionID       string               `json:"session_id" validate:"max=256"`
	TransactionUUID string               `json:"transaction_uuid" validate:"max=256"`
	Method          domain.PaymentMethod `json:"method" validate:"omitempty,oneof=cod card esewa"`
}

// Attempt derives the finalization attempt from the input.
func (in FinalizeInput) Attempt() finalize.Attempt {
	a := finalize.Attempt{Method: in.Method, Reference: in.SessionID}
	if in.TransactionUUID != "" && (a.Method == domain.MethodEsewa || (a.Method == "" && in.SessionID == "")) {
		a.Method = domain.MethodEsewa
		a.Reference = in.TransactionUUID
	}
	return a
}

// Checkout is the response to a started checkout.
type Checkout struct {
	Handoff *domain.Handoff `json:"handoff"`
	Quote   checkout.Quote  `json:"quote"`
}

// CheckoutService prices selections, starts payments and finalizes them.
type CheckoutService struct {
	state     cartSync
	pricing   checkout.Pricing
	gateways  []checkout.Gateway
	confirmer finalize.Confirmer
	logger    *slog.Logger
}

// NewCheckoutService creates a new checkout service.
func NewCheckoutService(
	repo repository.CartRepository,
	producer EventPublisher,
	pricing checkout.Pricing,
	confirmer finalize.Confirmer,
	logger *slog.Logger,
	gateways ...checkout.Gateway,
) *CheckoutService {
	return &CheckoutService{
		state:     cartSync{repo: repo, producer: producer, logger: logger},
		pricing:   pricing,
		gateways:  gateways,
		confirmer: confirmer,
		logger:    logger,
	}
}

func (s *CheckoutService) coordinator(sess *session.Session) *checkout.Coordinator {
	return checkout.NewCoordinator(sess.Store, s.pricing, s.logger, s.gateways...)
}

// Select records which products of id's cart are chosen for checkout and
// returns the resulting quote.
func (s *CheckoutService) Select(ctx context.Context, sess *session.Session, id domain.Identity, input SelectionInput) checkout.Quote {
	sess.Lock()
	defer sess.Unlock()

	s.state.activate(ctx, sess, id)
	sess.Selection.SelectProducts(id, sess.Store.Items(id), input.ProductIDs)
	return s.coordinator(sess).Quote(id, sess.Selection)
}

// Quote prices the current selection.
func (s *CheckoutService) Quote(ctx context.Context, sess *session.Session, id domain.Identity) checkout.Quote {
	sess.Lock()
	defer sess.Unlock()

	s.state.activate(ctx, sess, id)
	return s.coordinator(sess).Quote(id, sess.Selection)
}

// Begin hands the current selection off to the payment gateway.
func (s *CheckoutService) Begin(ctx context.Context, sess *session.Session, id domain.Identity, input BeginCheckoutInput) (*Checkout, error) {
	sess.Lock()
	defer sess.Unlock()

	s.state.activate(ctx, sess, id)
	handoff, quote, err := s.coordinator(sess).Begin(ctx, id, sess.Selection, input.Method)
	if err != nil {
		return nil, err
	}
	return &Checkout{Handoff: handoff, Quote: quote}, nil
}

// Finalize advances the finalizer for the attempt described by input. The
// first call for a reference confirms with the backend; later calls for
// the same reference report the outcome without calling it again. Advance
// runs without the session lock; the applied hook takes it.
func (s *CheckoutService) Finalize(ctx context.Context, sess *session.Session, id domain.Identity, input FinalizeInput) (finalize.Result, error) {
	if !id.IsSet() {
		return finalize.Result{}, apperrors.Unauthorized("sign in to finalize a purchase")
	}
	attempt := input.Attempt()
	if attempt.Method != "" && !attempt.Method.IsValid() {
		return finalize.Result{}, apperrors.InvalidInput(fmt.Sprintf("unsupported payment method %q", attempt.Method))
	}

	sess.Lock()
	s.state.activate(ctx, sess, id)
	sess.Unlock()

	f := sess.Finalizer(attempt, func() *finalize.Finalizer {
		return finalize.New(attempt, id, s.confirmer, sess.Store, s.logger).
			OnApplied(func(ctx context.Context, owner domain.Identity, res finalize.Result) {
				s.applied(ctx, sess, owner, res)
			})
	})

	res := f.Advance(ctx)
	s.logger.InfoContext(ctx, "finalize advanced",
		slog.String("method", string(res.Method)),
		slog.String("reference", res.Reference),
		slog.String("status", res.Status),
	)
	return res, nil
}

// Unmount discards any pending finalization for reference.
func (s *CheckoutService) Unmount(ctx context.Context, sess *session.Session, reference string) bool {
	found := sess.Unmount(reference)
	if found {
		s.logger.InfoContext(ctx, "finalization unmounted", slog.String("reference", reference))
	}
	return found
}

// applied persists the cleaned-up cart and announces the purchase. The
// cleanup is replayed on the freshly loaded cart, so items another session
// added since this one last read the repository are kept.
func (s *CheckoutService) applied(ctx context.Context, sess *session.Session, owner domain.Identity, res finalize.Result) {
	if len(res.ProductIDs) > 0 || res.Cleared {
		sess.Lock()
		s.state.refresh(ctx, sess, owner)
		if res.Cleared {
			sess.Store.Replace(owner, nil)
		} else {
			sess.Store.RemovePurchased(owner, res.ProductIDs)
		}
		sess.Selection.Clear()
		s.state.persist(ctx, owner, sess.Store.Items(owner), res.Cleared)
		sess.Unlock()
	}

	err := s.state.producer.PublishPurchaseFinalized(ctx, event.PurchaseFinalizedData{
		Identity:   string(owner),
		Method:     string(res.Method),
		Reference:  res.Reference,
		ProductIDs: res.ProductIDs,
		Cleared:    res.Cleared,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to publish purchase.finalized event",
			slog.String("identity", string(owner)),
			slog.String("error", err.Error()),
		)
	}
}
