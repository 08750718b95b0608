// Package finalize applies the cart cleanup that follows a completed
// payment, exactly once per payment attempt.
package finalize

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

var finalizationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "storefront_finalizations_total",
		Help: "Payment attempts that reached a terminal finalization state.",
	},
	[]string{"method", "status"},
)

// Confirmer confirms payments with the commerce backend. Neither call is
// idempotent on the backend side.
type Confirmer interface {
	ConfirmPayment(ctx context.Context, sessionID string) ([]string, error)
	VerifyEsewa(ctx context.Context, transactionUUID string) error
}

// Cart is the part of the cart store the finalizer mutates.
type Cart interface {
	// ClearFor empties id's cart only while id is the active identity.
	ClearFor(id domain.Identity) bool
	RemovePurchased(id domain.Identity, productIDs []string)
}

// Attempt identifies one return from an external payment flow.
type Attempt struct {
	Reference string
	Method    domain.PaymentMethod
}

// Result is a snapshot of a finalizer's progress.
type Result struct {
	Status     string               `json:"status"`
	Method     domain.PaymentMethod `json:"method"`
	Reference  string               `json:"reference,omitempty"`
	ProductIDs []string             `json:"product_ids,omitempty"`
	Cleared    bool                 `json:"cleared,omitempty"`
	Message    string               `json:"message,omitempty"`
}

// AppliedFunc is called once after the cart cleanup ran.
type AppliedFunc func(ctx context.Context, identity domain.Identity, res Result)

// Finalizer drives one payment attempt from idle to a terminal state.
//
// Advance may be called any number of times, concurrently. The backend
// confirmation is sent at most once and the cart cleanup runs at most once.
// Callers arriving while the first Advance is confirming wait for its
// outcome or for their own context.
type Finalizer struct {
	attempt   Attempt
	identity  domain.Identity
	confirmer Confirmer
	cart      Cart
	onApplied AppliedFunc
	logger    *slog.Logger

	started   atomic.Bool
	applied   atomic.Bool
	unmounted atomic.Bool
	done      chan struct{}

	mu     sync.Mutex
	result Result
}

// New creates a finalizer for attempt on identity's cart. An attempt without
// a method is a card attempt.
func New(attempt Attempt, identity domain.Identity, confirmer Confirmer, cart Cart, logger *slog.Logger) *Finalizer {
	if attempt.Method == "" {
		attempt.Method = domain.MethodCard
	}
	return &Finalizer{
		attempt:   attempt,
		identity:  identity,
		confirmer: confirmer,
		cart:      cart,
		logger:    logger,
		done:      make(chan struct{}),
		result: Result{
			Status:    domain.FinalizeIdle,
			Method:    attempt.Method,
			Reference: attempt.Reference,
		},
	}
}

// OnApplied registers fn to run after the cart cleanup. It must be set
// before the first Advance.
func (f *Finalizer) OnApplied(fn AppliedFunc) *Finalizer {
	f.onApplied = fn
	return f
}

// Attempt returns the attempt this finalizer drives.
func (f *Finalizer) Attempt() Attempt {
	return f.attempt
}

// Result returns the current state without advancing.
func (f *Finalizer) Result() Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.result
}

// Advance moves the attempt forward and returns where it stands. Without a
// payment reference a non-cash attempt stays idle.
func (f *Finalizer) Advance(ctx context.Context) Result {
	if f.unmounted.Load() {
		return f.Result()
	}
	if f.attempt.Reference == "" && f.attempt.Method != domain.MethodCashOnDelivery {
		return f.Result()
	}

	if !f.started.CompareAndSwap(false, true) {
		select {
		case <-f.done:
		case <-ctx.Done():
		}
		return f.Result()
	}

	defer close(f.done)
	f.run(ctx)
	return f.Result()
}

// Unmount marks the hosting view as gone. A confirmation still in flight is
// discarded when it returns; an attempt that never started is abandoned.
func (f *Finalizer) Unmount() {
	f.unmounted.Store(true)
	if f.started.CompareAndSwap(false, true) {
		f.finish(func(r *Result) { r.Status = domain.FinalizeAbandoned })
		close(f.done)
	}
}

// Done is closed once the attempt reached a terminal state or was
// abandoned before starting.
func (f *Finalizer) Done() <-chan struct{} {
	return f.done
}

func (f *Finalizer) run(ctx context.Context) {
	log := f.logger.With(
		slog.String("method", string(f.attempt.Method)),
		slog.String("reference", f.attempt.Reference),
		slog.String("identity", string(f.identity)),
	)

	if f.attempt.Method == domain.MethodCashOnDelivery {
		f.set(func(r *Result) { r.Status = domain.FinalizeConfirmed })
		f.apply(ctx, log, nil)
		return
	}

	f.set(func(r *Result) { r.Status = domain.FinalizeConfirming })

	var (
		productIDs []string
		err        error
	)
	switch f.attempt.Method {
	case domain.MethodEsewa:
		err = f.confirmer.VerifyEsewa(ctx, f.attempt.Reference)
	default:
		productIDs, err = f.confirmer.ConfirmPayment(ctx, f.attempt.Reference)
	}

	if f.unmounted.Load() || ctx.Err() != nil {
		log.WarnContext(ctx, "payment confirmation discarded, view torn down")
		f.finish(func(r *Result) { r.Status = domain.FinalizeAbandoned })
		return
	}
	if err != nil {
		log.ErrorContext(ctx, "payment confirmation failed", slog.String("error", err.Error()))
		f.finish(func(r *Result) {
			r.Status = domain.FinalizeError
			r.Message = userMessage(err)
		})
		return
	}

	f.set(func(r *Result) {
		r.Status = domain.FinalizeConfirmed
		r.ProductIDs = productIDs
	})
	f.apply(ctx, log, productIDs)
}

// apply performs the cart cleanup behind its own latch.
func (f *Finalizer) apply(ctx context.Context, log *slog.Logger, productIDs []string) {
	if !f.applied.CompareAndSwap(false, true) {
		return
	}
	if f.unmounted.Load() {
		f.finish(func(r *Result) { r.Status = domain.FinalizeAbandoned })
		return
	}

	cleared := false
	switch f.attempt.Method {
	case domain.MethodEsewa:
		cleared = f.cart.ClearFor(f.identity)
		if !cleared {
			log.WarnContext(ctx, "esewa payment verified for an inactive cart, leaving it untouched")
		}
	default:
		f.cart.RemovePurchased(f.identity, productIDs)
	}

	f.finish(func(r *Result) {
		r.Status = domain.FinalizeApplied
		r.Cleared = cleared
	})
	log.InfoContext(ctx, "purchase finalized",
		slog.Int("removed_products", len(productIDs)),
		slog.Bool("cleared", cleared),
	)

	if f.onApplied != nil {
		f.onApplied(ctx, f.identity, f.Result())
	}
}

func (f *Finalizer) set(update func(*Result)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	update(&f.result)
}

// finish records a terminal state and counts it.
func (f *Finalizer) finish(update func(*Result)) {
	f.mu.Lock()
	update(&f.result)
	status := f.result.Status
	f.mu.Unlock()

	finalizationsTotal.WithLabelValues(string(f.attempt.Method), status).Inc()
}

// userMessage turns a confirmation failure into text fit for the shopper.
func userMessage(err error) string {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Status < 500 {
		return appErr.Message
	}
	if errors.Is(err, apperrors.ErrServiceUnavail) {
		return "payment service is temporarily unavailable, please try again"
	}
	return "payment could not be confirmed"
}
