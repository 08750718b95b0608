package finalize

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/storefront/internal/cartstore"
	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeConfirmer counts backend calls. When gate is non-nil each call blocks
// until gate is closed or the caller's context ends.
type fakeConfirmer struct {
	confirmCalls atomic.Int32
	verifyCalls  atomic.Int32
	productIDs   []string
	err          error
	gate         chan struct{}
	entered      chan struct{}
}

func (f *fakeConfirmer) wait(ctx context.Context) error {
	if f.entered != nil {
		close(f.entered)
	}
	if f.gate == nil {
		return nil
	}
	select {
	case <-f.gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeConfirmer) ConfirmPayment(ctx context.Context, _ string) ([]string, error) {
	f.confirmCalls.Add(1)
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return f.productIDs, f.err
}

func (f *fakeConfirmer) VerifyEsewa(ctx context.Context, _ string) error {
	f.verifyCalls.Add(1)
	if err := f.wait(ctx); err != nil {
		return err
	}
	return f.err
}

// countingCart records cleanup calls on top of a real store.
type countingCart struct {
	*cartstore.Store
	removals atomic.Int32
	clears   atomic.Int32
}

func (c *countingCart) RemovePurchased(id domain.Identity, productIDs []string) {
	c.removals.Add(1)
	c.Store.RemovePurchased(id, productIDs)
}

func (c *countingCart) ClearFor(id domain.Identity) bool {
	c.clears.Add(1)
	return c.Store.ClearFor(id)
}

// switchingCart moves the store to another identity right before the
// clear, the way a concurrent request on the same session would.
type switchingCart struct {
	*cartstore.Store
	to domain.Identity
}

func (c *switchingCart) ClearFor(id domain.Identity) bool {
	c.Store.SetActiveIdentity(c.to)
	return c.Store.ClearFor(id)
}

func seededCart(t *testing.T) *countingCart {
	t.Helper()
	store := cartstore.New()
	store.SetActiveIdentity("u1")
	store.AddItem(domain.LineItem{ProductID: "p1", Price: decimal.NewFromInt(100), Quantity: 2})
	store.AddItem(domain.LineItem{ProductID: "p2", Price: decimal.NewFromInt(5), Quantity: 1})
	return &countingCart{Store: store}
}

func productIDs(items []domain.LineItem) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = it.ProductID
	}
	return ids
}

func TestFinalizer_CardRemovesPurchasedOnce(t *testing.T) {
	cart := seededCart(t)
	confirmer := &fakeConfirmer{productIDs: []string{"p1"}}

	var applied atomic.Int32
	f := New(Attempt{Reference: "cs_1", Method: domain.MethodCard}, "u1", confirmer, cart, testLogger()).
		OnApplied(func(_ context.Context, id domain.Identity, res Result) {
			applied.Add(1)
			assert.Equal(t, domain.Identity("u1"), id)
			assert.Equal(t, []string{"p1"}, res.ProductIDs)
		})

	for range 3 {
		res := f.Advance(context.Background())
		assert.Equal(t, domain.FinalizeApplied, res.Status)
	}

	assert.Equal(t, int32(1), confirmer.confirmCalls.Load())
	assert.Equal(t, int32(1), cart.removals.Load())
	assert.Equal(t, int32(1), applied.Load())
	assert.Equal(t, []string{"p2"}, productIDs(cart.Items("u1")))
}

func TestFinalizer_ConcurrentAdvance(t *testing.T) {
	cart := seededCart(t)
	confirmer := &fakeConfirmer{productIDs: []string{"p1", "p2"}, gate: make(chan struct{})}
	f := New(Attempt{Reference: "cs_1"}, "u1", confirmer, cart, testLogger())

	var wg sync.WaitGroup
	results := make([]Result, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = f.Advance(context.Background())
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(confirmer.gate)
	wg.Wait()

	for _, res := range results {
		assert.Equal(t, domain.FinalizeApplied, res.Status)
	}
	assert.Equal(t, int32(1), confirmer.confirmCalls.Load())
	assert.Equal(t, int32(1), cart.removals.Load())
	assert.Empty(t, cart.Items("u1"))
}

func TestFinalizer_WaiterHonoursOwnContext(t *testing.T) {
	cart := seededCart(t)
	confirmer := &fakeConfirmer{gate: make(chan struct{}), entered: make(chan struct{})}
	f := New(Attempt{Reference: "cs_1"}, "u1", confirmer, cart, testLogger())

	go f.Advance(context.Background())
	<-confirmer.entered

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Equal(t, domain.FinalizeConfirming, f.Advance(ctx).Status)

	close(confirmer.gate)
	<-f.Done()
	assert.Equal(t, domain.FinalizeApplied, f.Result().Status)
}

func TestFinalizer_ConfirmationErrorLeavesCart(t *testing.T) {
	cart := seededCart(t)
	confirmer := &fakeConfirmer{err: apperrors.PaymentFailed("card declined")}
	f := New(Attempt{Reference: "cs_1", Method: domain.MethodCard}, "u1", confirmer, cart, testLogger())

	res := f.Advance(context.Background())
	assert.Equal(t, domain.FinalizeError, res.Status)
	assert.Equal(t, "card declined", res.Message)

	res = f.Advance(context.Background())
	assert.Equal(t, domain.FinalizeError, res.Status, "error is terminal")
	assert.Equal(t, int32(1), confirmer.confirmCalls.Load(), "no automatic retry")
	assert.Equal(t, int32(0), cart.removals.Load())
	assert.Len(t, cart.Items("u1"), 2)
}

func TestFinalizer_ServerErrorMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unavailable", apperrors.ServiceUnavailable("commerce-backend is down"), "payment service is temporarily unavailable, please try again"},
		{"internal", apperrors.Internal(assert.AnError), "payment could not be confirmed"},
		{"plain", assert.AnError, "payment could not be confirmed"},
		{"client error", apperrors.InvalidInput("session not paid"), "session not paid"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := New(Attempt{Reference: "cs_1"}, "u1", &fakeConfirmer{err: tt.err}, seededCart(t), testLogger())
			assert.Equal(t, tt.want, f.Advance(context.Background()).Message)
		})
	}
}

func TestFinalizer_EmptyPurchaseIsSuccess(t *testing.T) {
	cart := seededCart(t)
	f := New(Attempt{Reference: "cs_1"}, "u1", &fakeConfirmer{productIDs: []string{}}, cart, testLogger())

	res := f.Advance(context.Background())
	assert.Equal(t, domain.FinalizeApplied, res.Status)
	assert.Len(t, cart.Items("u1"), 2)
}

func TestFinalizer_IdleWithoutReference(t *testing.T) {
	confirmer := &fakeConfirmer{}
	f := New(Attempt{Method: domain.MethodCard}, "u1", confirmer, seededCart(t), testLogger())

	assert.Equal(t, domain.FinalizeIdle, f.Advance(context.Background()).Status)
	assert.Equal(t, int32(0), confirmer.confirmCalls.Load())
}

func TestFinalizer_CashOnDelivery(t *testing.T) {
	cart := seededCart(t)
	confirmer := &fakeConfirmer{}
	f := New(Attempt{Method: domain.MethodCashOnDelivery}, "u1", confirmer, cart, testLogger())

	res := f.Advance(context.Background())
	assert.Equal(t, domain.FinalizeApplied, res.Status)
	assert.Empty(t, res.ProductIDs)
	assert.Equal(t, int32(0), confirmer.confirmCalls.Load()+confirmer.verifyCalls.Load())
	assert.Len(t, cart.Items("u1"), 2, "cash on delivery removes nothing")
}

func TestFinalizer_EsewaClearsActiveCart(t *testing.T) {
	cart := seededCart(t)
	confirmer := &fakeConfirmer{}
	f := New(Attempt{Reference: "tx-1", Method: domain.MethodEsewa}, "u1", confirmer, cart, testLogger())

	res := f.Advance(context.Background())
	f.Advance(context.Background())

	assert.Equal(t, domain.FinalizeApplied, res.Status)
	assert.True(t, res.Cleared)
	assert.Equal(t, int32(1), confirmer.verifyCalls.Load())
	assert.Equal(t, int32(1), cart.clears.Load())
	assert.Empty(t, cart.Items("u1"))
}

func TestFinalizer_EsewaSkipsInactiveCart(t *testing.T) {
	cart := seededCart(t)
	cart.SetActiveIdentity("u2")
	f := New(Attempt{Reference: "tx-1", Method: domain.MethodEsewa}, "u1", &fakeConfirmer{}, cart, testLogger())

	res := f.Advance(context.Background())
	assert.Equal(t, domain.FinalizeApplied, res.Status)
	assert.False(t, res.Cleared)
	assert.Len(t, cart.Items("u1"), 2)
	assert.Empty(t, cart.Items("u2"))
}

func TestFinalizer_EsewaIdentitySwitchBeforeClear(t *testing.T) {
	store := cartstore.New()
	store.SetActiveIdentity("u2")
	store.AddItem(domain.LineItem{ProductID: "other", Price: decimal.NewFromInt(3), Quantity: 1})
	store.SetActiveIdentity("u1")
	store.AddItem(domain.LineItem{ProductID: "p1", Price: decimal.NewFromInt(100), Quantity: 1})

	cart := &switchingCart{Store: store, to: "u2"}
	f := New(Attempt{Reference: "tx-1", Method: domain.MethodEsewa}, "u1", &fakeConfirmer{}, cart, testLogger())

	res := f.Advance(context.Background())
	assert.Equal(t, domain.FinalizeApplied, res.Status)
	assert.False(t, res.Cleared)
	assert.Equal(t, []string{"other"}, productIDs(store.Items("u2")))
	assert.Equal(t, []string{"p1"}, productIDs(store.Items("u1")))
}

func TestFinalizer_UnmountDiscardsLateResult(t *testing.T) {
	cart := seededCart(t)
	confirmer := &fakeConfirmer{productIDs: []string{"p1"}, gate: make(chan struct{}), entered: make(chan struct{})}
	f := New(Attempt{Reference: "cs_1"}, "u1", confirmer, cart, testLogger())

	resCh := make(chan Result, 1)
	go func() { resCh <- f.Advance(context.Background()) }()
	<-confirmer.entered

	f.Unmount()
	close(confirmer.gate)

	res := <-resCh
	assert.Equal(t, domain.FinalizeAbandoned, res.Status)
	assert.Equal(t, int32(0), cart.removals.Load())
	assert.Len(t, cart.Items("u1"), 2)
}

func TestFinalizer_CanceledContextAbandons(t *testing.T) {
	cart := seededCart(t)
	confirmer := &fakeConfirmer{productIDs: []string{"p1"}, gate: make(chan struct{}), entered: make(chan struct{})}
	f := New(Attempt{Reference: "cs_1"}, "u1", confirmer, cart, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	resCh := make(chan Result, 1)
	go func() { resCh <- f.Advance(ctx) }()
	<-confirmer.entered
	cancel()

	assert.Equal(t, domain.FinalizeAbandoned, (<-resCh).Status)
	assert.Equal(t, domain.FinalizeAbandoned, f.Advance(context.Background()).Status)
	assert.Equal(t, int32(1), confirmer.confirmCalls.Load())
	assert.Len(t, cart.Items("u1"), 2)
}

func TestFinalizer_UnmountBeforeStart(t *testing.T) {
	confirmer := &fakeConfirmer{}
	f := New(Attempt{Reference: "cs_1"}, "u1", confirmer, seededCart(t), testLogger())

	f.Unmount()
	f.Unmount()

	assert.Equal(t, domain.FinalizeAbandoned, f.Advance(context.Background()).Status)
	assert.Equal(t, int32(0), confirmer.confirmCalls.Load())
	select {
	case <-f.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestFinalizer_UnmountAfterApplyKeepsResult(t *testing.T) {
	f := New(Attempt{Method: domain.MethodCashOnDelivery}, "u1", &fakeConfirmer{}, seededCart(t), testLogger())
	require.Equal(t, domain.FinalizeApplied, f.Advance(context.Background()).Status)

	f.Unmount()
	assert.Equal(t, domain.FinalizeApplied, f.Result().Status)
}
