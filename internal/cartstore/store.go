// Package cartstore holds per-identity shopping carts in memory.
//
// Every mutation is a pure state transition. Invalid targets (no active
// identity, unknown product) are silently ignored rather than reported.
package cartstore

import (
	"slices"
	"sync"

	"github.com/utafrali/storefront/internal/domain"
)

// Store owns the cart collection and the active-identity pointer.
type Store struct {
	mu     sync.RWMutex
	active domain.Identity
	carts  map[domain.Identity][]domain.LineItem
}

// New creates an empty cart store with no active identity.
func New() *Store {
	return &Store{
		carts: make(map[domain.Identity][]domain.LineItem),
	}
}

// SetActiveIdentity points the store at id. A concrete id gets an empty cart
// on first activation; NoIdentity only clears the pointer.
func (s *Store) SetActiveIdentity(id domain.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = id
	if !id.IsSet() {
		return
	}
	if _, ok := s.carts[id]; !ok {
		s.carts[id] = []domain.LineItem{}
	}
}

// ActiveIdentity returns the identity mutations currently target.
func (s *Store) ActiveIdentity() domain.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// AddItem appends item to the active cart, or increases the quantity of the
// existing line with the same product ID. The stock ceiling is not enforced.
func (s *Store) AddItem(item domain.LineItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active.IsSet() {
		return
	}

	items := s.carts[s.active]
	if i := domain.IndexOf(items, item.ProductID); i >= 0 {
		items[i].Quantity += item.Quantity
		return
	}
	s.carts[s.active] = append(items, item)
}

// SetQty replaces the quantity of productID verbatim. Callers clamp first.
func (s *Store) SetQty(productID string, qty int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active.IsSet() {
		return
	}

	items := s.carts[s.active]
	if i := domain.IndexOf(items, productID); i >= 0 {
		items[i].Quantity = qty
	}
}

// RemoveItem drops productID from the active cart.
func (s *Store) RemoveItem(productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active.IsSet() {
		return
	}

	items := s.carts[s.active]
	if i := domain.IndexOf(items, productID); i >= 0 {
		s.carts[s.active] = slices.Delete(items, i, i+1)
	}
}

// Clear empties the active cart.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active.IsSet() {
		return
	}
	s.carts[s.active] = []domain.LineItem{}
}

// RemovePurchased removes every line whose product ID is in productIDs from
// id's cart. id need not be the active identity. Repeated calls with the same
// arguments leave the cart unchanged.
func (s *Store) RemovePurchased(id domain.Identity, productIDs []string) {
	if len(productIDs) == 0 {
		return
	}

	purchased := make(map[string]struct{}, len(productIDs))
	for _, pid := range productIDs {
		purchased[pid] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, ok := s.carts[id]
	if !ok {
		return
	}
	s.carts[id] = slices.DeleteFunc(items, func(item domain.LineItem) bool {
		_, bought := purchased[item.ProductID]
		return bought
	})
}

// Items returns a copy of id's cart in insertion order. Unknown identities
// yield an empty slice.
func (s *Store) Items(id domain.Identity) []domain.LineItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := s.carts[id]
	out := make([]domain.LineItem, len(items))
	copy(out, items)
	return out
}

// Has reports whether a cart entry exists for id.
func (s *Store) Has(id domain.Identity) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.carts[id]
	return ok
}

// Replace installs a copy of items as id's cart. It is used to bring the
// store in line with the persisted cart and reports whether the product
// order changed.
func (s *Store) Replace(id domain.Identity, items []domain.LineItem) bool {
	if !id.IsSet() {
		return false
	}

	replaced := make([]domain.LineItem, len(items))
	copy(replaced, items)

	s.mu.Lock()
	defer s.mu.Unlock()

	changed := !SameOrder(s.carts[id], replaced)
	s.carts[id] = replaced
	return changed
}

// ClearFor empties id's cart only while id is the active identity. The
// check and the clear happen under one lock, so an identity switch cannot
// slip in between. It reports whether the cart was cleared.
func (s *Store) ClearFor(id domain.Identity) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !id.IsSet() || s.active != id {
		return false
	}
	s.carts[id] = []domain.LineItem{}
	return true
}

// SameOrder reports whether a and b list the same products in the same
// order, ignoring quantities.
func SameOrder(a, b []domain.LineItem) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ProductID != b[i].ProductID {
			return false
		}
	}
	return true
}
