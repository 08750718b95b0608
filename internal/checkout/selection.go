package checkout

import (
	"slices"
	"sync"

	"github.com/utafrali/storefront/internal/domain"
)

// Selection records which line items of one identity's cart are chosen for
// checkout. It remembers the identity and the list length it was recorded
// against; once either changes the recorded indices are stale and are never
// read again.
type Selection struct {
	mu       sync.Mutex
	identity domain.Identity
	length   int
	indices  map[int]struct{}
}

// NewSelection returns an empty selection.
func NewSelection() *Selection {
	return &Selection{indices: make(map[int]struct{})}
}

// Sync binds the selection to id's current list length, dropping every
// recorded index if the identity or the length changed.
func (s *Selection) Sync(id domain.Identity, length int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncLocked(id, length)
}

func (s *Selection) syncLocked(id domain.Identity, length int) {
	if id == s.identity && length == s.length {
		return
	}
	s.identity = id
	s.length = length
	clear(s.indices)
}

// Select marks indices as chosen. Indices outside the synced list are ignored.
func (s *Selection) Select(indices ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, i := range indices {
		if i >= 0 && i < s.length {
			s.indices[i] = struct{}{}
		}
	}
}

// SelectProducts replaces the selection with the positions of productIDs in
// items, syncing to id first. Unknown product IDs are ignored. It returns
// the number of selected items.
func (s *Selection) SelectProducts(id domain.Identity, items []domain.LineItem, productIDs []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.syncLocked(id, len(items))
	clear(s.indices)
	for _, pid := range productIDs {
		if i := domain.IndexOf(items, pid); i >= 0 {
			s.indices[i] = struct{}{}
		}
	}
	return len(s.indices)
}

// Clear drops every recorded index.
func (s *Selection) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.indices)
}

// Indices returns the recorded indices in ascending order.
func (s *Selection) Indices() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]int, 0, len(s.indices))
	for i := range s.indices {
		out = append(out, i)
	}
	slices.Sort(out)
	return out
}

// Pick returns the selected items of id's current list, in list order. A
// selection recorded for another identity or list length yields nothing and
// is reset.
func (s *Selection) Pick(id domain.Identity, items []domain.LineItem) []domain.LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != s.identity || len(items) != s.length {
		s.syncLocked(id, len(items))
		return []domain.LineItem{}
	}

	picked := make([]domain.LineItem, 0, len(s.indices))
	for i, item := range items {
		if _, ok := s.indices[i]; ok {
			picked = append(picked, item)
		}
	}
	return picked
}

// ProductIDs returns the product IDs of the selected items of id's list.
func (s *Selection) ProductIDs(id domain.Identity, items []domain.LineItem) []string {
	picked := s.Pick(id, items)
	ids := make([]string, len(picked))
	for i, item := range picked {
		ids[i] = item.ProductID
	}
	return ids
}
