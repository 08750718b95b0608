package identity

import (
	"sync"

	"github.com/utafrali/storefront/internal/domain"
)

// Source is an observable "currently signed-in identity" value owned outside
// the cart store.
type Source struct {
	mu      sync.Mutex
	current domain.Identity
	nextID  int
	subs    map[int]func(domain.Identity)
}

// NewSource creates a source holding NoIdentity.
func NewSource() *Source {
	return &Source{subs: make(map[int]func(domain.Identity))}
}

// Current returns the last identity set.
func (s *Source) Current() domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Set stores id and notifies subscribers when it changed. Notification runs
// synchronously under the source lock, so concurrent writers are delivered
// one at a time and the last write wins. Subscribers must not call Set.
func (s *Source) Set(id domain.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current == id {
		return
	}
	s.current = id
	for _, fn := range s.subs {
		fn(id)
	}
}

// Subscribe registers fn for identity changes and returns a func that
// removes it. fn is called once with the current value before Subscribe
// returns, so a subscriber never misses a change made while it registers.
func (s *Source) Subscribe(fn func(domain.Identity)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	fn(s.current)
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}
