// Package session keeps one cart session per browser session.
package session

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/utafrali/storefront/internal/cartstore"
	"github.com/utafrali/storefront/internal/checkout"
	"github.com/utafrali/storefront/internal/domain"
	"github.com/utafrali/storefront/internal/finalize"
	"github.com/utafrali/storefront/internal/identity"
)

// Session owns the working copy of the carts seen by one browser session
// and everything bound to it. The persisted cart is the source of truth;
// the working copy is refreshed from it on every request.
type Session struct {
	ID        string
	Store     *cartstore.Store
	Identity  *identity.Source
	Selection *checkout.Selection

	binder   *identity.Binder
	lastSeen atomic.Int64

	// mu serializes request handling within the session.
	mu sync.Mutex

	finMu      sync.Mutex
	finalizers map[string]*finalize.Finalizer
}

func newSession(id string, now time.Time, logger *slog.Logger) *Session {
	s := &Session{
		ID:         id,
		Store:      cartstore.New(),
		Identity:   identity.NewSource(),
		Selection:  checkout.NewSelection(),
		finalizers: make(map[string]*finalize.Finalizer),
	}
	s.binder = identity.Bind(s.Identity, s.Store, logger.With(slog.String("session_id", id)))
	s.touch(now)
	return s
}

// Lock serializes a request against the session.
func (s *Session) Lock() { s.mu.Lock() }

// Unlock releases the lock taken by Lock.
func (s *Session) Unlock() { s.mu.Unlock() }

func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}

// LastSeen returns when the session was last used.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

func finalizerKey(a finalize.Attempt) string {
	return string(a.Method) + "|" + a.Reference
}

// Finalizer returns the finalizer for attempt, creating it with create on
// first use. Retries of the same reference share one finalizer and
// therefore one set of latches.
func (s *Session) Finalizer(attempt finalize.Attempt, create func() *finalize.Finalizer) *finalize.Finalizer {
	if attempt.Method == "" {
		attempt.Method = domain.MethodCard
	}
	key := finalizerKey(attempt)

	s.finMu.Lock()
	defer s.finMu.Unlock()

	if f, ok := s.finalizers[key]; ok {
		return f
	}
	f := create()
	s.finalizers[key] = f
	return f
}

// Unmount tears down every finalizer for reference and forgets it. It
// reports whether any was found.
func (s *Session) Unmount(reference string) bool {
	s.finMu.Lock()
	var found []*finalize.Finalizer
	for key, f := range s.finalizers {
		if f.Attempt().Reference == reference {
			found = append(found, f)
			delete(s.finalizers, key)
		}
	}
	s.finMu.Unlock()

	for _, f := range found {
		f.Unmount()
	}
	return len(found) > 0
}

// close unmounts all finalizers and stops following the identity source.
func (s *Session) close() {
	s.finMu.Lock()
	fins := s.finalizers
	s.finalizers = make(map[string]*finalize.Finalizer)
	s.finMu.Unlock()

	for _, f := range fins {
		f.Unmount()
	}
	s.binder.Close()
}
