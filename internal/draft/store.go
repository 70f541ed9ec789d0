// Package draft holds composed messages between the preview and the send
// request.
package draft

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shineum/pdf-mailer/internal/email"
)

// DefaultTTL is how long a previewed draft stays sendable.
const DefaultTTL = 15 * time.Minute

var (
	// ErrNotFound is returned for unknown drafts, drafts that were already
	// taken, and drafts owned by someone else.
	ErrNotFound = errors.New("draft not found")
	// ErrExpired is returned when the draft outlived the TTL.
	ErrExpired = errors.New("draft expired")
)

type entry struct {
	owner     string
	draft     *email.Draft
	expiresAt time.Time
}

// Store is an in-memory, process-lifetime map of drafts keyed by draft ID.
// Each draft can be taken once, and only by the user who created it.
type Store struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry
}

// NewStore creates a store. A non-positive ttl uses DefaultTTL.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

// TTL returns the lifetime of a stored draft.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Put stores d for owner and returns its expiry.
func (s *Store) Put(owner string, d *email.Draft) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	expires := s.now().Add(s.ttl)
	s.entries[d.ID] = entry{owner: owner, draft: d, expiresAt: expires}
	return expires
}

// Take removes and returns the draft. Expired drafts are removed too.
func (s *Store) Take(owner, id string) (*email.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || e.owner != owner {
		return nil, ErrNotFound
	}
	delete(s.entries, id)
	if !s.now().Before(e.expiresAt) {
		return nil, ErrExpired
	}
	return e.draft, nil
}

// Len returns the number of stored drafts, expired or not.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Sweep drops expired drafts and returns how many were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := 0
	for id, e := range s.entries {
		if !now.Before(e.expiresAt) {
			delete(s.entries, id)
			n++
		}
	}
	return n
}

// Run sweeps every interval until ctx is done. onSweep, if set, is called
// after each sweep with the number of drafts removed.
func (s *Store) Run(ctx context.Context, interval time.Duration, onSweep func(removed int)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n := s.Sweep()
			if onSweep != nil {
				onSweep(n)
			}
		}
	}
}
