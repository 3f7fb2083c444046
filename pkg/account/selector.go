package account

import (
	"errors"
	"sync"
)

var (
	// ErrNoAccounts is returned when the registry is empty.
	ErrNoAccounts = errors.New("no sender accounts registered")
	// ErrAllAccountsExhausted is returned when every account is rate limited
	// or at its daily limit.
	ErrAllAccountsExhausted = errors.New("all sender accounts are rate limited or at their daily limit")
)

// Selector picks sender accounts round-robin, skipping accounts that are
// rate limited or at their daily quota. A single rotation cursor is shared
// across all callers so repeated selections stay fair.
type Selector struct {
	mu       sync.Mutex
	cursor   int
	registry *Registry
	tracker  *Tracker
}

func NewSelector(registry *Registry, tracker *Tracker) *Selector {
	return &Selector{cursor: -1, registry: registry, tracker: tracker}
}

// SelectAny returns the next eligible account. It scans at most one full
// pass over the pool; if no account is eligible it reports exhaustion.
func (s *Selector) SelectAny() (Account, error) {
	// Stale flags from a previous day must never cause spurious exhaustion.
	s.tracker.RolloverIfNeeded()

	accounts := s.registry.List()
	if len(accounts) == 0 {
		return Account{}, ErrNoAccounts
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for probes := 0; probes < len(accounts); probes++ {
		s.cursor = (s.cursor + 1) % len(accounts)
		candidate := accounts[s.cursor]

		rec, ok := s.tracker.Usage(candidate.ID)
		if !ok {
			continue
		}
		if rec.RateLimited {
			continue
		}
		if candidate.DailyLimit != nil && rec.SentToday >= *candidate.DailyLimit {
			continue
		}
		return candidate, nil
	}

	return Account{}, ErrAllAccountsExhausted
}

// SelectByID returns the requested account regardless of its quota or
// rate-limit state. Pinning an exhausted account is a deliberate operator
// escape hatch; the send is attempted and fails naturally if the provider
// rejects it.
func (s *Selector) SelectByID(id string) (Account, error) {
	return s.registry.Find(id)
}
