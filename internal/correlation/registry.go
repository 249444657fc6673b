package correlation

import (
	"context"
	"sync"
	"time"
)

// PendingAttempt is a dial initiated by this system, not yet linked to a
// provider-side call record. It lives in the registry until matched or
// expired.
type PendingAttempt struct {
	ID           string    `json:"id"`
	LeadID       string    `json:"lead_id"`
	DialedNumber string    `json:"dialed_number"` // E.164
	StartedAt    time.Time `json:"started_at"`
}

// Registry records dial attempts awaiting correlation with an inbound
// call.completed event. Match removes the matched entry: a pending attempt is
// matched to at most one event.
type Registry interface {
	Register(ctx context.Context, attempt PendingAttempt) error
	// Match returns the first registered attempt for the number whose
	// StartedAt falls within the window, removing it from the registry.
	Match(ctx context.Context, number string, window time.Duration) (*PendingAttempt, bool)
	Remove(ctx context.Context, number, attemptID string) error
}

// MemoryRegistry is a mutex-guarded in-process registry, used for tests and
// when Redis is not configured. Correlation state is lost on restart; the
// Redis registry is the durable implementation.
type MemoryRegistry struct {
	mu      sync.Mutex
	pending map[string][]PendingAttempt // keyed by dialed number, insertion order
}

// NewMemoryRegistry creates an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{pending: make(map[string][]PendingAttempt)}
}

// Register adds an attempt to the registry.
func (r *MemoryRegistry) Register(_ context.Context, attempt PendingAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[attempt.DialedNumber] = append(r.pending[attempt.DialedNumber], attempt)
	return nil
}

// Match finds and removes the first in-window attempt for the number.
// Matching is first-found in registration order, not best-found. Expired
// entries encountered during the scan are pruned.
func (r *MemoryRegistry) Match(_ context.Context, number string, window time.Duration) (*PendingAttempt, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().Add(-window)
	entries := r.pending[number]
	kept := entries[:0]
	var matched *PendingAttempt
	for _, a := range entries {
		if matched == nil && !a.StartedAt.Before(cutoff) {
			found := a
			matched = &found
			continue
		}
		if a.StartedAt.Before(cutoff) {
			continue // expired
		}
		kept = append(kept, a)
	}

	if len(kept) == 0 {
		delete(r.pending, number)
	} else {
		r.pending[number] = kept
	}
	return matched, matched != nil
}

// Remove deletes a specific attempt from the registry.
func (r *MemoryRegistry) Remove(_ context.Context, number, attemptID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.pending[number]
	kept := entries[:0]
	for _, a := range entries {
		if a.ID != attemptID {
			kept = append(kept, a)
		}
	}
	if len(kept) == 0 {
		delete(r.pending, number)
	} else {
		r.pending[number] = kept
	}
	return nil
}
