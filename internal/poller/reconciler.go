package poller

import (
	"context"
	"sync"
	"time"

	"github.com/leadline/crm-call-sync/pkg/logger"
	"go.uber.org/zap"
)

// State is the reconciler lifecycle state: idle → polling → {partial,
// completed, timeout}. Completed is terminal and suppresses the timeout;
// Retry forces any state back through idle into polling.
type State string

const (
	StateIdle      State = "idle"
	StatePolling   State = "polling"
	StatePartial   State = "partial"
	StateCompleted State = "completed"
	StateTimeout   State = "timeout"
)

// Snapshot is the locally observed view of the call record's artifacts.
// Fields only ever gain values across polls; a later poll never regresses a
// field from present to absent.
type Snapshot struct {
	RecordingURL   string
	TranscriptText string
	Status         string
}

func (s Snapshot) hasRecording() bool  { return s.RecordingURL != "" }
func (s Snapshot) hasTranscript() bool { return s.TranscriptText != "" }

// LookupFunc fetches the current read-optimized view of the call record,
// filtered by attempt ID when present, else session ID. A nil snapshot means
// the record was not found, which is treated like an empty record.
type LookupFunc func(ctx context.Context, attemptID, sessionID string) (*Snapshot, error)

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithInterval overrides the poll interval.
func WithInterval(d time.Duration) Option {
	return func(r *Reconciler) { r.interval = d }
}

// WithTimeout overrides the overall poll timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Reconciler) { r.timeout = d }
}

// WithDebounce overrides the retry debounce delay.
func WithDebounce(d time.Duration) Option {
	return func(r *Reconciler) { r.debounce = d }
}

// WithOnChange registers a callback invoked after every state or snapshot
// change, outside the reconciler lock.
func WithOnChange(fn func(State, Snapshot)) Option {
	return func(r *Reconciler) { r.onChange = fn }
}

const (
	defaultInterval = 5 * time.Second
	defaultTimeout  = 3 * time.Minute
	defaultDebounce = 250 * time.Millisecond
)

// Reconciler polls the durable call record until recording and transcript
// are both present or the timeout elapses. One reconciler serves one caller;
// simultaneous reconcilers are independent and uncoordinated.
type Reconciler struct {
	lookup    LookupFunc
	attemptID string
	sessionID string

	interval time.Duration
	timeout  time.Duration
	debounce time.Duration
	onChange func(State, Snapshot)

	mu     sync.Mutex
	state  State
	snap   Snapshot
	gen    int // generation; bumped by Retry/Stop so stale loops cannot transition
	cancel context.CancelFunc
}

// New creates a reconciler for the given identifiers. At least one of
// attemptID or sessionID must be non-empty for Start to do anything.
func New(lookup LookupFunc, attemptID, sessionID string, opts ...Option) *Reconciler {
	r := &Reconciler{
		lookup:    lookup,
		attemptID: attemptID,
		sessionID: sessionID,
		interval:  defaultInterval,
		timeout:   defaultTimeout,
		debounce:  defaultDebounce,
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the current state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Snapshot returns the locally observed artifacts.
func (r *Reconciler) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snap
}

// Start begins polling. It is a no-op when both identifiers are absent or
// when polling is already in progress.
func (r *Reconciler) Start(ctx context.Context) {
	if r.attemptID == "" && r.sessionID == "" {
		logger.Base().Debug("poll reconciler started without identifiers, nothing to do")
		return
	}

	r.mu.Lock()
	if r.state == StatePolling || r.state == StatePartial {
		r.mu.Unlock()
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.gen++
	gen := r.gen
	r.state = StatePolling
	r.mu.Unlock()

	r.notify()
	go r.run(pollCtx, gen)
}

// Stop cancels polling and all timers. Callers must invoke Stop when they are
// torn down; this is the mandatory resource-cleanup path.
func (r *Reconciler) Stop() {
	r.mu.Lock()
	r.gen++
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.mu.Unlock()
}

// Retry cancels any in-flight polling, resets to idle, and restarts polling
// after a short debounce.
func (r *Reconciler) Retry(ctx context.Context) {
	r.mu.Lock()
	r.gen++
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.state = StateIdle
	r.snap = Snapshot{}
	r.mu.Unlock()
	r.notify()

	debounce := r.debounce
	time.AfterFunc(debounce, func() {
		if ctx.Err() != nil {
			return
		}
		r.Start(ctx)
	})
}

func (r *Reconciler) run(ctx context.Context, gen int) {
	deadline := time.NewTimer(r.timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Immediate first lookup, then fixed-interval ticks.
	if r.poll(ctx, gen) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			r.expire(gen)
			return
		case <-ticker.C:
			if r.poll(ctx, gen) {
				return
			}
		}
	}
}

// poll performs one lookup and applies the merge. Returns true when the loop
// should stop (completed or stale generation). Lookup errors are logged and
// swallowed; the next tick retries.
func (r *Reconciler) poll(ctx context.Context, gen int) bool {
	snap, err := r.lookup(ctx, r.attemptID, r.sessionID)
	if err != nil {
		logger.Base().Warn("call record poll failed",
			zap.String("attempt_id", r.attemptID),
			zap.String("session_id", r.sessionID),
			zap.Error(err),
		)
		return false
	}
	if snap == nil {
		return false
	}

	r.mu.Lock()
	if gen != r.gen {
		r.mu.Unlock()
		return true
	}

	changed := false
	// Merge, never clear: a missing field in a later response does not
	// regress a previously observed value.
	if snap.RecordingURL != "" && r.snap.RecordingURL == "" {
		r.snap.RecordingURL = snap.RecordingURL
		changed = true
	}
	if snap.TranscriptText != "" && r.snap.TranscriptText == "" {
		r.snap.TranscriptText = snap.TranscriptText
		changed = true
	}
	if snap.Status != "" && snap.Status != r.snap.Status {
		r.snap.Status = snap.Status
		changed = true
	}

	done := false
	switch {
	case r.snap.hasRecording() && r.snap.hasTranscript():
		r.state = StateCompleted
		changed = true
		done = true
		if r.cancel != nil {
			r.cancel()
			r.cancel = nil
		}
	case r.snap.hasRecording() || r.snap.hasTranscript():
		if r.state != StatePartial {
			r.state = StatePartial
			changed = true
		}
	}
	r.mu.Unlock()

	if changed {
		r.notify()
	}
	return done
}

// expire transitions to timeout unless completion already happened or the
// loop was superseded by Retry/Stop.
func (r *Reconciler) expire(gen int) {
	r.mu.Lock()
	if gen != r.gen || r.state == StateCompleted {
		r.mu.Unlock()
		return
	}
	r.state = StateTimeout
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	r.mu.Unlock()

	logger.Base().Info("poll reconciler timed out",
		zap.String("attempt_id", r.attemptID),
		zap.String("session_id", r.sessionID),
	)
	r.notify()
}

func (r *Reconciler) notify() {
	if r.onChange == nil {
		return
	}
	r.mu.Lock()
	state, snap := r.state, r.snap
	r.mu.Unlock()
	r.onChange(state, snap)
}
