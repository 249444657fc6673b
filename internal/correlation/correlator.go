package correlation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/leadline/crm-call-sync/internal/domain"
	"github.com/leadline/crm-call-sync/internal/openphone"
	"github.com/leadline/crm-call-sync/pkg/logger"
	"go.uber.org/zap"
)

// LinkStore persists processed-call links. Upsert must be at-most-once per
// provider call ID (insert-on-conflict-do-nothing) and report whether a row
// was actually created.
type LinkStore interface {
	Upsert(ctx context.Context, link *domain.ProcessedCallLink) (bool, error)
}

// LinkNotifier is told when correlation creates a new link. Implementations
// must tolerate being nil-adjacent: the correlator treats a nil notifier as
// a no-op.
type LinkNotifier interface {
	CallLinked(ctx context.Context, link *domain.ProcessedCallLink)
}

// Correlator matches inbound call.completed events to pending dial attempts
// using the phone-number + time-window heuristic. This path feeds lead
// attribution for UI context; the durable record is written by the
// deterministic path keyed on the call ID stored at dial time.
type Correlator struct {
	registry Registry
	links    LinkStore
	notifier LinkNotifier
	window   time.Duration
}

// NewCorrelator creates a correlator over the given registry and link store.
// notifier may be nil.
func NewCorrelator(registry Registry, links LinkStore, notifier LinkNotifier, window time.Duration) *Correlator {
	return &Correlator{
		registry: registry,
		links:    links,
		notifier: notifier,
		window:   window,
	}
}

// HandleCallCompleted processes a verified call.completed event. An unmatched
// call is an orphan, logged and discarded without error; redelivery after a
// successful match finds no pending entry and the link upsert is a no-op, so
// the handler is safe to run twice.
func (c *Correlator) HandleCallCompleted(ctx context.Context, env openphone.Envelope) error {
	var call openphone.CallObject
	if err := json.Unmarshal(env.Data.Object, &call); err != nil {
		return fmt.Errorf("failed to decode call object: %w", err)
	}
	if call.ID == "" {
		return fmt.Errorf("call.completed event missing call ID")
	}

	number := call.ParticipantNumber()
	attempt, ok := c.registry.Match(ctx, number, c.window)
	if !ok {
		logger.Base().Info("no pending attempt for completed call",
			zap.String("call_id", call.ID),
			zap.String("participant_number", number),
		)
		return nil
	}

	link := &domain.ProcessedCallLink{
		ProviderCallID: call.ID,
		AttemptID:      attempt.ID,
		LeadID:         attempt.LeadID,
		CreatedAt:      time.Now(),
	}
	created, err := c.links.Upsert(ctx, link)
	if err != nil {
		return fmt.Errorf("failed to persist call link for %s: %w", call.ID, err)
	}
	if !created {
		logger.Base().Info("call already linked",
			zap.String("call_id", call.ID),
			zap.String("attempt_id", attempt.ID),
		)
		return nil
	}

	logger.Base().Info("call correlated to pending attempt",
		zap.String("call_id", call.ID),
		zap.String("attempt_id", attempt.ID),
		zap.String("lead_id", attempt.LeadID),
	)
	if c.notifier != nil {
		c.notifier.CallLinked(ctx, link)
	}
	return nil
}
