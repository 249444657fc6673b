package artifact

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/leadline/crm-call-sync/internal/domain"
	"github.com/leadline/crm-call-sync/internal/openphone"
	"github.com/leadline/crm-call-sync/pkg/logger"
	"go.uber.org/zap"
)

// CallStore is the slice of the call-record repository the merger needs. All
// setters are atomic check-and-set at the storage layer: they only write when
// the target field is still empty and report whether a row changed.
type CallStore interface {
	GetByProviderCallID(ctx context.Context, callID string) (*domain.CallRecord, error)
	SetRecordingURL(ctx context.Context, callID, url string) (bool, error)
	SetTranscript(ctx context.Context, callID, text string) (bool, error)
	SetSummary(ctx context.Context, callID, text string) (bool, error)
}

// ArtifactNotifier is told when an artifact lands on a record. May be nil.
type ArtifactNotifier interface {
	ArtifactLanded(ctx context.Context, callID, kind string)
}

// Merger idempotently applies recording/transcript/summary data to the
// durable call record located by provider call ID. A field, once set, is
// never overwritten; repeated deliveries are no-ops.
type Merger struct {
	store    CallStore
	notifier ArtifactNotifier
}

// NewMerger creates a merger over the given store. notifier may be nil.
func NewMerger(store CallStore, notifier ArtifactNotifier) *Merger {
	return &Merger{store: store, notifier: notifier}
}

// HandleRecordingCompleted applies a call.recording.completed event.
func (m *Merger) HandleRecordingCompleted(ctx context.Context, env openphone.Envelope) error {
	var rec openphone.RecordingObject
	if err := json.Unmarshal(env.Data.Object, &rec); err != nil {
		return fmt.Errorf("failed to decode recording object: %w", err)
	}

	url := rec.FirstMediaURL()
	if rec.ID == "" || url == "" {
		logger.Base().Info("recording event without call ID or media, skipping",
			zap.String("event_id", env.ID))
		return nil
	}
	return m.apply(ctx, rec.ID, "recording", func() (bool, error) {
		return m.store.SetRecordingURL(ctx, rec.ID, url)
	})
}

// HandleTranscriptCompleted applies a call.transcript.completed event.
func (m *Merger) HandleTranscriptCompleted(ctx context.Context, env openphone.Envelope) error {
	var tr openphone.TranscriptObject
	if err := json.Unmarshal(env.Data.Object, &tr); err != nil {
		return fmt.Errorf("failed to decode transcript object: %w", err)
	}

	text := tr.Text()
	if tr.CallID == "" || text == "" {
		logger.Base().Info("transcript event without call ID or dialogue, skipping",
			zap.String("event_id", env.ID))
		return nil
	}
	return m.apply(ctx, tr.CallID, "transcript", func() (bool, error) {
		return m.store.SetTranscript(ctx, tr.CallID, text)
	})
}

// HandleSummaryCompleted applies a call.summary.completed event.
func (m *Merger) HandleSummaryCompleted(ctx context.Context, env openphone.Envelope) error {
	var sum openphone.SummaryObject
	if err := json.Unmarshal(env.Data.Object, &sum); err != nil {
		return fmt.Errorf("failed to decode summary object: %w", err)
	}

	text := sum.Text()
	if sum.CallID == "" || text == "" {
		logger.Base().Info("summary event without call ID or content, skipping",
			zap.String("event_id", env.ID))
		return nil
	}
	return m.apply(ctx, sum.CallID, "summary", func() (bool, error) {
		return m.store.SetSummary(ctx, sum.CallID, text)
	})
}

func (m *Merger) apply(ctx context.Context, callID, kind string, set func() (bool, error)) error {
	record, err := m.store.GetByProviderCallID(ctx, callID)
	if err != nil {
		return fmt.Errorf("failed to look up call %s for %s: %w", callID, kind, err)
	}
	if record == nil {
		// The record is created at dial time; an unknown call ID is a
		// correlation miss, not an error.
		logger.Base().Info("no durable record for artifact",
			zap.String("call_id", callID),
			zap.String("artifact", kind),
		)
		return nil
	}

	updated, err := set()
	if err != nil {
		return fmt.Errorf("failed to merge %s for call %s: %w", kind, callID, err)
	}
	if !updated {
		logger.Base().Debug("artifact already present, merge skipped",
			zap.String("call_id", callID),
			zap.String("artifact", kind),
		)
		return nil
	}

	logger.Base().Info("artifact merged",
		zap.String("call_id", callID),
		zap.String("artifact", kind),
	)
	if m.notifier != nil {
		m.notifier.ArtifactLanded(ctx, callID, kind)
	}
	return nil
}
