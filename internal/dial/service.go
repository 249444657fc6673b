package dial

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/leadline/crm-call-sync/internal/correlation"
	"github.com/leadline/crm-call-sync/internal/domain"
	"github.com/leadline/crm-call-sync/internal/openphone"
	"github.com/leadline/crm-call-sync/pkg/logger"
	"go.uber.org/zap"
)

// ProviderClient is the slice of the OpenPhone client the dial service uses.
type ProviderClient interface {
	CreateCall(ctx context.Context, to string) (*openphone.Call, error)
	ListCalls(ctx context.Context, participant string, since time.Time, maxResults int) ([]openphone.Call, error)
}

// CallStore is the slice of the call-record repository the dial service uses.
type CallStore interface {
	Create(ctx context.Context, record *domain.CallRecord) error
	GetByProviderCallID(ctx context.Context, callID string) (*domain.CallRecord, error)
	CompleteCall(ctx context.Context, callID string, durationSec int, recordingURL, transcript *string) (bool, error)
}

// Service places outbound calls and seeds both correlation paths: the
// deterministic one (provider call ID written on the durable record at dial
// time) and the heuristic one (pending attempt registered for the webhook
// correlator).
type Service struct {
	client   ProviderClient
	calls    CallStore
	registry correlation.Registry
	from     string // business phone number in E.164, recorded on the dial record
}

// NewService creates a dial service.
func NewService(client ProviderClient, calls CallStore, registry correlation.Registry, fromNumber string) *Service {
	return &Service{
		client:   client,
		calls:    calls,
		registry: registry,
		from:     fromNumber,
	}
}

// DialRequest asks for an outbound call to a lead.
type DialRequest struct {
	LeadID string `json:"leadId"`
	To     string `json:"to"` // E.164
}

// DialResult reports the identifiers created for an outbound call.
type DialResult struct {
	AttemptID      string `json:"attemptId"`
	SessionID      string `json:"sessionId"`
	ProviderCallID string `json:"providerCallId"`
	Status         string `json:"status"`
}

// sanitizeNumber strips formatting characters, keeping digits and a leading
// plus, so "+1 (555) 123-4567" dials as "+15551234567".
func sanitizeNumber(s string) string {
	s = strings.TrimSpace(s)
	plus := strings.HasPrefix(s, "+")
	var b strings.Builder
	for _, r := range s {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if plus && digits != "" {
		return "+" + digits
	}
	return digits
}

// Dial places the call through the provider and records both correlation
// keys. Configuration errors from the provider client (missing API key or
// phone number ID) are returned to the caller unchanged.
func (s *Service) Dial(ctx context.Context, req DialRequest) (*DialResult, error) {
	to := sanitizeNumber(req.To)
	if to == "" {
		return nil, fmt.Errorf("dial request missing destination number")
	}

	call, err := s.client.CreateCall(ctx, to)
	if err != nil {
		return nil, err
	}

	attemptID := uuid.New().String()
	sessionID := uuid.New().String()
	now := time.Now()

	record := &domain.CallRecord{
		AttemptID:       attemptID,
		SessionID:       sessionID,
		OpenPhoneCallID: call.ID,
		LeadID:          req.LeadID,
		Direction:       domain.CallDirectionOutbound,
		FromNumber:      s.from,
		ToNumber:        to,
		DurationSec:     0,
		Status:          domain.CallStatusInProgress,
		StartedAt:       now,
	}
	if err := s.calls.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create dial record for call %s: %w", call.ID, err)
	}

	if err := s.registry.Register(ctx, correlation.PendingAttempt{
		ID:           attemptID,
		LeadID:       req.LeadID,
		DialedNumber: to,
		StartedAt:    now,
	}); err != nil {
		// The durable record already carries the provider call ID, so the
		// deterministic path still works; only UI lead attribution degrades.
		logger.Base().Warn("failed to register pending attempt",
			zap.String("attempt_id", attemptID),
			zap.Error(err),
		)
	}

	logger.Base().Info("dial attempt recorded",
		zap.String("attempt_id", attemptID),
		zap.String("call_id", call.ID),
		zap.String("lead_id", req.LeadID),
	)

	return &DialResult{
		AttemptID:      attemptID,
		SessionID:      sessionID,
		ProviderCallID: call.ID,
		Status:         "calling",
	}, nil
}

// Backfill pulls recent provider calls and merges completed ones into their
// durable records through the same write-once operation the webhook path
// uses. Returns the number of records updated. Configuration errors surface
// immediately.
func (s *Service) Backfill(ctx context.Context, since time.Time, maxResults int) (int, error) {
	calls, err := s.client.ListCalls(ctx, "", since, maxResults)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, call := range calls {
		if call.CompletedAt == nil || call.Duration <= 0 {
			continue
		}
		record, err := s.calls.GetByProviderCallID(ctx, call.ID)
		if err != nil {
			logger.Base().Error("backfill lookup failed",
				zap.String("call_id", call.ID),
				zap.Error(err),
			)
			continue
		}
		if record == nil {
			continue
		}
		ok, err := s.calls.CompleteCall(ctx, call.ID, call.Duration, nil, nil)
		if err != nil {
			logger.Base().Error("backfill merge failed",
				zap.String("call_id", call.ID),
				zap.Error(err),
			)
			continue
		}
		if ok {
			updated++
		}
	}

	logger.Base().Info("backfill finished",
		zap.Int("fetched", len(calls)),
		zap.Int("updated", updated),
	)
	return updated, nil
}
