package dial

import (
	"context"
	"testing"
	"time"

	"github.com/leadline/crm-call-sync/internal/correlation"
	"github.com/leadline/crm-call-sync/internal/domain"
	"github.com/leadline/crm-call-sync/internal/openphone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	createErr error
	created   []string
	calls     []openphone.Call
	listErr   error
}

func (p *fakeProvider) CreateCall(_ context.Context, to string) (*openphone.Call, error) {
	if p.createErr != nil {
		return nil, p.createErr
	}
	p.created = append(p.created, to)
	return &openphone.Call{ID: "AC-" + to}, nil
}

func (p *fakeProvider) ListCalls(_ context.Context, _ string, _ time.Time, _ int) ([]openphone.Call, error) {
	if p.listErr != nil {
		return nil, p.listErr
	}
	return p.calls, nil
}

type fakeDialStore struct {
	records   map[string]*domain.CallRecord
	createErr error
}

func newFakeDialStore() *fakeDialStore {
	return &fakeDialStore{records: make(map[string]*domain.CallRecord)}
}

func (s *fakeDialStore) Create(_ context.Context, record *domain.CallRecord) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.records[record.OpenPhoneCallID] = record
	return nil
}

func (s *fakeDialStore) GetByProviderCallID(_ context.Context, callID string) (*domain.CallRecord, error) {
	return s.records[callID], nil
}

func (s *fakeDialStore) CompleteCall(_ context.Context, callID string, durationSec int, recordingURL, transcript *string) (bool, error) {
	rec := s.records[callID]
	if rec == nil || rec.DurationSec > 0 {
		return false, nil
	}
	rec.DurationSec = durationSec
	rec.Status = domain.CallStatusCompleted
	return true, nil
}

func TestDialCreatesRecordAndPendingAttempt(t *testing.T) {
	ctx := context.Background()
	provider := &fakeProvider{}
	store := newFakeDialStore()
	registry := correlation.NewMemoryRegistry()
	svc := NewService(provider, store, registry, "+15550001111")

	result, err := svc.Dial(ctx, DialRequest{LeadID: "lead-1", To: "+1 (555) 123-4567"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.AttemptID)
	assert.NotEmpty(t, result.SessionID)
	assert.Equal(t, "calling", result.Status)

	// Number is normalized before dialing.
	assert.Equal(t, []string{"+15551234567"}, provider.created)

	rec := store.records[result.ProviderCallID]
	require.NotNil(t, rec)
	assert.Equal(t, result.AttemptID, rec.AttemptID)
	assert.Equal(t, "lead-1", rec.LeadID)
	assert.Equal(t, domain.CallDirectionOutbound, rec.Direction)
	assert.Equal(t, domain.CallStatusInProgress, rec.Status)
	assert.Zero(t, rec.DurationSec)

	attempt, ok := registry.Match(ctx, "+15551234567", 30*time.Minute)
	require.True(t, ok)
	assert.Equal(t, result.AttemptID, attempt.ID)
}

func TestDialPropagatesConfigError(t *testing.T) {
	provider := &fakeProvider{createErr: openphone.ErrMissingAPIKey}
	svc := NewService(provider, newFakeDialStore(), correlation.NewMemoryRegistry(), "+15550001111")

	_, err := svc.Dial(context.Background(), DialRequest{To: "+15551234567"})
	assert.ErrorIs(t, err, openphone.ErrMissingAPIKey)
}

func TestDialRejectsEmptyNumber(t *testing.T) {
	svc := NewService(&fakeProvider{}, newFakeDialStore(), correlation.NewMemoryRegistry(), "+15550001111")
	_, err := svc.Dial(context.Background(), DialRequest{To: "  "})
	assert.Error(t, err)
}

func TestBackfillCompletesStaleRecords(t *testing.T) {
	ctx := context.Background()
	completed := time.Now()
	provider := &fakeProvider{calls: []openphone.Call{
		{ID: "AC1", Duration: 80, CompletedAt: &completed},
		{ID: "AC2", Duration: 0}, // still in progress, skipped
		{ID: "AC-unknown", Duration: 30, CompletedAt: &completed}, // no durable record
	}}
	store := newFakeDialStore()
	store.records["AC1"] = &domain.CallRecord{OpenPhoneCallID: "AC1", Status: domain.CallStatusInProgress}
	svc := NewService(provider, store, correlation.NewMemoryRegistry(), "+15550001111")

	updated, err := svc.Backfill(ctx, time.Now().Add(-24*time.Hour), 50)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)
	assert.Equal(t, 80, store.records["AC1"].DurationSec)
	assert.Equal(t, domain.CallStatusCompleted, store.records["AC1"].Status)
}

func TestBackfillIsIdempotent(t *testing.T) {
	ctx := context.Background()
	completed := time.Now()
	provider := &fakeProvider{calls: []openphone.Call{
		{ID: "AC1", Duration: 80, CompletedAt: &completed},
	}}
	store := newFakeDialStore()
	store.records["AC1"] = &domain.CallRecord{OpenPhoneCallID: "AC1", DurationSec: 80, Status: domain.CallStatusCompleted}
	svc := NewService(provider, store, correlation.NewMemoryRegistry(), "+15550001111")

	updated, err := svc.Backfill(ctx, time.Now().Add(-24*time.Hour), 50)
	require.NoError(t, err)
	assert.Zero(t, updated)
}

func TestBackfillPropagatesConfigError(t *testing.T) {
	provider := &fakeProvider{listErr: openphone.ErrMissingAPIKey}
	svc := NewService(provider, newFakeDialStore(), correlation.NewMemoryRegistry(), "+15550001111")

	_, err := svc.Backfill(context.Background(), time.Now(), 10)
	assert.ErrorIs(t, err, openphone.ErrMissingAPIKey)
}
