package correlation

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/leadline/crm-call-sync/internal/domain"
	"github.com/leadline/crm-call-sync/internal/openphone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLinkStore struct {
	links map[string]*domain.ProcessedCallLink
	err   error
}

func newFakeLinkStore() *fakeLinkStore {
	return &fakeLinkStore{links: make(map[string]*domain.ProcessedCallLink)}
}

func (s *fakeLinkStore) Upsert(_ context.Context, link *domain.ProcessedCallLink) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	if _, exists := s.links[link.ProviderCallID]; exists {
		return false, nil
	}
	s.links[link.ProviderCallID] = link
	return true, nil
}

type fakeNotifier struct {
	linked []*domain.ProcessedCallLink
}

func (n *fakeNotifier) CallLinked(_ context.Context, link *domain.ProcessedCallLink) {
	n.linked = append(n.linked, link)
}

func callCompletedEnvelope(t *testing.T, call openphone.CallObject) openphone.Envelope {
	t.Helper()
	raw, err := json.Marshal(call)
	require.NoError(t, err)
	return openphone.Envelope{
		ID:   "EV1",
		Type: openphone.EventCallCompleted,
		Data: openphone.EnvelopeData{Object: raw},
	}
}

func TestHandleCallCompletedLinksPendingAttempt(t *testing.T) {
	ctx := context.Background()
	registry := NewMemoryRegistry()
	links := newFakeLinkStore()
	notifier := &fakeNotifier{}
	c := NewCorrelator(registry, links, notifier, 30*time.Minute)

	require.NoError(t, registry.Register(ctx, PendingAttempt{
		ID:           "att-1",
		LeadID:       "lead-7",
		DialedNumber: "+15551234567",
		StartedAt:    time.Now().Add(-time.Minute),
	}))

	env := callCompletedEnvelope(t, openphone.CallObject{
		ID:        "AC1",
		Direction: "outgoing",
		To:        "+15551234567",
		Duration:  95,
	})
	require.NoError(t, c.HandleCallCompleted(ctx, env))

	link := links.links["AC1"]
	require.NotNil(t, link)
	assert.Equal(t, "att-1", link.AttemptID)
	assert.Equal(t, "lead-7", link.LeadID)
	require.Len(t, notifier.linked, 1)
	assert.Equal(t, "AC1", notifier.linked[0].ProviderCallID)
}

func TestHandleCallCompletedOrphanIsNotAnError(t *testing.T) {
	ctx := context.Background()
	links := newFakeLinkStore()
	c := NewCorrelator(NewMemoryRegistry(), links, nil, 30*time.Minute)

	env := callCompletedEnvelope(t, openphone.CallObject{
		ID:        "AC2",
		Direction: "incoming",
		From:      "+15557654321",
	})
	assert.NoError(t, c.HandleCallCompleted(ctx, env))
	assert.Empty(t, links.links)
}

func TestHandleCallCompletedExpiredAttemptIsOrphan(t *testing.T) {
	ctx := context.Background()
	registry := NewMemoryRegistry()
	links := newFakeLinkStore()
	c := NewCorrelator(registry, links, nil, 30*time.Minute)

	require.NoError(t, registry.Register(ctx, PendingAttempt{
		ID:           "att-stale",
		DialedNumber: "+15551234567",
		StartedAt:    time.Now().Add(-45 * time.Minute),
	}))

	env := callCompletedEnvelope(t, openphone.CallObject{
		ID:        "AC3",
		Direction: "outgoing",
		To:        "+15551234567",
	})
	require.NoError(t, c.HandleCallCompleted(ctx, env))
	assert.Empty(t, links.links)
}

func TestHandleCallCompletedDuplicateDelivery(t *testing.T) {
	ctx := context.Background()
	registry := NewMemoryRegistry()
	links := newFakeLinkStore()
	notifier := &fakeNotifier{}
	c := NewCorrelator(registry, links, notifier, 30*time.Minute)

	require.NoError(t, registry.Register(ctx, PendingAttempt{
		ID:           "att-1",
		DialedNumber: "+15551234567",
		StartedAt:    time.Now(),
	}))

	env := callCompletedEnvelope(t, openphone.CallObject{
		ID:        "AC4",
		Direction: "outgoing",
		To:        "+15551234567",
	})
	require.NoError(t, c.HandleCallCompleted(ctx, env))
	require.NoError(t, c.HandleCallCompleted(ctx, env))

	assert.Len(t, links.links, 1)
	assert.Len(t, notifier.linked, 1, "redelivery must not notify twice")
}

func TestHandleCallCompletedRejectsBadPayload(t *testing.T) {
	c := NewCorrelator(NewMemoryRegistry(), newFakeLinkStore(), nil, 30*time.Minute)

	env := openphone.Envelope{
		Type: openphone.EventCallCompleted,
		Data: openphone.EnvelopeData{Object: json.RawMessage(`{"id": ""}`)},
	}
	assert.Error(t, c.HandleCallCompleted(context.Background(), env))

	env.Data.Object = json.RawMessage(`not json`)
	assert.Error(t, c.HandleCallCompleted(context.Background(), env))
}

func TestHandleCallCompletedPropagatesStoreError(t *testing.T) {
	ctx := context.Background()
	registry := NewMemoryRegistry()
	links := newFakeLinkStore()
	links.err = errors.New("connection refused")
	c := NewCorrelator(registry, links, nil, 30*time.Minute)

	require.NoError(t, registry.Register(ctx, PendingAttempt{
		ID:           "att-1",
		DialedNumber: "+15551234567",
		StartedAt:    time.Now(),
	}))

	env := callCompletedEnvelope(t, openphone.CallObject{
		ID:        "AC5",
		Direction: "outgoing",
		To:        "+15551234567",
	})
	assert.Error(t, c.HandleCallCompleted(ctx, env))
}
