package correlation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/leadline/crm-call-sync/pkg/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedisService implements redis.RedisServiceInterface over a plain map.
// TTL is recorded but never enforced; the registry filters by window anyway.
type fakeRedisService struct {
	mu     sync.Mutex
	values map[string]string
	ttls   map[string]time.Duration
}

func newFakeRedisService() *fakeRedisService {
	return &fakeRedisService{
		values: make(map[string]string),
		ttls:   make(map[string]time.Duration),
	}
}

func (f *fakeRedisService) GenerateKey(keyType redis.KeyType, identifier string) string {
	return fmt.Sprintf("%s:%s", string(keyType), identifier)
}

func (f *fakeRedisService) GetValue(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	val, ok := f.values[key]
	if !ok {
		return "", redis.ErrKeyNotExist
	}
	return val, nil
}

func (f *fakeRedisService) SetValue(_ context.Context, key string, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	f.ttls[key] = ttl
	return nil
}

func (f *fakeRedisService) DelValue(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, key)
	delete(f.ttls, key)
	return nil
}

func (f *fakeRedisService) Publish(context.Context, string, interface{}) error { return nil }

func (f *fakeRedisService) Subscribe(context.Context, string, func(string)) error { return nil }

func TestRedisRegistryRegisterAndMatch(t *testing.T) {
	ctx := context.Background()
	svc := newFakeRedisService()
	r := NewRedisRegistry(svc, window)

	require.NoError(t, r.Register(ctx, PendingAttempt{
		ID:           "att-1",
		LeadID:       "lead-1",
		DialedNumber: "+15551234567",
		StartedAt:    time.Now(),
	}))

	// The entry is persisted under the scoped key with the window TTL.
	key := svc.GenerateKey(redis.PENDING_ATTEMPT, "+15551234567")
	svc.mu.Lock()
	raw, ok := svc.values[key]
	ttl := svc.ttls[key]
	svc.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, window, ttl)

	var stored []PendingAttempt
	require.NoError(t, json.Unmarshal([]byte(raw), &stored))
	require.Len(t, stored, 1)
	assert.Equal(t, "att-1", stored[0].ID)

	matched, found := r.Match(ctx, "+15551234567", window)
	require.True(t, found)
	assert.Equal(t, "att-1", matched.ID)
	assert.Equal(t, "lead-1", matched.LeadID)

	// Matched entry is removed; the emptied key is deleted outright.
	svc.mu.Lock()
	_, ok = svc.values[key]
	svc.mu.Unlock()
	assert.False(t, ok)
}

func TestRedisRegistryMatchSkipsExpired(t *testing.T) {
	ctx := context.Background()
	r := NewRedisRegistry(newFakeRedisService(), window)

	require.NoError(t, r.Register(ctx, PendingAttempt{
		ID:           "att-stale",
		DialedNumber: "+15550009999",
		StartedAt:    time.Now().Add(-31 * time.Minute),
	}))
	require.NoError(t, r.Register(ctx, PendingAttempt{
		ID:           "att-fresh",
		DialedNumber: "+15550009999",
		StartedAt:    time.Now(),
	}))

	matched, found := r.Match(ctx, "+15550009999", window)
	require.True(t, found)
	assert.Equal(t, "att-fresh", matched.ID)
}

func TestRedisRegistryMatchMissingKey(t *testing.T) {
	r := NewRedisRegistry(newFakeRedisService(), window)
	_, found := r.Match(context.Background(), "+15550000000", window)
	assert.False(t, found)
}

func TestRedisRegistryRemove(t *testing.T) {
	ctx := context.Background()
	r := NewRedisRegistry(newFakeRedisService(), window)

	require.NoError(t, r.Register(ctx, PendingAttempt{
		ID:           "att-1",
		DialedNumber: "+15551112222",
		StartedAt:    time.Now(),
	}))
	require.NoError(t, r.Remove(ctx, "+15551112222", "att-1"))

	_, found := r.Match(ctx, "+15551112222", window)
	assert.False(t, found)
}
