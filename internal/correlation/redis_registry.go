package correlation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/leadline/crm-call-sync/pkg/logger"
	"github.com/leadline/crm-call-sync/pkg/redis"
	"go.uber.org/zap"
)

// RedisRegistry keeps pending attempts in Redis so correlation state survives
// process restarts and is shared across service instances. Keys are scoped by
// dialed number and expire with the match window, which also bounds growth.
type RedisRegistry struct {
	redisSvc redis.RedisServiceInterface
	window   time.Duration
}

// NewRedisRegistry creates a Redis-backed registry. The window sets the key
// TTL; entries older than the window can never match, so letting them expire
// is safe.
func NewRedisRegistry(redisSvc redis.RedisServiceInterface, window time.Duration) *RedisRegistry {
	return &RedisRegistry{redisSvc: redisSvc, window: window}
}

func (r *RedisRegistry) key(number string) string {
	return r.redisSvc.GenerateKey(redis.PENDING_ATTEMPT, number)
}

func (r *RedisRegistry) load(ctx context.Context, number string) ([]PendingAttempt, error) {
	val, err := r.redisSvc.GetValue(ctx, r.key(number))
	if err != nil {
		if err == redis.ErrKeyNotExist {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load pending attempts: %w", err)
	}

	var attempts []PendingAttempt
	if err := json.Unmarshal([]byte(val), &attempts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending attempts: %w", err)
	}
	return attempts, nil
}

func (r *RedisRegistry) store(ctx context.Context, number string, attempts []PendingAttempt) error {
	if len(attempts) == 0 {
		return r.redisSvc.DelValue(ctx, r.key(number))
	}
	data, err := json.Marshal(attempts)
	if err != nil {
		return fmt.Errorf("failed to marshal pending attempts: %w", err)
	}
	return r.redisSvc.SetValue(ctx, r.key(number), string(data), r.window)
}

// Register appends an attempt under its dialed number.
func (r *RedisRegistry) Register(ctx context.Context, attempt PendingAttempt) error {
	attempts, err := r.load(ctx, attempt.DialedNumber)
	if err != nil {
		return err
	}
	attempts = append(attempts, attempt)
	if err := r.store(ctx, attempt.DialedNumber, attempts); err != nil {
		return err
	}
	logger.Base().Debug("pending attempt registered",
		zap.String("attempt_id", attempt.ID),
		zap.String("dialed_number", attempt.DialedNumber),
	)
	return nil
}

// Match finds and removes the first in-window attempt for the number. The
// load-filter-store sequence is not atomic across instances; concurrent
// deliveries for the same number can race, matching the known limitation of
// the heuristic path.
func (r *RedisRegistry) Match(ctx context.Context, number string, window time.Duration) (*PendingAttempt, bool) {
	attempts, err := r.load(ctx, number)
	if err != nil {
		logger.Base().Error("failed to read pending-attempt registry",
			zap.String("dialed_number", number),
			zap.Error(err),
		)
		return nil, false
	}

	cutoff := time.Now().Add(-window)
	kept := make([]PendingAttempt, 0, len(attempts))
	var matched *PendingAttempt
	for _, a := range attempts {
		if matched == nil && !a.StartedAt.Before(cutoff) {
			found := a
			matched = &found
			continue
		}
		if a.StartedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, a)
	}

	if matched == nil {
		return nil, false
	}
	if err := r.store(ctx, number, kept); err != nil {
		logger.Base().Error("failed to remove matched pending attempt",
			zap.String("attempt_id", matched.ID),
			zap.Error(err),
		)
	}
	return matched, true
}

// Remove deletes a specific attempt from the registry.
func (r *RedisRegistry) Remove(ctx context.Context, number, attemptID string) error {
	attempts, err := r.load(ctx, number)
	if err != nil {
		return err
	}
	kept := make([]PendingAttempt, 0, len(attempts))
	for _, a := range attempts {
		if a.ID != attemptID {
			kept = append(kept, a)
		}
	}
	return r.store(ctx, number, kept)
}
