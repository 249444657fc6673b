package notify

import (
	"context"
	"encoding/json"

	"github.com/leadline/crm-call-sync/internal/domain"
	"github.com/leadline/crm-call-sync/pkg/logger"
	"github.com/leadline/crm-call-sync/pkg/redis"
	"go.uber.org/zap"
)

const (
	// LifecycleChannel carries call-lifecycle notices between instances.
	LifecycleChannel = "callsync:lifecycle"
)

// Kind identifies the notice type.
type Kind string

const (
	KindCallLinked     Kind = "call.linked"
	KindArtifactLanded Kind = "artifact.landed"
)

// Notice is a lifecycle notification published over Redis pub/sub. Consumers
// use these for dashboards and cross-pod logging; artifact completion is
// still observed by polling the durable record.
type Notice struct {
	Kind           Kind   `json:"kind"`
	ProviderCallID string `json:"provider_call_id"`
	AttemptID      string `json:"attempt_id,omitempty"`
	LeadID         string `json:"lead_id,omitempty"`
	Artifact       string `json:"artifact,omitempty"`
}

// Bus publishes lifecycle notices over Redis pub/sub. A Bus with a nil Redis
// service is a no-op, mirroring the degraded-without-Redis posture.
type Bus struct {
	redisSvc redis.RedisServiceInterface
}

// NewBus creates a lifecycle notification bus. redisSvc may be nil.
func NewBus(redisSvc redis.RedisServiceInterface) *Bus {
	return &Bus{redisSvc: redisSvc}
}

// CallLinked publishes a call.linked notice. Implements correlation.LinkNotifier.
func (b *Bus) CallLinked(ctx context.Context, link *domain.ProcessedCallLink) {
	b.publish(ctx, Notice{
		Kind:           KindCallLinked,
		ProviderCallID: link.ProviderCallID,
		AttemptID:      link.AttemptID,
		LeadID:         link.LeadID,
	})
}

// ArtifactLanded publishes an artifact.landed notice. Implements artifact.ArtifactNotifier.
func (b *Bus) ArtifactLanded(ctx context.Context, callID, kind string) {
	b.publish(ctx, Notice{
		Kind:           KindArtifactLanded,
		ProviderCallID: callID,
		Artifact:       kind,
	})
}

func (b *Bus) publish(ctx context.Context, notice Notice) {
	if b == nil || b.redisSvc == nil {
		return
	}
	if err := b.redisSvc.Publish(ctx, LifecycleChannel, notice); err != nil {
		// Notification loss is tolerable; the durable record is the truth.
		logger.Base().Warn("failed to publish lifecycle notice",
			zap.String("kind", string(notice.Kind)),
			zap.String("call_id", notice.ProviderCallID),
			zap.Error(err),
		)
	}
}

// Subscribe listens for lifecycle notices published by any instance.
func (b *Bus) Subscribe(ctx context.Context, handler func(Notice)) error {
	if b == nil || b.redisSvc == nil {
		return nil
	}
	return b.redisSvc.Subscribe(ctx, LifecycleChannel, func(payload string) {
		var notice Notice
		if err := json.Unmarshal([]byte(payload), &notice); err != nil {
			logger.Base().Error("failed to unmarshal lifecycle notice", zap.Error(err))
			return
		}
		handler(notice)
	})
}
