package router

import (
	"context"

	"github.com/leadline/crm-call-sync/internal/openphone"
	"github.com/leadline/crm-call-sync/pkg/logger"
	"go.uber.org/zap"
)

// Handler processes one decoded webhook event. Handlers must be idempotent:
// the provider may redeliver, reorder, or duplicate events.
type Handler func(ctx context.Context, env openphone.Envelope) error

// Router dispatches verified webhook events to their handlers. The handler
// map is fixed at construction; there is no process-wide registration list.
type Router struct {
	handlers map[string]Handler
}

// New creates a router with the given event-type to handler mapping.
func New(handlers map[string]Handler) *Router {
	if handlers == nil {
		handlers = make(map[string]Handler)
	}
	return &Router{handlers: handlers}
}

// Route dispatches the event to the matching handler. Unknown event types are
// logged and dropped without error so provider-added kinds don't break
// ingestion. A handler error is logged and returned for observability only;
// the transport layer still acknowledges the delivery.
func (r *Router) Route(ctx context.Context, env openphone.Envelope) error {
	handler, ok := r.handlers[env.Type]
	if !ok {
		logger.Base().Info("ignoring unhandled event type",
			zap.String("event_id", env.ID),
			zap.String("event_type", env.Type),
		)
		return nil
	}

	if err := handler(ctx, env); err != nil {
		logger.Base().Error("event handler failed",
			zap.String("event_id", env.ID),
			zap.String("event_type", env.Type),
			zap.Error(err),
		)
		return err
	}
	return nil
}
