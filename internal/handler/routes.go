package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/leadline/crm-call-sync/internal/artifact"
	"github.com/leadline/crm-call-sync/internal/config"
	"github.com/leadline/crm-call-sync/internal/correlation"
	"github.com/leadline/crm-call-sync/internal/dial"
	"github.com/leadline/crm-call-sync/internal/notify"
	"github.com/leadline/crm-call-sync/internal/openphone"
	"github.com/leadline/crm-call-sync/internal/repository"
	"github.com/leadline/crm-call-sync/internal/router"
	"github.com/leadline/crm-call-sync/pkg/logger"
	appredis "github.com/leadline/crm-call-sync/pkg/redis"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// HandlerManager wires the repositories, provider client and event pipeline
// into HTTP handlers.
type HandlerManager struct {
	cfg      *config.CallSyncConfig
	repos    repository.RepositoryManager
	redisSvc appredis.RedisServiceInterface

	webhookHandler   *OpenPhoneWebhookHandler
	callEventHandler *CallEventHandler
	lookupHandler    *CallLookupHandler
	dialHandler      *DialHandler
}

// NewHandlerManager builds the full pipeline. redisSvc may be nil; the
// service then falls back to in-process correlation state and skips
// lifecycle notifications.
func NewHandlerManager(cfg *config.CallSyncConfig, repos repository.RepositoryManager, redisSvc appredis.RedisServiceInterface) *HandlerManager {
	var registry correlation.Registry
	if redisSvc != nil {
		registry = correlation.NewRedisRegistry(redisSvc, cfg.MatchWindow)
	} else {
		logger.Base().Warn("redis unavailable, using in-memory pending attempt registry")
		registry = correlation.NewMemoryRegistry()
	}

	bus := notify.NewBus(redisSvc)

	correlator := correlation.NewCorrelator(registry, repos.CallLink(), bus, cfg.MatchWindow)
	merger := artifact.NewMerger(repos.CallRecord(), bus)

	eventRouter := router.New(map[string]router.Handler{
		openphone.EventCallCompleted:       correlator.HandleCallCompleted,
		openphone.EventRecordingCompleted:  merger.HandleRecordingCompleted,
		openphone.EventTranscriptCompleted: merger.HandleTranscriptCompleted,
		openphone.EventSummaryCompleted:    merger.HandleSummaryCompleted,
	})

	var limiter *rate.Limiter
	if cfg.WebhookRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.WebhookRateLimit), cfg.WebhookRateBurst)
	}

	client := openphone.NewClient(openphone.ClientConfig{
		APIKey:        cfg.OpenPhoneAPIKey,
		PhoneNumberID: cfg.OpenPhonePhoneNumberID,
		BaseURL:       cfg.OpenPhoneBaseURL,
	})
	dialService := dial.NewService(client, repos.CallRecord(), registry, cfg.OpenPhoneFromNumber)

	return &HandlerManager{
		cfg:              cfg,
		repos:            repos,
		redisSvc:         redisSvc,
		webhookHandler:   NewOpenPhoneWebhookHandler(eventRouter, cfg.OpenPhoneWebhookSecret, limiter),
		callEventHandler: NewCallEventHandler(repos.CallRecord(), cfg.OpenPhoneWebhookSecret),
		lookupHandler:    NewCallLookupHandler(repos.CallRecord()),
		dialHandler:      NewDialHandler(dialService),
	}
}

// SetupAllRoutes registers every endpoint on the given router.
func (m *HandlerManager) SetupAllRoutes(r *mux.Router) {
	if m.cfg.EnableCORS {
		r.Use(CORSMiddleware)
	}
	r.Use(GlobalLoggingMiddleware)

	r.HandleFunc("/health", m.HandleHealth).Methods("GET")

	SetupOpenPhoneWebhookRoutes(r, m.webhookHandler)
	SetupCallEventRoutes(r, m.callEventHandler)
	SetupCallLookupRoutes(r, m.lookupHandler)
	SetupDialRoutes(r, m.dialHandler, m.cfg.SecretKey)
}

// HandleHealth reports database connectivity.
func (m *HandlerManager) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if err := m.repos.Ping(r.Context()); err != nil {
		logger.Base().Error("health check failed", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":   "healthy",
		"instance": m.cfg.InstanceID,
	})
}
