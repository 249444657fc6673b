package handler

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/leadline/crm-call-sync/internal/openphone"
	"github.com/leadline/crm-call-sync/internal/router"
	"github.com/leadline/crm-call-sync/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// OpenPhoneWebhookHandler receives signed provider events and dispatches them
// through the event router. Apart from signature failures it always
// acknowledges: the provider retries on non-2xx, and a redelivered event is
// harmless because every merge downstream is idempotent.
type OpenPhoneWebhookHandler struct {
	router     *router.Router
	signingKey string
	limiter    *rate.Limiter
}

// NewOpenPhoneWebhookHandler creates the webhook handler. An empty signing
// key disables verification; the limiter smooths provider redelivery bursts
// and may be nil.
func NewOpenPhoneWebhookHandler(r *router.Router, signingKey string, limiter *rate.Limiter) *OpenPhoneWebhookHandler {
	return &OpenPhoneWebhookHandler{
		router:     r,
		signingKey: signingKey,
		limiter:    limiter,
	}
}

// SetupOpenPhoneWebhookRoutes registers the webhook endpoint.
func SetupOpenPhoneWebhookRoutes(r *mux.Router, h *OpenPhoneWebhookHandler) {
	r.HandleFunc("/webhooks/openphone", h.HandleWebhook).Methods("POST")
}

// HandleWebhook verifies, decodes and routes one provider event.
func (h *OpenPhoneWebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	if h.signingKey != "" {
		if !openphone.VerifySignature(body, r.Header.Get(openphone.SignatureHeader), h.signingKey) {
			logger.Base().Warn("rejected webhook with invalid signature",
				zap.String("remote_addr", r.RemoteAddr),
			)
			writeJSONError(w, http.StatusUnauthorized, "Invalid signature")
			return
		}
	} else {
		logger.Base().Warn("webhook signature verification skipped: no signing key configured")
	}

	if h.limiter != nil {
		if err := h.limiter.Wait(r.Context()); err != nil {
			// Client went away while we throttled; nothing left to do.
			return
		}
	}

	env, err := openphone.DecodeEnvelope(body)
	if err != nil {
		// Malformed payloads are acked so the provider does not redeliver
		// something we will never be able to parse.
		logger.Base().Error("failed to decode webhook payload", zap.Error(err))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"received": true,
			"error":    "invalid payload",
		})
		return
	}

	if err := h.router.Route(r.Context(), env); err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"received": true,
			"error":    err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"received": true})
}
