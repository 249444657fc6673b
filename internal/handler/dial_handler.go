package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/leadline/crm-call-sync/internal/dial"
	"github.com/leadline/crm-call-sync/internal/openphone"
	"github.com/leadline/crm-call-sync/pkg/logger"
	"go.uber.org/zap"
)

// DialHandler exposes outbound dialing and the backfill sweep.
type DialHandler struct {
	service *dial.Service
}

// NewDialHandler creates a dial handler.
func NewDialHandler(service *dial.Service) *DialHandler {
	return &DialHandler{service: service}
}

// SetupDialRoutes registers the dial endpoints behind the API-key guard. An
// empty secret key leaves the endpoints open, which is only acceptable in
// local development.
func SetupDialRoutes(r *mux.Router, h *DialHandler, secretKey string) {
	sub := r.PathPrefix("/api/calls").Subrouter()
	if secretKey != "" {
		sub.Use(APIKeyMiddleware(secretKey))
	} else {
		logger.Base().Warn("SECRET_KEY not set, dial endpoints are unauthenticated")
	}
	sub.HandleFunc("/dial", h.HandleDial).Methods("POST")
	sub.HandleFunc("/backfill", h.HandleBackfill).Methods("POST")
}

// HandleDial places an outbound call to a lead.
func (h *DialHandler) HandleDial(w http.ResponseWriter, r *http.Request) {
	var req dial.DialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	result, err := h.service.Dial(r.Context(), req)
	if err != nil {
		if errors.Is(err, openphone.ErrMissingAPIKey) || errors.Is(err, openphone.ErrMissingPhoneNumber) {
			writeJSONError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		logger.Base().Error("dial failed",
			zap.String("lead_id", req.LeadID),
			zap.Error(err),
		)
		writeJSONError(w, http.StatusBadGateway, "Failed to place call")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HandleBackfill sweeps recent provider calls into their durable records.
// Optional query params: hours (default 24), limit (default 50).
func (h *DialHandler) HandleBackfill(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSONError(w, http.StatusBadRequest, "Invalid hours parameter")
			return
		}
		hours = n
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSONError(w, http.StatusBadRequest, "Invalid limit parameter")
			return
		}
		limit = n
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	updated, err := h.service.Backfill(r.Context(), since, limit)
	if err != nil {
		if errors.Is(err, openphone.ErrMissingAPIKey) {
			writeJSONError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		logger.Base().Error("backfill failed", zap.Error(err))
		writeJSONError(w, http.StatusBadGateway, "Backfill failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"updated": updated})
}
