package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/jinzhu/copier"
	"github.com/leadline/crm-call-sync/internal/domain"
	"github.com/leadline/crm-call-sync/pkg/logger"
	"go.uber.org/zap"
)

// CallLookupStore is the read surface the client poller queries.
type CallLookupStore interface {
	GetByAttemptID(ctx context.Context, attemptID string) (*domain.CallRecord, error)
	GetBySessionID(ctx context.Context, sessionID string) (*domain.CallRecord, error)
}

// CallLookupHandler serves the polling endpoint for call artifacts.
type CallLookupHandler struct {
	store CallLookupStore
}

// NewCallLookupHandler creates a lookup handler.
func NewCallLookupHandler(store CallLookupStore) *CallLookupHandler {
	return &CallLookupHandler{store: store}
}

// SetupCallLookupRoutes registers the poll lookup endpoint.
func SetupCallLookupRoutes(r *mux.Router, h *CallLookupHandler) {
	r.HandleFunc("/api/calls/lookup", h.HandleLookup).Methods("GET")
}

// callArtifactResponse is the poll payload. Fields mirror the record columns
// the client cares about; copier maps them by name.
type callArtifactResponse struct {
	RecordingURL   *string `json:"recordingUrl"`
	TranscriptText *string `json:"transcriptText"`
	SummaryText    *string `json:"summaryText"`
	Status         string  `json:"status"`
	DurationSec    int     `json:"durationSec"`
}

// HandleLookup returns the current artifact snapshot for an attempt or
// session. Either attemptId or sessionId must be provided.
func (h *CallLookupHandler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	attemptID := r.URL.Query().Get("attemptId")
	sessionID := r.URL.Query().Get("sessionId")
	if attemptID == "" && sessionID == "" {
		writeJSONError(w, http.StatusBadRequest, "attemptId or sessionId is required")
		return
	}

	var (
		record *domain.CallRecord
		err    error
	)
	if attemptID != "" {
		record, err = h.store.GetByAttemptID(r.Context(), attemptID)
	} else {
		record, err = h.store.GetBySessionID(r.Context(), sessionID)
	}
	if err != nil {
		logger.Base().Error("call lookup failed",
			zap.String("attempt_id", attemptID),
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		writeJSONError(w, http.StatusInternalServerError, "Lookup failed")
		return
	}
	if record == nil {
		writeJSONError(w, http.StatusNotFound, "Call not found")
		return
	}

	var resp callArtifactResponse
	if err := copier.Copy(&resp, record); err != nil {
		logger.Base().Error("failed to map call record", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "Lookup failed")
		return
	}
	resp.Status = string(record.Status)

	writeJSON(w, http.StatusOK, resp)
}
