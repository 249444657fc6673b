package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/leadline/crm-call-sync/internal/domain"
	"github.com/leadline/crm-call-sync/internal/openphone"
	"github.com/leadline/crm-call-sync/pkg/logger"
	"go.uber.org/zap"
)

// CallEventStore is the slice of the call-record repository the durable
// call-event endpoint writes through.
type CallEventStore interface {
	GetByProviderCallID(ctx context.Context, callID string) (*domain.CallRecord, error)
	CompleteCall(ctx context.Context, callID string, durationSec int, recordingURL, transcript *string) (bool, error)
}

// CallEventHandler is the deterministic merge endpoint: the provider call ID
// in the event is matched directly against the record written at dial time.
type CallEventHandler struct {
	store      CallEventStore
	signingKey string
}

// NewCallEventHandler creates a call-event handler. An empty signing key
// disables signature verification.
func NewCallEventHandler(store CallEventStore, signingKey string) *CallEventHandler {
	return &CallEventHandler{store: store, signingKey: signingKey}
}

// SetupCallEventRoutes registers the durable call-event endpoint.
func SetupCallEventRoutes(r *mux.Router, h *CallEventHandler) {
	r.HandleFunc("/webhooks/openphone/call-events", h.HandleCallEvent).Methods("POST")
}

type callEventRequest struct {
	Type string `json:"type"`
	Data struct {
		ID            string  `json:"id"`
		Direction     string  `json:"direction"`
		From          string  `json:"from"`
		To            string  `json:"to"`
		Status        string  `json:"status"`
		Duration      int     `json:"duration"`
		RecordingURL  *string `json:"recordingUrl"`
		Transcription *struct {
			Text string `json:"text"`
		} `json:"transcription"`
	} `json:"data"`
}

// HandleCallEvent applies a completed-call event to the durable record. The
// merge is write-once: a record whose duration is already set is never
// touched again, so redelivered events report already_processed.
func (h *CallEventHandler) HandleCallEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	if h.signingKey != "" {
		if !openphone.VerifySignature(body, r.Header.Get(openphone.SignatureHeader), h.signingKey) {
			writeJSONError(w, http.StatusUnauthorized, "Invalid signature")
			return
		}
	}

	var req callEventRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	if req.Type != openphone.EventCallCompleted {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	callID := req.Data.ID
	if callID == "" {
		writeJSONError(w, http.StatusBadRequest, "Missing call ID")
		return
	}

	record, err := h.store.GetByProviderCallID(r.Context(), callID)
	if err != nil {
		logger.Base().Error("call event lookup failed",
			zap.String("call_id", callID),
			zap.Error(err),
		)
		writeJSONError(w, http.StatusInternalServerError, "Update failed")
		return
	}
	if record == nil {
		logger.Base().Info("call event for unknown call",
			zap.String("call_id", callID),
		)
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "no_match",
			"callId": callID,
		})
		return
	}
	if record.DurationSec > 0 {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":    "already_processed",
			"sessionId": record.SessionID,
		})
		return
	}

	var recordingURL, transcript *string
	if req.Data.RecordingURL != nil && *req.Data.RecordingURL != "" {
		recordingURL = req.Data.RecordingURL
	}
	if req.Data.Transcription != nil && req.Data.Transcription.Text != "" {
		transcript = &req.Data.Transcription.Text
	}

	updated, err := h.store.CompleteCall(r.Context(), callID, req.Data.Duration, recordingURL, transcript)
	if err != nil {
		logger.Base().Error("call event merge failed",
			zap.String("call_id", callID),
			zap.Error(err),
		)
		writeJSONError(w, http.StatusInternalServerError, "Update failed")
		return
	}
	if !updated {
		// Lost the race against a concurrent delivery of the same event.
		writeJSON(w, http.StatusOK, map[string]string{
			"status":    "already_processed",
			"sessionId": record.SessionID,
		})
		return
	}

	logger.Base().Info("call record completed",
		zap.String("call_id", callID),
		zap.String("session_id", record.SessionID),
		zap.Int("duration_sec", req.Data.Duration),
	)
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "updated",
		"sessionId": record.SessionID,
	})
}
