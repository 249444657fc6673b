package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// NewHTTPLookup builds a LookupFunc over the call lookup endpoint. A 404
// means the record has not landed yet and reads as an empty snapshot; any
// other non-2xx status is an error the reconciler will retry on the next
// tick.
func NewHTTPLookup(baseURL string, client *http.Client) LookupFunc {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, attemptID, sessionID string) (*Snapshot, error) {
		q := url.Values{}
		if attemptID != "" {
			q.Set("attemptId", attemptID)
		} else {
			q.Set("sessionId", sessionID)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/calls/lookup?"+q.Encode(), nil)
		if err != nil {
			return nil, err
		}

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("call lookup returned status %d", resp.StatusCode)
		}

		var body struct {
			RecordingURL   *string `json:"recordingUrl"`
			TranscriptText *string `json:"transcriptText"`
			Status         string  `json:"status"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return nil, fmt.Errorf("failed to decode lookup response: %w", err)
		}

		snap := &Snapshot{Status: body.Status}
		if body.RecordingURL != nil {
			snap.RecordingURL = *body.RecordingURL
		}
		if body.TranscriptText != nil {
			snap.TranscriptText = *body.TranscriptText
		}
		return snap, nil
	}
}
