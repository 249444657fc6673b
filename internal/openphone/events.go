package openphone

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Webhook event types delivered by OpenPhone. The type field is open-ended;
// unknown types are ignored by the router, not rejected.
const (
	EventCallCompleted       = "call.completed"
	EventRecordingCompleted  = "call.recording.completed"
	EventTranscriptCompleted = "call.transcript.completed"
	EventSummaryCompleted    = "call.summary.completed"
)

// Envelope is the webhook event envelope: {id, type, data: {object}, createdAt}.
type Envelope struct {
	ID        string       `json:"id"`
	Type      string       `json:"type"`
	Data      EnvelopeData `json:"data"`
	CreatedAt time.Time    `json:"createdAt"`
}

// EnvelopeData wraps the kind-specific payload object.
type EnvelopeData struct {
	Object json.RawMessage `json:"object"`
}

// DecodeEnvelope parses a raw webhook body into an Envelope.
func DecodeEnvelope(body []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Envelope{}, fmt.Errorf("failed to decode event envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("event envelope missing type")
	}
	return env, nil
}

// CallObject is the payload of a call.completed event.
type CallObject struct {
	ID          string     `json:"id"`
	Direction   string     `json:"direction"` // "incoming" or "outgoing"
	From        string     `json:"from"`
	To          string     `json:"to"`
	Status      string     `json:"status"`
	Duration    int        `json:"duration"` // seconds
	AnsweredAt  *time.Time `json:"answeredAt"`
	CompletedAt *time.Time `json:"completedAt"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// IsOutbound reports whether the call was placed by this side.
func (c CallObject) IsOutbound() bool {
	d := strings.ToLower(c.Direction)
	return d == "outgoing" || d == "outbound"
}

// ParticipantNumber is the number of the remote party: the dialed number for
// outbound calls, the caller's number otherwise.
func (c CallObject) ParticipantNumber() string {
	if c.IsOutbound() {
		return c.To
	}
	return c.From
}

// RecordingMedia is one recorded media item attached to a recording event.
type RecordingMedia struct {
	URL      string `json:"url"`
	Duration int    `json:"duration"`
	Type     string `json:"type"`
}

// RecordingObject is the payload of a call.recording.completed event. The
// object ID is the provider call ID.
type RecordingObject struct {
	ID    string           `json:"id"`
	Media []RecordingMedia `json:"media"`
}

// FirstMediaURL returns the URL of the first media item, or "" when none.
func (r RecordingObject) FirstMediaURL() string {
	for _, m := range r.Media {
		if m.URL != "" {
			return m.URL
		}
	}
	return ""
}

// DialogueSegment is one utterance of a call transcript.
type DialogueSegment struct {
	Identifier string  `json:"identifier"`
	Content    string  `json:"content"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
}

// TranscriptObject is the payload of a call.transcript.completed event.
type TranscriptObject struct {
	CallID   string            `json:"callId"`
	Status   string            `json:"status"`
	Dialogue []DialogueSegment `json:"dialogue"`
}

// Text flattens the dialogue into a newline-separated transcript.
func (t TranscriptObject) Text() string {
	parts := make([]string, 0, len(t.Dialogue))
	for _, seg := range t.Dialogue {
		if seg.Content == "" {
			continue
		}
		if seg.Identifier != "" {
			parts = append(parts, seg.Identifier+": "+seg.Content)
		} else {
			parts = append(parts, seg.Content)
		}
	}
	return strings.Join(parts, "\n")
}

// SummaryObject is the payload of a call.summary.completed event.
type SummaryObject struct {
	CallID  string   `json:"callId"`
	Status  string   `json:"status"`
	Summary []string `json:"summary"`
}

// Text flattens the summary points into a single text block.
func (s SummaryObject) Text() string {
	return strings.Join(s.Summary, "\n")
}
