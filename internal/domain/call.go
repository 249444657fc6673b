package domain

import (
	"time"
)

// CallDirection represents the direction of a call
type CallDirection string

const (
	CallDirectionInbound  CallDirection = "inbound"
	CallDirectionOutbound CallDirection = "outbound"
)

// CallStatus represents the lifecycle state of a durable call record
type CallStatus string

const (
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
)

// CallRecord is the durable record of one phone call. It is created at dial
// time (outbound) or backfill time and mutated only through the write-once
// repository operations: DurationSec > 0 gates call.completed merges, and
// artifact fields are never regressed from non-null to null.
type CallRecord struct {
	ID              string        `json:"id" gorm:"column:id;primaryKey"`
	AttemptID       string        `json:"attempt_id" gorm:"column:attempt_id;index"`
	SessionID       string        `json:"session_id" gorm:"column:session_id;index"`
	OpenPhoneCallID string        `json:"openphone_call_id" gorm:"column:openphone_call_id;unique"`
	LeadID          string        `json:"lead_id" gorm:"column:lead_id;index"`
	Direction       CallDirection `json:"direction" gorm:"column:direction"`
	FromNumber      string        `json:"from_number" gorm:"column:from_number"`
	ToNumber        string        `json:"to_number" gorm:"column:to_number"`
	DurationSec     int           `json:"duration_sec" gorm:"column:duration_sec"`
	RecordingURL    *string       `json:"recording_url" gorm:"column:recording_url"`
	TranscriptText  *string       `json:"transcript_text" gorm:"column:transcript_text"`
	SummaryText     *string       `json:"summary_text" gorm:"column:summary_text"`
	Status          CallStatus    `json:"status" gorm:"column:status"`
	StartedAt       time.Time     `json:"started_at" gorm:"column:started_at"`
	EndedAt         *time.Time    `json:"ended_at" gorm:"column:ended_at"`
	CreatedAt       time.Time     `json:"created_at" gorm:"column:created_at"`
	UpdatedAt       time.Time     `json:"updated_at" gorm:"column:updated_at"`
}

func (CallRecord) TableName() string {
	return "call_records"
}

// HasRecording reports whether the recording artifact has landed.
func (c *CallRecord) HasRecording() bool {
	return c.RecordingURL != nil && *c.RecordingURL != ""
}

// HasTranscript reports whether the transcript artifact has landed.
func (c *CallRecord) HasTranscript() bool {
	return c.TranscriptText != nil && *c.TranscriptText != ""
}
