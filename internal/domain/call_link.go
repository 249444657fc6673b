package domain

import "time"

// ProcessedCallLink is the durable bridge between the provider-side call
// identity and the system-side attempt identity. It is created once, at the
// moment heuristic correlation succeeds, and is immutable afterward. The
// provider call ID is the natural idempotency key.
type ProcessedCallLink struct {
	ProviderCallID string    `json:"provider_call_id" gorm:"column:provider_call_id;primaryKey"`
	AttemptID      string    `json:"attempt_id" gorm:"column:attempt_id;index"`
	LeadID         string    `json:"lead_id" gorm:"column:lead_id;index"`
	CreatedAt      time.Time `json:"created_at" gorm:"column:created_at"`
}

func (ProcessedCallLink) TableName() string {
	return "processed_call_links"
}
