package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/leadline/crm-call-sync/internal/domain"
	"gorm.io/gorm"
)

// CallRecordRepository handles database operations for durable call records.
// All merge operations are guarded check-and-set updates executed in a single
// SQL statement, so concurrent webhook deliveries for the same call cannot
// lose updates.
type CallRecordRepository struct {
	db *gorm.DB
}

// NewCallRecordRepository creates a new call record repository
func NewCallRecordRepository(db *gorm.DB) *CallRecordRepository {
	return &CallRecordRepository{db: db}
}

// Create creates a new call record
func (r *CallRecordRepository) Create(ctx context.Context, record *domain.CallRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	record.UpdatedAt = time.Now()

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create call record: %w", err)
	}
	return nil
}

// GetByProviderCallID retrieves a call record by the provider call ID stored
// at dial time. Returns nil without error when no record exists.
func (r *CallRecordRepository) GetByProviderCallID(ctx context.Context, callID string) (*domain.CallRecord, error) {
	var record domain.CallRecord
	if err := r.db.WithContext(ctx).Where("openphone_call_id = ?", callID).First(&record).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get call record: %w", err)
	}
	return &record, nil
}

// GetByAttemptID retrieves a call record by attempt ID.
func (r *CallRecordRepository) GetByAttemptID(ctx context.Context, attemptID string) (*domain.CallRecord, error) {
	var record domain.CallRecord
	if err := r.db.WithContext(ctx).Where("attempt_id = ?", attemptID).First(&record).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get call record by attempt: %w", err)
	}
	return &record, nil
}

// GetBySessionID retrieves a call record by session ID.
func (r *CallRecordRepository) GetBySessionID(ctx context.Context, sessionID string) (*domain.CallRecord, error) {
	var record domain.CallRecord
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&record).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get call record by session: %w", err)
	}
	return &record, nil
}

// CompleteCall writes duration, optional artifacts, and the completed status
// in one atomic update. The duration_sec = 0 predicate is the idempotency
// gate: once duration is set, redeliveries affect zero rows. COALESCE keeps
// any artifact that already landed, so a null incoming value never regresses
// a populated field.
func (r *CallRecordRepository) CompleteCall(ctx context.Context, callID string, durationSec int, recordingURL, transcript *string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&domain.CallRecord{}).
		Where("openphone_call_id = ? AND duration_sec = 0", callID).
		Updates(map[string]interface{}{
			"duration_sec":    durationSec,
			"status":          domain.CallStatusCompleted,
			"recording_url":   gorm.Expr("COALESCE(recording_url, ?)", recordingURL),
			"transcript_text": gorm.Expr("COALESCE(transcript_text, ?)", transcript),
			"ended_at":        time.Now(),
			"updated_at":      time.Now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to complete call record: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// SetRecordingURL writes the recording URL only when none is present yet.
func (r *CallRecordRepository) SetRecordingURL(ctx context.Context, callID, url string) (bool, error) {
	if url == "" {
		return false, nil
	}
	res := r.db.WithContext(ctx).
		Model(&domain.CallRecord{}).
		Where("openphone_call_id = ? AND (recording_url IS NULL OR recording_url = '')", callID).
		Updates(map[string]interface{}{
			"recording_url": url,
			"updated_at":    time.Now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to set recording url: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// SetTranscript writes the transcript text only when none is present yet.
func (r *CallRecordRepository) SetTranscript(ctx context.Context, callID, text string) (bool, error) {
	if text == "" {
		return false, nil
	}
	res := r.db.WithContext(ctx).
		Model(&domain.CallRecord{}).
		Where("openphone_call_id = ? AND (transcript_text IS NULL OR transcript_text = '')", callID).
		Updates(map[string]interface{}{
			"transcript_text": text,
			"updated_at":      time.Now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to set transcript: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// SetSummary writes the summary text only when none is present yet.
func (r *CallRecordRepository) SetSummary(ctx context.Context, callID, text string) (bool, error) {
	if text == "" {
		return false, nil
	}
	res := r.db.WithContext(ctx).
		Model(&domain.CallRecord{}).
		Where("openphone_call_id = ? AND (summary_text IS NULL OR summary_text = '')", callID).
		Updates(map[string]interface{}{
			"summary_text": text,
			"updated_at":   time.Now(),
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to set summary: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
