package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/leadline/crm-call-sync/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CallLinkRepository handles database operations for processed-call links.
type CallLinkRepository struct {
	db *gorm.DB
}

// NewCallLinkRepository creates a new call link repository
func NewCallLinkRepository(db *gorm.DB) *CallLinkRepository {
	return &CallLinkRepository{db: db}
}

// Upsert inserts the link unless one already exists for the provider call ID.
// ON CONFLICT DO NOTHING makes link creation at-most-once even under
// concurrent redelivery. Returns whether a row was actually inserted.
func (r *CallLinkRepository) Upsert(ctx context.Context, link *domain.ProcessedCallLink) (bool, error) {
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now()
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_call_id"}},
			DoNothing: true,
		}).
		Create(link)
	if res.Error != nil {
		return false, fmt.Errorf("failed to upsert call link: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// GetByProviderCallID retrieves a link by provider call ID. Returns nil
// without error when no link exists.
func (r *CallLinkRepository) GetByProviderCallID(ctx context.Context, providerCallID string) (*domain.ProcessedCallLink, error) {
	var link domain.ProcessedCallLink
	if err := r.db.WithContext(ctx).Where("provider_call_id = ?", providerCallID).First(&link).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get call link: %w", err)
	}
	return &link, nil
}

// GetByAttemptID retrieves a link by attempt ID.
func (r *CallLinkRepository) GetByAttemptID(ctx context.Context, attemptID string) (*domain.ProcessedCallLink, error) {
	var link domain.ProcessedCallLink
	if err := r.db.WithContext(ctx).Where("attempt_id = ?", attemptID).First(&link).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get call link by attempt: %w", err)
	}
	return &link, nil
}
