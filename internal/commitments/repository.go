package commitments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"nmtc-connect/deal-portal/deal-portal-backend/pkg/apperrors"
)

type Repository interface {
	Create(ctx context.Context, commitment *Commitment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Commitment, error)
	// UpdateStatusIf performs a conditional update on the expected current
	// status; false means zero rows matched (concurrent modification).
	UpdateStatusIf(ctx context.Context, id uuid.UUID, expected Status, updates map[string]any) (bool, error)
	ListForDeal(ctx context.Context, dealID uuid.UUID) ([]Commitment, error)
	ListForInvestor(ctx context.Context, investorID uuid.UUID) ([]Commitment, error)
	ListForSponsor(ctx context.Context, sponsorID uuid.UUID) ([]Commitment, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, commitment *Commitment) error {
	if err := r.db.WithContext(ctx).Create(commitment).Error; err != nil {
		return fmt.Errorf("inserting commitment: %w", err)
	}
	return nil
}

func (r *gormRepository) GetByID(ctx context.Context, id uuid.UUID) (*Commitment, error) {
	var commitment Commitment
	if err := r.db.WithContext(ctx).First(&commitment, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("commitment", id)
		}
		return nil, fmt.Errorf("loading commitment: %w", err)
	}
	return &commitment, nil
}

func (r *gormRepository) UpdateStatusIf(ctx context.Context, id uuid.UUID, expected Status, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&Commitment{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("updating commitment: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) ListForDeal(ctx context.Context, dealID uuid.UUID) ([]Commitment, error) {
	var commitments []Commitment
	err := r.db.WithContext(ctx).
		Where("deal_id = ?", dealID).
		Order("created_at ASC").
		Find(&commitments).Error
	if err != nil {
		return nil, fmt.Errorf("listing commitments for deal: %w", err)
	}
	return commitments, nil
}

func (r *gormRepository) ListForInvestor(ctx context.Context, investorID uuid.UUID) ([]Commitment, error) {
	var commitments []Commitment
	err := r.db.WithContext(ctx).
		Where("investor_id = ?", investorID).
		Order("created_at DESC").
		Find(&commitments).Error
	if err != nil {
		return nil, fmt.Errorf("listing commitments for investor: %w", err)
	}
	return commitments, nil
}

func (r *gormRepository) ListForSponsor(ctx context.Context, sponsorID uuid.UUID) ([]Commitment, error) {
	var commitments []Commitment
	err := r.db.WithContext(ctx).
		Where("sponsor_id = ?", sponsorID).
		Order("created_at DESC").
		Find(&commitments).Error
	if err != nil {
		return nil, fmt.Errorf("listing commitments for sponsor: %w", err)
	}
	return commitments, nil
}

func (r *gormRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&Commitment{}).
		Where("status IN ? AND expires_at IS NOT NULL AND expires_at < ?",
			[]Status{StatusDraft, StatusIssued, StatusPendingSponsor, StatusPendingCDE}, now).
		Updates(map[string]any{"status": StatusExpired, "updated_at": now})
	if res.Error != nil {
		return 0, fmt.Errorf("expiring commitments: %w", res.Error)
	}
	return res.RowsAffected, nil
}
