package loi

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
	Create(ctx context.Context, letter *LetterOfIntent) error
	GetByID(ctx context.Context, id uuid.UUID) (*LetterOfIntent, error)
	// UpdateStatusIf performs a conditional update on the expected current
	// status; false means zero rows matched (concurrent modification).
	UpdateStatusIf(ctx context.Context, id uuid.UUID, expected Status, updates map[string]any) (bool, error)
	ListForDeal(ctx context.Context, dealID uuid.UUID) ([]LetterOfIntent, error)
	ListForCDE(ctx context.Context, cdeID uuid.UUID) ([]LetterOfIntent, error)
	ListForSponsor(ctx context.Context, sponsorID uuid.UUID) ([]LetterOfIntent, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, letter *LetterOfIntent) error {
	if err := r.db.WithContext(ctx).Create(letter).Error; err != nil {
		return fmt.Errorf("inserting letter of intent: %w", err)
	}
	return nil
}

func (r *gormRepository) GetByID(ctx context.Context, id uuid.UUID) (*LetterOfIntent, error) {
	var letter LetterOfIntent
	if err := r.db.WithContext(ctx).First(&letter, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("letter of intent", id)
		}
		return nil, fmt.Errorf("loading letter of intent: %w", err)
	}
	return &letter, nil
}

func (r *gormRepository) UpdateStatusIf(ctx context.Context, id uuid.UUID, expected Status, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&LetterOfIntent{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("updating letter of intent: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) ListForDeal(ctx context.Context, dealID uuid.UUID) ([]LetterOfIntent, error) {
	var letters []LetterOfIntent
	err := r.db.WithContext(ctx).
		Where("deal_id = ?", dealID).
		Order("created_at ASC").
		Find(&letters).Error
	if err != nil {
		return nil, fmt.Errorf("listing letters of intent for deal: %w", err)
	}
	return letters, nil
}

func (r *gormRepository) ListForCDE(ctx context.Context, cdeID uuid.UUID) ([]LetterOfIntent, error) {
	var letters []LetterOfIntent
	err := r.db.WithContext(ctx).
		Where("cde_id = ?", cdeID).
		Order("created_at DESC").
		Find(&letters).Error
	if err != nil {
		return nil, fmt.Errorf("listing letters of intent for cde: %w", err)
	}
	return letters, nil
}

func (r *gormRepository) ListForSponsor(ctx context.Context, sponsorID uuid.UUID) ([]LetterOfIntent, error) {
	var letters []LetterOfIntent
	err := r.db.WithContext(ctx).
		Where("sponsor_id = ?", sponsorID).
		Order("created_at DESC").
		Find(&letters).Error
	if err != nil {
		return nil, fmt.Errorf("listing letters of intent for sponsor: %w", err)
	}
	return letters, nil
}

func (r *gormRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&LetterOfIntent{}).
		Where("status IN ? AND expires_at IS NOT NULL AND expires_at < ?",
			[]Status{StatusDraft, StatusIssued, StatusPendingSponsor, StatusSponsorCountered}, now).
		Updates(map[string]any{"status": StatusExpired, "updated_at": now})
	if res.Error != nil {
		return 0, fmt.Errorf("expiring letters of intent: %w", res.Error)
	}
	return res.RowsAffected, nil
}
