package matchrequests

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"nmtc-connect/deal-portal/deal-portal-backend/pkg/apperrors"
)

type Repository interface {
	// CreateWithSlotCheck counts the sponsor's open requests and inserts the
	// new one in a single transaction so two concurrent creates cannot both
	// pass the capacity check. Expired-pending rows are excluded by the
	// count itself.
	CreateWithSlotCheck(ctx context.Context, req *MatchRequest, limit int) error
	GetByID(ctx context.Context, id uuid.UUID) (*MatchRequest, error)
	// UpdateStatusIf performs a conditional update on the expected current
	// status. It reports false when zero rows matched, which callers treat
	// as a concurrent-modification conflict.
	UpdateStatusIf(ctx context.Context, id uuid.UUID, expected Status, updates map[string]any) (bool, error)
	// ActiveCooldownEnd returns the end of an unexpired decline cooldown for
	// the sponsor/target pair, or nil when none is active.
	ActiveCooldownEnd(ctx context.Context, sponsorOrgID, targetOrgID uuid.UUID, now time.Time) (*time.Time, error)
	ListForSponsor(ctx context.Context, sponsorOrgID uuid.UUID) ([]MatchRequest, error)
	ListForTarget(ctx context.Context, targetOrgID uuid.UUID) ([]MatchRequest, error)
	ExpireOverdue(ctx context.Context, now time.Time) (int64, error)
}

type gormRepository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateWithSlotCheck(ctx context.Context, req *MatchRequest, limit int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Lock the sponsor's open rows so a concurrent create serializes
		// behind this transaction. FOR UPDATE cannot be combined with an
		// aggregate, so the rows are fetched and counted here.
		var open []MatchRequest
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			Where("sponsor_org_id = ? AND target_type = ?", req.SponsorOrgID, req.TargetType).
			Where("status = ? OR (status = ? AND expires_at > ?)", StatusAccepted, StatusPending, req.RequestedAt).
			Find(&open).Error
		if err != nil {
			return fmt.Errorf("counting open match requests: %w", err)
		}
		if len(open) >= limit {
			return apperrors.SlotExceeded(string(req.TargetType), limit)
		}
		if err := tx.Create(req).Error; err != nil {
			return fmt.Errorf("inserting match request: %w", err)
		}
		return nil
	})
}

func (r *gormRepository) GetByID(ctx context.Context, id uuid.UUID) (*MatchRequest, error) {
	var req MatchRequest
	if err := r.db.WithContext(ctx).First(&req, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("match request", id)
		}
		return nil, fmt.Errorf("loading match request: %w", err)
	}
	return &req, nil
}

func (r *gormRepository) UpdateStatusIf(ctx context.Context, id uuid.UUID, expected Status, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&MatchRequest{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("updating match request: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) ActiveCooldownEnd(ctx context.Context, sponsorOrgID, targetOrgID uuid.UUID, now time.Time) (*time.Time, error) {
	var req MatchRequest
	err := r.db.WithContext(ctx).
		Where("sponsor_org_id = ? AND target_org_id = ? AND status = ? AND cooldown_ends_at > ?",
			sponsorOrgID, targetOrgID, StatusDeclined, now).
		Order("cooldown_ends_at DESC").
		First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checking decline cooldown: %w", err)
	}
	return req.CooldownEndsAt, nil
}

func (r *gormRepository) ListForSponsor(ctx context.Context, sponsorOrgID uuid.UUID) ([]MatchRequest, error) {
	var reqs []MatchRequest
	err := r.db.WithContext(ctx).
		Where("sponsor_org_id = ?", sponsorOrgID).
		Order("requested_at DESC").
		Find(&reqs).Error
	if err != nil {
		return nil, fmt.Errorf("listing match requests for sponsor: %w", err)
	}
	return reqs, nil
}

func (r *gormRepository) ListForTarget(ctx context.Context, targetOrgID uuid.UUID) ([]MatchRequest, error) {
	var reqs []MatchRequest
	err := r.db.WithContext(ctx).
		Where("target_org_id = ?", targetOrgID).
		Order("requested_at DESC").
		Find(&reqs).Error
	if err != nil {
		return nil, fmt.Errorf("listing match requests for target: %w", err)
	}
	return reqs, nil
}

func (r *gormRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&MatchRequest{}).
		Where("status = ? AND expires_at < ?", StatusPending, now).
		Updates(map[string]any{"status": StatusExpired, "updated_at": now})
	if res.Error != nil {
		return 0, fmt.Errorf("expiring match requests: %w", res.Error)
	}
	return res.RowsAffected, nil
}
