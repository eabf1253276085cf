package deals

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"nmtc-connect/deal-portal/deal-portal-backend/pkg/apperrors"
)

// Registry is the read-only deal lookup used by the capital stack
// aggregator and the handlers.
type Registry interface {
	GetDeal(ctx context.Context, id uuid.UUID) (*Deal, error)
}

type gormRegistry struct {
	db *gorm.DB
}

// NewRegistry creates a database-backed deal registry
func NewRegistry(db *gorm.DB) Registry {
	return &gormRegistry{db: db}
}

func (r *gormRegistry) GetDeal(ctx context.Context, id uuid.UUID) (*Deal, error) {
	var deal Deal
	if err := r.db.WithContext(ctx).First(&deal, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NotFound("deal", id)
		}
		return nil, fmt.Errorf("loading deal: %w", err)
	}
	return &deal, nil
}
