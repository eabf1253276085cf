package orgs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"nmtc-connect/deal-portal/deal-portal-backend/pkg/apperrors"
)

// EntityKind names the party record kinds the resolver understands
type EntityKind string

const (
	KindSponsor  EntityKind = "sponsor"
	KindCDE      EntityKind = "cde"
	KindInvestor EntityKind = "investor"
)

// OwnershipResolver resolves the organization that owns a party record.
// Every authorization check in the negotiation machines goes through this.
type OwnershipResolver interface {
	OwningOrganization(ctx context.Context, kind EntityKind, entityID uuid.UUID) (uuid.UUID, error)
}

// Directory resolves a counterparty contact address for outbound
// notifications.
type Directory interface {
	ContactEmail(ctx context.Context, orgID uuid.UUID) (string, error)
	OrganizationName(ctx context.Context, orgID uuid.UUID) (string, error)
}

type gormResolver struct {
	db *gorm.DB
}

// NewResolver creates a database-backed ownership resolver
func NewResolver(db *gorm.DB) OwnershipResolver {
	return &gormResolver{db: db}
}

func (r *gormResolver) OwningOrganization(ctx context.Context, kind EntityKind, entityID uuid.UUID) (uuid.UUID, error) {
	var orgID uuid.UUID
	var err error

	switch kind {
	case KindSponsor:
		var p SponsorProfile
		err = r.db.WithContext(ctx).Select("organization_id").First(&p, "id = ?", entityID).Error
		orgID = p.OrganizationID
	case KindCDE:
		var p CDEProfile
		err = r.db.WithContext(ctx).Select("organization_id").First(&p, "id = ?", entityID).Error
		orgID = p.OrganizationID
	case KindInvestor:
		var p InvestorProfile
		err = r.db.WithContext(ctx).Select("organization_id").First(&p, "id = ?", entityID).Error
		orgID = p.OrganizationID
	default:
		return uuid.Nil, fmt.Errorf("unknown entity kind %q", kind)
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, apperrors.NotFound(string(kind), entityID)
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("resolving owning organization: %w", err)
	}
	return orgID, nil
}

type cacheKey struct {
	kind EntityKind
	id   uuid.UUID
}

type cacheEntry struct {
	orgID     uuid.UUID
	expiresAt time.Time
}

// CachingResolver wraps an OwnershipResolver with a TTL cache so a single
// action does not hit the database once per authorization branch.
type CachingResolver struct {
	inner OwnershipResolver
	ttl   time.Duration

	mu    sync.RWMutex
	cache map[cacheKey]cacheEntry

	now func() time.Time
}

// NewCachingResolver wraps inner with a TTL cache
func NewCachingResolver(inner OwnershipResolver, ttl time.Duration) *CachingResolver {
	return &CachingResolver{
		inner: inner,
		ttl:   ttl,
		cache: make(map[cacheKey]cacheEntry),
		now:   time.Now,
	}
}

func (r *CachingResolver) OwningOrganization(ctx context.Context, kind EntityKind, entityID uuid.UUID) (uuid.UUID, error) {
	key := cacheKey{kind: kind, id: entityID}

	r.mu.RLock()
	entry, ok := r.cache[key]
	r.mu.RUnlock()
	if ok && r.now().Before(entry.expiresAt) {
		return entry.orgID, nil
	}

	orgID, err := r.inner.OwningOrganization(ctx, kind, entityID)
	if err != nil {
		return uuid.Nil, err
	}

	r.mu.Lock()
	r.cache[key] = cacheEntry{orgID: orgID, expiresAt: r.now().Add(r.ttl)}
	r.mu.Unlock()

	return orgID, nil
}

type gormDirectory struct {
	db *gorm.DB
}

// NewDirectory creates a database-backed contact directory
func NewDirectory(db *gorm.DB) Directory {
	return &gormDirectory{db: db}
}

func (d *gormDirectory) ContactEmail(ctx context.Context, orgID uuid.UUID) (string, error) {
	var org Organization
	if err := d.db.WithContext(ctx).Select("contact_email").First(&org, "id = ?", orgID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", apperrors.NotFound("organization", orgID)
		}
		return "", fmt.Errorf("looking up contact email: %w", err)
	}
	return org.ContactEmail, nil
}

func (d *gormDirectory) OrganizationName(ctx context.Context, orgID uuid.UUID) (string, error) {
	var org Organization
	if err := d.db.WithContext(ctx).Select("name").First(&org, "id = ?", orgID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", apperrors.NotFound("organization", orgID)
		}
		return "", fmt.Errorf("looking up organization name: %w", err)
	}
	return org.Name, nil
}
