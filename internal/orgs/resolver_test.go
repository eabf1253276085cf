package orgs

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockResolver struct {
	mock.Mock
}

func (m *mockResolver) OwningOrganization(ctx context.Context, kind EntityKind, entityID uuid.UUID) (uuid.UUID, error) {
	args := m.Called(ctx, kind, entityID)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

func TestCachingResolverHitsInnerOnce(t *testing.T) {
	inner := new(mockResolver)
	cdeID := uuid.New()
	orgID := uuid.New()
	inner.On("OwningOrganization", mock.Anything, KindCDE, cdeID).Return(orgID, nil).Once()

	r := NewCachingResolver(inner, time.Minute)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		got, err := r.OwningOrganization(ctx, KindCDE, cdeID)
		assert.NoError(t, err)
		assert.Equal(t, orgID, got)
	}

	inner.AssertExpectations(t)
}

func TestCachingResolverExpiresEntries(t *testing.T) {
	inner := new(mockResolver)
	sponsorID := uuid.New()
	orgID := uuid.New()
	inner.On("OwningOrganization", mock.Anything, KindSponsor, sponsorID).Return(orgID, nil).Twice()

	r := NewCachingResolver(inner, time.Minute)
	base := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }

	ctx := context.Background()
	_, err := r.OwningOrganization(ctx, KindSponsor, sponsorID)
	assert.NoError(t, err)

	// Past the TTL the entry must be refreshed from the inner resolver.
	r.now = func() time.Time { return base.Add(2 * time.Minute) }
	_, err = r.OwningOrganization(ctx, KindSponsor, sponsorID)
	assert.NoError(t, err)

	inner.AssertExpectations(t)
}
