package matchrequests

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"nmtc-connect/deal-portal/deal-portal-backend/internal/audit"
	"nmtc-connect/deal-portal/deal-portal-backend/internal/auth"
	"nmtc-connect/deal-portal/deal-portal-backend/internal/notifications"
	"nmtc-connect/deal-portal/deal-portal-backend/pkg/apperrors"
)

// MockRepository is a mock implementation of the Repository interface
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateWithSlotCheck(ctx context.Context, req *MatchRequest, limit int) error {
	args := m.Called(ctx, req, limit)
	return args.Error(0)
}

func (m *MockRepository) GetByID(ctx context.Context, id uuid.UUID) (*MatchRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*MatchRequest), args.Error(1)
}

func (m *MockRepository) UpdateStatusIf(ctx context.Context, id uuid.UUID, expected Status, updates map[string]any) (bool, error) {
	args := m.Called(ctx, id, expected, updates)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) ActiveCooldownEnd(ctx context.Context, sponsorOrgID, targetOrgID uuid.UUID, now time.Time) (*time.Time, error) {
	args := m.Called(ctx, sponsorOrgID, targetOrgID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*time.Time), args.Error(1)
}

func (m *MockRepository) ListForSponsor(ctx context.Context, sponsorOrgID uuid.UUID) ([]MatchRequest, error) {
	args := m.Called(ctx, sponsorOrgID)
	return args.Get(0).([]MatchRequest), args.Error(1)
}

func (m *MockRepository) ListForTarget(ctx context.Context, targetOrgID uuid.UUID) ([]MatchRequest, error) {
	args := m.Called(ctx, targetOrgID)
	return args.Get(0).([]MatchRequest), args.Error(1)
}

func (m *MockRepository) ExpireOverdue(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

type stubSink struct {
	entries []audit.Entry
}

func (s *stubSink) Record(ctx context.Context, entry audit.Entry) {
	s.entries = append(s.entries, entry)
}

type stubEmitter struct {
	events []notifications.Event
}

func (s *stubEmitter) Emit(ctx context.Context, event notifications.Event) {
	s.events = append(s.events, event)
}

func newTestService(repo Repository) (*Service, *stubSink, *stubEmitter) {
	sink := &stubSink{}
	emitter := &stubEmitter{}
	svc := NewService(repo, sink, emitter, SlotConfig{
		Limit:           3,
		DeclineCooldown: 7 * 24 * time.Hour,
		Expiry:          30 * 24 * time.Hour,
	}, zap.NewNop())
	return svc, sink, emitter
}

func TestCreateStartsPendingWithExpiry(t *testing.T) {
	repo := new(MockRepository)
	svc, sink, emitter := newTestService(repo)

	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	actor := auth.Actor{UserID: uuid.New(), OrgID: uuid.New()}
	in := CreateInput{DealID: uuid.New(), TargetType: TargetCDE, TargetOrgID: uuid.New()}

	repo.On("ActiveCooldownEnd", mock.Anything, actor.OrgID, in.TargetOrgID, now).Return(nil, nil)
	repo.On("CreateWithSlotCheck", mock.Anything, mock.AnythingOfType("*matchrequests.MatchRequest"), 3).Return(nil)

	req, err := svc.Create(context.Background(), actor, in)

	assert.NoError(t, err)
	assert.Equal(t, StatusPending, req.Status)
	assert.Equal(t, now.Add(30*24*time.Hour), req.ExpiresAt)
	assert.Equal(t, actor.OrgID, req.SponsorOrgID)
	assert.Len(t, sink.entries, 1)
	assert.Len(t, emitter.events, 1)
	assert.Equal(t, notifications.EventMatchRequestCreated, emitter.events[0].Type)
	repo.AssertExpectations(t)
}

func TestCreateRejectsUnknownTargetType(t *testing.T) {
	repo := new(MockRepository)
	svc, _, _ := newTestService(repo)

	_, err := svc.Create(context.Background(), auth.Actor{OrgID: uuid.New()}, CreateInput{
		DealID:      uuid.New(),
		TargetType:  TargetType("lender"),
		TargetOrgID: uuid.New(),
	})

	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
	repo.AssertNotCalled(t, "CreateWithSlotCheck", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateFailsDuringCooldown(t *testing.T) {
	repo := new(MockRepository)
	svc, _, emitter := newTestService(repo)

	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	actor := auth.Actor{OrgID: uuid.New()}
	in := CreateInput{DealID: uuid.New(), TargetType: TargetCDE, TargetOrgID: uuid.New()}

	cooldownEnd := now.Add(3 * 24 * time.Hour)
	repo.On("ActiveCooldownEnd", mock.Anything, actor.OrgID, in.TargetOrgID, now).Return(&cooldownEnd, nil)

	_, err := svc.Create(context.Background(), actor, in)

	assert.True(t, apperrors.IsKind(err, apperrors.KindCooldown))
	assert.Empty(t, emitter.events)
	repo.AssertNotCalled(t, "CreateWithSlotCheck", mock.Anything, mock.Anything, mock.Anything)
}

func TestCreatePropagatesSlotExceeded(t *testing.T) {
	repo := new(MockRepository)
	svc, _, _ := newTestService(repo)

	actor := auth.Actor{OrgID: uuid.New()}
	in := CreateInput{DealID: uuid.New(), TargetType: TargetInvestor, TargetOrgID: uuid.New()}

	repo.On("ActiveCooldownEnd", mock.Anything, actor.OrgID, in.TargetOrgID, mock.Anything).Return(nil, nil)
	repo.On("CreateWithSlotCheck", mock.Anything, mock.Anything, 3).
		Return(apperrors.SlotExceeded(string(TargetInvestor), 3))

	_, err := svc.Create(context.Background(), actor, in)

	assert.True(t, apperrors.IsKind(err, apperrors.KindSlotExceeded))
}

func TestRespondDeclineSetsCooldown(t *testing.T) {
	repo := new(MockRepository)
	svc, _, emitter := newTestService(repo)

	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	targetOrg := uuid.New()
	pending := &MatchRequest{
		ID:           uuid.New(),
		SponsorOrgID: uuid.New(),
		TargetOrgID:  targetOrg,
		TargetType:   TargetCDE,
		Status:       StatusPending,
		ExpiresAt:    now.Add(time.Hour),
	}
	cooldownEnd := now.Add(7 * 24 * time.Hour)
	declined := &MatchRequest{}
	*declined = *pending
	declined.Status = StatusDeclined
	declined.CooldownEndsAt = &cooldownEnd

	repo.On("GetByID", mock.Anything, pending.ID).Return(pending, nil).Once()
	repo.On("UpdateStatusIf", mock.Anything, pending.ID, StatusPending, mock.MatchedBy(func(u map[string]any) bool {
		return u["status"] == StatusDeclined && u["cooldown_ends_at"] == cooldownEnd
	})).Return(true, nil)
	repo.On("GetByID", mock.Anything, pending.ID).Return(declined, nil).Once()

	req, err := svc.Respond(context.Background(), auth.Actor{OrgID: targetOrg}, pending.ID, ActionDecline, "not a fit")

	assert.NoError(t, err)
	assert.Equal(t, StatusDeclined, req.Status)
	assert.Equal(t, notifications.EventMatchRequestDeclined, emitter.events[0].Type)
	repo.AssertExpectations(t)
}

func TestRespondAcceptHasNoCooldown(t *testing.T) {
	repo := new(MockRepository)
	svc, _, _ := newTestService(repo)

	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	targetOrg := uuid.New()
	pending := &MatchRequest{
		ID:          uuid.New(),
		TargetOrgID: targetOrg,
		Status:      StatusPending,
		ExpiresAt:   now.Add(time.Hour),
	}
	accepted := &MatchRequest{}
	*accepted = *pending
	accepted.Status = StatusAccepted

	repo.On("GetByID", mock.Anything, pending.ID).Return(pending, nil).Once()
	repo.On("UpdateStatusIf", mock.Anything, pending.ID, StatusPending, mock.MatchedBy(func(u map[string]any) bool {
		_, hasCooldown := u["cooldown_ends_at"]
		return u["status"] == StatusAccepted && !hasCooldown
	})).Return(true, nil)
	repo.On("GetByID", mock.Anything, pending.ID).Return(accepted, nil).Once()

	req, err := svc.Respond(context.Background(), auth.Actor{OrgID: targetOrg}, pending.ID, ActionAccept, "")

	assert.NoError(t, err)
	assert.Equal(t, StatusAccepted, req.Status)
}

func TestRespondOnlyTargetOrg(t *testing.T) {
	repo := new(MockRepository)
	svc, _, _ := newTestService(repo)

	now := time.Now()
	pending := &MatchRequest{ID: uuid.New(), TargetOrgID: uuid.New(), Status: StatusPending, ExpiresAt: now.Add(time.Hour)}
	repo.On("GetByID", mock.Anything, pending.ID).Return(pending, nil)

	_, err := svc.Respond(context.Background(), auth.Actor{OrgID: uuid.New()}, pending.ID, ActionAccept, "")

	assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))
}

func TestRespondFromTerminalStatus(t *testing.T) {
	repo := new(MockRepository)
	svc, _, _ := newTestService(repo)

	targetOrg := uuid.New()
	accepted := &MatchRequest{ID: uuid.New(), TargetOrgID: targetOrg, Status: StatusAccepted}
	repo.On("GetByID", mock.Anything, accepted.ID).Return(accepted, nil)

	_, err := svc.Respond(context.Background(), auth.Actor{OrgID: targetOrg}, accepted.ID, ActionDecline, "")

	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidState))
	assert.Contains(t, err.Error(), "accepted")
}

func TestRespondConcurrentModification(t *testing.T) {
	repo := new(MockRepository)
	svc, _, _ := newTestService(repo)

	now := time.Now()
	targetOrg := uuid.New()
	pending := &MatchRequest{ID: uuid.New(), TargetOrgID: targetOrg, Status: StatusPending, ExpiresAt: now.Add(time.Hour)}

	repo.On("GetByID", mock.Anything, pending.ID).Return(pending, nil)
	repo.On("UpdateStatusIf", mock.Anything, pending.ID, StatusPending, mock.Anything).Return(false, nil)

	_, err := svc.Respond(context.Background(), auth.Actor{OrgID: targetOrg}, pending.ID, ActionAccept, "")

	assert.True(t, apperrors.IsKind(err, apperrors.KindConflict))
}

func TestWithdrawFreesSlotWithoutCooldown(t *testing.T) {
	repo := new(MockRepository)
	svc, sink, emitter := newTestService(repo)

	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	sponsorOrg := uuid.New()
	pending := &MatchRequest{ID: uuid.New(), SponsorOrgID: sponsorOrg, TargetOrgID: uuid.New(), Status: StatusPending, ExpiresAt: now.Add(time.Hour)}
	withdrawn := &MatchRequest{}
	*withdrawn = *pending
	withdrawn.Status = StatusWithdrawn

	repo.On("GetByID", mock.Anything, pending.ID).Return(pending, nil).Once()
	repo.On("UpdateStatusIf", mock.Anything, pending.ID, StatusPending, mock.MatchedBy(func(u map[string]any) bool {
		_, hasCooldown := u["cooldown_ends_at"]
		return u["status"] == StatusWithdrawn && !hasCooldown
	})).Return(true, nil)
	repo.On("GetByID", mock.Anything, pending.ID).Return(withdrawn, nil).Once()

	req, err := svc.Withdraw(context.Background(), auth.Actor{OrgID: sponsorOrg}, pending.ID)

	assert.NoError(t, err)
	assert.Equal(t, StatusWithdrawn, req.Status)
	assert.Nil(t, req.CooldownEndsAt)
	assert.Len(t, sink.entries, 1)
	assert.Equal(t, notifications.EventMatchRequestWithdrawn, emitter.events[0].Type)
}

func TestWithdrawOnlySponsor(t *testing.T) {
	repo := new(MockRepository)
	svc, _, _ := newTestService(repo)

	pending := &MatchRequest{ID: uuid.New(), SponsorOrgID: uuid.New(), Status: StatusPending, ExpiresAt: time.Now().Add(time.Hour)}
	repo.On("GetByID", mock.Anything, pending.ID).Return(pending, nil)

	_, err := svc.Withdraw(context.Background(), auth.Actor{OrgID: uuid.New()}, pending.ID)

	assert.True(t, apperrors.IsKind(err, apperrors.KindForbidden))
}

func TestGetByIDAppliesLazyExpiry(t *testing.T) {
	repo := new(MockRepository)
	svc, _, _ := newTestService(repo)

	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	stale := &MatchRequest{ID: uuid.New(), Status: StatusPending, ExpiresAt: now.Add(-time.Minute)}

	repo.On("GetByID", mock.Anything, stale.ID).Return(stale, nil).Once()
	repo.On("UpdateStatusIf", mock.Anything, stale.ID, StatusPending, map[string]any{"status": StatusExpired}).Return(true, nil)

	req, err := svc.GetByID(context.Background(), stale.ID)

	assert.NoError(t, err)
	assert.Equal(t, StatusExpired, req.Status)
	repo.AssertExpectations(t)
}

func TestLazyExpiryIsLogged(t *testing.T) {
	repo := new(MockRepository)
	core, logs := observer.New(zapcore.DebugLevel)
	svc := NewService(repo, &stubSink{}, &stubEmitter{}, SlotConfig{
		Limit:           3,
		DeclineCooldown: 7 * 24 * time.Hour,
		Expiry:          30 * 24 * time.Hour,
	}, zap.New(core))

	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	stale := &MatchRequest{ID: uuid.New(), Status: StatusPending, ExpiresAt: now.Add(-time.Minute)}

	repo.On("GetByID", mock.Anything, stale.ID).Return(stale, nil).Once()
	repo.On("UpdateStatusIf", mock.Anything, stale.ID, StatusPending, map[string]any{"status": StatusExpired}).Return(true, nil)

	_, err := svc.GetByID(context.Background(), stale.ID)
	assert.NoError(t, err)

	entries := logs.FilterMessage("match request lazily expired").All()
	assert.Len(t, entries, 1)
	assert.Equal(t, stale.ID.String(), entries[0].ContextMap()["request_id"])
}

func TestLazyExpiryLostRaceReloadsWinner(t *testing.T) {
	repo := new(MockRepository)
	core, logs := observer.New(zapcore.DebugLevel)
	svc := NewService(repo, &stubSink{}, &stubEmitter{}, SlotConfig{
		Limit:           3,
		DeclineCooldown: 7 * 24 * time.Hour,
		Expiry:          30 * 24 * time.Hour,
	}, zap.New(core))

	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	stale := &MatchRequest{ID: uuid.New(), Status: StatusPending, ExpiresAt: now.Add(-time.Minute)}
	withdrawn := &MatchRequest{ID: stale.ID, Status: StatusWithdrawn, ExpiresAt: stale.ExpiresAt}

	repo.On("GetByID", mock.Anything, stale.ID).Return(stale, nil).Once()
	repo.On("UpdateStatusIf", mock.Anything, stale.ID, StatusPending, map[string]any{"status": StatusExpired}).Return(false, nil)
	repo.On("GetByID", mock.Anything, stale.ID).Return(withdrawn, nil).Once()

	req, err := svc.GetByID(context.Background(), stale.ID)

	assert.NoError(t, err)
	assert.Equal(t, StatusWithdrawn, req.Status)
	assert.Len(t, logs.FilterMessage("lazy expiry lost a concurrent transition").All(), 1)
	repo.AssertExpectations(t)
}
