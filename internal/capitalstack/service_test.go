package capitalstack

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"nmtc-connect/deal-portal/deal-portal-backend/internal/commitments"
	"nmtc-connect/deal-portal/deal-portal-backend/internal/deals"
	"nmtc-connect/deal-portal/deal-portal-backend/internal/loi"
	"nmtc-connect/deal-portal/deal-portal-backend/internal/orgs"
	"nmtc-connect/deal-portal/deal-portal-backend/pkg/apperrors"

	"go.uber.org/zap"
)

type stubRegistry struct {
	deal *deals.Deal
}

func (s *stubRegistry) GetDeal(ctx context.Context, id uuid.UUID) (*deals.Deal, error) {
	if s.deal == nil || s.deal.ID != id {
		return nil, apperrors.NotFound("deal", id)
	}
	return s.deal, nil
}

type stubLOIs struct {
	letters []loi.LetterOfIntent
}

func (s *stubLOIs) ListForDeal(ctx context.Context, dealID uuid.UUID) ([]loi.LetterOfIntent, error) {
	return s.letters, nil
}

type stubCommitments struct {
	commitments []commitments.Commitment
}

func (s *stubCommitments) ListForDeal(ctx context.Context, dealID uuid.UUID) ([]commitments.Commitment, error) {
	return s.commitments, nil
}

type stubResolver struct {
	owners map[uuid.UUID]uuid.UUID
}

func (s *stubResolver) OwningOrganization(ctx context.Context, kind orgs.EntityKind, entityID uuid.UUID) (uuid.UUID, error) {
	org, ok := s.owners[entityID]
	if !ok {
		return uuid.Nil, apperrors.NotFound(string(kind), entityID)
	}
	return org, nil
}

type stubDirectory struct {
	names map[uuid.UUID]string
}

func (s *stubDirectory) ContactEmail(ctx context.Context, orgID uuid.UUID) (string, error) {
	return "", apperrors.NotFound("organization", orgID)
}

func (s *stubDirectory) OrganizationName(ctx context.Context, orgID uuid.UUID) (string, error) {
	name, ok := s.names[orgID]
	if !ok {
		return "", apperrors.NotFound("organization", orgID)
	}
	return name, nil
}

type fixture struct {
	deal        *deals.Deal
	lois        *stubLOIs
	commitments *stubCommitments
	resolver    *stubResolver
	directory   *stubDirectory
	svc         *Service
	cdeID       uuid.UUID
	investorID  uuid.UUID
}

func newFixture(requested *float64, totalCost float64) *fixture {
	f := &fixture{
		deal: &deals.Deal{
			ID:                     uuid.New(),
			ProjectName:            "Riverside Health Center",
			TotalProjectCost:       totalCost,
			NMTCFinancingRequested: requested,
		},
		lois:        &stubLOIs{},
		commitments: &stubCommitments{},
		cdeID:       uuid.New(),
		investorID:  uuid.New(),
	}
	cdeOrg := uuid.New()
	investorOrg := uuid.New()
	f.resolver = &stubResolver{owners: map[uuid.UUID]uuid.UUID{
		f.cdeID:      cdeOrg,
		f.investorID: investorOrg,
	}}
	f.directory = &stubDirectory{names: map[uuid.UUID]string{
		cdeOrg:      "Gulf Coast CDE",
		investorOrg: "First Capital Bank",
	}}
	f.svc = NewService(&stubRegistry{deal: f.deal}, f.lois, f.commitments, f.resolver, f.directory, zap.NewNop())
	return f
}

func (f *fixture) letter(status loi.Status, amount float64) loi.LetterOfIntent {
	return loi.LetterOfIntent{
		ID:               uuid.New(),
		DealID:           f.deal.ID,
		CDEID:            f.cdeID,
		AllocationAmount: amount,
		Status:           status,
	}
}

func (f *fixture) commitment(status commitments.Status, amount float64) commitments.Commitment {
	return commitments.Commitment{
		ID:               uuid.New(),
		DealID:           f.deal.ID,
		InvestorID:       f.investorID,
		InvestmentAmount: amount,
		Status:           status,
	}
}

func amount(v float64) *float64 { return &v }

func TestBucketsAndTotals(t *testing.T) {
	f := newFixture(amount(10_000_000), 40_000_000)
	f.lois.letters = []loi.LetterOfIntent{
		f.letter(loi.StatusSponsorAccepted, 6_000_000),
		f.letter(loi.StatusPendingSponsor, 2_000_000),
		f.letter(loi.StatusWithdrawn, 9_000_000),
	}
	f.commitments.commitments = []commitments.Commitment{
		f.commitment(commitments.StatusAllAccepted, 3_000_000),
		f.commitment(commitments.StatusPendingCDE, 1_000_000),
		f.commitment(commitments.StatusDraft, 500_000),
	}

	summary, err := f.svc.GetCapitalStack(context.Background(), f.deal.ID)

	assert.NoError(t, err)
	assert.Len(t, summary.Sources, 6)
	assert.Equal(t, 9_000_000.0, summary.TotalCommitted)
	assert.Equal(t, 3_000_000.0, summary.TotalPending)
	assert.Equal(t, 1_000_000.0, summary.FundingGap)
	assert.False(t, summary.ReadyForClosing)
}

func TestFundingGapNeverNegative(t *testing.T) {
	f := newFixture(amount(5_000_000), 20_000_000)
	f.commitments.commitments = []commitments.Commitment{
		f.commitment(commitments.StatusAllAccepted, 8_000_000),
	}

	summary, err := f.svc.GetCapitalStack(context.Background(), f.deal.ID)

	assert.NoError(t, err)
	assert.Equal(t, 0.0, summary.FundingGap)
	assert.True(t, summary.ReadyForClosing)
}

func TestReadyForClosingNeedsCommittedFunds(t *testing.T) {
	f := newFixture(amount(0), 0)

	summary, err := f.svc.GetCapitalStack(context.Background(), f.deal.ID)

	assert.NoError(t, err)
	assert.Equal(t, 0.0, summary.FundingGap)
	assert.False(t, summary.ReadyForClosing)
}

func TestAllocationFallsBackToShareOfProjectCost(t *testing.T) {
	f := newFixture(nil, 40_000_000)

	summary, err := f.svc.GetCapitalStack(context.Background(), f.deal.ID)

	assert.NoError(t, err)
	assert.Equal(t, 10_000_000.0, summary.AllocationNeeded)
}

func TestOverdueInstrumentsReportedExpired(t *testing.T) {
	f := newFixture(amount(10_000_000), 40_000_000)
	now := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now }

	overdue := now.Add(-time.Hour)
	letter := f.letter(loi.StatusPendingSponsor, 4_000_000)
	letter.ExpiresAt = &overdue
	accepted := f.letter(loi.StatusSponsorAccepted, 2_000_000)
	accepted.ExpiresAt = &overdue
	f.lois.letters = []loi.LetterOfIntent{letter, accepted}

	summary, err := f.svc.GetCapitalStack(context.Background(), f.deal.ID)

	assert.NoError(t, err)
	assert.Equal(t, "expired", summary.Sources[0].Status)
	assert.Equal(t, BucketInactive, summary.Sources[0].Bucket)
	assert.Equal(t, 0.0, summary.TotalPending)
	// terminal statuses keep their bucket regardless of the expiry stamp
	assert.Equal(t, "sponsor_accepted", summary.Sources[1].Status)
	assert.Equal(t, 2_000_000.0, summary.TotalCommitted)
}

func TestMissingPartyNameDegradesToPlaceholder(t *testing.T) {
	f := newFixture(amount(10_000_000), 40_000_000)
	unknownCDE := uuid.New()
	letter := f.letter(loi.StatusPendingSponsor, 4_000_000)
	letter.CDEID = unknownCDE
	f.lois.letters = []loi.LetterOfIntent{letter}

	summary, err := f.svc.GetCapitalStack(context.Background(), f.deal.ID)

	assert.NoError(t, err)
	assert.Contains(t, summary.Sources[0].PartyLabel, "Unidentified cde")
	assert.Contains(t, summary.Sources[0].PartyLabel, unknownCDE.String()[:8])
}

func TestResolvedPartyName(t *testing.T) {
	f := newFixture(amount(10_000_000), 40_000_000)
	f.lois.letters = []loi.LetterOfIntent{f.letter(loi.StatusPendingSponsor, 4_000_000)}
	f.commitments.commitments = []commitments.Commitment{f.commitment(commitments.StatusPendingSponsor, 1_000_000)}

	summary, err := f.svc.GetCapitalStack(context.Background(), f.deal.ID)

	assert.NoError(t, err)
	assert.Equal(t, "Gulf Coast CDE", summary.Sources[0].PartyLabel)
	assert.Equal(t, "First Capital Bank", summary.Sources[1].PartyLabel)
}

func TestUnknownDeal(t *testing.T) {
	f := newFixture(amount(10_000_000), 40_000_000)

	_, err := f.svc.GetCapitalStack(context.Background(), uuid.New())

	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}
