package capitalstack

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nmtc-connect/deal-portal/deal-portal-backend/internal/commitments"
	"nmtc-connect/deal-portal/deal-portal-backend/internal/deals"
	"nmtc-connect/deal-portal/deal-portal-backend/internal/loi"
	"nmtc-connect/deal-portal/deal-portal-backend/internal/orgs"
)

// allocationFallbackShare is the assumed NMTC share of total project cost
// when the deal does not state a requested amount.
const allocationFallbackShare = 0.25

// LOILister lists a deal's letters of intent
type LOILister interface {
	ListForDeal(ctx context.Context, dealID uuid.UUID) ([]loi.LetterOfIntent, error)
}

// CommitmentLister lists a deal's investment commitments
type CommitmentLister interface {
	ListForDeal(ctx context.Context, dealID uuid.UUID) ([]commitments.Commitment, error)
}

// Service aggregates a deal's LOIs and commitments into a capital stack
// summary. Reads only; it never mutates the underlying instruments.
type Service struct {
	dealRegistry    deals.Registry
	lois            LOILister
	commitmentsList CommitmentLister
	resolver        orgs.OwnershipResolver
	directory       orgs.Directory
	loiSM           statusTable
	commitmentSM    statusTable
	logger          *zap.Logger
	now             func() time.Time
}

type statusTable interface {
	IsTerminal(status string) bool
}

// NewService creates a capital stack aggregation service
func NewService(dealRegistry deals.Registry, lois LOILister, commitmentLister CommitmentLister, resolver orgs.OwnershipResolver, directory orgs.Directory, logger *zap.Logger) *Service {
	return &Service{
		dealRegistry:    dealRegistry,
		lois:            lois,
		commitmentsList: commitmentLister,
		resolver:        resolver,
		directory:       directory,
		loiSM:           loi.NewStateMachine(),
		commitmentSM:    commitments.NewStateMachine(),
		logger:          logger,
		now:             time.Now,
	}
}

// GetCapitalStack builds the aggregated stack for one deal
func (s *Service) GetCapitalStack(ctx context.Context, dealID uuid.UUID) (*Summary, error) {
	deal, err := s.dealRegistry.GetDeal(ctx, dealID)
	if err != nil {
		return nil, err
	}

	letters, err := s.lois.ListForDeal(ctx, dealID)
	if err != nil {
		return nil, fmt.Errorf("listing LOIs for deal %s: %w", dealID, err)
	}
	dealCommitments, err := s.commitmentsList.ListForDeal(ctx, dealID)
	if err != nil {
		return nil, fmt.Errorf("listing commitments for deal %s: %w", dealID, err)
	}

	now := s.now()
	summary := &Summary{
		DealID:           dealID,
		ProjectName:      deal.ProjectName,
		AllocationNeeded: allocationNeeded(deal),
		Sources:          make([]Source, 0, len(letters)+len(dealCommitments)),
	}

	for i := range letters {
		letter := &letters[i]
		status := s.effectiveStatus(string(letter.Status), letter.ExpiresAt, s.loiSM, now)
		summary.add(Source{
			SourceType:  SourceLOI,
			SourceID:    letter.ID,
			PartyLabel:  s.partyLabel(ctx, orgs.KindCDE, letter.CDEID),
			Amount:      letter.AllocationAmount,
			Status:      status,
			StatusLabel: labelFor(status),
			Bucket:      bucketFor(status),
		})
	}

	for i := range dealCommitments {
		commitment := &dealCommitments[i]
		status := s.effectiveStatus(string(commitment.Status), commitment.ExpiresAt, s.commitmentSM, now)
		summary.add(Source{
			SourceType:  SourceCommitment,
			SourceID:    commitment.ID,
			PartyLabel:  s.partyLabel(ctx, orgs.KindInvestor, commitment.InvestorID),
			Amount:      commitment.InvestmentAmount,
			Status:      status,
			StatusLabel: labelFor(status),
			Bucket:      bucketFor(status),
		})
	}

	gap := summary.AllocationNeeded - summary.TotalCommitted
	if gap < 0 {
		gap = 0
	}
	summary.FundingGap = gap
	summary.ReadyForClosing = summary.FundingGap == 0 && summary.TotalCommitted > 0

	return summary, nil
}

func (s *Summary) add(source Source) {
	s.Sources = append(s.Sources, source)
	switch source.Bucket {
	case BucketCommitted:
		s.TotalCommitted += source.Amount
	case BucketPending:
		s.TotalPending += source.Amount
	}
}

func allocationNeeded(deal *deals.Deal) float64 {
	if deal.NMTCFinancingRequested != nil && *deal.NMTCFinancingRequested > 0 {
		return *deal.NMTCFinancingRequested
	}
	return deal.TotalProjectCost * allocationFallbackShare
}

// effectiveStatus evaluates expiry read-side. The instrument services
// persist the flip lazily on their own reads; the aggregate must not show
// an overdue instrument as live in the meantime.
func (s *Service) effectiveStatus(status string, expiresAt *time.Time, sm statusTable, now time.Time) string {
	if !sm.IsTerminal(status) && expiresAt != nil && expiresAt.Before(now) {
		return "expired"
	}
	return status
}

// partyLabel resolves the counterparty's organization name. Lookup
// failures degrade to a placeholder; the stack view must render even when
// a party record is missing.
func (s *Service) partyLabel(ctx context.Context, kind orgs.EntityKind, entityID uuid.UUID) string {
	orgID, err := s.resolver.OwningOrganization(ctx, kind, entityID)
	if err == nil {
		name, err := s.directory.OrganizationName(ctx, orgID)
		if err == nil && name != "" {
			return name
		}
	}
	s.logger.Debug("capital stack party label unresolved",
		zap.String("kind", string(kind)),
		zap.String("entity_id", entityID.String()))
	return fmt.Sprintf("Unidentified %s (%s)", kind, shortID(entityID))
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}
