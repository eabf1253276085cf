package commitments

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"nmtc-connect/deal-portal/deal-portal-backend/internal/audit"
	"nmtc-connect/deal-portal/deal-portal-backend/internal/auth"
	"nmtc-connect/deal-portal/deal-portal-backend/internal/notifications"
	"nmtc-connect/deal-portal/deal-portal-backend/internal/orgs"
	"nmtc-connect/deal-portal/deal-portal-backend/pkg/apperrors"
	"nmtc-connect/deal-portal/deal-portal-backend/pkg/workflows"
)

const auditEntityType = "commitment"

// CreateInput is the investor's draft payload. CDEID is optional: leave
// it nil for credit types with no CDE party and sponsor acceptance alone
// reaches the terminal state.
type CreateInput struct {
	DealID                uuid.UUID
	InvestorID            uuid.UUID
	SponsorID             uuid.UUID
	CDEID                 *uuid.UUID
	LOIID                 *uuid.UUID
	InvestmentAmount      float64
	CreditType            string
	PricingCentsPerCredit *int
	Terms                 map[string]any
}

// ActionPayload is the loose payload of the action-dispatch entry point
type ActionPayload struct {
	Notes  string `json:"notes"`
	Reason string `json:"reason"`
}

// ActionResult echoes the performed action and whether the terminal
// all_accepted state was reached, which signals the external closing-room
// collaborator to activate.
type ActionResult struct {
	Commitment           *Commitment `json:"commitment"`
	ActionPerformed      string      `json:"action_performed"`
	ClosingRoomTriggered bool        `json:"closing_room_triggered"`
}

// Service runs the investor<->sponsor(<->CDE) commitment negotiation.
// Structurally parallel to the LOI machine with one extra acceptance
// party.
type Service struct {
	repo     Repository
	resolver orgs.OwnershipResolver
	audits   audit.Sink
	notifier notifications.Emitter
	sm       *workflows.StateMachine
	expiry   time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a commitment negotiation service
func NewService(repo Repository, resolver orgs.OwnershipResolver, audits audit.Sink, notifier notifications.Emitter, expiry time.Duration, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		resolver: resolver,
		audits:   audits,
		notifier: notifier,
		sm:       NewStateMachine(),
		expiry:   expiry,
		logger:   logger,
		now:      time.Now,
	}
}

// Create drafts a new commitment owned by the issuing investor
func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateInput) (*Commitment, error) {
	if in.InvestmentAmount <= 0 {
		return nil, apperrors.Validation("investment_amount must be greater than zero")
	}
	if in.CreditType == "" {
		return nil, apperrors.Validation("credit_type is required")
	}
	if in.DealID == uuid.Nil || in.InvestorID == uuid.Nil || in.SponsorID == uuid.Nil {
		return nil, apperrors.Validation("deal_id, investor_id and sponsor_id are required")
	}
	if err := s.authorizeOrg(ctx, actor, orgs.KindInvestor, in.InvestorID, "create a commitment for this investor"); err != nil {
		return nil, err
	}

	terms, err := json.Marshal(in.Terms)
	if err != nil {
		return nil, apperrors.Validation("terms are not serializable: %v", err)
	}
	if in.Terms == nil {
		terms = []byte("{}")
	}

	commitment := &Commitment{
		ID:                    uuid.New(),
		DealID:                in.DealID,
		InvestorID:            in.InvestorID,
		SponsorID:             in.SponsorID,
		CDEID:                 in.CDEID,
		LOIID:                 in.LOIID,
		InvestmentAmount:      in.InvestmentAmount,
		CreditType:            in.CreditType,
		PricingCentsPerCredit: in.PricingCentsPerCredit,
		Terms:                 datatypes.JSON(terms),
		Status:                StatusDraft,
	}
	if err := s.repo.Create(ctx, commitment); err != nil {
		return nil, err
	}

	s.record(ctx, actor, commitment, "create", nil)
	return commitment, nil
}

// Issue moves a draft commitment to issued. Investor only.
func (s *Service) Issue(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Commitment, error) {
	commitment, err := s.getEffective(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeOrg(ctx, actor, orgs.KindInvestor, commitment.InvestorID, "issue this commitment"); err != nil {
		return nil, err
	}
	if commitment.Status != StatusDraft {
		return nil, apperrors.InvalidState("issue", string(commitment.Status))
	}

	return s.transition(ctx, actor, commitment, StatusIssued, "issue", map[string]any{
		"status": StatusIssued,
	}, nil)
}

// SendForAcceptance puts an issued commitment in front of the sponsor.
// Investor only; sets issuedAt and the expiry window if unset.
func (s *Service) SendForAcceptance(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Commitment, error) {
	commitment, err := s.getEffective(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeOrg(ctx, actor, orgs.KindInvestor, commitment.InvestorID, "send this commitment"); err != nil {
		return nil, err
	}
	if commitment.Status != StatusIssued {
		return nil, apperrors.InvalidState("send_for_acceptance", string(commitment.Status))
	}

	now := s.now()
	updates := map[string]any{"status": StatusPendingSponsor}
	if commitment.IssuedAt == nil {
		updates["issued_at"] = now
	}
	if commitment.ExpiresAt == nil {
		updates["expires_at"] = now.Add(s.expiry)
	}

	sponsorOrg, err := s.resolver.OwningOrganization(ctx, orgs.KindSponsor, commitment.SponsorID)
	if err != nil {
		return nil, err
	}

	return s.transition(ctx, actor, commitment, StatusPendingSponsor, "send_for_acceptance", updates, &notifications.Event{
		Type:            notifications.EventCommitmentSent,
		RecipientOrgIDs: []uuid.UUID{sponsorOrg},
		Subject:         "Investment commitment received",
		Body:            "An investor sent your organization an investment commitment for acceptance.",
	})
}

// SponsorAccept records the sponsor's acceptance. When a CDE party is
// present the commitment moves to pending_cde; otherwise sponsor
// acceptance alone reaches the terminal all_accepted.
func (s *Service) SponsorAccept(ctx context.Context, actor auth.Actor, id uuid.UUID, notes string) (*Commitment, error) {
	commitment, err := s.getEffective(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeOrg(ctx, actor, orgs.KindSponsor, commitment.SponsorID, "accept this commitment"); err != nil {
		return nil, err
	}
	if commitment.Status != StatusPendingSponsor {
		return nil, apperrors.InvalidState("sponsor_accept", string(commitment.Status))
	}

	now := s.now()
	updates := map[string]any{"sponsor_accepted_at": now}
	if notes != "" {
		updates["sponsor_notes"] = notes
	}

	next := StatusAllAccepted
	eventType := notifications.EventCommitmentAllAccepted
	if commitment.RequiresCDEAcceptance() {
		next = StatusPendingCDE
		eventType = notifications.EventCommitmentSponsorAccepted
	} else {
		updates["all_accepted_at"] = now
	}
	updates["status"] = next

	recipients, err := s.counterpartyOrgs(ctx, commitment, actor.OrgID)
	if err != nil {
		return nil, err
	}

	return s.transition(ctx, actor, commitment, next, "sponsor_accept", updates, &notifications.Event{
		Type:            eventType,
		RecipientOrgIDs: recipients,
		Subject:         "Commitment accepted by sponsor",
		Body:            "The sponsor accepted the investment commitment.",
		Data:            map[string]any{"status": next},
	})
}

// CDEAccept records the CDE countersignature on a commitment that
// structurally requires one. Fails NotRequired when there is no CDE party.
func (s *Service) CDEAccept(ctx context.Context, actor auth.Actor, id uuid.UUID, notes string) (*Commitment, error) {
	commitment, err := s.getEffective(ctx, id)
	if err != nil {
		return nil, err
	}
	if !commitment.RequiresCDEAcceptance() {
		return nil, apperrors.NotRequired("commitment %s has no CDE party; CDE acceptance is not required", id)
	}
	if err := s.authorizeOrg(ctx, actor, orgs.KindCDE, *commitment.CDEID, "accept this commitment"); err != nil {
		return nil, err
	}
	if commitment.Status != StatusPendingCDE {
		return nil, apperrors.InvalidState("cde_accept", string(commitment.Status))
	}

	now := s.now()
	updates := map[string]any{
		"status":          StatusAllAccepted,
		"cde_accepted_at": now,
		"all_accepted_at": now,
	}
	if notes != "" {
		updates["cde_notes"] = notes
	}

	recipients, err := s.counterpartyOrgs(ctx, commitment, actor.OrgID)
	if err != nil {
		return nil, err
	}

	return s.transition(ctx, actor, commitment, StatusAllAccepted, "cde_accept", updates, &notifications.Event{
		Type:            notifications.EventCommitmentAllAccepted,
		RecipientOrgIDs: recipients,
		Subject:         "Commitment fully accepted",
		Body:            "All parties accepted the investment commitment.",
	})
}

// Reject is callable by any current participant from any non-terminal
// state. The reason is mandatory; the audit payload records the rejecting
// organization.
func (s *Service) Reject(ctx context.Context, actor auth.Actor, id uuid.UUID, reason string) (*Commitment, error) {
	if reason == "" {
		return nil, apperrors.Validation("reason is required to reject a commitment")
	}

	commitment, err := s.getEffective(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeParticipant(ctx, actor, commitment); err != nil {
		return nil, err
	}
	if s.sm.IsTerminal(string(commitment.Status)) {
		return nil, apperrors.InvalidState("reject", string(commitment.Status))
	}

	recipients, err := s.counterpartyOrgs(ctx, commitment, actor.OrgID)
	if err != nil {
		return nil, err
	}

	return s.transition(ctx, actor, commitment, StatusRejected, "reject", map[string]any{
		"status":        StatusRejected,
		"reject_reason": reason,
	}, &notifications.Event{
		Type:            notifications.EventCommitmentRejected,
		RecipientOrgIDs: recipients,
		Subject:         "Commitment rejected",
		Body:            "A party rejected the investment commitment.",
		Data:            map[string]any{"reason": reason},
	})
}

// Withdraw pulls the commitment from any non-terminal state. Investor
// only; the reason is mandatory.
func (s *Service) Withdraw(ctx context.Context, actor auth.Actor, id uuid.UUID, reason string) (*Commitment, error) {
	if reason == "" {
		return nil, apperrors.Validation("reason is required to withdraw a commitment")
	}

	commitment, err := s.getEffective(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeOrg(ctx, actor, orgs.KindInvestor, commitment.InvestorID, "withdraw this commitment"); err != nil {
		return nil, err
	}
	if s.sm.IsTerminal(string(commitment.Status)) {
		return nil, apperrors.InvalidState("withdraw", string(commitment.Status))
	}

	recipients, err := s.counterpartyOrgs(ctx, commitment, actor.OrgID)
	if err != nil {
		return nil, err
	}

	return s.transition(ctx, actor, commitment, StatusWithdrawn, "withdraw", map[string]any{
		"status":          StatusWithdrawn,
		"withdraw_reason": reason,
	}, &notifications.Event{
		Type:            notifications.EventCommitmentWithdrawn,
		RecipientOrgIDs: recipients,
		Subject:         "Commitment withdrawn",
		Body:            "The investor withdrew the investment commitment.",
		Data:            map[string]any{"reason": reason},
	})
}

// PerformAction is the single dispatch entry point the HTTP layer calls
func (s *Service) PerformAction(ctx context.Context, actor auth.Actor, id uuid.UUID, action string, payload ActionPayload) (*ActionResult, error) {
	var (
		commitment *Commitment
		err        error
	)

	switch action {
	case "issue":
		commitment, err = s.Issue(ctx, actor, id)
	case "send_for_acceptance":
		commitment, err = s.SendForAcceptance(ctx, actor, id)
	case "sponsor_accept":
		commitment, err = s.SponsorAccept(ctx, actor, id, payload.Notes)
	case "cde_accept":
		commitment, err = s.CDEAccept(ctx, actor, id, payload.Notes)
	case "reject":
		commitment, err = s.Reject(ctx, actor, id, payload.Reason)
	case "withdraw":
		commitment, err = s.Withdraw(ctx, actor, id, payload.Reason)
	default:
		return nil, apperrors.Validation("unknown action %q", action)
	}
	if err != nil {
		return nil, err
	}

	return &ActionResult{
		Commitment:           commitment,
		ActionPerformed:      action,
		ClosingRoomTriggered: commitment.Status == StatusAllAccepted,
	}, nil
}

// GetByID loads the commitment, evaluating expiry lazily
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*Commitment, error) {
	return s.getEffective(ctx, id)
}

func (s *Service) ListForDeal(ctx context.Context, dealID uuid.UUID) ([]Commitment, error) {
	return s.repo.ListForDeal(ctx, dealID)
}

func (s *Service) ListForInvestor(ctx context.Context, investorID uuid.UUID) ([]Commitment, error) {
	return s.repo.ListForInvestor(ctx, investorID)
}

func (s *Service) ListForSponsor(ctx context.Context, sponsorID uuid.UUID) ([]Commitment, error) {
	return s.repo.ListForSponsor(ctx, sponsorID)
}

func (s *Service) authorizeOrg(ctx context.Context, actor auth.Actor, kind orgs.EntityKind, entityID uuid.UUID, what string) error {
	orgID, err := s.resolver.OwningOrganization(ctx, kind, entityID)
	if err != nil {
		return err
	}
	if orgID != actor.OrgID {
		return apperrors.Forbidden("caller's organization may not %s", what)
	}
	return nil
}

// authorizeParticipant allows any of the commitment's current parties:
// investor, sponsor, or the CDE when one is set.
func (s *Service) authorizeParticipant(ctx context.Context, actor auth.Actor, commitment *Commitment) error {
	participants, err := s.participantOrgs(ctx, commitment)
	if err != nil {
		return err
	}
	for _, org := range participants {
		if org == actor.OrgID {
			return nil
		}
	}
	return apperrors.Forbidden("caller's organization is not a party to this commitment")
}

func (s *Service) participantOrgs(ctx context.Context, commitment *Commitment) ([]uuid.UUID, error) {
	investorOrg, err := s.resolver.OwningOrganization(ctx, orgs.KindInvestor, commitment.InvestorID)
	if err != nil {
		return nil, err
	}
	sponsorOrg, err := s.resolver.OwningOrganization(ctx, orgs.KindSponsor, commitment.SponsorID)
	if err != nil {
		return nil, err
	}
	participants := []uuid.UUID{investorOrg, sponsorOrg}
	if commitment.CDEID != nil {
		cdeOrg, err := s.resolver.OwningOrganization(ctx, orgs.KindCDE, *commitment.CDEID)
		if err != nil {
			return nil, err
		}
		participants = append(participants, cdeOrg)
	}
	return participants, nil
}

// counterpartyOrgs are the participants other than the acting org, the
// recipients of the cross-party notification.
func (s *Service) counterpartyOrgs(ctx context.Context, commitment *Commitment, actorOrg uuid.UUID) ([]uuid.UUID, error) {
	participants, err := s.participantOrgs(ctx, commitment)
	if err != nil {
		return nil, err
	}
	var others []uuid.UUID
	for _, org := range participants {
		if org != actorOrg {
			others = append(others, org)
		}
	}
	return others, nil
}

// getEffective applies lazy expiry on read: a non-terminal commitment past
// its expiresAt is flipped to expired, best-effort.
func (s *Service) getEffective(ctx context.Context, id uuid.UUID) (*Commitment, error) {
	commitment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.sm.IsTerminal(string(commitment.Status)) && commitment.ExpiresAt != nil && commitment.ExpiresAt.Before(s.now()) {
		ok, err := s.repo.UpdateStatusIf(ctx, commitment.ID, commitment.Status, map[string]any{"status": StatusExpired})
		if err != nil {
			return nil, err
		}
		if ok {
			s.logger.Info("commitment lazily expired",
				zap.String("commitment_id", commitment.ID.String()),
				zap.Time("expires_at", *commitment.ExpiresAt))
			commitment.Status = StatusExpired
		} else {
			// Lost the race to another transition; reload the winner.
			s.logger.Debug("lazy expiry lost a concurrent transition",
				zap.String("commitment_id", commitment.ID.String()))
			return s.repo.GetByID(ctx, commitment.ID)
		}
	}
	return commitment, nil
}

// transition applies a compare-and-set write, reloads, and fires the side
// effects. Zero rows affected means someone else won the race.
func (s *Service) transition(ctx context.Context, actor auth.Actor, commitment *Commitment, next Status, action string, updates map[string]any, event *notifications.Event) (*Commitment, error) {
	if !s.sm.CanTransition(string(commitment.Status), string(next)) {
		return nil, apperrors.InvalidState(action, string(commitment.Status))
	}

	ok, err := s.repo.UpdateStatusIf(ctx, commitment.ID, commitment.Status, updates)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.Conflict("commitment", commitment.ID)
	}

	updated, err := s.repo.GetByID(ctx, commitment.ID)
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor, updated, action, updates)
	if event != nil {
		event.DealID = updated.DealID
		event.EntityType = auditEntityType
		event.EntityID = updated.ID
		s.notifier.Emit(ctx, *event)
	}
	return updated, nil
}

func (s *Service) record(ctx context.Context, actor auth.Actor, commitment *Commitment, action string, updates map[string]any) {
	payload := map[string]any{
		"status":            commitment.Status,
		"deal_id":           commitment.DealID,
		"investment_amount": commitment.InvestmentAmount,
		"credit_type":       commitment.CreditType,
	}
	if action == "reject" {
		payload["rejecting_org"] = actor.OrgID
	}
	for _, key := range []string{"reject_reason", "withdraw_reason"} {
		if v, ok := updates[key]; ok {
			payload["reason"] = v
		}
	}
	s.audits.Record(ctx, audit.Entry{
		ActorID:    actor.UserID,
		ActorOrgID: actor.OrgID,
		EntityType: auditEntityType,
		EntityID:   commitment.ID,
		Action:     action,
		Payload:    payload,
	})
}
