package loi

import (
	"context"
	"encoding/json"
	"fmt"
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

const auditEntityType = "letter_of_intent"

// SponsorResponse is the sponsor's answer to a pending LOI
type SponsorResponse string

const (
	ResponseAccept  SponsorResponse = "accept"
	ResponseReject  SponsorResponse = "reject"
	ResponseCounter SponsorResponse = "counter"
)

// CreateInput is the CDE's draft payload
type CreateInput struct {
	DealID           uuid.UUID
	CDEID            uuid.UUID
	SponsorID        uuid.UUID
	AllocationAmount float64
	Terms            map[string]any
}

// SponsorRespondInput carries the sponsor's response. CounterTerms are
// required when countering.
type SponsorRespondInput struct {
	Response     SponsorResponse
	CounterTerms map[string]any
	Message      string
}

// ActionPayload is the loose payload of the action-dispatch entry point
type ActionPayload struct {
	Response     SponsorResponse `json:"response"`
	CounterTerms map[string]any  `json:"counter_terms"`
	Reason       string          `json:"reason"`
	Message      string          `json:"message"`
}

// ActionResult echoes the performed action alongside the updated record
type ActionResult struct {
	LOI             *LetterOfIntent `json:"loi"`
	ActionPerformed string          `json:"action_performed"`
}

// Service runs the CDE<->sponsor LOI negotiation. Every mutating call
// verifies the caller's organization against the record's party and
// conditions the write on the current persisted status.
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

// NewService creates an LOI negotiation service
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

// Create drafts a new LOI owned by the issuing CDE
func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateInput) (*LetterOfIntent, error) {
	if in.AllocationAmount <= 0 {
		return nil, apperrors.Validation("allocation_amount must be greater than zero")
	}
	if in.DealID == uuid.Nil || in.CDEID == uuid.Nil || in.SponsorID == uuid.Nil {
		return nil, apperrors.Validation("deal_id, cde_id and sponsor_id are required")
	}
	if err := s.authorizeOrg(ctx, actor, orgs.KindCDE, in.CDEID, "create an LOI for this CDE"); err != nil {
		return nil, err
	}

	terms, err := json.Marshal(in.Terms)
	if err != nil {
		return nil, apperrors.Validation("terms are not serializable: %v", err)
	}
	if in.Terms == nil {
		terms = []byte("{}")
	}

	letter := &LetterOfIntent{
		ID:               uuid.New(),
		DealID:           in.DealID,
		CDEID:            in.CDEID,
		SponsorID:        in.SponsorID,
		AllocationAmount: in.AllocationAmount,
		Terms:            datatypes.JSON(terms),
		Status:           StatusDraft,
	}
	if err := s.repo.Create(ctx, letter); err != nil {
		return nil, err
	}

	s.record(ctx, actor, letter, "create", nil)
	return letter, nil
}

// Issue moves a draft LOI to issued. CDE only.
func (s *Service) Issue(ctx context.Context, actor auth.Actor, id uuid.UUID) (*LetterOfIntent, error) {
	letter, err := s.getEffective(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeOrg(ctx, actor, orgs.KindCDE, letter.CDEID, "issue this LOI"); err != nil {
		return nil, err
	}
	if letter.Status != StatusDraft {
		return nil, apperrors.InvalidState("issue", string(letter.Status))
	}

	return s.transition(ctx, actor, letter, StatusIssued, "issue", map[string]any{
		"status": StatusIssued,
	}, nil)
}

// SendToSponsor puts an issued (or countered) LOI in front of the sponsor.
// Sets issuedAt and the expiry window if unset.
func (s *Service) SendToSponsor(ctx context.Context, actor auth.Actor, id uuid.UUID) (*LetterOfIntent, error) {
	letter, err := s.getEffective(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeOrg(ctx, actor, orgs.KindCDE, letter.CDEID, "send this LOI"); err != nil {
		return nil, err
	}
	if letter.Status != StatusIssued && letter.Status != StatusSponsorCountered {
		return nil, apperrors.InvalidState("send_to_sponsor", string(letter.Status))
	}

	now := s.now()
	updates := map[string]any{"status": StatusPendingSponsor}
	if letter.IssuedAt == nil {
		updates["issued_at"] = now
	}
	if letter.ExpiresAt == nil {
		updates["expires_at"] = now.Add(s.expiry)
	}

	sponsorOrg, err := s.resolver.OwningOrganization(ctx, orgs.KindSponsor, letter.SponsorID)
	if err != nil {
		return nil, err
	}

	return s.transition(ctx, actor, letter, StatusPendingSponsor, "send_to_sponsor", updates, &notifications.Event{
		Type:            notifications.EventLOISent,
		RecipientOrgIDs: []uuid.UUID{sponsorOrg},
		Subject:         "Letter of intent received",
		Body:            "A CDE sent your organization a letter of intent for review.",
	})
}

// SponsorRespond records the sponsor's accept/reject/counter. Only valid
// from pending_sponsor; any other status fails naming the current one.
func (s *Service) SponsorRespond(ctx context.Context, actor auth.Actor, id uuid.UUID, in SponsorRespondInput) (*LetterOfIntent, error) {
	letter, err := s.getEffective(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeOrg(ctx, actor, orgs.KindSponsor, letter.SponsorID, "respond to this LOI"); err != nil {
		return nil, err
	}
	if letter.Status != StatusPendingSponsor {
		return nil, apperrors.InvalidState(string("sponsor_"+in.Response), string(letter.Status))
	}

	var next Status
	updates := map[string]any{"sponsor_response_at": s.now()}
	switch in.Response {
	case ResponseAccept:
		next = StatusSponsorAccepted
	case ResponseReject:
		next = StatusSponsorRejected
	case ResponseCounter:
		if len(in.CounterTerms) == 0 {
			return nil, apperrors.Validation("counter_terms are required when countering")
		}
		counterTerms, err := json.Marshal(in.CounterTerms)
		if err != nil {
			return nil, apperrors.Validation("counter_terms are not serializable: %v", err)
		}
		next = StatusSponsorCountered
		updates["counter_terms"] = datatypes.JSON(counterTerms)
	default:
		return nil, apperrors.Validation("response must be %q, %q or %q", ResponseAccept, ResponseReject, ResponseCounter)
	}
	updates["status"] = next

	cdeOrg, err := s.resolver.OwningOrganization(ctx, orgs.KindCDE, letter.CDEID)
	if err != nil {
		return nil, err
	}

	return s.transition(ctx, actor, letter, next, string("sponsor_"+in.Response), updates, &notifications.Event{
		Type:            notifications.EventLOIResponded,
		RecipientOrgIDs: []uuid.UUID{cdeOrg},
		Subject:         fmt.Sprintf("LOI %s", next),
		Body:            fmt.Sprintf("The sponsor responded to your letter of intent: %s.", in.Response),
		Data:            map[string]any{"response": in.Response},
	})
}

// Withdraw pulls the LOI from any non-terminal state. CDE only; the
// reason is mandatory and recorded.
func (s *Service) Withdraw(ctx context.Context, actor auth.Actor, id uuid.UUID, reason string) (*LetterOfIntent, error) {
	if reason == "" {
		return nil, apperrors.Validation("reason is required to withdraw an LOI")
	}

	letter, err := s.getEffective(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeOrg(ctx, actor, orgs.KindCDE, letter.CDEID, "withdraw this LOI"); err != nil {
		return nil, err
	}
	if s.sm.IsTerminal(string(letter.Status)) {
		return nil, apperrors.InvalidState("withdraw", string(letter.Status))
	}

	sponsorOrg, err := s.resolver.OwningOrganization(ctx, orgs.KindSponsor, letter.SponsorID)
	if err != nil {
		return nil, err
	}

	return s.transition(ctx, actor, letter, StatusWithdrawn, "withdraw", map[string]any{
		"status":          StatusWithdrawn,
		"withdraw_reason": reason,
	}, &notifications.Event{
		Type:            notifications.EventLOIWithdrawn,
		RecipientOrgIDs: []uuid.UUID{sponsorOrg},
		Subject:         "Letter of intent withdrawn",
		Body:            "The CDE withdrew its letter of intent.",
		Data:            map[string]any{"reason": reason},
	})
}

// PerformAction is the single dispatch entry point the HTTP layer calls
func (s *Service) PerformAction(ctx context.Context, actor auth.Actor, id uuid.UUID, action string, payload ActionPayload) (*ActionResult, error) {
	var (
		letter *LetterOfIntent
		err    error
	)

	switch action {
	case "issue":
		letter, err = s.Issue(ctx, actor, id)
	case "send_to_sponsor":
		letter, err = s.SendToSponsor(ctx, actor, id)
	case "sponsor_respond":
		letter, err = s.SponsorRespond(ctx, actor, id, SponsorRespondInput{
			Response:     payload.Response,
			CounterTerms: payload.CounterTerms,
			Message:      payload.Message,
		})
	case "withdraw":
		letter, err = s.Withdraw(ctx, actor, id, payload.Reason)
	default:
		return nil, apperrors.Validation("unknown action %q", action)
	}
	if err != nil {
		return nil, err
	}

	return &ActionResult{LOI: letter, ActionPerformed: action}, nil
}

// GetByID loads the LOI, evaluating expiry lazily
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*LetterOfIntent, error) {
	return s.getEffective(ctx, id)
}

func (s *Service) ListForDeal(ctx context.Context, dealID uuid.UUID) ([]LetterOfIntent, error) {
	return s.repo.ListForDeal(ctx, dealID)
}

func (s *Service) ListForCDE(ctx context.Context, cdeID uuid.UUID) ([]LetterOfIntent, error) {
	return s.repo.ListForCDE(ctx, cdeID)
}

func (s *Service) ListForSponsor(ctx context.Context, sponsorID uuid.UUID) ([]LetterOfIntent, error) {
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

// getEffective applies lazy expiry on read: a non-terminal LOI past its
// expiresAt is flipped to expired, best-effort.
func (s *Service) getEffective(ctx context.Context, id uuid.UUID) (*LetterOfIntent, error) {
	letter, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.sm.IsTerminal(string(letter.Status)) && letter.ExpiresAt != nil && letter.ExpiresAt.Before(s.now()) {
		ok, err := s.repo.UpdateStatusIf(ctx, letter.ID, letter.Status, map[string]any{"status": StatusExpired})
		if err != nil {
			return nil, err
		}
		if ok {
			s.logger.Info("letter of intent lazily expired",
				zap.String("loi_id", letter.ID.String()),
				zap.Time("expires_at", *letter.ExpiresAt))
			letter.Status = StatusExpired
		} else {
			// Lost the race to another transition; reload the winner.
			s.logger.Debug("lazy expiry lost a concurrent transition",
				zap.String("loi_id", letter.ID.String()))
			return s.repo.GetByID(ctx, letter.ID)
		}
	}
	return letter, nil
}

// transition applies a compare-and-set write, reloads, and fires the side
// effects. Zero rows affected means someone else won the race.
func (s *Service) transition(ctx context.Context, actor auth.Actor, letter *LetterOfIntent, next Status, action string, updates map[string]any, event *notifications.Event) (*LetterOfIntent, error) {
	if !s.sm.CanTransition(string(letter.Status), string(next)) {
		return nil, apperrors.InvalidState(action, string(letter.Status))
	}

	ok, err := s.repo.UpdateStatusIf(ctx, letter.ID, letter.Status, updates)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.Conflict("letter of intent", letter.ID)
	}

	updated, err := s.repo.GetByID(ctx, letter.ID)
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

func (s *Service) record(ctx context.Context, actor auth.Actor, letter *LetterOfIntent, action string, updates map[string]any) {
	payload := map[string]any{
		"status":            letter.Status,
		"deal_id":           letter.DealID,
		"allocation_amount": letter.AllocationAmount,
	}
	if reason, ok := updates["withdraw_reason"]; ok {
		payload["reason"] = reason
	}
	s.audits.Record(ctx, audit.Entry{
		ActorID:    actor.UserID,
		ActorOrgID: actor.OrgID,
		EntityType: auditEntityType,
		EntityID:   letter.ID,
		Action:     action,
		Payload:    payload,
	})
}
