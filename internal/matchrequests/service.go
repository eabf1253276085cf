package matchrequests

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"nmtc-connect/deal-portal/deal-portal-backend/internal/audit"
	"nmtc-connect/deal-portal/deal-portal-backend/internal/auth"
	"nmtc-connect/deal-portal/deal-portal-backend/internal/notifications"
	"nmtc-connect/deal-portal/deal-portal-backend/pkg/apperrors"
	"nmtc-connect/deal-portal/deal-portal-backend/pkg/workflows"
)

const auditEntityType = "match_request"

// ResponseAction is what the target org may do with a pending request
type ResponseAction string

const (
	ActionAccept  ResponseAction = "accept"
	ActionDecline ResponseAction = "decline"
)

// SlotConfig carries the three windows the slot manager enforces
type SlotConfig struct {
	Limit           int
	DeclineCooldown time.Duration
	Expiry          time.Duration
}

// CreateInput is the sponsor's request payload
type CreateInput struct {
	DealID      uuid.UUID
	TargetType  TargetType
	TargetOrgID uuid.UUID
	Message     string
}

// Service enforces the slot limit and decline cooldown around match
// request transitions.
type Service struct {
	repo     Repository
	audits   audit.Sink
	notifier notifications.Emitter
	sm       *workflows.StateMachine
	cfg      SlotConfig
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a match request service
func NewService(repo Repository, audits audit.Sink, notifier notifications.Emitter, cfg SlotConfig, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		audits:   audits,
		notifier: notifier,
		sm:       NewStateMachine(),
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Create opens a new pending request if the sponsor has a free slot for
// the target type and the target is not inside a decline cooldown.
func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateInput) (*MatchRequest, error) {
	if in.TargetType != TargetCDE && in.TargetType != TargetInvestor {
		return nil, apperrors.Validation("target_type must be %q or %q", TargetCDE, TargetInvestor)
	}
	if in.DealID == uuid.Nil || in.TargetOrgID == uuid.Nil {
		return nil, apperrors.Validation("deal_id and target_org_id are required")
	}

	now := s.now()

	cooldownEnd, err := s.repo.ActiveCooldownEnd(ctx, actor.OrgID, in.TargetOrgID, now)
	if err != nil {
		return nil, err
	}
	if cooldownEnd != nil {
		return nil, apperrors.CooldownActive(*cooldownEnd)
	}

	req := &MatchRequest{
		ID:           uuid.New(),
		SponsorOrgID: actor.OrgID,
		DealID:       in.DealID,
		TargetType:   in.TargetType,
		TargetOrgID:  in.TargetOrgID,
		Message:      in.Message,
		Status:       StatusPending,
		RequestedAt:  now,
		ExpiresAt:    now.Add(s.cfg.Expiry),
	}

	if err := s.repo.CreateWithSlotCheck(ctx, req, s.cfg.Limit); err != nil {
		return nil, err
	}

	s.recordAndNotify(ctx, actor, req, "create", notifications.EventMatchRequestCreated, req.TargetOrgID,
		"New match request",
		fmt.Sprintf("A sponsor requested an introduction on a deal (%s target).", req.TargetType))
	return req, nil
}

// Respond lets the target org accept or decline a pending request.
// Decline starts the sponsor/target cooldown window; accept is
// terminal-success.
func (s *Service) Respond(ctx context.Context, actor auth.Actor, requestID uuid.UUID, action ResponseAction, message string) (*MatchRequest, error) {
	if action != ActionAccept && action != ActionDecline {
		return nil, apperrors.Validation("action must be %q or %q", ActionAccept, ActionDecline)
	}

	req, err := s.getEffective(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.TargetOrgID != actor.OrgID {
		return nil, apperrors.Forbidden("only the target organization may respond to this request")
	}
	if req.Status != StatusPending {
		return nil, apperrors.InvalidState(string(action), string(req.Status))
	}

	now := s.now()
	next := StatusAccepted
	event := notifications.EventMatchRequestAccepted
	updates := map[string]any{
		"status":       next,
		"responded_at": now,
	}
	if message != "" {
		updates["response_message"] = message
	}
	if action == ActionDecline {
		next = StatusDeclined
		event = notifications.EventMatchRequestDeclined
		updates["status"] = next
		updates["cooldown_ends_at"] = now.Add(s.cfg.DeclineCooldown)
	}

	if !s.sm.CanTransition(string(req.Status), string(next)) {
		return nil, apperrors.InvalidState(string(action), string(req.Status))
	}

	ok, err := s.repo.UpdateStatusIf(ctx, req.ID, StatusPending, updates)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.Conflict("match request", req.ID)
	}

	req, err = s.repo.GetByID(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	s.recordAndNotify(ctx, actor, req, string(action), event, req.SponsorOrgID,
		fmt.Sprintf("Match request %s", next),
		fmt.Sprintf("Your match request was %s by the target organization.", next))
	return req, nil
}

// Withdraw lets the requesting sponsor pull a pending request. The slot is
// freed immediately and no cooldown applies, unlike a decline.
func (s *Service) Withdraw(ctx context.Context, actor auth.Actor, requestID uuid.UUID) (*MatchRequest, error) {
	req, err := s.getEffective(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.SponsorOrgID != actor.OrgID {
		return nil, apperrors.Forbidden("only the requesting sponsor may withdraw this request")
	}
	if req.Status != StatusPending {
		return nil, apperrors.InvalidState("withdraw", string(req.Status))
	}

	ok, err := s.repo.UpdateStatusIf(ctx, req.ID, StatusPending, map[string]any{
		"status":       StatusWithdrawn,
		"responded_at": s.now(),
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperrors.Conflict("match request", req.ID)
	}

	req, err = s.repo.GetByID(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	s.recordAndNotify(ctx, actor, req, "withdraw", notifications.EventMatchRequestWithdrawn, req.TargetOrgID,
		"Match request withdrawn",
		"The sponsor withdrew their match request.")
	return req, nil
}

// GetByID loads a request, flipping a pending row past its expiry to
// expired on read.
func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*MatchRequest, error) {
	return s.getEffective(ctx, id)
}

func (s *Service) ListForSponsor(ctx context.Context, sponsorOrgID uuid.UUID) ([]MatchRequest, error) {
	return s.repo.ListForSponsor(ctx, sponsorOrgID)
}

func (s *Service) ListForTarget(ctx context.Context, targetOrgID uuid.UUID) ([]MatchRequest, error) {
	return s.repo.ListForTarget(ctx, targetOrgID)
}

// getEffective applies lazy expiry: a pending request past its expiresAt is
// persisted as expired, best-effort, and returned as such.
func (s *Service) getEffective(ctx context.Context, id uuid.UUID) (*MatchRequest, error) {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Status == StatusPending && req.ExpiresAt.Before(s.now()) {
		ok, err := s.repo.UpdateStatusIf(ctx, req.ID, StatusPending, map[string]any{"status": StatusExpired})
		if err != nil {
			return nil, err
		}
		if ok {
			s.logger.Info("match request lazily expired",
				zap.String("request_id", req.ID.String()),
				zap.Time("expires_at", req.ExpiresAt))
			req.Status = StatusExpired
		} else {
			// Lost the race to another transition; reload the winner.
			s.logger.Debug("lazy expiry lost a concurrent transition",
				zap.String("request_id", req.ID.String()))
			return s.repo.GetByID(ctx, req.ID)
		}
	}
	return req, nil
}

func (s *Service) recordAndNotify(ctx context.Context, actor auth.Actor, req *MatchRequest, action, eventType string, recipient uuid.UUID, subject, body string) {
	s.audits.Record(ctx, audit.Entry{
		ActorID:    actor.UserID,
		ActorOrgID: actor.OrgID,
		EntityType: auditEntityType,
		EntityID:   req.ID,
		Action:     action,
		Payload: map[string]any{
			"status":      req.Status,
			"deal_id":     req.DealID,
			"target_type": req.TargetType,
		},
	})
	s.notifier.Emit(ctx, notifications.Event{
		Type:            eventType,
		DealID:          req.DealID,
		EntityType:      auditEntityType,
		EntityID:        req.ID,
		RecipientOrgIDs: []uuid.UUID{recipient},
		Subject:         subject,
		Body:            body,
		Data:            map[string]any{"status": req.Status},
	})
}
