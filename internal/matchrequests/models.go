package matchrequests

import (
	"time"

	"github.com/google/uuid"

	"nmtc-connect/deal-portal/deal-portal-backend/pkg/workflows"
)

// TargetType is the kind of organization a sponsor is requesting
// attention from
type TargetType string

const (
	TargetCDE      TargetType = "cde"
	TargetInvestor TargetType = "investor"
)

// Status is the match request lifecycle status. pending is the only
// non-terminal status; nothing ever re-enters pending.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusDeclined  Status = "declined"
	StatusWithdrawn Status = "withdrawn"
	StatusExpired   Status = "expired"
)

// MatchRequest is a sponsor's ask for attention from a CDE or investor
// on a deal.
type MatchRequest struct {
	ID              uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	SponsorOrgID    uuid.UUID  `json:"sponsor_org_id" gorm:"type:uuid;not null;index:idx_match_requests_sponsor"`
	DealID          uuid.UUID  `json:"deal_id" gorm:"type:uuid;not null;index"`
	TargetType      TargetType `json:"target_type" gorm:"not null;index:idx_match_requests_sponsor"`
	TargetOrgID     uuid.UUID  `json:"target_org_id" gorm:"type:uuid;not null;index"`
	Message         string     `json:"message"`
	Status          Status     `json:"status" gorm:"default:'pending';index"`
	RequestedAt     time.Time  `json:"requested_at" gorm:"not null"`
	RespondedAt     *time.Time `json:"responded_at,omitempty"`
	ResponseMessage *string    `json:"response_message,omitempty"`
	CooldownEndsAt  *time.Time `json:"cooldown_ends_at,omitempty"`
	ExpiresAt       time.Time  `json:"expires_at" gorm:"not null;index"`
	CreatedAt       time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt       time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// NewStateMachine returns the match request transition table
func NewStateMachine() *workflows.StateMachine {
	return workflows.NewStateMachine(map[string][]string{
		string(StatusPending): {
			string(StatusAccepted),
			string(StatusDeclined),
			string(StatusWithdrawn),
			string(StatusExpired),
		},
		string(StatusAccepted):  {},
		string(StatusDeclined):  {},
		string(StatusWithdrawn): {},
		string(StatusExpired):   {},
	})
}
