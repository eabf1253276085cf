package commitments

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"nmtc-connect/deal-portal/deal-portal-backend/pkg/workflows"
)

// Status is the commitment lifecycle status
type Status string

const (
	StatusDraft          Status = "draft"
	StatusIssued         Status = "issued"
	StatusPendingSponsor Status = "pending_sponsor"
	StatusPendingCDE     Status = "pending_cde"
	// sponsor_accepted is retained for aggregation compatibility; the
	// machine itself moves sponsor-accepted commitments to pending_cde or
	// straight to all_accepted.
	StatusSponsorAccepted Status = "sponsor_accepted"
	StatusAllAccepted     Status = "all_accepted"
	StatusRejected        Status = "rejected"
	StatusWithdrawn       Status = "withdrawn"
	StatusExpired         Status = "expired"
)

// Commitment is an investor's investment pledge against a deal. CDEID
// presence makes CDE acceptance mandatory before the terminal
// all_accepted; its absence allows sponsor-only acceptance.
type Commitment struct {
	ID                    uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	DealID                uuid.UUID      `json:"deal_id" gorm:"type:uuid;not null;index"`
	InvestorID            uuid.UUID      `json:"investor_id" gorm:"type:uuid;not null;index"`
	SponsorID             uuid.UUID      `json:"sponsor_id" gorm:"type:uuid;not null;index"`
	CDEID                 *uuid.UUID     `json:"cde_id,omitempty" gorm:"type:uuid;index"`
	LOIID                 *uuid.UUID     `json:"loi_id,omitempty" gorm:"type:uuid;index"`
	InvestmentAmount      float64        `json:"investment_amount" gorm:"type:decimal(16,2);not null"`
	CreditType            string         `json:"credit_type" gorm:"not null"`
	PricingCentsPerCredit *int           `json:"pricing_cents_per_credit,omitempty"`
	Terms                 datatypes.JSON `json:"terms" gorm:"default:'{}'"`
	Status                Status         `json:"status" gorm:"default:'draft';index"`
	IssuedAt              *time.Time     `json:"issued_at,omitempty"`
	ExpiresAt             *time.Time     `json:"expires_at,omitempty"`
	SponsorAcceptedAt     *time.Time     `json:"sponsor_accepted_at,omitempty"`
	CDEAcceptedAt         *time.Time     `json:"cde_accepted_at,omitempty"`
	AllAcceptedAt         *time.Time     `json:"all_accepted_at,omitempty"`
	SponsorNotes          *string        `json:"sponsor_notes,omitempty"`
	CDENotes              *string        `json:"cde_notes,omitempty"`
	RejectReason          *string        `json:"reject_reason,omitempty"`
	WithdrawReason        *string        `json:"withdraw_reason,omitempty"`
	CreatedAt             time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt             time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

// RequiresCDEAcceptance reports whether the commitment structurally needs
// a CDE countersignature before all_accepted.
func (c *Commitment) RequiresCDEAcceptance() bool {
	return c.CDEID != nil
}

// NewStateMachine returns the commitment transition table. rejected,
// withdrawn and expired are reachable from every non-terminal status.
func NewStateMachine() *workflows.StateMachine {
	return workflows.NewStateMachine(map[string][]string{
		string(StatusDraft): {
			string(StatusIssued),
			string(StatusRejected),
			string(StatusWithdrawn),
			string(StatusExpired),
		},
		string(StatusIssued): {
			string(StatusPendingSponsor),
			string(StatusRejected),
			string(StatusWithdrawn),
			string(StatusExpired),
		},
		string(StatusPendingSponsor): {
			string(StatusPendingCDE),
			string(StatusAllAccepted),
			string(StatusRejected),
			string(StatusWithdrawn),
			string(StatusExpired),
		},
		string(StatusPendingCDE): {
			string(StatusAllAccepted),
			string(StatusRejected),
			string(StatusWithdrawn),
			string(StatusExpired),
		},
		string(StatusSponsorAccepted): {},
		string(StatusAllAccepted):     {},
		string(StatusRejected):        {},
		string(StatusWithdrawn):       {},
		string(StatusExpired):         {},
	})
}
