package loi

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"nmtc-connect/deal-portal/deal-portal-backend/pkg/workflows"
)

// Status is the letter of intent lifecycle status
type Status string

const (
	StatusDraft            Status = "draft"
	StatusIssued           Status = "issued"
	StatusPendingSponsor   Status = "pending_sponsor"
	StatusSponsorAccepted  Status = "sponsor_accepted"
	StatusSponsorCountered Status = "sponsor_countered"
	StatusSponsorRejected  Status = "sponsor_rejected"
	StatusExpired          Status = "expired"
	StatusWithdrawn        Status = "withdrawn"
)

// LetterOfIntent is a CDE's non-binding allocation offer to a sponsor on a
// deal. Conceptually owned by the issuing CDE until acceptance.
type LetterOfIntent struct {
	ID                uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	DealID            uuid.UUID      `json:"deal_id" gorm:"type:uuid;not null;index"`
	CDEID             uuid.UUID      `json:"cde_id" gorm:"type:uuid;not null;index"`
	SponsorID         uuid.UUID      `json:"sponsor_id" gorm:"type:uuid;not null;index"`
	AllocationAmount  float64        `json:"allocation_amount" gorm:"type:decimal(16,2);not null"`
	Terms             datatypes.JSON `json:"terms" gorm:"default:'{}'"`
	CounterTerms      datatypes.JSON `json:"counter_terms,omitempty"`
	Status            Status         `json:"status" gorm:"default:'draft';index"`
	IssuedAt          *time.Time     `json:"issued_at,omitempty"`
	ExpiresAt         *time.Time     `json:"expires_at,omitempty"`
	SponsorResponseAt *time.Time     `json:"sponsor_response_at,omitempty"`
	WithdrawReason    *string        `json:"withdraw_reason,omitempty"`
	CreatedAt         time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt         time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}

// NewStateMachine returns the LOI transition table. withdrawn and expired
// are reachable from every non-terminal status; sponsor_countered may be
// re-sent by the CDE with revised terms.
func NewStateMachine() *workflows.StateMachine {
	return workflows.NewStateMachine(map[string][]string{
		string(StatusDraft): {
			string(StatusIssued),
			string(StatusWithdrawn),
			string(StatusExpired),
		},
		string(StatusIssued): {
			string(StatusPendingSponsor),
			string(StatusWithdrawn),
			string(StatusExpired),
		},
		string(StatusPendingSponsor): {
			string(StatusSponsorAccepted),
			string(StatusSponsorCountered),
			string(StatusSponsorRejected),
			string(StatusWithdrawn),
			string(StatusExpired),
		},
		string(StatusSponsorCountered): {
			string(StatusPendingSponsor),
			string(StatusWithdrawn),
			string(StatusExpired),
		},
		string(StatusSponsorAccepted): {},
		string(StatusSponsorRejected): {},
		string(StatusExpired):         {},
		string(StatusWithdrawn):       {},
	})
}
