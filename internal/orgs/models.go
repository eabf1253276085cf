package orgs

import (
	"time"

	"github.com/google/uuid"
)

// OrgType distinguishes the three party types on the platform
type OrgType string

const (
	OrgTypeSponsor  OrgType = "sponsor"
	OrgTypeCDE      OrgType = "cde"
	OrgTypeInvestor OrgType = "investor"
)

// Organization is the account that owns party profiles and users
type Organization struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	Name         string    `json:"name" gorm:"not null"`
	Type         OrgType   `json:"type" gorm:"not null;index"`
	ContactEmail string    `json:"contact_email"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// SponsorProfile is the sponsor-side party record referenced by deals and
// match requests. Owned by exactly one organization.
type SponsorProfile struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	OrganizationID uuid.UUID `json:"organization_id" gorm:"type:uuid;not null;index"`
	LegalName      string    `json:"legal_name" gorm:"not null"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// CDEProfile is the CDE-side party record referenced by LOIs and commitments
type CDEProfile struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	OrganizationID uuid.UUID `json:"organization_id" gorm:"type:uuid;not null;index"`
	LegalName      string    `json:"legal_name" gorm:"not null"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// InvestorProfile is the investor-side party record referenced by commitments
type InvestorProfile struct {
	ID             uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	OrganizationID uuid.UUID `json:"organization_id" gorm:"type:uuid;not null;index"`
	LegalName      string    `json:"legal_name" gorm:"not null"`
	CreatedAt      time.Time `json:"created_at" gorm:"autoCreateTime"`
}
