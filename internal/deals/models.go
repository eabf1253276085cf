package deals

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Deal is the financing deal record the negotiation workflow hangs off.
// The portal's deal CRUD lives elsewhere; this package only reads.
type Deal struct {
	ID                     uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	SponsorID              uuid.UUID      `json:"sponsor_id" gorm:"type:uuid;not null;index"`
	ProjectName            string         `json:"project_name" gorm:"not null"`
	TotalProjectCost       float64        `json:"total_project_cost" gorm:"type:decimal(16,2)"`
	NMTCFinancingRequested *float64       `json:"nmtc_financing_requested" gorm:"type:decimal(16,2)"`
	Programs               datatypes.JSON `json:"programs" gorm:"default:'[]'"`
	CreatedAt              time.Time      `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt              time.Time      `json:"updated_at" gorm:"autoUpdateTime"`
}
