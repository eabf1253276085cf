package audit

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Event is one audit record per mutating workflow transition.
// EventToken is an opaque idempotency/display token, not an integrity
// mechanism.
type Event struct {
	ID         uuid.UUID      `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	ActorID    uuid.UUID      `json:"actor_id" gorm:"type:uuid;not null;index"`
	ActorOrgID uuid.UUID      `json:"actor_org_id" gorm:"type:uuid;index"`
	EntityType string         `json:"entity_type" gorm:"not null;index:idx_audit_entity"`
	EntityID   uuid.UUID      `json:"entity_id" gorm:"type:uuid;not null;index:idx_audit_entity"`
	Action     string         `json:"action" gorm:"not null"`
	Payload    datatypes.JSON `json:"payload" gorm:"default:'{}'"`
	EventToken string         `json:"event_token" gorm:"index"`
	CreatedAt  time.Time      `json:"created_at" gorm:"autoCreateTime"`
}
