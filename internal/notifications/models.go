package notifications

import (
	"github.com/google/uuid"
)

// Well-known event types emitted by the negotiation workflow
const (
	EventMatchRequestCreated   = "match_request.created"
	EventMatchRequestAccepted  = "match_request.accepted"
	EventMatchRequestDeclined  = "match_request.declined"
	EventMatchRequestWithdrawn = "match_request.withdrawn"

	EventLOISent      = "loi.sent_to_sponsor"
	EventLOIResponded = "loi.sponsor_responded"
	EventLOIWithdrawn = "loi.withdrawn"

	EventCommitmentSent            = "commitment.sent_for_acceptance"
	EventCommitmentSponsorAccepted = "commitment.sponsor_accepted"
	EventCommitmentAllAccepted     = "commitment.all_accepted"
	EventCommitmentRejected        = "commitment.rejected"
	EventCommitmentWithdrawn       = "commitment.withdrawn"
)

// Event is one cross-party notification. RecipientOrgIDs are the "other
// parties" of the transition that produced it.
type Event struct {
	Type            string         `json:"type"`
	DealID          uuid.UUID      `json:"deal_id"`
	EntityType      string         `json:"entity_type"`
	EntityID        uuid.UUID      `json:"entity_id"`
	RecipientOrgIDs []uuid.UUID    `json:"recipient_org_ids"`
	Subject         string         `json:"subject"`
	Body            string         `json:"body"`
	Data            map[string]any `json:"data,omitempty"`
}
