package capitalstack

import (
	"github.com/google/uuid"
)

// SourceType distinguishes where a stack entry came from
type SourceType string

const (
	SourceLOI        SourceType = "loi"
	SourceCommitment SourceType = "commitment"
)

// Bucket classifies a source's contribution to the stack totals
type Bucket string

const (
	// BucketCommitted sources count toward the funding gap
	BucketCommitted Bucket = "committed"
	// BucketPending sources are in negotiation and count as pipeline
	BucketPending Bucket = "pending"
	// BucketInactive sources are drafts or dead ends; shown, never summed
	BucketInactive Bucket = "inactive"
)

// Source is one funding instrument in a deal's capital stack
type Source struct {
	SourceType  SourceType `json:"source_type"`
	SourceID    uuid.UUID  `json:"source_id"`
	PartyLabel  string     `json:"party_label"`
	Amount      float64    `json:"amount"`
	Status      string     `json:"status"`
	StatusLabel string     `json:"status_label"`
	Bucket      Bucket     `json:"bucket"`
}

// Summary is the aggregated capital stack view of one deal
type Summary struct {
	DealID           uuid.UUID `json:"deal_id"`
	ProjectName      string    `json:"project_name"`
	AllocationNeeded float64   `json:"allocation_needed"`
	Sources          []Source  `json:"sources"`
	TotalCommitted   float64   `json:"total_committed"`
	TotalPending     float64   `json:"total_pending"`
	FundingGap       float64   `json:"funding_gap"`
	ReadyForClosing  bool      `json:"ready_for_closing"`
}

// statusLabels are the display names the portal UI renders
var statusLabels = map[string]string{
	"draft":             "Draft",
	"issued":            "Issued",
	"pending_sponsor":   "Awaiting Sponsor",
	"pending_cde":       "Awaiting CDE",
	"sponsor_accepted":  "Sponsor Accepted",
	"sponsor_countered": "Countered",
	"sponsor_rejected":  "Rejected by Sponsor",
	"all_accepted":      "Fully Accepted",
	"rejected":          "Rejected",
	"withdrawn":         "Withdrawn",
	"expired":           "Expired",
}

func labelFor(status string) string {
	if label, ok := statusLabels[status]; ok {
		return label
	}
	return status
}

func bucketFor(status string) Bucket {
	switch status {
	case "all_accepted", "sponsor_accepted":
		return BucketCommitted
	case "issued", "pending_sponsor", "pending_cde", "sponsor_countered":
		return BucketPending
	default:
		return BucketInactive
	}
}
