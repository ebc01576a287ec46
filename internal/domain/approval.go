package domain

import "time"

// ApprovalRecord binds a one-shot approval token to a specific draft. The
// raw token is never persisted: only its fingerprint (crypto/sha256, first
// 8 hex chars) is written to disk, computed by the caller before Create.
type ApprovalRecord struct {
	Fingerprint string    `json:"fingerprint"`
	DraftID     string    `json:"draft_id"`
	ApprovedBy  string    `json:"approved_by"`
	Reason      string    `json:"reason"`
	Ticket      string    `json:"ticket,omitempty"`
	ToEmail     string    `json:"to_email,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	Consumed    bool      `json:"consumed"`
	ConsumedAt  *time.Time `json:"consumed_at,omitempty"`
}
