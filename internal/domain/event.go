// Package domain holds the shared record types that every component reads
// or writes: ledger events, queue jobs, approval records, and experiment
// configuration. Keeping these in one package avoids import cycles between
// ledger, queue, dispatch, and experiment.
package domain

import "time"

// EventType enumerates the ledger's event taxonomy. New types are additive;
// existing values are never renumbered since they round-trip through the
// NDJSON file across process restarts.
type EventType string

const (
	DraftCreated     EventType = "DRAFT_CREATED"
	AutoSendAttempt  EventType = "AUTO_SEND_ATTEMPT"
	AutoSendSuccess  EventType = "AUTO_SEND_SUCCESS"
	AutoSendBlocked  EventType = "AUTO_SEND_BLOCKED"
	SentDetected     EventType = "SENT_DETECTED"
	ReplyDetected    EventType = "REPLY_DETECTED"
	OpsStopSend      EventType = "OPS_STOP_SEND"
	OpsResumeSend    EventType = "OPS_RESUME_SEND"
)

// idempotentTypes is the pair of event types constrained to at most one per
// tracking_id. Indexed by the ledger for O(1) has_event checks.
var idempotentTypes = map[EventType]bool{
	SentDetected:  true,
	ReplyDetected: true,
}

// IsIdempotent reports whether et is subject to the at-most-one-per-tracking-id rule.
func IsIdempotent(et EventType) bool {
	return idempotentTypes[et]
}

// ABVariant is A, B, or unset.
type ABVariant string

const (
	VariantA    ABVariant = "A"
	VariantB    ABVariant = "B"
	VariantNone ABVariant = ""
)

// Event is one immutable ledger record. Meta carries event-specific
// attributes as a string-keyed bag so unrecognised keys round-trip even
// when a reader doesn't understand them.
type Event struct {
	EventID    string                 `json:"event_id"`
	Timestamp  time.Time              `json:"timestamp"`
	EventType  EventType              `json:"event_type"`
	TrackingID string                 `json:"tracking_id"`
	CompanyID  string                 `json:"company_id,omitempty"`
	TemplateID string                 `json:"template_id,omitempty"`
	ABVariant  ABVariant              `json:"ab_variant,omitempty"`
	Meta       map[string]interface{} `json:"meta,omitempty"`
}
