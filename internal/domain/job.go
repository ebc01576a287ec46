package domain

import "time"

// JobStatus is a SendJob's place in the FSM described in the queue store.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusInProgress JobStatus = "in_progress"
	StatusSent       JobStatus = "sent"
	StatusFailed     JobStatus = "failed"
	StatusDeadLetter JobStatus = "dead_letter"
	StatusCancelled  JobStatus = "cancelled"
)

// terminal holds the statuses a job never leaves.
var terminal = map[JobStatus]bool{
	StatusSent:       true,
	StatusDeadLetter: true,
	StatusCancelled:  true,
}

// IsTerminal reports whether s is a terminal FSM state.
func IsTerminal(s JobStatus) bool {
	return terminal[s]
}

// SendErrorCode is the dispatcher's stable, machine-comparable classification
// of a provider-call outcome. It is the only place provider-specific status
// codes enter the core.
type SendErrorCode string

const (
	ErrGmail429  SendErrorCode = "gmail_429"
	ErrGmail5xx  SendErrorCode = "gmail_5xx"
	ErrGmail400  SendErrorCode = "gmail_400"
	ErrAuth      SendErrorCode = "auth"
	ErrPolicy    SendErrorCode = "policy"
	ErrGate      SendErrorCode = "gate"
	ErrNotFound  SendErrorCode = "not_found"
	ErrUnknown   SendErrorCode = "unknown"
)

// terminalErrorCodes never get a retry, regardless of attempt count.
var terminalErrorCodes = map[SendErrorCode]bool{
	ErrGmail400: true,
	ErrAuth:     true,
	ErrPolicy:   true,
	ErrGate:     true,
	ErrNotFound: true,
}

// IsTerminalError reports whether code short-circuits retry (§4.3).
func IsTerminalError(code SendErrorCode) bool {
	return terminalErrorCodes[code]
}

// SendJob is a single queued outbound send, tracked through the FSM in
// fsm.go. to_domain is the only recipient-derived field ever persisted;
// the full address lives only in the approval registry's out-of-band
// metadata and is never written into a job snapshot.
type SendJob struct {
	JobID                string     `json:"job_id"`
	CreatedAt            time.Time  `json:"created_at"`
	Status               JobStatus  `json:"status"`
	DraftID              string     `json:"draft_id"`
	TrackingID           string     `json:"tracking_id"`
	CompanyID            string     `json:"company_id,omitempty"`
	TemplateID           string     `json:"template_id,omitempty"`
	ABVariant            ABVariant  `json:"ab_variant,omitempty"`
	ToDomain             string     `json:"to_domain"`
	ApprovalFingerprint  string     `json:"approval_fingerprint"`
	Attempts             int        `json:"attempts"`
	NextAttemptAt        time.Time  `json:"next_attempt_at"`
	InProgressStartedAt  *time.Time `json:"in_progress_started_at,omitempty"`
	LastErrorCode        SendErrorCode `json:"last_error_code,omitempty"`
	LastErrorMessageHash string     `json:"last_error_message_hash,omitempty"`
	LastUpdatedAt        time.Time  `json:"last_updated_at"`

	// Success metadata, set only when Status == StatusSent.
	MessageID string     `json:"message_id,omitempty"`
	ThreadID  string      `json:"thread_id,omitempty"`
	SentAt    *time.Time `json:"sent_at,omitempty"`

	// Cancel metadata, set only when Status == StatusCancelled.
	CancelledReason string `json:"cancelled_reason,omitempty"`
	CancelledBy     string `json:"cancelled_by,omitempty"`
}

// Clone returns a deep-enough copy safe to mutate without aliasing the
// caller's pointer fields.
func (j SendJob) Clone() SendJob {
	out := j
	if j.InProgressStartedAt != nil {
		t := *j.InProgressStartedAt
		out.InProgressStartedAt = &t
	}
	if j.SentAt != nil {
		t := *j.SentAt
		out.SentAt = &t
	}
	return out
}
