package queue

import "github.com/ignite/outreach-control/internal/domain"

// validTransitions enumerates the SendJob FSM (§4.2): queued -> in_progress
// -> {sent, failed, cancelled}; failed -> {queued, dead_letter}; in_progress
// -> {queued, dead_letter} via the reaper.
var validTransitions = map[domain.JobStatus]map[domain.JobStatus]bool{
	domain.StatusQueued: {
		domain.StatusInProgress: true,
		domain.StatusCancelled:  true,
	},
	domain.StatusInProgress: {
		domain.StatusSent:       true,
		domain.StatusFailed:     true,
		domain.StatusCancelled:  true,
		domain.StatusQueued:     true, // reaper requeue
		domain.StatusDeadLetter: true, // reaper exhausted
	},
	domain.StatusFailed: {
		domain.StatusQueued:     true,
		domain.StatusDeadLetter: true,
	},
}

// ValidTransition reports whether moving a job from `from` to `to` is
// allowed by the FSM. Terminal states have no outgoing transitions.
func ValidTransition(from, to domain.JobStatus) bool {
	if domain.IsTerminal(from) {
		return false
	}
	return validTransitions[from][to]
}
