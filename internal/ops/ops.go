// Package ops implements the operator command surface (C13): stop-send,
// resume-send, stop-status, rollback, and the two-phase approve-send
// gesture. The state-changing verbs (stop-send, resume-send, rollback and
// approve-send phase 1) write an audit event to the ledger; stop-status and
// approve-send phase 2 write none.
package ops

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/outreach-control/internal/approval"
	"github.com/ignite/outreach-control/internal/domain"
	"github.com/ignite/outreach-control/internal/experiment"
	"github.com/ignite/outreach-control/internal/killswitch"
	"github.com/ignite/outreach-control/internal/ledger"
	"github.com/ignite/outreach-control/internal/queue"
)

// Surface wires the collaborators every ops verb needs.
type Surface struct {
	Ledger      *ledger.Ledger
	Queue       *queue.Store
	KillSwitch  *killswitch.Switch
	Approvals   *approval.Registry
	Experiments *experiment.Registry
	NewJobID    func() string
}

func New(l *ledger.Ledger, q *queue.Store, ks *killswitch.Switch, a *approval.Registry, exp *experiment.Registry, newJobID func() string) *Surface {
	return &Surface{Ledger: l, Queue: q, KillSwitch: ks, Approvals: a, Experiments: exp, NewJobID: newJobID}
}

// StopSend activates the runtime kill switch and records an audit event.
func (s *Surface) StopSend(ctx context.Context, reason, setBy string) error {
	if err := s.KillSwitch.SetEnabled(ctx, reason, setBy); err != nil {
		return err
	}
	_, err := s.Ledger.Append(domain.Event{
		EventType: domain.OpsStopSend,
		Meta:      map[string]interface{}{"reason": reason, "set_by": setBy},
	})
	return err
}

// ResumeSend deactivates the runtime kill switch and records an audit event.
func (s *Surface) ResumeSend(ctx context.Context, reason, setBy string) error {
	if err := s.KillSwitch.SetDisabled(ctx, reason, setBy); err != nil {
		return err
	}
	_, err := s.Ledger.Append(domain.Event{
		EventType: domain.OpsResumeSend,
		Meta:      map[string]interface{}{"reason": reason, "set_by": setBy},
	})
	return err
}

// StopStatus reports the current kill-switch state.
func (s *Surface) StopStatus(ctx context.Context) (domain.KillSwitchState, error) {
	return s.KillSwitch.State(ctx)
}

// RollbackResult is what Rollback reports back to the caller.
type RollbackResult struct {
	ExperimentID string
	PausedAt     time.Time
	AlsoStopped  bool
}

// Rollback pauses an experiment (marks every template status as paused,
// persisted to the registry), optionally also stopping sends, and writes an
// audit event.
func (s *Surface) Rollback(ctx context.Context, experimentID, reason, setBy string, alsoStopSend bool) (RollbackResult, error) {
	cfg, ok := s.Experiments.Get(experimentID)
	if !ok {
		return RollbackResult{}, fmt.Errorf("ops: unknown experiment %s", experimentID)
	}

	for i := range cfg.Templates {
		cfg.Templates[i].Status = domain.ExperimentPaused
	}
	cfg.Status = domain.ExperimentPaused
	if err := s.Experiments.Put(cfg); err != nil {
		return RollbackResult{}, err
	}

	if alsoStopSend {
		if err := s.StopSend(ctx, "rollback: "+reason, setBy); err != nil {
			return RollbackResult{}, err
		}
	}

	now := time.Now().UTC()
	_, err := s.Ledger.Append(domain.Event{
		EventType: domain.OpsStopSend,
		Meta: map[string]interface{}{
			"verb":          "rollback",
			"experiment_id": experimentID,
			"reason":        reason,
			"set_by":        setBy,
			"also_stop_send": alsoStopSend,
		},
	})
	if err != nil {
		return RollbackResult{}, err
	}

	return RollbackResult{ExperimentID: experimentID, PausedAt: now, AlsoStopped: alsoStopSend}, nil
}

// ApproveSendPhase1 creates an approval token for a draft. Unless execute is
// true, it also stops sending (the operator must explicitly opt back in via
// resume-send once they're ready). Returns the
// raw token — callers must hand it to the operator and never log it.
func (s *Surface) ApproveSendPhase1(ctx context.Context, draftID, approvedBy, reason, ticket, toEmail string, execute bool) (token string, err error) {
	token, fingerprint, err := approval.NewToken()
	if err != nil {
		return "", err
	}

	if err := s.Approvals.Create(domain.ApprovalRecord{
		Fingerprint: fingerprint,
		DraftID:     draftID,
		ApprovedBy:  approvedBy,
		Reason:      reason,
		Ticket:      ticket,
		ToEmail:     toEmail,
	}); err != nil {
		return "", err
	}

	if !execute {
		if err := s.StopSend(ctx, "approve-send: awaiting execution", approvedBy); err != nil {
			return "", err
		}
	}

	_, err = s.Ledger.Append(domain.Event{
		EventType: domain.DraftCreated,
		Meta: map[string]interface{}{
			"verb":                  "approve-send",
			"draft_id":              draftID,
			"approved_by":           approvedBy,
			"reason":                reason,
			"approval_fingerprint":  fingerprint,
		},
	})
	return token, err
}

// ApproveSendPhase2 ties an already-issued token to a concrete send by
// enqueueing a job. token is the raw value returned by phase 1 — it is
// fingerprinted here and never persisted in the job snapshot.
func (s *Surface) ApproveSendPhase2(ctx context.Context, token, trackingID, companyID, templateID string, variant domain.ABVariant, toDomain string) (domain.SendJob, error) {
	fingerprint := approval.Fingerprint(token)
	rec, ok := s.Approvals.Lookup(fingerprint)
	if !ok {
		return domain.SendJob{}, fmt.Errorf("ops: unknown approval token")
	}
	if rec.Consumed {
		return domain.SendJob{}, fmt.Errorf("ops: approval token already consumed")
	}

	if existing, ok := s.Queue.FindByDraftID(rec.DraftID); ok {
		return domain.SendJob{}, fmt.Errorf("ops: draft %s already enqueued as job %s", rec.DraftID, existing.JobID)
	}

	now := time.Now().UTC()
	job := domain.SendJob{
		JobID:               s.NewJobID(),
		CreatedAt:           now,
		Status:              domain.StatusQueued,
		DraftID:             rec.DraftID,
		TrackingID:          trackingID,
		CompanyID:           companyID,
		TemplateID:          templateID,
		ABVariant:           variant,
		ToDomain:            toDomain,
		ApprovalFingerprint: fingerprint,
		NextAttemptAt:       now,
	}
	if err := s.Queue.Put(job); err != nil {
		return domain.SendJob{}, err
	}
	return job, nil
}
