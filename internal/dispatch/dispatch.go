// Package dispatch implements the send dispatcher (C7): the loop that picks
// the next ready job, leases it, consults the approval registry and the
// send-policy gate, calls the mail provider, classifies the outcome, and
// reschedules or terminates the job.
package dispatch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/ignite/outreach-control/internal/approval"
	"github.com/ignite/outreach-control/internal/domain"
	"github.com/ignite/outreach-control/internal/killswitch"
	"github.com/ignite/outreach-control/internal/ledger"
	"github.com/ignite/outreach-control/internal/pkg/logger"
	"github.com/ignite/outreach-control/internal/policy"
	"github.com/ignite/outreach-control/internal/queue"
)

// SendResult is a successful provider send outcome.
type SendResult struct {
	MessageID string
	ThreadID  string
}

// Provider is the mail-provider contract the dispatcher consumes (§6): an
// opaque send operation classified entirely by the dispatcher, never by the
// provider adapter itself.
type Provider interface {
	Send(ctx context.Context, draftID string) (SendResult, error)
}

// ProviderError lets a Provider implementation report a pre-classified
// error code (e.g. from an HTTP status) without the dispatcher needing to
// understand transport details.
type ProviderError struct {
	Code    domain.SendErrorCode
	Message string
}

func (e *ProviderError) Error() string { return e.Message }

// Dispatcher runs the single-leaser send loop. Only one instance may run
// against a given Store at a time — the spec explicitly does not support
// distributed leasing.
type Dispatcher struct {
	Queue      *queue.Store
	Ledger     *ledger.Ledger
	Approvals  *approval.Registry
	Gate       *policy.Gate
	KillSwitch *killswitch.Switch
	Provider   Provider
	Retry      queue.RetryPolicy
	Now        func() time.Time
}

// New wires a Dispatcher from its collaborators, defaulting Retry and Now.
func New(q *queue.Store, l *ledger.Ledger, a *approval.Registry, g *policy.Gate, ks *killswitch.Switch, p Provider) *Dispatcher {
	return &Dispatcher{
		Queue:      q,
		Ledger:     l,
		Approvals:  a,
		Gate:       g,
		KillSwitch: ks,
		Provider:   p,
		Retry:      queue.DefaultRetryPolicy(),
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

// Tick runs a single dispatcher iteration. Returns false if there was no
// ready job or sending is currently disabled, so the caller can sleep.
func (d *Dispatcher) Tick(ctx context.Context) (ranJob bool, err error) {
	enabled, err := d.KillSwitch.IsEnabled(ctx)
	if err != nil {
		return false, err
	}
	if enabled {
		return false, nil
	}

	now := d.Now()
	job, ok := d.Queue.FindNextReadyJob(now)
	if !ok {
		return false, nil
	}

	if err := d.processJob(ctx, job, now); err != nil {
		logger.Error("dispatch: processing job failed", "job_id", job.JobID, "error", err.Error())
		return true, err
	}
	return true, nil
}

func (d *Dispatcher) processJob(ctx context.Context, job domain.SendJob, now time.Time) error {
	job.Status = domain.StatusInProgress
	job.InProgressStartedAt = &now
	if err := d.Queue.Put(job); err != nil {
		return err
	}

	rec, ok := d.Approvals.Lookup(job.ApprovalFingerprint)
	if !ok || rec.Consumed {
		return d.terminate(ctx, job, domain.ErrPolicy, "approval token missing or already consumed")
	}

	day := policy.Today(now)
	decision := d.Gate.CheckSendPermission(ctx, rec.ToEmail, day)
	if !decision.Allowed {
		if _, err := d.Ledger.Append(domain.Event{
			EventType:  domain.AutoSendBlocked,
			TrackingID: job.TrackingID,
			CompanyID:  job.CompanyID,
			TemplateID: job.TemplateID,
			ABVariant:  job.ABVariant,
			Meta: map[string]interface{}{
				"reason":  string(decision.Reason),
				"details": decision.Details,
			},
		}); err != nil {
			logger.Error("dispatch: failed to append AUTO_SEND_BLOCKED", "job_id", job.JobID, "error", err.Error())
		}
		return d.terminate(ctx, job, domain.ErrGate, string(decision.Reason))
	}

	if _, err := d.Ledger.Append(domain.Event{
		EventType:  domain.AutoSendAttempt,
		TrackingID: job.TrackingID,
		CompanyID:  job.CompanyID,
		TemplateID: job.TemplateID,
		ABVariant:  job.ABVariant,
	}); err != nil {
		logger.Error("dispatch: failed to append AUTO_SEND_ATTEMPT", "job_id", job.JobID, "error", err.Error())
	}

	result, sendErr := d.Provider.Send(ctx, job.DraftID)
	if sendErr == nil {
		return d.succeed(ctx, job, result)
	}

	code, msg := classify(sendErr)
	return d.fail(ctx, job, code, msg)
}

func (d *Dispatcher) succeed(ctx context.Context, job domain.SendJob, result SendResult) error {
	now := d.Now()
	job.Status = domain.StatusSent
	job.InProgressStartedAt = nil
	job.MessageID = result.MessageID
	job.ThreadID = result.ThreadID
	job.SentAt = &now
	if err := d.Queue.Put(job); err != nil {
		return err
	}

	if err := d.Approvals.Consume(job.ApprovalFingerprint); err != nil {
		logger.Error("dispatch: failed to burn approval token", "job_id", job.JobID, "error", err.Error())
	}

	_, err := d.Ledger.Append(domain.Event{
		EventType:  domain.AutoSendSuccess,
		TrackingID: job.TrackingID,
		CompanyID:  job.CompanyID,
		TemplateID: job.TemplateID,
		ABVariant:  job.ABVariant,
		Meta: map[string]interface{}{
			"message_id": result.MessageID,
			"thread_id":  result.ThreadID,
		},
	})
	return err
}

// fail classifies a provider-call failure into retry or terminal. Terminal
// error classes and an exhausted retry budget dead-letter the job.
func (d *Dispatcher) fail(ctx context.Context, job domain.SendJob, code domain.SendErrorCode, message string) error {
	if d.Retry.Terminal(job.Attempts+1, code) {
		job.Attempts++
		job.Status = domain.StatusDeadLetter
		job.InProgressStartedAt = nil
		job.LastErrorCode = code
		job.LastErrorMessageHash = hashMessage(message)
		return d.Queue.Put(job)
	}
	return d.reschedule(job, code, message)
}

// terminate moves a job straight to failed — used for approval/gate
// denials, which never retry (§4.6 steps 4-5).
func (d *Dispatcher) terminate(ctx context.Context, job domain.SendJob, code domain.SendErrorCode, message string) error {
	job.Status = domain.StatusFailed
	job.InProgressStartedAt = nil
	job.LastErrorCode = code
	job.LastErrorMessageHash = hashMessage(message)
	return d.Queue.Put(job)
}

// reschedule computes the next backoff and requeues the job.
func (d *Dispatcher) reschedule(job domain.SendJob, code domain.SendErrorCode, message string) error {
	job.Attempts++
	if job.Attempts > d.Retry.MaxAttempts {
		job.Status = domain.StatusDeadLetter
		job.InProgressStartedAt = nil
		job.LastErrorCode = code
		job.LastErrorMessageHash = hashMessage(message)
		return d.Queue.Put(job)
	}

	delay := d.Retry.Backoff(job.Attempts, code)
	job.Status = domain.StatusQueued
	job.InProgressStartedAt = nil
	job.NextAttemptAt = d.Now().Add(delay)
	job.LastErrorCode = code
	job.LastErrorMessageHash = hashMessage(message)
	return d.Queue.Put(job)
}

// classify maps a provider error into a stable SendErrorCode. Unrecognised
// errors become ErrUnknown, which retries conservatively rather than
// dead-lettering — network blips should not burn the retry budget harder
// than a real 5xx would.
func classify(err error) (domain.SendErrorCode, string) {
	if pe, ok := err.(*ProviderError); ok {
		return pe.Code, pe.Message
	}
	return domain.ErrUnknown, err.Error()
}

func hashMessage(message string) string {
	sum := sha256.Sum256([]byte(message))
	return hex.EncodeToString(sum[:])[:8]
}
