// Package reconcile implements the Gmail reconciler (C9): for each audited
// draft, probes the provider for SENT and REPLY, and appends the
// corresponding ledger events. Purely metadata-only — message bodies are
// never fetched — and idempotent via the ledger's own index.
package reconcile

import (
	"context"
	"time"

	"github.com/ignite/outreach-control/internal/domain"
	"github.com/ignite/outreach-control/internal/ledger"
	"github.com/ignite/outreach-control/internal/pkg/logger"
)

// SentMatch is what the provider returns when it finds a sent message
// bearing the tracking marker.
type SentMatch struct {
	ThreadID string
	SentAt   time.Time
}

// ReplyMatch is what the provider returns when it finds a reply.
type ReplyMatch struct {
	ThreadID string
	ReplyAt  time.Time
}

// Searcher is the subset of the mail-provider contract (§6) the
// reconciler consumes: metadata-only search, never body bytes.
type Searcher interface {
	SearchSent(ctx context.Context, trackingID string) (*SentMatch, error)
	SearchInboxReplies(ctx context.Context, trackingID string) (*ReplyMatch, error)
}

// DraftAudit is one record from the external CRM/draft audit log the
// reconciler iterates over.
type DraftAudit struct {
	TrackingID      string
	CompanyID       string
	TemplateID      string
	ABVariant       domain.ABVariant
	DraftCreatedAt  time.Time
}

// Reconciler runs the SENT/REPLY detection sweep.
type Reconciler struct {
	Ledger   *ledger.Ledger
	Provider Searcher
}

func New(l *ledger.Ledger, p Searcher) *Reconciler {
	return &Reconciler{Ledger: l, Provider: p}
}

// ReconcileOne processes a single draft audit record, appending SENT_DETECTED
// and/or REPLY_DETECTED if not already indexed. Safe to call repeatedly —
// a second call with the same state appends nothing.
func (r *Reconciler) ReconcileOne(ctx context.Context, audit DraftAudit) error {
	var sentAt time.Time
	haveSentAt := false

	if !r.Ledger.HasEvent(audit.TrackingID, domain.SentDetected) {
		match, err := r.Provider.SearchSent(ctx, audit.TrackingID)
		if err != nil {
			return err
		}
		if match != nil {
			_, err := r.Ledger.Append(domain.Event{
				EventType:  domain.SentDetected,
				TrackingID: audit.TrackingID,
				CompanyID:  audit.CompanyID,
				TemplateID: audit.TemplateID,
				ABVariant:  audit.ABVariant,
				Timestamp:  match.SentAt,
				Meta: map[string]interface{}{
					"thread_id": match.ThreadID,
					"sent_date": match.SentAt.Format(time.RFC3339),
				},
			})
			if err != nil {
				return err
			}
			sentAt = match.SentAt
			haveSentAt = true
		}
	}

	if !r.Ledger.HasEvent(audit.TrackingID, domain.ReplyDetected) {
		match, err := r.Provider.SearchInboxReplies(ctx, audit.TrackingID)
		if err != nil {
			return err
		}
		if match != nil {
			if !haveSentAt {
				sentAt = r.earliestSentAt(audit)
			}
			latencySeconds := match.ReplyAt.Sub(sentAt).Seconds()
			_, err := r.Ledger.Append(domain.Event{
				EventType:  domain.ReplyDetected,
				TrackingID: audit.TrackingID,
				CompanyID:  audit.CompanyID,
				TemplateID: audit.TemplateID,
				ABVariant:  audit.ABVariant,
				Timestamp:  match.ReplyAt,
				Meta: map[string]interface{}{
					"thread_id":       match.ThreadID,
					"reply_date":      match.ReplyAt.Format(time.RFC3339),
					"latency_seconds": latencySeconds,
				},
			})
			if err != nil {
				return err
			}
		}
	}

	return nil
}

// earliestSentAt recovers the SENT_DETECTED timestamp already in the
// ledger, falling back to the draft creation time per §4.8.
func (r *Reconciler) earliestSentAt(audit DraftAudit) time.Time {
	for _, ev := range r.Ledger.AllEvents() {
		if ev.TrackingID == audit.TrackingID && ev.EventType == domain.SentDetected {
			return ev.Timestamp
		}
	}
	return audit.DraftCreatedAt
}

// ReconcileAll runs ReconcileOne over every audit record, logging but not
// aborting on a per-record failure so one bad record doesn't block the rest.
func (r *Reconciler) ReconcileAll(ctx context.Context, audits []DraftAudit) {
	for _, audit := range audits {
		if err := r.ReconcileOne(ctx, audit); err != nil {
			logger.Error("reconcile: failed for tracking_id", "tracking_id", audit.TrackingID, "error", err.Error())
		}
	}
}
