package reconcile

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-control/internal/domain"
	"github.com/ignite/outreach-control/internal/ledger"
)

type fakeSearcher struct {
	sent    *SentMatch
	reply   *ReplyMatch
	calls   int
}

func (f *fakeSearcher) SearchSent(ctx context.Context, trackingID string) (*SentMatch, error) {
	f.calls++
	return f.sent, nil
}

func (f *fakeSearcher) SearchInboxReplies(ctx context.Context, trackingID string) (*ReplyMatch, error) {
	return f.reply, nil
}

func TestReconcileOneAppendsSentAndReply(t *testing.T) {
	l, err := ledger.Open(filepath.Join(t.TempDir(), "metrics.ndjson"))
	require.NoError(t, err)

	sentAt := time.Now().Add(-time.Hour)
	replyAt := time.Now()
	provider := &fakeSearcher{
		sent:  &SentMatch{ThreadID: "T1", SentAt: sentAt},
		reply: &ReplyMatch{ThreadID: "T1", ReplyAt: replyAt},
	}
	r := New(l, provider)

	err = r.ReconcileOne(context.Background(), DraftAudit{TrackingID: "track-1"})
	require.NoError(t, err)

	assert.True(t, l.HasEvent("track-1", domain.SentDetected))
	assert.True(t, l.HasEvent("track-1", domain.ReplyDetected))
}

func TestReconcileIsIdempotent(t *testing.T) {
	l, err := ledger.Open(filepath.Join(t.TempDir(), "metrics.ndjson"))
	require.NoError(t, err)

	provider := &fakeSearcher{
		sent: &SentMatch{ThreadID: "T1", SentAt: time.Now()},
	}
	r := New(l, provider)

	require.NoError(t, r.ReconcileOne(context.Background(), DraftAudit{TrackingID: "track-1"}))
	eventsAfterFirst := len(l.AllEvents())

	require.NoError(t, r.ReconcileOne(context.Background(), DraftAudit{TrackingID: "track-1"}))
	assert.Equal(t, eventsAfterFirst, len(l.AllEvents()), "a second run must produce the same ledger")
}

func TestReconcileNoMatchAppendsNothing(t *testing.T) {
	l, err := ledger.Open(filepath.Join(t.TempDir(), "metrics.ndjson"))
	require.NoError(t, err)

	r := New(l, &fakeSearcher{})
	require.NoError(t, r.ReconcileOne(context.Background(), DraftAudit{TrackingID: "track-1"}))
	assert.Empty(t, l.AllEvents())
}

func TestReconcileReplyLatencyFallsBackToDraftCreated(t *testing.T) {
	l, err := ledger.Open(filepath.Join(t.TempDir(), "metrics.ndjson"))
	require.NoError(t, err)

	draftCreated := time.Now().Add(-2 * time.Hour)
	replyAt := time.Now()
	provider := &fakeSearcher{reply: &ReplyMatch{ThreadID: "T1", ReplyAt: replyAt}}
	r := New(l, provider)

	err = r.ReconcileOne(context.Background(), DraftAudit{TrackingID: "track-1", DraftCreatedAt: draftCreated})
	require.NoError(t, err)

	events := l.AllEvents()
	require.Len(t, events, 1)
	latency, ok := events[0].Meta["latency_seconds"].(float64)
	require.True(t, ok)
	assert.InDelta(t, replyAt.Sub(draftCreated).Seconds(), latency, 1.0)
}
