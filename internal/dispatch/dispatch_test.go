package dispatch

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-control/internal/approval"
	"github.com/ignite/outreach-control/internal/domain"
	"github.com/ignite/outreach-control/internal/killswitch"
	"github.com/ignite/outreach-control/internal/ledger"
	"github.com/ignite/outreach-control/internal/policy"
	"github.com/ignite/outreach-control/internal/queue"
)

type fakeProvider struct {
	result SendResult
	err    error
}

func (f *fakeProvider) Send(ctx context.Context, draftID string) (SendResult, error) {
	return f.result, f.err
}

type testHarness struct {
	queue      *queue.Store
	ledger     *ledger.Ledger
	approvals  *approval.Registry
	killswitch *killswitch.Switch
	gate       *policy.Gate
}

func newHarness(t *testing.T, gateCfg policy.Config) *testHarness {
	t.Helper()
	dir := t.TempDir()

	q, err := queue.Open(filepath.Join(dir, "send_queue.ndjson"))
	require.NoError(t, err)
	l, err := ledger.Open(filepath.Join(dir, "metrics.ndjson"))
	require.NoError(t, err)
	a, err := approval.Open(filepath.Join(dir, "approvals.ndjson"))
	require.NoError(t, err)
	ks := killswitch.New(filepath.Join(dir, "runtime_kill_switch.json"), time.Minute, nil)
	g := policy.New(gateCfg, policy.NewLocalDailyCounter(), func() bool { return false })

	return &testHarness{queue: q, ledger: l, approvals: a, killswitch: ks, gate: g}
}

func (h *testHarness) enqueue(t *testing.T, jobID, trackingID string, now time.Time) string {
	t.Helper()
	_, fp, err := approval.NewToken()
	require.NoError(t, err)
	require.NoError(t, h.approvals.Create(domain.ApprovalRecord{
		Fingerprint: fp,
		DraftID:     "draft-" + jobID,
		ApprovedBy:  "alice",
		ToEmail:     "person@example.com",
	}))
	job := domain.SendJob{
		JobID:               jobID,
		CreatedAt:            now,
		Status:               domain.StatusQueued,
		DraftID:              "draft-" + jobID,
		TrackingID:           trackingID,
		ToDomain:             "example.com",
		ApprovalFingerprint:  fp,
		NextAttemptAt:        now,
	}
	require.NoError(t, h.queue.Put(job))
	return fp
}

func TestHappyPathSend(t *testing.T) {
	h := newHarness(t, policy.Config{EnableAutoSend: true, MaxPerDay: 100})
	now := time.Now().UTC()
	h.enqueue(t, "job-1", "track-1", now)

	provider := &fakeProvider{result: SendResult{MessageID: "M1", ThreadID: "T1"}}
	d := New(h.queue, h.ledger, h.approvals, h.gate, h.killswitch, provider)
	d.Now = func() time.Time { return now }

	ran, err := d.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)

	job, ok := h.queue.Get("job-1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusSent, job.Status)
	assert.Equal(t, "M1", job.MessageID)

	events := h.ledger.AllEvents()
	var sawSuccess bool
	for _, ev := range events {
		if ev.EventType == domain.AutoSendSuccess {
			sawSuccess = true
		}
	}
	assert.True(t, sawSuccess)
}

func TestGmail429Backoff(t *testing.T) {
	h := newHarness(t, policy.Config{EnableAutoSend: true, MaxPerDay: 100})
	now := time.Now().UTC()
	h.enqueue(t, "job-1", "track-1", now)

	provider := &fakeProvider{err: &ProviderError{Code: domain.ErrGmail429, Message: "rate limited"}}
	d := New(h.queue, h.ledger, h.approvals, h.gate, h.killswitch, provider)
	d.Now = func() time.Time { return now }

	_, err := d.Tick(context.Background())
	require.NoError(t, err)

	job, ok := h.queue.Get("job-1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusQueued, job.Status)
	assert.Equal(t, 1, job.Attempts)
	assert.GreaterOrEqual(t, job.NextAttemptAt, now.Add(240*time.Second))
	assert.LessOrEqual(t, job.NextAttemptAt, now.Add(360*time.Second))
}

func TestMissingApprovalTerminatesAsPolicy(t *testing.T) {
	h := newHarness(t, policy.Config{EnableAutoSend: true, MaxPerDay: 100})
	now := time.Now().UTC()

	job := domain.SendJob{
		JobID:               "job-1",
		CreatedAt:            now,
		Status:               domain.StatusQueued,
		DraftID:              "draft-1",
		TrackingID:           "track-1",
		ApprovalFingerprint:  "deadbeef",
		NextAttemptAt:        now,
	}
	require.NoError(t, h.queue.Put(job))

	provider := &fakeProvider{result: SendResult{MessageID: "M1"}}
	d := New(h.queue, h.ledger, h.approvals, h.gate, h.killswitch, provider)
	d.Now = func() time.Time { return now }

	_, err := d.Tick(context.Background())
	require.NoError(t, err)

	got, ok := h.queue.Get("job-1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, domain.ErrPolicy, got.LastErrorCode)
}

func TestGateDenialBlocksAndTerminates(t *testing.T) {
	h := newHarness(t, policy.Config{EnableAutoSend: false})
	now := time.Now().UTC()
	h.enqueue(t, "job-1", "track-1", now)

	provider := &fakeProvider{result: SendResult{MessageID: "M1"}}
	d := New(h.queue, h.ledger, h.approvals, h.gate, h.killswitch, provider)
	d.Now = func() time.Time { return now }

	_, err := d.Tick(context.Background())
	require.NoError(t, err)

	got, ok := h.queue.Get("job-1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusFailed, got.Status)
	assert.Equal(t, domain.ErrGate, got.LastErrorCode)

	var sawBlocked bool
	for _, ev := range h.ledger.AllEvents() {
		if ev.EventType == domain.AutoSendBlocked {
			sawBlocked = true
		}
	}
	assert.True(t, sawBlocked)
}

func TestDispatcherNoOpWhenKillSwitchEnabled(t *testing.T) {
	h := newHarness(t, policy.Config{EnableAutoSend: true, MaxPerDay: 100})
	now := time.Now().UTC()
	h.enqueue(t, "job-1", "track-1", now)
	require.NoError(t, h.killswitch.SetEnabled(context.Background(), "incident", "ops"))

	provider := &fakeProvider{result: SendResult{MessageID: "M1"}}
	d := New(h.queue, h.ledger, h.approvals, h.gate, h.killswitch, provider)
	d.Now = func() time.Time { return now }

	ran, err := d.Tick(context.Background())
	require.NoError(t, err)
	assert.False(t, ran)

	job, ok := h.queue.Get("job-1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusQueued, job.Status, "the job must not be touched while the kill switch is active")
}
