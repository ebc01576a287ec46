package ops

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-control/internal/approval"
	"github.com/ignite/outreach-control/internal/domain"
	"github.com/ignite/outreach-control/internal/experiment"
	"github.com/ignite/outreach-control/internal/killswitch"
	"github.com/ignite/outreach-control/internal/ledger"
	"github.com/ignite/outreach-control/internal/queue"
)

func newSurface(t *testing.T) *Surface {
	t.Helper()
	dir := t.TempDir()
	l, err := ledger.Open(filepath.Join(dir, "metrics.ndjson"))
	require.NoError(t, err)
	q, err := queue.Open(filepath.Join(dir, "send_queue.ndjson"))
	require.NoError(t, err)
	ks := killswitch.New(filepath.Join(dir, "runtime_kill_switch.json"), time.Minute, nil)
	a, err := approval.Open(filepath.Join(dir, "approvals.ndjson"))
	require.NoError(t, err)
	exp, err := experiment.OpenRegistry(filepath.Join(dir, "experiments.json"))
	require.NoError(t, err)

	id := 0
	return New(l, q, ks, a, exp, func() string {
		id++
		return fmt.Sprintf("job-%d", id)
	})
}

func TestStopSendThenResume(t *testing.T) {
	s := newSurface(t)
	ctx := context.Background()

	require.NoError(t, s.StopSend(ctx, "incident", "ops-alice"))
	state, err := s.StopStatus(ctx)
	require.NoError(t, err)
	assert.True(t, state.Enabled)

	require.NoError(t, s.ResumeSend(ctx, "resolved", "ops-alice"))
	state, err = s.StopStatus(ctx)
	require.NoError(t, err)
	assert.False(t, state.Enabled)
}

func TestApproveSendTwoPhase(t *testing.T) {
	s := newSurface(t)
	ctx := context.Background()

	token, err := s.ApproveSendPhase1(ctx, "draft-1", "alice", "quarterly outreach", "", "person@example.com", true)
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	job, err := s.ApproveSendPhase2(ctx, token, "track-1", "company-1", "tpl-a", domain.VariantA, "example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusQueued, job.Status)
	assert.Equal(t, approval.Fingerprint(token), job.ApprovalFingerprint)
}

func TestApproveSendPhase1WithoutExecuteStopsSend(t *testing.T) {
	s := newSurface(t)
	ctx := context.Background()

	_, err := s.ApproveSendPhase1(ctx, "draft-1", "alice", "reason", "", "person@example.com", false)
	require.NoError(t, err)

	state, err := s.StopStatus(ctx)
	require.NoError(t, err)
	assert.True(t, state.Enabled)
}

func TestRollbackPausesExperiment(t *testing.T) {
	s := newSurface(t)
	ctx := context.Background()

	require.NoError(t, s.Experiments.Put(domain.ExperimentConfig{
		ExperimentID: "exp-1",
		Status:       domain.ExperimentRunning,
		Templates:    []domain.TemplateVariant{{TemplateID: "tpl-a", Status: domain.ExperimentRunning}},
	}))

	result, err := s.Rollback(ctx, "exp-1", "stale replies", "ops-alice", true)
	require.NoError(t, err)
	assert.True(t, result.AlsoStopped)

	cfg, ok := s.Experiments.Get("exp-1")
	require.True(t, ok)
	assert.Equal(t, domain.ExperimentPaused, cfg.Status)
	assert.Equal(t, domain.ExperimentPaused, cfg.Templates[0].Status)

	state, err := s.StopStatus(ctx)
	require.NoError(t, err)
	assert.True(t, state.Enabled)
}
