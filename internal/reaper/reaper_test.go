package reaper

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-control/internal/domain"
	"github.com/ignite/outreach-control/internal/queue"
)

func TestSweepReclaimsStaleJob(t *testing.T) {
	q, err := queue.Open(filepath.Join(t.TempDir(), "send_queue.ndjson"))
	require.NoError(t, err)

	now := time.Now().UTC()
	started := now.Add(-40 * time.Minute)
	job := domain.SendJob{
		JobID:               "job-1",
		CreatedAt:            now.Add(-time.Hour),
		Status:               domain.StatusInProgress,
		InProgressStartedAt:  &started,
		Attempts:             1,
	}
	require.NoError(t, q.Put(job))

	r := New(q, 30)
	r.Now = func() time.Time { return now }

	n, err := r.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, ok := q.Get("job-1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusQueued, got.Status)
	assert.Equal(t, 2, got.Attempts)
	assert.Nil(t, got.InProgressStartedAt)
}

func TestSweepDeadLettersExhaustedJob(t *testing.T) {
	q, err := queue.Open(filepath.Join(t.TempDir(), "send_queue.ndjson"))
	require.NoError(t, err)

	now := time.Now().UTC()
	started := now.Add(-40 * time.Minute)
	job := domain.SendJob{
		JobID:               "job-1",
		CreatedAt:            now.Add(-time.Hour),
		Status:               domain.StatusInProgress,
		InProgressStartedAt:  &started,
		Attempts:             8,
	}
	require.NoError(t, q.Put(job))

	r := New(q, 30)
	r.Now = func() time.Time { return now }

	n, err := r.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, ok := q.Get("job-1")
	require.True(t, ok)
	assert.Equal(t, domain.StatusDeadLetter, got.Status)
	assert.Equal(t, 9, got.Attempts)
}

func TestSweepSkipsNonStaleJob(t *testing.T) {
	q, err := queue.Open(filepath.Join(t.TempDir(), "send_queue.ndjson"))
	require.NoError(t, err)

	now := time.Now().UTC()
	started := now.Add(-5 * time.Minute)
	job := domain.SendJob{
		JobID:               "job-1",
		CreatedAt:            now,
		Status:               domain.StatusInProgress,
		InProgressStartedAt:  &started,
	}
	require.NoError(t, q.Put(job))

	r := New(q, 30)
	r.Now = func() time.Time { return now }

	n, err := r.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSweepIsNoOpOnSecondPass(t *testing.T) {
	q, err := queue.Open(filepath.Join(t.TempDir(), "send_queue.ndjson"))
	require.NoError(t, err)

	now := time.Now().UTC()
	started := now.Add(-40 * time.Minute)
	job := domain.SendJob{
		JobID:               "job-1",
		CreatedAt:            now.Add(-time.Hour),
		Status:               domain.StatusInProgress,
		InProgressStartedAt:  &started,
	}
	require.NoError(t, q.Put(job))

	r := New(q, 30)
	r.Now = func() time.Time { return now }

	_, err = r.Sweep()
	require.NoError(t, err)

	n, err := r.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 0, n, "the job is now queued, not in_progress, so a second pass must not touch it")
}

func TestSweepSkipsJobCompletedSinceSnapshot(t *testing.T) {
	q, err := queue.Open(filepath.Join(t.TempDir(), "send_queue.ndjson"))
	require.NoError(t, err)

	now := time.Now().UTC()
	started := now.Add(-40 * time.Minute)
	job := domain.SendJob{
		JobID:               "job-1",
		CreatedAt:            now.Add(-time.Hour),
		Status:               domain.StatusInProgress,
		InProgressStartedAt:  &started,
	}
	require.NoError(t, q.Put(job))

	// the dispatcher completes the job before the sweep runs, so its latest
	// snapshot is sent and FindStaleJobs no longer returns it
	job.Status = domain.StatusSent
	job.InProgressStartedAt = nil
	require.NoError(t, q.Put(job))

	r := New(q, 30)
	r.Now = func() time.Time { return now }

	n, err := r.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 0, n, "a job the dispatcher already completed must not be reclaimed")
}
