// Package reaper implements the stale-lease reclaimer (C8): finds jobs
// whose in_progress lease has gone stale, counts the reap itself as an
// attempt, and requeues or dead-letters — safe to run concurrently with the
// dispatcher because every mutation re-reads the latest snapshot first.
package reaper

import (
	"time"

	"github.com/ignite/outreach-control/internal/domain"
	"github.com/ignite/outreach-control/internal/pkg/logger"
	"github.com/ignite/outreach-control/internal/queue"
)

// Reaper reclaims stale in_progress jobs.
type Reaper struct {
	Queue        *queue.Store
	Retry        queue.RetryPolicy
	StaleMinutes int
	Now          func() time.Time
}

// New wires a Reaper with the default retry policy and wall-clock time.
func New(q *queue.Store, staleMinutes int) *Reaper {
	return &Reaper{
		Queue:        q,
		Retry:        queue.DefaultRetryPolicy(),
		StaleMinutes: staleMinutes,
		Now:          func() time.Time { return time.Now().UTC() },
	}
}

// Sweep runs one reap pass and returns the number of jobs reclaimed.
func (r *Reaper) Sweep() (int, error) {
	now := r.Now()
	stale := r.Queue.FindStaleJobs(now, r.StaleMinutes)

	reclaimed := 0
	for _, candidate := range stale {
		// Re-read the latest snapshot: the dispatcher may have completed
		// this job since FindStaleJobs took its snapshot.
		latest, ok := r.Queue.Get(candidate.JobID)
		if !ok || latest.Status != domain.StatusInProgress {
			continue
		}

		if err := r.reap(latest, now); err != nil {
			return reclaimed, err
		}
		reclaimed++
	}
	return reclaimed, nil
}

func (r *Reaper) reap(job domain.SendJob, now time.Time) error {
	newAttempts := job.Attempts + 1
	job.Attempts = newAttempts
	job.InProgressStartedAt = nil

	if newAttempts > r.Retry.MaxAttempts {
		job.Status = domain.StatusDeadLetter
		job.LastErrorCode = domain.ErrUnknown
		logger.Warn("reaper: dead-lettering exhausted job", "job_id", job.JobID, "attempts", newAttempts)
		return r.Queue.Put(job)
	}

	job.Status = domain.StatusQueued
	job.NextAttemptAt = now.Add(r.Retry.Backoff(newAttempts, domain.ErrUnknown))
	logger.Info("reaper: requeued stale job", "job_id", job.JobID, "attempts", newAttempts)
	return r.Queue.Put(job)
}
