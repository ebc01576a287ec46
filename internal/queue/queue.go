// Package queue implements the send-queue engine (C2): an append-only
// NDJSON snapshot log with an in-memory latest-snapshot-wins map, the
// SendJob FSM, and the lookups the dispatcher and reaper need.
package queue

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/ignite/outreach-control/internal/domain"
	"github.com/ignite/outreach-control/internal/pkg/logger"
)

// Store holds the latest snapshot of every job, backed by an append-only
// NDJSON file. Safe for concurrent use.
type Store struct {
	mu   sync.RWMutex
	path string
	jobs map[string]domain.SendJob
}

// Open loads path (if present) keeping, for each job_id, only the last
// valid snapshot encountered. Malformed lines are skipped.
func Open(path string) (*Store, error) {
	s := &Store{path: path, jobs: make(map[string]domain.SendJob)}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("queue: open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var job domain.SendJob
		if err := json.Unmarshal(line, &job); err != nil {
			logger.Warn("queue: discarding malformed snapshot", "path", path, "line", lineNo)
			continue
		}
		s.jobs[job.JobID] = job
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("queue: scan %s: %w", path, err)
	}
	return s, nil
}

// Put writes job as a fresh snapshot, overwriting the in-memory latest
// version. Every mutation to a job must go through Put.
func (s *Store) Put(job domain.SendJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job.LastUpdatedAt = time.Now().UTC()

	line, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("queue: marshal job %s: %w", job.JobID, err)
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("queue: open for append: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("queue: write: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("queue: fsync: %w", err)
	}

	s.jobs[job.JobID] = job
	return nil
}

// Get returns the latest snapshot for jobID.
func (s *Store) Get(jobID string) (domain.SendJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	return job.Clone(), ok
}

// FindNextReadyJob returns a job with status=queued and next_attempt_at<=now,
// or false if none exist. Ties are broken FIFO by created_at ascending —
// no ordering is promised across distinct next_attempt_at values, but
// within the ready set this makes behaviour deterministic for operators
// and tests alike.
func (s *Store) FindNextReadyJob(now time.Time) (domain.SendJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ready []domain.SendJob
	for _, job := range s.jobs {
		if job.Status == domain.StatusQueued && !job.NextAttemptAt.After(now) {
			ready = append(ready, job)
		}
	}
	if len(ready) == 0 {
		return domain.SendJob{}, false
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].CreatedAt.Before(ready[j].CreatedAt) })
	return ready[0].Clone(), true
}

// FindStaleJobs returns in_progress jobs whose lease has run longer than
// staleMinutes, sorted oldest first.
func (s *Store) FindStaleJobs(now time.Time, staleMinutes int) []domain.SendJob {
	s.mu.RLock()
	defer s.mu.RUnlock()

	threshold := time.Duration(staleMinutes) * time.Minute
	var stale []domain.SendJob
	for _, job := range s.jobs {
		if job.Status != domain.StatusInProgress || job.InProgressStartedAt == nil {
			continue
		}
		if now.Sub(*job.InProgressStartedAt) >= threshold {
			stale = append(stale, job)
		}
	}
	sort.Slice(stale, func(i, j int) bool {
		return stale[i].InProgressStartedAt.Before(*stale[j].InProgressStartedAt)
	})
	return stale
}

// FindByDraftID returns the job enqueued for draftID, if any — used to
// prevent double-enqueueing the same draft.
func (s *Store) FindByDraftID(draftID string) (domain.SendJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, job := range s.jobs {
		if job.DraftID == draftID {
			return job.Clone(), true
		}
	}
	return domain.SendJob{}, false
}

// All returns every job snapshot, for reporting/status verbs.
func (s *Store) All() []domain.SendJob {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SendJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
