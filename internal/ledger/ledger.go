// Package ledger implements the append-only metrics event stream (C1):
// every DRAFT_CREATED, AUTO_SEND_*, SENT_DETECTED, REPLY_DETECTED, and
// OPS_* event the system ever records, plus the idempotency index that
// lets the reconciler and auto-stop controller be re-run safely.
package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/ignite/outreach-control/internal/domain"
	"github.com/ignite/outreach-control/internal/pkg/logger"
)

// idempotencyKey is (tracking_id, event_type).
type idempotencyKey struct {
	TrackingID string
	EventType  domain.EventType
}

// Ledger is the in-memory view of metrics.ndjson plus the append handle.
// Safe for concurrent use.
type Ledger struct {
	mu     sync.RWMutex
	path   string
	events []domain.Event
	index  map[idempotencyKey]bool
}

// Open loads path (if it exists) and returns a Ledger ready to append.
// A torn last line (the process crashed mid-write) is discarded rather than
// failing the load.
func Open(path string) (*Ledger, error) {
	l := &Ledger{
		path:  path,
		index: make(map[idempotencyKey]bool),
	}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
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
		var ev domain.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			logger.Warn("ledger: discarding malformed line", "path", path, "line", lineNo)
			continue
		}
		l.events = append(l.events, ev)
		if domain.IsIdempotent(ev.EventType) {
			l.index[idempotencyKey{ev.TrackingID, ev.EventType}] = true
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ledger: scan %s: %w", path, err)
	}
	return l, nil
}

// Append writes ev as a new line, assigning EventID and Timestamp if unset,
// flushes to disk, and updates the in-memory index. Returns an error if ev
// violates the idempotency constraint for its event type.
func (l *Ledger) Append(ev domain.Event) (domain.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = nowUTC()
	}

	key := idempotencyKey{ev.TrackingID, ev.EventType}
	if domain.IsIdempotent(ev.EventType) && l.index[key] {
		return domain.Event{}, fmt.Errorf("ledger: %s already recorded for tracking_id %s", ev.EventType, ev.TrackingID)
	}

	line, err := json.Marshal(ev)
	if err != nil {
		return domain.Event{}, fmt.Errorf("ledger: marshal event: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return domain.Event{}, fmt.Errorf("ledger: open for append: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return domain.Event{}, fmt.Errorf("ledger: write: %w", err)
	}
	if err := f.Sync(); err != nil {
		return domain.Event{}, fmt.Errorf("ledger: fsync: %w", err)
	}

	l.events = append(l.events, ev)
	if domain.IsIdempotent(ev.EventType) {
		l.index[key] = true
	}
	return ev, nil
}

// HasEvent reports whether an idempotent event type is already indexed for
// tracking_id. Always false for non-idempotent event types — those are
// allowed to repeat and are not indexed.
func (l *Ledger) HasEvent(trackingID string, eventType domain.EventType) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.index[idempotencyKey{trackingID, eventType}]
}

// AllEvents returns a copy of every event in append order.
func (l *Ledger) AllEvents() []domain.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Event, len(l.events))
	copy(out, l.events)
	return out
}

// EventsSince returns the events for which since returns true, in append order.
func (l *Ledger) EventsSince(since func(domain.Event) bool) []domain.Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []domain.Event
	for _, ev := range l.events {
		if since(ev) {
			out = append(out, ev)
		}
	}
	return out
}
