// Package experiment implements the experiment aggregator (C10) and the
// safety check (C11): windowed reduction of the ledger into per-day and
// total metrics per experiment, and the rule-based ok/freeze/rollback/review
// evaluation built on top of it.
package experiment

import (
	"time"

	"github.com/ignite/outreach-control/internal/domain"
)

// DayRollup is one UTC day's worth of events for an experiment, mirrored to
// the report sink by the daemon's safety loop.
type DayRollup struct {
	Date     time.Time
	Attempts int
	Success  int
	Blocked  int
	Replies  int
}

// Aggregate is the full windowed reduction of the ledger for one experiment.
type Aggregate struct {
	TotalSent        int
	TotalReplies     int
	ReplyRate        *float64
	DaysSinceLastReply *int
	DaysSinceStart   int
	Days             []DayRollup // ascending by date
}

// Compute filters events to those whose template_id belongs to cfg and
// computes the rollups described in §4.9. now is injected for determinism.
func Compute(events []domain.Event, cfg domain.ExperimentConfig, now time.Time) Aggregate {
	templateIDs := cfg.TemplateIDs()
	byDay := make(map[string]*DayRollup)

	var totalSent, totalReplies int
	var lastReplyAt *time.Time

	for _, ev := range events {
		if !templateIDs[ev.TemplateID] {
			continue
		}
		day := dayKey(ev.Timestamp)
		roll, ok := byDay[day]
		if !ok {
			roll = &DayRollup{Date: dayStart(ev.Timestamp)}
			byDay[day] = roll
		}

		switch ev.EventType {
		case domain.AutoSendAttempt:
			roll.Attempts++
		case domain.AutoSendSuccess:
			roll.Success++
			totalSent++
		case domain.AutoSendBlocked:
			roll.Blocked++
		case domain.ReplyDetected:
			roll.Replies++
			totalReplies++
			t := ev.Timestamp
			if lastReplyAt == nil || t.After(*lastReplyAt) {
				lastReplyAt = &t
			}
		}
	}

	days := make([]DayRollup, 0, len(byDay))
	for _, roll := range byDay {
		days = append(days, *roll)
	}
	sortDaysAscending(days)

	agg := Aggregate{
		TotalSent:      totalSent,
		TotalReplies:   totalReplies,
		DaysSinceStart: daysBetween(cfg.StartAt, now),
		Days:           days,
	}

	if totalSent > 0 {
		rate := float64(totalReplies) / float64(totalSent)
		agg.ReplyRate = &rate
	}
	if lastReplyAt != nil {
		d := daysBetween(*lastReplyAt, now)
		agg.DaysSinceLastReply = &d
	}

	return agg
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func dayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(earlier, later time.Time) int {
	d := dayStart(later).Sub(dayStart(earlier))
	return int(d.Hours() / 24)
}

func sortDaysAscending(days []DayRollup) {
	for i := 1; i < len(days); i++ {
		for j := i; j > 0 && days[j].Date.Before(days[j-1].Date); j-- {
			days[j], days[j-1] = days[j-1], days[j]
		}
	}
}
