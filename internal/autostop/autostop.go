// Package autostop implements the auto-stop controller (C12): per tick,
// aggregate the ledger over a rolling window, evaluate reply/blocked rate
// thresholds with consecutive-bad-day gating, and idempotently activate the
// runtime kill switch when the system looks unhealthy. This is the single
// backpressure loop of the system — resumption is always manual (C13).
package autostop

import (
	"context"
	"strconv"
	"time"

	"github.com/ignite/outreach-control/internal/domain"
	"github.com/ignite/outreach-control/internal/experiment"
	"github.com/ignite/outreach-control/internal/killswitch"
	"github.com/ignite/outreach-control/internal/ledger"
	"github.com/ignite/outreach-control/internal/pkg/logger"
)

// Result is the outcome of one controller tick, returned mainly for
// logging and tests.
type Result struct {
	Stopped            bool
	Reason             string
	ConsecutiveBadDays int
}

// Controller runs the auto-stop tick.
type Controller struct {
	Ledger     *ledger.Ledger
	KillSwitch *killswitch.Switch
	Config     domain.AutoStopConfig
	Now        func() time.Time
}

func New(l *ledger.Ledger, ks *killswitch.Switch, cfg domain.AutoStopConfig) *Controller {
	return &Controller{Ledger: l, KillSwitch: ks, Config: cfg, Now: func() time.Time { return time.Now().UTC() }}
}

// Tick runs one evaluation. Every ledger event inside the window is
// considered, whatever its experiment (auto-stop is not scoped to a single
// experiment; it is the global backpressure loop).
func (c *Controller) Tick(ctx context.Context) (Result, error) {
	enabled, err := c.KillSwitch.IsEnabled(ctx)
	if err != nil {
		return Result{}, err
	}
	if enabled {
		return Result{Stopped: false, Reason: "already stopped"}, nil
	}

	now := c.Now()
	windowStart := now.AddDate(0, 0, -c.Config.WindowDays)
	events := c.Ledger.EventsSince(func(ev domain.Event) bool { return !ev.Timestamp.Before(windowStart) })

	days := rollupByDay(events)

	var totalSuccess, totalBlocked, totalReplies int
	for _, d := range days {
		totalSuccess += d.success
		totalBlocked += d.blocked
		totalReplies += d.replies
	}

	if totalSuccess < c.Config.MinSentTotal {
		return Result{Stopped: false, Reason: "Insufficient data"}, nil
	}

	replyRate := float64(totalReplies) / float64(totalSuccess)
	blockedRate := float64(totalBlocked) / float64(totalSuccess+totalBlocked)

	consecutiveBadDays := countConsecutiveBadDays(days, now, c.Config)

	windowBad := replyRate < c.Config.ReplyRateMin || blockedRate > c.Config.BlockedRateMax
	if !windowBad || consecutiveBadDays < c.Config.ConsecutiveDays {
		return Result{Stopped: false, ConsecutiveBadDays: consecutiveBadDays}, nil
	}

	reason := "Auto-stop: reply_rate/blocked_rate breached for " + strconv.Itoa(consecutiveBadDays) + " consecutive days"
	if err := c.KillSwitch.SetEnabled(ctx, reason, "auto_stop"); err != nil {
		return Result{}, err
	}
	if _, err := c.Ledger.Append(domain.Event{
		EventType: domain.OpsStopSend,
		Meta:      map[string]interface{}{"reason": reason},
	}); err != nil {
		logger.Error("autostop: failed to append OPS_STOP_SEND", "error", err.Error())
	}

	return Result{Stopped: true, Reason: reason, ConsecutiveBadDays: consecutiveBadDays}, nil
}

type dayCounts struct {
	date    time.Time
	success int
	blocked int
	replies int
}

func rollupByDay(events []domain.Event) map[string]*dayCounts {
	byDay := make(map[string]*dayCounts)
	for _, ev := range events {
		key := dayKey(ev.Timestamp)
		d, ok := byDay[key]
		if !ok {
			d = &dayCounts{date: dayStart(ev.Timestamp)}
			byDay[key] = d
		}
		switch ev.EventType {
		case domain.AutoSendSuccess:
			d.success++
		case domain.AutoSendBlocked:
			d.blocked++
		case domain.ReplyDetected:
			d.replies++
		}
	}
	return byDay
}

// countConsecutiveBadDays walks backward from today, counting days whose
// reply_rate < reply_rate_min or blocked_rate > blocked_rate_max, stopping
// at the first non-bad day (§4.11 step 4). A day with no data is not bad —
// it simply has no opinion, so it stops the count like any good day would.
func countConsecutiveBadDays(days map[string]*dayCounts, now time.Time, cfg domain.AutoStopConfig) int {
	count := 0
	for i := 0; ; i++ {
		date := dayStart(now).AddDate(0, 0, -i)
		d, ok := days[date.Format("2006-01-02")]
		if !ok {
			break
		}
		total := d.success + d.blocked
		if total == 0 {
			break
		}
		replyRate := float64(d.replies) / float64(d.success)
		if d.success == 0 {
			replyRate = 0
		}
		blockedRate := float64(d.blocked) / float64(total)
		bad := replyRate < cfg.ReplyRateMin || blockedRate > cfg.BlockedRateMax
		if !bad {
			break
		}
		count++
		if i > 365 { // defensive bound; window_days is never this large
			break
		}
	}
	return count
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func dayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
