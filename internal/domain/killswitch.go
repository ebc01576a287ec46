package domain

import "time"

// KillSwitchState is the full contents of the runtime kill-switch file.
// Absence of the file means disabled.
type KillSwitchState struct {
	Enabled bool      `json:"enabled"`
	Reason  string    `json:"reason"`
	SetBy   string    `json:"set_by"`
	SetAt   time.Time `json:"set_at"`
}

// AutoStopConfig is the auto-stop controller's threshold set (§3, §4.11).
type AutoStopConfig struct {
	WindowDays      int     `json:"window_days"`
	MinSentTotal    int     `json:"min_sent_total"`
	ReplyRateMin    float64 `json:"reply_rate_min"`
	BlockedRateMax  float64 `json:"blocked_rate_max"`
	ConsecutiveDays int     `json:"consecutive_days"`
}
