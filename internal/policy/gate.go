// Package policy implements the multi-layer send-policy gate (C4): a pure
// query surface answering "is sending enabled?", "is `to` allowed?", and
// "is there budget remaining today?" in the fixed order the spec requires
// so that denial reasons are deterministic.
package policy

import (
	"context"
	"strconv"
	"strings"
)

// DenyReason is one of the gate's stable, user-facing denial codes.
type DenyReason string

const (
	ReasonNotEnabled        DenyReason = "not_enabled"
	ReasonKillSwitch        DenyReason = "kill_switch"
	ReasonNotInAllowlist    DenyReason = "not_in_allowlist"
	ReasonDailyLimitReached DenyReason = "daily_limit_reached"
)

// Decision is the result of a permission check.
type Decision struct {
	Allowed bool
	Reason  DenyReason
	Details string
}

// Config is the gate's static configuration (§4.4).
type Config struct {
	EnableAutoSend   bool
	AllowlistDomains []string
	AllowlistEmails  []string
	MaxPerDay        int
}

// Gate evaluates send permission. EnvKillSwitch is read fresh on every call
// since it can only change via process restart.
type Gate struct {
	cfg           Config
	counter       DailyCounter
	envKillSwitch func() bool
}

func New(cfg Config, counter DailyCounter, envKillSwitch func() bool) *Gate {
	return &Gate{cfg: cfg, counter: counter, envKillSwitch: envKillSwitch}
}

// CheckSendPermission evaluates checks in the spec's fixed order: env
// kill-switch -> enable flag -> allow-list -> daily rate limit. It does NOT
// consult the runtime kill switch (C5) — that composition happens one
// layer up, in the dispatcher.
func (g *Gate) CheckSendPermission(ctx context.Context, to string, day string) Decision {
	if g.envKillSwitch != nil && g.envKillSwitch() {
		return Decision{Allowed: false, Reason: ReasonKillSwitch, Details: "KILL_SWITCH environment variable is set"}
	}

	if !g.cfg.EnableAutoSend {
		return Decision{Allowed: false, Reason: ReasonNotEnabled, Details: "enable_auto_send is false"}
	}

	if !g.isAllowed(to) {
		return Decision{Allowed: false, Reason: ReasonNotInAllowlist, Details: "recipient does not match allowlist_domains or allowlist_emails"}
	}

	countBefore, allowed, err := g.counter.CheckAndIncrement(ctx, day, g.cfg.MaxPerDay)
	if err != nil {
		return Decision{Allowed: false, Reason: ReasonDailyLimitReached, Details: err.Error()}
	}
	if !allowed {
		return Decision{Allowed: false, Reason: ReasonDailyLimitReached, Details: "max_per_day reached: " + strconv.Itoa(countBefore) + "/" + strconv.Itoa(g.cfg.MaxPerDay)}
	}

	return Decision{Allowed: true}
}

func (g *Gate) isAllowed(to string) bool {
	if len(g.cfg.AllowlistDomains) == 0 && len(g.cfg.AllowlistEmails) == 0 {
		return true
	}

	lowerTo := strings.ToLower(to)
	for _, email := range g.cfg.AllowlistEmails {
		if strings.ToLower(email) == lowerTo {
			return true
		}
	}

	domain := domainOf(lowerTo)
	for _, d := range g.cfg.AllowlistDomains {
		if strings.ToLower(d) == domain {
			return true
		}
	}
	return false
}

func domainOf(email string) string {
	parts := strings.SplitN(email, "@", 2)
	if len(parts) != 2 {
		return ""
	}
	return parts[1]
}
