package experiment

import "github.com/ignite/outreach-control/internal/domain"

// Action is the safety check's recommendation (C11).
type Action string

const (
	ActionOK                 Action = "ok"
	ActionFreezeRecommended  Action = "freeze_recommended"
	ActionRollbackRecommended Action = "rollback_recommended"
	ActionReviewRecommended  Action = "review_recommended"
)

// SafetyResult is the outcome of evaluating a running experiment.
type SafetyResult struct {
	Action  Action
	Reasons []string
}

// CheckSafety evaluates the rules in §4.10, in order, accumulating reasons.
// The strongest action wins — rollback outranks freeze, and the last rule
// to fire decides the final action because rollback is evaluated after
// freeze (rules 2 and 3 only apply once sample size is no longer the
// concern rule 1 guards).
func CheckSafety(agg Aggregate, cfg domain.ExperimentConfig) SafetyResult {
	var reasons []string
	action := ActionOK

	if cfg.FreezeOnLowN && agg.DaysSinceStart >= 7 && agg.TotalSent < cfg.RollbackRule.MinSentTotal {
		reasons = append(reasons, "Low sample size: total_sent below min_sent_total after 7+ days")
		action = ActionFreezeRecommended
	}

	if agg.TotalSent >= cfg.RollbackRule.MinSentTotal {
		if agg.DaysSinceLastReply != nil && *agg.DaysSinceLastReply >= cfg.RollbackRule.MaxDaysNoReply {
			reasons = append(reasons, "Stale replies: no reply within max_days_no_reply")
			action = ActionRollbackRecommended
		}

		if agg.ReplyRate != nil && *agg.ReplyRate < cfg.RollbackRule.MinReplyRate {
			reasons = append(reasons, "Low reply rate: below min_reply_rate")
			action = ActionRollbackRecommended
		}
	}

	if len(reasons) == 0 {
		return SafetyResult{Action: ActionOK, Reasons: []string{"No issues detected"}}
	}
	return SafetyResult{Action: action, Reasons: reasons}
}

// CheckSafetyForMissing returns review_recommended for an experiment_id the
// registry doesn't know about.
func CheckSafetyForMissing() SafetyResult {
	return SafetyResult{Action: ActionReviewRecommended, Reasons: []string{"experiment not found"}}
}
