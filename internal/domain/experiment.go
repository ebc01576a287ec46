package domain

import "time"

// ExperimentStatus is an experiment's lifecycle stage.
type ExperimentStatus string

const (
	ExperimentDraft   ExperimentStatus = "draft"
	ExperimentRunning ExperimentStatus = "running"
	ExperimentPaused  ExperimentStatus = "paused"
	ExperimentEnded   ExperimentStatus = "ended"
)

// TemplateVariant is one arm of an experiment.
type TemplateVariant struct {
	TemplateID string           `json:"template_id"`
	Variant    ABVariant        `json:"variant"`
	Status     ExperimentStatus `json:"status"`
}

// DecisionRule controls how the aggregator's reply-rate comparison is judged
// statistically significant. Carried through from the registry but not
// evaluated by the safety check itself, which uses the simpler
// RollbackRule thresholds.
type DecisionRule struct {
	Alpha  float64 `json:"alpha"`
	MinLift float64 `json:"min_lift"`
}

// RollbackRule is the threshold set the safety check (C11) evaluates.
type RollbackRule struct {
	MinSentTotal    int     `json:"min_sent_total"`
	MaxDaysNoReply  int     `json:"max_days_no_reply"`
	MinReplyRate    float64 `json:"min_reply_rate"`
}

// ExperimentConfig is one A/B trial, held in the experiments.json registry.
type ExperimentConfig struct {
	ExperimentID      string            `json:"experiment_id"`
	Status            ExperimentStatus  `json:"status"`
	StartAt           time.Time         `json:"start_at"`
	Templates         []TemplateVariant `json:"templates"`
	DecisionRule      DecisionRule      `json:"decision_rule"`
	MinSentPerVariant int               `json:"min_sent_per_variant"`
	RollbackRule      RollbackRule      `json:"rollback_rule"`
	FreezeOnLowN      bool              `json:"freeze_on_low_n"`
}

// TemplateIDs returns the set of template_id values belonging to the
// experiment, used by the aggregator to filter the ledger.
func (e ExperimentConfig) TemplateIDs() map[string]bool {
	out := make(map[string]bool, len(e.Templates))
	for _, t := range e.Templates {
		out[t.TemplateID] = true
	}
	return out
}
