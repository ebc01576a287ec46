package experiment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ignite/outreach-control/internal/domain"
)

func cfgFixture() domain.ExperimentConfig {
	return domain.ExperimentConfig{
		ExperimentID: "exp-1",
		Status:       domain.ExperimentRunning,
		Templates: []domain.TemplateVariant{
			{TemplateID: "tpl-a", Variant: domain.VariantA},
			{TemplateID: "tpl-b", Variant: domain.VariantB},
		},
		FreezeOnLowN: true,
		RollbackRule: domain.RollbackRule{
			MinSentTotal:   30,
			MaxDaysNoReply: 7,
			MinReplyRate:   0.05,
		},
	}
}

func sendEvent(templateID string, at time.Time) domain.Event {
	return domain.Event{EventType: domain.AutoSendSuccess, TemplateID: templateID, Timestamp: at}
}

func replyEvent(templateID string, at time.Time) domain.Event {
	return domain.Event{EventType: domain.ReplyDetected, TemplateID: templateID, Timestamp: at}
}

func TestAggregateFiltersByTemplate(t *testing.T) {
	now := time.Now().UTC()
	cfg := cfgFixture()
	events := []domain.Event{
		sendEvent("tpl-a", now),
		sendEvent("other-template", now), // must be excluded
	}
	agg := Compute(events, cfg, now)
	assert.Equal(t, 1, agg.TotalSent)
}

func TestAggregateReplyRate(t *testing.T) {
	now := time.Now().UTC()
	cfg := cfgFixture()
	var events []domain.Event
	for i := 0; i < 100; i++ {
		events = append(events, sendEvent("tpl-a", now))
	}
	events = append(events, replyEvent("tpl-a", now))

	agg := Compute(events, cfg, now)
	assert.Equal(t, 100, agg.TotalSent)
	assert.Equal(t, 1, agg.TotalReplies)
	assert.InDelta(t, 0.01, *agg.ReplyRate, 0.0001)
}

func TestSafetyRollbackBothReasons(t *testing.T) {
	now := time.Now().UTC()
	cfg := cfgFixture()
	cfg.StartAt = now.AddDate(0, 0, -10)

	var events []domain.Event
	for i := 0; i < 100; i++ {
		events = append(events, sendEvent("tpl-a", now.AddDate(0, 0, -9)))
	}
	events = append(events, replyEvent("tpl-a", now.AddDate(0, 0, -8)))

	agg := Compute(events, cfg, now)
	result := CheckSafety(agg, cfg)

	assert.Equal(t, ActionRollbackRecommended, result.Action)
	assert.Len(t, result.Reasons, 2, "both stale-replies and low-rate reasons must be present")
}

func TestSafetyFreezeOnLowN(t *testing.T) {
	now := time.Now().UTC()
	cfg := cfgFixture()
	cfg.StartAt = now.AddDate(0, 0, -10)

	agg := Compute(nil, cfg, now)
	result := CheckSafety(agg, cfg)
	assert.Equal(t, ActionFreezeRecommended, result.Action)
}

func TestSafetyFreezeSkippedBeforeSevenDays(t *testing.T) {
	now := time.Now().UTC()
	cfg := cfgFixture()
	cfg.StartAt = now.AddDate(0, 0, -3)

	agg := Compute(nil, cfg, now)
	result := CheckSafety(agg, cfg)
	assert.Equal(t, ActionOK, result.Action)
}

func TestSafetyOKWhenHealthy(t *testing.T) {
	now := time.Now().UTC()
	cfg := cfgFixture()
	cfg.StartAt = now.AddDate(0, 0, -10)

	var events []domain.Event
	for i := 0; i < 100; i++ {
		events = append(events, sendEvent("tpl-a", now.AddDate(0, 0, -1)))
	}
	for i := 0; i < 10; i++ {
		events = append(events, replyEvent("tpl-a", now))
	}

	agg := Compute(events, cfg, now)
	result := CheckSafety(agg, cfg)
	assert.Equal(t, ActionOK, result.Action)
}
