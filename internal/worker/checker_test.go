package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"transkript-bot/internal/models"
)

func TestNeedsWarning(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	sub := func(included, used, bonus int, cycleEnd time.Time) models.Subscription {
		return models.Subscription{
			MinutesIncluded: included,
			MinutesUsed:     used,
			BonusMinutes:    bonus,
			CycleStart:      cycleEnd.AddDate(0, -1, 0),
			CycleEnd:        cycleEnd,
			Status:          models.SubscriptionStatusActive,
		}
	}
	future := now.Add(24 * time.Hour)
	past := now.Add(-24 * time.Hour)

	cases := []struct {
		name          string
		sub           models.Subscription
		wantRemaining int
		wantWarn      bool
	}{
		{"plenty left", sub(60, 10, 0, future), 50, false},
		{"low on plan minutes", sub(60, 55, 0, future), 5, true},
		{"bonus lifts above threshold", sub(60, 55, 30, future), 35, false},
		{"overdrawn clamps to bonus", sub(60, 70, 3, future), 3, true},
		{"exactly at threshold", sub(60, 50, 0, future), 10, false},
		{"expired cycle never warns", sub(60, 58, 0, past), 0, false},
		{"cycle ends right now never warns", sub(60, 58, 0, now), 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			remaining, warn := needsWarning(tc.sub, now)
			assert.Equal(t, tc.wantRemaining, remaining)
			assert.Equal(t, tc.wantWarn, warn)
		})
	}
}
