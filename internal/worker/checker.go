package worker

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"transkript-bot/internal/gateway"
	"transkript-bot/internal/models"
	"transkript-bot/internal/notify"
	"transkript-bot/internal/repository"
)

// lowMinutesThreshold triggers a warning when a user's total available
// minutes drop below it. One warning per cycle, deduplicated in Redis.
const lowMinutesThreshold = 10

type Checker struct {
	Repo     repository.Repository
	Gateway  *gateway.Service
	Redis    *redis.Client
	Notifier notify.Notifier
	Log      *log.Logger
}

func NewChecker(repo repository.Repository, g *gateway.Service, rdb *redis.Client, n notify.Notifier, logger *log.Logger) *Checker {
	if logger == nil {
		logger = log.Default()
	}
	return &Checker{Repo: repo, Gateway: g, Redis: rdb, Notifier: n, Log: logger}
}

func (c *Checker) Start() {
	ticker := time.NewTicker(1 * time.Hour)
	c.Log.Println("Background billing worker started")

	// Run once at start
	c.runCycle()

	for range ticker.C {
		c.runCycle()
	}
}

func (c *Checker) runCycle() {
	c.Log.Println("Running billing check cycle...")

	// 1. Cancel gateway transactions stuck in CREATED past the timeout.
	cancelled, err := c.Gateway.SweepExpired()
	if err != nil {
		c.Log.Printf("Error sweeping expired transactions: %v", err)
	} else if cancelled > 0 {
		c.Log.Printf("Cancelled %d timed-out transactions", cancelled)
	}

	// 2. Warn users running low on minutes, once per cycle.
	c.warnLowMinutes()
}

func (c *Checker) warnLowMinutes() {
	ctx := context.Background()

	subs, err := c.Repo.ListSubscriptions()
	if err != nil {
		c.Log.Printf("Error listing subscriptions: %v", err)
		return
	}

	now := time.Now()
	for _, sub := range subs {
		remaining, warn := needsWarning(sub, now)
		if !warn {
			continue
		}

		key := fmt.Sprintf("notified_low_%d_%d", sub.UserID, sub.CycleStart.Unix())
		exists, _ := c.Redis.Exists(ctx, key).Result()
		if exists != 0 {
			continue
		}

		user, err := c.Repo.GetUserByID(sub.UserID)
		if err != nil {
			c.Log.Printf("Error loading user %d for low-minutes warning: %v", sub.UserID, err)
			continue
		}

		c.Notifier.MinutesLow(ctx, user.TelegramID, remaining)
		c.Redis.Set(ctx, key, "true", 35*24*time.Hour)
		c.Log.Printf("Sent low-minutes warning to user %d (%d left)", sub.UserID, remaining)
	}
}

// needsWarning reports whether a subscription is low on minutes. A cycle
// that already ended is skipped: its counters are stale until the next
// balance read rolls the cycle over.
func needsWarning(sub models.Subscription, now time.Time) (int, bool) {
	if !now.Before(sub.CycleEnd) {
		return 0, false
	}
	remaining := sub.MinutesIncluded - sub.MinutesUsed
	if remaining < 0 {
		remaining = 0
	}
	remaining += sub.BonusMinutes
	return remaining, remaining < lowMinutesThreshold
}
