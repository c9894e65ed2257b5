package models

import (
	"time"
)

const (
	SubscriptionStatusActive   = "active"
	SubscriptionStatusInactive = "inactive"
)

// Subscription holds a user's per-cycle minute quota plus carried-over
// bonus minutes. MinutesUsed is reset only by a cycle rollover;
// BonusMinutes is never reset by rollover and never negative.
type Subscription struct {
	ID              uint `gorm:"primaryKey"`
	UserID          uint `gorm:"uniqueIndex;not null"`
	PlanID          uint `gorm:"not null;index"`
	CycleStart      time.Time
	CycleEnd        time.Time
	MinutesIncluded int    `gorm:"not null"`
	MinutesUsed     int    `gorm:"not null;default:0"`
	BonusMinutes    int    `gorm:"not null;default:0"`
	Status          string `gorm:"size:32;default:'active'"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
