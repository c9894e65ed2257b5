package models

import (
	"time"
)

// UsageCharge marks minutes charged against one external resource (a
// transcription job). The unique (user_id, source_ref_id) pair plus the
// Refunded flag make refunds exact and exactly-once.
type UsageCharge struct {
	ID          uint   `gorm:"primaryKey"`
	UserID      uint   `gorm:"not null;index:ux_usage_charges_user_source,unique,priority:1"`
	SourceRefID string `gorm:"size:191;not null;index:ux_usage_charges_user_source,unique,priority:2"`
	Minutes     int    `gorm:"not null"`
	Refunded    bool   `gorm:"not null;default:false"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
