package models

import (
	"time"
)

const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
)

const (
	PaymentKindPlan    = "plan"
	PaymentKindPackage = "package"
)

// Payment is one purchase attempt for a plan or a package. Amount is in
// tiyin (1/100 soum). The partial unique index ux_payments_pending enforces
// at most one pending payment per (user, kind, target) at a time.
type Payment struct {
	ID             uint    `gorm:"primaryKey"`
	PublicID       string  `gorm:"size:36;uniqueIndex;not null"`
	UserID         uint    `gorm:"not null;index;index:ux_payments_pending,unique,where:status = 'pending',priority:1"`
	Kind           string  `gorm:"size:16;not null;index:ux_payments_pending,priority:2"`
	TargetID       uint    `gorm:"not null;index:ux_payments_pending,priority:3"`
	Amount         int64   `gorm:"not null"`
	Provider       string  `gorm:"size:32;not null"`
	ProviderTxID   *string `gorm:"size:191"`
	RawPayloadJSON string  `gorm:"type:text"`
	Status         string  `gorm:"size:16;not null;default:'pending';index"`
	CreatedAt      time.Time
	CompletedAt    *time.Time
}
