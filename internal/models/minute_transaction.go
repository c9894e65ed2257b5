package models

import (
	"time"
)

const (
	MinuteTxPlanActivation  = "plan_activation"
	MinuteTxPlanRenewal     = "plan_renewal"
	MinuteTxPackagePurchase = "package_purchase"
	MinuteTxUsageDebit      = "usage_debit"
	MinuteTxRefund          = "refund"
	MinuteTxAdminAdjustment = "admin_adjustment"
	MinuteTxPromoCredit     = "promo_credit"
)

// MinuteTransaction is one row of the append-only minutes audit log. Rows
// are never updated or deleted; PlanMinutesAfter/BonusMinutesAfter snapshot
// the balances right after the mutation that produced the row.
type MinuteTransaction struct {
	ID                uint      `gorm:"primaryKey"`
	UserID            uint      `gorm:"not null;index"`
	SubscriptionID    *uint     `gorm:"index"`
	SourceRefID       *string   `gorm:"size:191;index"`
	PackageID         *uint
	Type              string    `gorm:"size:32;not null;index"`
	MinutesDelta      int       `gorm:"not null"`
	PlanMinutesAfter  int       `gorm:"not null"`
	BonusMinutesAfter int       `gorm:"not null"`
	CreatedAt         time.Time `gorm:"index"`
}
