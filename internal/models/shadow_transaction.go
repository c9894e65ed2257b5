package models

import (
	"time"
)

const (
	ShadowStateCreated                = "CREATED"
	ShadowStateCompleted              = "COMPLETED"
	ShadowStateCancelled              = "CANCELLED"
	ShadowStateCancelledAfterComplete = "CANCELLED_AFTER_COMPLETE"
)

// ShadowTransaction mirrors one gateway transaction, keyed by the gateway's
// id. The unique ExternalID index is the hard guarantee against duplicate
// CreateTransaction replay; the unique PaymentID index closes the
// order-in-progress race (one shadow transaction per payment, ever).
// Terminal states are immutable once reached.
type ShadowTransaction struct {
	ID          uint   `gorm:"primaryKey"`
	ExternalID  string `gorm:"size:191;uniqueIndex;not null"`
	PaymentID   uint   `gorm:"uniqueIndex;not null"`
	Amount      int64  `gorm:"not null"`
	ClientTime  time.Time
	State       string `gorm:"size:32;not null;index"`
	CreateTime  time.Time
	PerformTime *time.Time
	CancelTime  *time.Time
	ReasonCode  *int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Terminal reports whether the shadow transaction reached a state that
// rejects all further mutation.
func (s *ShadowTransaction) Terminal() bool {
	return s.State != ShadowStateCreated
}
