package models

import (
	"time"
)

const (
	UserStatusActive  = "active"
	UserStatusBlocked = "blocked"
)

type User struct {
	ID         uint   `gorm:"primaryKey"`
	TelegramID int64  `gorm:"uniqueIndex;not null"`
	Username   string `gorm:"size:255"`
	Status     string `gorm:"size:32;default:'active'"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
