package models

import (
	"time"
)

// Plan is a recurring tier granting MinutesPerCycle transcription minutes
// per billing cycle. Price is stored in whole soums; the gateway and
// checkout URLs carry tiyin amounts (Price * 100).
type Plan struct {
	ID              uint   `gorm:"primaryKey"`
	Name            string `gorm:"size:64;uniqueIndex;not null"`
	Price           int64  `gorm:"not null"`
	MinutesPerCycle int    `gorm:"not null"`
	IsActive        bool   `gorm:"default:true;index"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Package is a one-time bundle of non-expiring bonus minutes.
type Package struct {
	ID        uint   `gorm:"primaryKey"`
	Name      string `gorm:"size:64;uniqueIndex;not null"`
	Price     int64  `gorm:"not null"`
	Minutes   int    `gorm:"not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
