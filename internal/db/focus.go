package db

import (
	"time"

	"gorm.io/gorm"
)

// FocusSession 记录一次专注计时
// Completed 与 Cancelled 互斥，都为 false 表示进行中
// StartedOn 是开始时间在应用时区下的日期键，用于专注通道上限
type FocusSession struct {
	gorm.Model
	UserID          uint      `gorm:"index;not null"`
	DurationMinutes int       `gorm:"not null"`
	Kind            string    `gorm:"size:16;not null"`
	StartedAt       time.Time `gorm:"not null"`
	StartedOn       string    `gorm:"size:10;not null;index"`
	EndedAt         *time.Time
	Completed       bool `gorm:"not null;default:false"`
	Cancelled       bool `gorm:"not null;default:false"`
	TodoID          *uint
	Notes           string
	XPAwarded       int `gorm:"not null;default:0"`
	CoinsAwarded    int `gorm:"not null;default:0"`
}
