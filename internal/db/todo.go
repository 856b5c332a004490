package db

import (
	"time"

	"gorm.io/gorm"
)

// Todo 定义了待办模型
// 每日待办的完成状态只在 CompletedOn 等于今天时有效
type Todo struct {
	gorm.Model
	UserID       uint    `gorm:"index;not null"`
	Title        string  `gorm:"not null"`
	Description  string
	Priority     string  `gorm:"size:16;not null"`
	Color        string  `gorm:"size:16"`
	IsDaily      bool    `gorm:"not null;default:false"`
	DueDate      *string `gorm:"size:10"`
	CompletedAt  *time.Time
	CompletedOn  string `gorm:"size:10;index"`
	XPAwarded    int    `gorm:"not null;default:0"`
	CoinsAwarded int    `gorm:"not null;default:0"`
}

// TodoCompletion 保存每日待办在以前某一天的完成奖励。
// 每日待办在新的一天再次完成时，上一天的奖励从 Todo 行转存到这里，
// 以便该日的通道总额与删除时的扣回仍然完整。
type TodoCompletion struct {
	ID           uint   `gorm:"primarykey"`
	UserID       uint   `gorm:"not null;index:idx_todo_completion_unique,unique;index:idx_todo_completion_user_day"`
	TodoID       uint   `gorm:"not null;index:idx_todo_completion_unique,unique"`
	CompletedOn  string `gorm:"size:10;not null;index:idx_todo_completion_unique,unique;index:idx_todo_completion_user_day"`
	XPAwarded    int    `gorm:"not null;default:0"`
	CoinsAwarded int    `gorm:"not null;default:0"`
	CreatedAt    time.Time
}
