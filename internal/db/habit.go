package db

import (
	"encoding/json"
	"time"

	"github.com/forgeledger/internal/streak"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DefaultHabitColor 是未指定颜色时的默认值
const DefaultHabitColor = "#58a6ff"

// Habit 定义了习惯模型
// Kind 为 BUILD/BREAK，Difficulty 为 1..3
// Schedule 以 JSON 保存连胜目标，为空表示每日一次
type Habit struct {
	gorm.Model
	UserID     uint   `gorm:"index;not null"`
	Title      string `gorm:"not null"`
	Kind       string `gorm:"size:16;not null"`
	Difficulty int    `gorm:"not null;default:1"`
	Color      string `gorm:"size:16"`
	Schedule   datatypes.JSON
}

// Goal 解析连胜目标，缺失或损坏时回退到每日一次
func (h Habit) Goal() streak.Goal {
	var goal streak.Goal
	if len(h.Schedule) == 0 || string(h.Schedule) == "null" {
		return goal.Normalize()
	}
	if err := json.Unmarshal(h.Schedule, &goal); err != nil {
		return streak.Goal{}.Normalize()
	}
	return goal.Normalize()
}

// SetGoal 写入连胜目标，nil 表示清除
func (h *Habit) SetGoal(goal *streak.Goal) error {
	if goal == nil {
		h.Schedule = nil
		return nil
	}
	raw, err := json.Marshal(goal.Normalize())
	if err != nil {
		return err
	}
	h.Schedule = datatypes.JSON(raw)
	return nil
}

// HasSchedule 判断是否配置了显式目标
func (h Habit) HasSchedule() bool {
	return len(h.Schedule) > 0 && string(h.Schedule) != "null"
}

// HabitLog 记录习惯某一天的打卡结果
// UserID + HabitID + LogDate 采用唯一索引，重复打卡原地更新
// LogDate 是应用时区下的日期键 YYYY-MM-DD
type HabitLog struct {
	ID           uint   `gorm:"primarykey"`
	UserID       uint   `gorm:"not null;index:idx_habit_log_unique,unique;index:idx_habit_log_user_day"`
	HabitID      uint   `gorm:"not null;index:idx_habit_log_unique,unique"`
	LogDate      string `gorm:"size:10;not null;index:idx_habit_log_unique,unique;index:idx_habit_log_user_day"`
	Outcome      string `gorm:"size:16;not null"`
	XPAwarded    int    `gorm:"not null;default:0"`
	CoinsAwarded int    `gorm:"not null;default:0"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName 重写确保唯一索引作用到 user_id + habit_id + log_date
func (HabitLog) TableName() string {
	return "habit_logs"
}
