package service

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/forgeledger/internal/calendar"
	"github.com/forgeledger/internal/db"
	"github.com/forgeledger/internal/ledger"
	"github.com/forgeledger/internal/logger"
	"github.com/forgeledger/internal/streak"
	"gorm.io/gorm"
)

const (
	// 打卡记录默认回看 26 周
	defaultLogDays = 7*26 + 1
	maxLogDays     = 731
)

var colorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// HabitService 负责习惯的增删改查，删除时通过账本撤销打卡奖励
type HabitService struct {
	db     *gorm.DB
	ledger *LedgerService
}

// HabitFilter 描述列表过滤条件
type HabitFilter struct {
	Search string
}

// HabitInput 定义创建习惯时可配置字段
type HabitInput struct {
	Title      string
	Kind       string
	Difficulty int
	Color      string
	Schedule   *streak.Goal
}

// HabitPatch 定义更新习惯的字段，nil 表示不修改
type HabitPatch struct {
	Title         *string
	Kind          *string
	Difficulty    *int
	Color         *string
	Schedule      *streak.Goal
	ClearSchedule bool
}

// NewHabitService 构造 HabitService
func NewHabitService(gdb *gorm.DB, ledgerService *LedgerService) *HabitService {
	return &HabitService{db: gdb, ledger: ledgerService}
}

// List 返回用户的习惯，按创建时间升序
func (s *HabitService) List(userID uint, filter HabitFilter) ([]db.Habit, error) {
	var habits []db.Habit

	query := s.db.Model(&db.Habit{}).Where("user_id = ?", userID)
	if search := strings.TrimSpace(filter.Search); search != "" {
		query = query.Where("title LIKE ?", fmt.Sprintf("%%%s%%", search))
	}

	if err := query.Order("created_at ASC, id ASC").Find(&habits).Error; err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}
	return habits, nil
}

// Get 根据 ID 获取习惯
func (s *HabitService) Get(userID, id uint) (*db.Habit, error) {
	return findOwned[db.Habit](s.db, userID, id)
}

// Create 新建习惯
func (s *HabitService) Create(userID uint, input HabitInput) (*db.Habit, error) {
	habit := db.Habit{UserID: userID}
	patch := HabitPatch{
		Title:      &input.Title,
		Kind:       &input.Kind,
		Difficulty: &input.Difficulty,
		Color:      &input.Color,
		Schedule:   input.Schedule,
	}
	if err := applyHabitPatch(&habit, patch); err != nil {
		return nil, err
	}

	if err := s.db.Create(&habit).Error; err != nil {
		return nil, fmt.Errorf("create habit: %w", err)
	}
	s.ledger.notify(userID)
	return &habit, nil
}

// Update 更新习惯。奖励只在打卡时计算，修改难度不会影响历史记录。
func (s *HabitService) Update(userID, id uint, patch HabitPatch) (*db.Habit, error) {
	existing, err := findOwned[db.Habit](s.db, userID, id)
	if err != nil {
		return nil, err
	}

	if err := applyHabitPatch(existing, patch); err != nil {
		return nil, err
	}

	if err := s.db.Save(existing).Error; err != nil {
		return nil, fmt.Errorf("update habit: %w", err)
	}
	s.ledger.notify(userID)
	return existing, nil
}

// Delete 删除习惯及其全部打卡记录，并在同一事务内扣回这些记录发放过的奖励。
func (s *HabitService) Delete(userID, id uint) (ledger.Account, error) {
	var acc ledger.Account
	err := s.ledger.mutate(userID, func(tx *gorm.DB) error {
		habit, err := findOwned[db.Habit](tx, userID, id)
		if err != nil {
			return err
		}

		var awarded rewardSum
		if err := tx.Model(&db.HabitLog{}).
			Select("COALESCE(SUM(xp_awarded), 0) AS xp, COALESCE(SUM(coins_awarded), 0) AS coins").
			Where("user_id = ? AND habit_id = ?", userID, habit.ID).
			Scan(&awarded).Error; err != nil {
			return fmt.Errorf("sum habit logs: %w", err)
		}

		if err := tx.Where("user_id = ? AND habit_id = ?", userID, habit.ID).Delete(&db.HabitLog{}).Error; err != nil {
			return fmt.Errorf("delete habit logs: %w", err)
		}
		if err := tx.Delete(habit).Error; err != nil {
			return fmt.Errorf("delete habit: %w", err)
		}

		acc, err = s.ledger.reverse(tx, userID, ledger.Reward{XP: awarded.XP, Coins: awarded.Coins})
		if err != nil {
			return err
		}
		logger.Debug("habit deleted", "user_id", userID, "habit_id", id, "xp", -awarded.XP, "coins", -awarded.Coins)
		return nil
	})
	return acc, err
}

// ListLogs 返回习惯在区间内的打卡记录，区间默认为最近 26 周
func (s *HabitService) ListLogs(userID, habitID uint, from, to string) ([]db.HabitLog, calendar.Range, error) {
	if _, err := findOwned[db.Habit](s.db, userID, habitID); err != nil {
		return nil, calendar.Range{}, err
	}

	r, err := resolveRange(s.ledger.Zone(), from, to, defaultLogDays, maxLogDays)
	if err != nil {
		return nil, calendar.Range{}, err
	}

	var logs []db.HabitLog
	if err := s.db.Where("user_id = ? AND habit_id = ? AND log_date BETWEEN ? AND ?", userID, habitID, r.From, r.To).
		Order("log_date ASC").
		Find(&logs).Error; err != nil {
		return nil, r, fmt.Errorf("list habit logs: %w", err)
	}
	return logs, r, nil
}

func applyHabitPatch(habit *db.Habit, patch HabitPatch) error {
	if patch.Title != nil {
		title := cleanText(*patch.Title, maxTitleLength)
		if title == "" {
			return validationError("title is required")
		}
		habit.Title = title
	}

	if patch.Kind != nil {
		kind, ok := ledger.ParseHabitKind(*patch.Kind)
		if !ok {
			return validationError("unknown habit kind %q", *patch.Kind)
		}
		habit.Kind = string(kind)
	}

	if patch.Difficulty != nil {
		if !ledger.ValidDifficulty(*patch.Difficulty) {
			return validationError("difficulty must be 1, 2 or 3")
		}
		habit.Difficulty = *patch.Difficulty
	}

	if patch.Color != nil {
		color := strings.TrimSpace(*patch.Color)
		switch {
		case color == "":
			if habit.Color == "" {
				habit.Color = db.DefaultHabitColor
			}
		case colorPattern.MatchString(color):
			habit.Color = strings.ToLower(color)
		default:
			return validationError("color must look like #rrggbb")
		}
	}

	switch {
	case patch.ClearSchedule:
		if err := habit.SetGoal(nil); err != nil {
			return err
		}
	case patch.Schedule != nil:
		goal, err := validateGoal(*patch.Schedule)
		if err != nil {
			return err
		}
		if err := habit.SetGoal(&goal); err != nil {
			return fmt.Errorf("encode schedule: %w", err)
		}
	}
	return nil
}

func validateGoal(goal streak.Goal) (streak.Goal, error) {
	cadence, ok := streak.ParseCadence(string(goal.Cadence))
	if !ok {
		return streak.Goal{}, validationError("unknown cadence %q", goal.Cadence)
	}
	if goal.RequiredCount < 1 && cadence != streak.Daily {
		return streak.Goal{}, validationError("required count must be at least 1")
	}
	return streak.Goal{Cadence: cadence, RequiredCount: goal.RequiredCount}.Normalize(), nil
}

// resolveRange 解析查询区间，日期格式错误归为 ErrValidation，起止颠倒归为 ErrInvalidRange
func resolveRange(zone calendar.Zone, from, to string, defaultDays, maxDays int) (calendar.Range, error) {
	r, err := zone.ResolveRange(from, to, defaultDays, maxDays)
	if err != nil {
		if errors.Is(err, calendar.ErrInvalidDayKey) {
			return calendar.Range{}, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return calendar.Range{}, err
	}
	return r, nil
}
