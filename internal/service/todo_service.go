package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/forgeledger/internal/calendar"
	"github.com/forgeledger/internal/db"
	"github.com/forgeledger/internal/ledger"
	"github.com/forgeledger/internal/logger"
	"gorm.io/gorm"
)

// TodoService 负责待办的增删改查
type TodoService struct {
	db     *gorm.DB
	ledger *LedgerService
}

// TodoInput 定义创建待办的字段
type TodoInput struct {
	Title       string
	Description string
	Priority    string
	Color       string
	IsDaily     bool
	DueDate     string
}

// TodoPatch 定义更新待办的字段，nil 表示不修改；DueDate 指向空字符串表示清除
type TodoPatch struct {
	Title       *string
	Description *string
	Priority    *string
	Color       *string
	IsDaily     *bool
	DueDate     *string
}

// TodoView 是待办在今天视角下的展示形态
type TodoView struct {
	ID              uint            `json:"id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	DescriptionHTML string          `json:"description_html"`
	Priority        ledger.Priority `json:"priority"`
	Color           string          `json:"color"`
	IsDaily         bool            `json:"is_daily"`
	DueDate         *string         `json:"due_date"`
	Completed       bool            `json:"completed"`
	CompletedAt     *time.Time      `json:"completed_at"`
	Reward          ledger.Reward   `json:"reward"`
	CreatedAt       time.Time       `json:"created_at"`
}

// NewTodoService 构造 TodoService
func NewTodoService(gdb *gorm.DB, ledgerService *LedgerService) *TodoService {
	return &TodoService{db: gdb, ledger: ledgerService}
}

// View 以今天为准换算待办的完成状态。
// 已完成时展示实际发放的奖励，未完成时展示完成后可获得的奖励。
func (s *TodoService) View(todo db.Todo) TodoView {
	view := TodoView{
		ID:              todo.ID,
		Title:           todo.Title,
		Description:     todo.Description,
		DescriptionHTML: renderDescription(todo.Description),
		Priority:        ledger.Priority(todo.Priority),
		Color:           todo.Color,
		IsDaily:         todo.IsDaily,
		DueDate:         todo.DueDate,
		CreatedAt:       todo.CreatedAt,
	}

	if todoCompletedOn(todo, s.ledger.Zone().Today()) {
		view.Completed = true
		view.CompletedAt = todo.CompletedAt
		view.Reward = ledger.Reward{XP: todo.XPAwarded, Coins: todo.CoinsAwarded}
	} else {
		view.Reward = ledger.TodoReward(view.Priority)
	}
	return view
}

// List 返回用户的全部待办，按创建时间升序
func (s *TodoService) List(userID uint) ([]TodoView, error) {
	var todos []db.Todo
	if err := s.db.Where("user_id = ?", userID).Order("created_at ASC, id ASC").Find(&todos).Error; err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}

	views := make([]TodoView, 0, len(todos))
	for _, todo := range todos {
		views = append(views, s.View(todo))
	}
	return views, nil
}

// Get 返回单个待办
func (s *TodoService) Get(userID, id uint) (*TodoView, error) {
	todo, err := findOwned[db.Todo](s.db, userID, id)
	if err != nil {
		return nil, err
	}
	view := s.View(*todo)
	return &view, nil
}

// Create 新建待办
func (s *TodoService) Create(userID uint, input TodoInput) (*TodoView, error) {
	todo := db.Todo{UserID: userID, IsDaily: input.IsDaily}
	patch := TodoPatch{
		Title:       &input.Title,
		Description: &input.Description,
		Priority:    &input.Priority,
		Color:       &input.Color,
		DueDate:     &input.DueDate,
	}
	if err := s.applyPatch(&todo, patch); err != nil {
		return nil, err
	}

	if err := s.db.Create(&todo).Error; err != nil {
		return nil, fmt.Errorf("create todo: %w", err)
	}
	view := s.View(todo)
	return &view, nil
}

// Update 修改待办字段。完成状态只能通过 CompleteTodo 改变。
func (s *TodoService) Update(userID, id uint, patch TodoPatch) (*TodoView, error) {
	todo, err := findOwned[db.Todo](s.db, userID, id)
	if err != nil {
		return nil, err
	}
	if err := s.applyPatch(todo, patch); err != nil {
		return nil, err
	}

	if err := s.db.Model(&db.Todo{}).Where("id = ?", todo.ID).Updates(map[string]any{
		"title":       todo.Title,
		"description": todo.Description,
		"priority":    todo.Priority,
		"color":       todo.Color,
		"is_daily":    todo.IsDaily,
		"due_date":    todo.DueDate,
	}).Error; err != nil {
		return nil, fmt.Errorf("update todo: %w", err)
	}
	view := s.View(*todo)
	return &view, nil
}

// Delete 删除待办；记录中仍保存着已发放的奖励时同步扣回。
func (s *TodoService) Delete(userID, id uint) (ledger.Account, error) {
	var acc ledger.Account
	err := s.ledger.mutate(userID, func(tx *gorm.DB) error {
		todo, err := findOwned[db.Todo](tx, userID, id)
		if err != nil {
			return err
		}

		if err := tx.Delete(todo).Error; err != nil {
			return fmt.Errorf("delete todo: %w", err)
		}

		stored := ledger.Reward{}
		if todo.CompletedAt != nil {
			stored = ledger.Reward{XP: todo.XPAwarded, Coins: todo.CoinsAwarded}
		}

		// 以前各天转存的每日完成奖励一并扣回
		var archived rewardSum
		if err := tx.Model(&db.TodoCompletion{}).
			Select("COALESCE(SUM(xp_awarded), 0) AS xp, COALESCE(SUM(coins_awarded), 0) AS coins").
			Where("user_id = ? AND todo_id = ?", userID, todo.ID).
			Scan(&archived).Error; err != nil {
			return fmt.Errorf("sum archived todo rewards: %w", err)
		}
		if err := tx.Where("user_id = ? AND todo_id = ?", userID, todo.ID).Delete(&db.TodoCompletion{}).Error; err != nil {
			return fmt.Errorf("delete todo completions: %w", err)
		}
		stored = stored.Add(ledger.Reward{XP: archived.XP, Coins: archived.Coins})
		acc, err = s.ledger.reverse(tx, userID, stored)
		if err != nil {
			return err
		}
		logger.Debug("todo deleted", "user_id", userID, "todo_id", id, "xp", -stored.XP, "coins", -stored.Coins)
		return nil
	})
	return acc, err
}

func (s *TodoService) applyPatch(todo *db.Todo, patch TodoPatch) error {
	if patch.Title != nil {
		title := cleanText(*patch.Title, maxTitleLength)
		if title == "" {
			return validationError("title is required")
		}
		todo.Title = title
	}

	if patch.Description != nil {
		todo.Description = strings.TrimSpace(*patch.Description)
	}

	if patch.Priority != nil {
		priority, ok := ledger.ParsePriority(*patch.Priority)
		if !ok {
			return validationError("unknown priority %q", *patch.Priority)
		}
		todo.Priority = string(priority)
	}

	if patch.Color != nil {
		color := strings.TrimSpace(*patch.Color)
		switch {
		case color == "":
			if todo.Color == "" {
				todo.Color = db.DefaultHabitColor
			}
		case colorPattern.MatchString(color):
			todo.Color = strings.ToLower(color)
		default:
			return validationError("color must look like #rrggbb")
		}
	}

	if patch.IsDaily != nil {
		todo.IsDaily = *patch.IsDaily
	}

	if patch.DueDate != nil {
		due, err := s.parseDueDate(*patch.DueDate)
		if err != nil {
			return err
		}
		todo.DueDate = due
	}
	return nil
}

// parseDueDate 接受 YYYY-MM-DD 或 RFC3339 时间，统一保存为应用时区下的日期键
func (s *TodoService) parseDueDate(raw string) (*string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if calendar.ValidDayKey(raw) {
		return &raw, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, validationError("invalid due date %q", raw)
	}
	key := s.ledger.Zone().Key(t)
	return &key, nil
}
