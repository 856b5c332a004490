package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/forgeledger/internal/calendar"
	"github.com/forgeledger/internal/db"
	"github.com/forgeledger/internal/ledger"
	"github.com/forgeledger/internal/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerService 是所有奖励变更的唯一入口。
// 每次变更在同一用户锁与同一数据库事务内完成：读取记录与账户、计算截断后的增量、
// 写回记录与账户，失败时整体回滚。
type LedgerService struct {
	db        *gorm.DB
	zone      calendar.Zone
	caps      ledger.CapTable
	locks     *userLocks
	listeners []func(userID uint)
}

// HabitLogResult 是一次打卡后的记录与账户
type HabitLogResult struct {
	Log     db.HabitLog
	Account ledger.Account
}

// TodoResult 是一次待办切换后的记录与账户
type TodoResult struct {
	Todo    db.Todo
	Account ledger.Account
}

// FocusResult 是一次专注结束/取消后的记录与账户
type FocusResult struct {
	Session db.FocusSession
	Account ledger.Account
}

// FocusStartInput 描述开始专注的参数
type FocusStartInput struct {
	DurationMinutes int
	Kind            string
	TodoID          *uint
}

// FocusCompleteInput 描述结束专注的可选参数
type FocusCompleteInput struct {
	Notes   *string
	EndedAt *time.Time
}

// ChannelUsage 是某个通道当天已发放的奖励与上限
type ChannelUsage struct {
	Channel ledger.Channel `json:"channel"`
	Day     string         `json:"day"`
	Used     ledger.Reward  `json:"used"`
	Caps     ledger.Caps    `json:"caps"`
	ResetsAt time.Time      `json:"resets_at"`
}

// ProgressView 是账户与今日两个通道的使用情况
type ProgressView struct {
	Account       ledger.Account `json:"account"`
	XPIntoLevel   int            `json:"xp_into_level"`
	XPToNextLevel int            `json:"xp_to_next_level"`
	NextRank      *ledger.Tier   `json:"next_rank,omitempty"`
	HabitTodo     ChannelUsage   `json:"habit_todo"`
	Focus         ChannelUsage   `json:"focus"`
}

// NewLedgerService 构造 LedgerService
func NewLedgerService(gdb *gorm.DB, zone calendar.Zone, caps ledger.CapTable) *LedgerService {
	return &LedgerService{db: gdb, zone: zone, caps: caps, locks: newUserLocks()}
}

// Zone 返回账本使用的时区口径
func (s *LedgerService) Zone() calendar.Zone {
	return s.zone
}

// Caps 返回每日上限配置
func (s *LedgerService) Caps() ledger.CapTable {
	return s.caps
}

// OnChange 注册账本变更回调，用于让统计缓存失效。回调在事务提交后执行。
func (s *LedgerService) OnChange(fn func(userID uint)) {
	if fn != nil {
		s.listeners = append(s.listeners, fn)
	}
}

func (s *LedgerService) notify(userID uint) {
	for _, fn := range s.listeners {
		fn(userID)
	}
}

// serialize 在用户锁内开启事务执行 fn
func (s *LedgerService) serialize(userID uint, fn func(tx *gorm.DB) error) error {
	unlock := s.locks.lock(userID)
	defer unlock()
	return s.db.Transaction(fn)
}

// mutate 与 serialize 相同，提交成功后通知监听者
func (s *LedgerService) mutate(userID uint, fn func(tx *gorm.DB) error) error {
	if err := s.serialize(userID, fn); err != nil {
		return err
	}
	s.notify(userID)
	return nil
}

// ToggleHabitDay 记录或切换某个习惯某天的结果。
// explicit 为空时按切换语义处理：已成功则改为失败，否则改为成功；目标与现状相同则不做任何修改。
func (s *LedgerService) ToggleHabitDay(userID, habitID uint, dayKey, explicit string) (*HabitLogResult, error) {
	dayKey = strings.TrimSpace(dayKey)
	if !calendar.ValidDayKey(dayKey) {
		return nil, validationError("date must be YYYY-MM-DD, got %q", dayKey)
	}

	var result HabitLogResult
	err := s.mutate(userID, func(tx *gorm.DB) error {
		habit, err := findOwned[db.Habit](tx, userID, habitID)
		if err != nil {
			return err
		}
		kind, ok := ledger.ParseHabitKind(habit.Kind)
		if !ok {
			return fmt.Errorf("habit %d has unknown kind %q", habit.ID, habit.Kind)
		}

		var existing db.HabitLog
		found := true
		if err := tx.Where("user_id = ? AND habit_id = ? AND log_date = ?", userID, habitID, dayKey).
			First(&existing).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("find habit log: %w", err)
			}
			found = false
		}

		target, err := resolveHabitTarget(kind, explicit, existing, found)
		if err != nil {
			return err
		}

		acc, err := s.loadAccount(tx, userID)
		if err != nil {
			return err
		}

		if found && ledger.Outcome(existing.Outcome) == target {
			result = HabitLogResult{Log: existing, Account: acc.Account()}
			return nil
		}

		stored := ledger.Reward{XP: existing.XPAwarded, Coins: existing.CoinsAwarded}
		base := ledger.HabitReward(kind, habit.Difficulty, target)
		applied, err := s.clamp(tx, userID, ledger.ChannelHabitTodo, dayKey, stored, base)
		if err != nil {
			return err
		}
		awarded := stored.Add(applied)

		row := db.HabitLog{
			UserID:       userID,
			HabitID:      habitID,
			LogDate:      dayKey,
			Outcome:      string(target),
			XPAwarded:    awarded.XP,
			CoinsAwarded: awarded.Coins,
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "habit_id"}, {Name: "log_date"}},
			DoUpdates: clause.AssignmentColumns([]string{"outcome", "xp_awarded", "coins_awarded", "updated_at"}),
		}).Create(&row).Error; err != nil {
			return fmt.Errorf("upsert habit log: %w", err)
		}
		var saved db.HabitLog
		if err := tx.Where("user_id = ? AND habit_id = ? AND log_date = ?", userID, habitID, dayKey).
			First(&saved).Error; err != nil {
			return fmt.Errorf("reload habit log: %w", err)
		}

		updated, err := s.applyDelta(tx, acc, applied)
		if err != nil {
			return err
		}

		logger.Debug("habit day logged", "user_id", userID, "habit_id", habitID, "day", dayKey,
			"outcome", target, "xp", applied.XP, "coins", applied.Coins)
		result = HabitLogResult{Log: saved, Account: updated}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func resolveHabitTarget(kind ledger.HabitKind, explicit string, existing db.HabitLog, found bool) (ledger.Outcome, error) {
	if strings.TrimSpace(explicit) == "" {
		if found && ledger.Outcome(existing.Outcome) == ledger.OutcomeSuccess {
			return ledger.OutcomeFailure, nil
		}
		return ledger.OutcomeSuccess, nil
	}

	outcome, known, ok := ledger.ResolveOutcome(kind, explicit)
	if !known {
		return "", validationError("unknown outcome %q", explicit)
	}
	if !ok {
		return "", fmt.Errorf("%w: outcome %q does not apply to %s habits", ErrInvalidTransition, explicit, kind)
	}
	return outcome, nil
}

// CompleteTodo 切换待办的完成状态。
// 每日待办只有今天完成才算已完成；前一天的完成奖励转存为 TodoCompletion 后，由今天的完成替换。
func (s *LedgerService) CompleteTodo(userID, todoID uint) (*TodoResult, error) {
	var result TodoResult
	err := s.mutate(userID, func(tx *gorm.DB) error {
		todo, err := findOwned[db.Todo](tx, userID, todoID)
		if err != nil {
			return err
		}
		acc, err := s.loadAccount(tx, userID)
		if err != nil {
			return err
		}

		now := s.zone.Now()
		today := s.zone.Key(now)

		var applied ledger.Reward
		if todoCompletedOn(*todo, today) {
			// 撤销时不截断，按记录保存的奖励原样扣回
			stored := ledger.Reward{XP: todo.XPAwarded, Coins: todo.CoinsAwarded}
			applied, err = s.clamp(tx, userID, ledger.ChannelHabitTodo, todo.CompletedOn, stored, ledger.Reward{})
			if err != nil {
				return err
			}
			awarded := stored.Add(applied)
			todo.CompletedAt = nil
			todo.CompletedOn = ""
			todo.XPAwarded = awarded.XP
			todo.CoinsAwarded = awarded.Coins
		} else {
			// 每日待办以前的完成奖励保留在账户中，并转存到当天的完成记录里
			if todo.CompletedAt != nil {
				if err := archiveTodoCompletion(tx, *todo); err != nil {
					return err
				}
			}
			base := ledger.TodoReward(ledger.Priority(todo.Priority))
			applied, err = s.clamp(tx, userID, ledger.ChannelHabitTodo, today, ledger.Reward{}, base)
			if err != nil {
				return err
			}
			todo.CompletedAt = &now
			todo.CompletedOn = today
			todo.XPAwarded = applied.XP
			todo.CoinsAwarded = applied.Coins
		}

		if err := tx.Model(&db.Todo{}).Where("id = ?", todo.ID).Updates(map[string]any{
			"completed_at":  todo.CompletedAt,
			"completed_on":  todo.CompletedOn,
			"xp_awarded":    todo.XPAwarded,
			"coins_awarded": todo.CoinsAwarded,
		}).Error; err != nil {
			return fmt.Errorf("update todo: %w", err)
		}

		updated, err := s.applyDelta(tx, acc, applied)
		if err != nil {
			return err
		}

		logger.Debug("todo toggled", "user_id", userID, "todo_id", todoID,
			"completed", todo.CompletedAt != nil, "xp", applied.XP, "coins", applied.Coins)
		result = TodoResult{Todo: *todo, Account: updated}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// archiveTodoCompletion 把 Todo 行上旧日期的完成奖励转存为 TodoCompletion
func archiveTodoCompletion(tx *gorm.DB, todo db.Todo) error {
	if todo.CompletedOn == "" || (todo.XPAwarded == 0 && todo.CoinsAwarded == 0) {
		return nil
	}
	row := db.TodoCompletion{
		UserID:       todo.UserID,
		TodoID:       todo.ID,
		CompletedOn:  todo.CompletedOn,
		XPAwarded:    todo.XPAwarded,
		CoinsAwarded: todo.CoinsAwarded,
	}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "todo_id"}, {Name: "completed_on"}},
		DoUpdates: clause.Assignments(map[string]any{
			"xp_awarded":    gorm.Expr("todo_completions.xp_awarded + excluded.xp_awarded"),
			"coins_awarded": gorm.Expr("todo_completions.coins_awarded + excluded.coins_awarded"),
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("archive todo completion: %w", err)
	}
	return nil
}

// todoCompletedOn 判断待办在 today 视角下是否已完成
func todoCompletedOn(todo db.Todo, today string) bool {
	if todo.CompletedAt == nil {
		return false
	}
	if todo.IsDaily {
		return todo.CompletedOn == today
	}
	return true
}

// StartFocus 开始一次专注，不涉及奖励
func (s *LedgerService) StartFocus(userID uint, input FocusStartInput) (*db.FocusSession, error) {
	if input.DurationMinutes <= 0 {
		return nil, validationError("duration must be a positive number of minutes")
	}
	kind, ok := ledger.ParseFocusKind(input.Kind)
	if !ok {
		return nil, validationError("unknown focus kind %q", input.Kind)
	}

	now := s.zone.Now()
	session := db.FocusSession{
		UserID:          userID,
		DurationMinutes: input.DurationMinutes,
		Kind:            string(kind),
		StartedAt:       now,
		StartedOn:       s.zone.Key(now),
	}

	if input.TodoID != nil && *input.TodoID != 0 {
		if _, err := findOwned[db.Todo](s.db, userID, *input.TodoID); err != nil {
			return nil, err
		}
		todoID := *input.TodoID
		session.TodoID = &todoID
	}

	if err := s.db.Create(&session).Error; err != nil {
		return nil, fmt.Errorf("create focus session: %w", err)
	}
	return &session, nil
}

// CompleteFocus 结束专注并发放奖励。已取消的专注不能完成；重复完成返回 ErrAlreadyTerminal。
func (s *LedgerService) CompleteFocus(userID, sessionID uint, input FocusCompleteInput) (*FocusResult, error) {
	var result FocusResult
	err := s.mutate(userID, func(tx *gorm.DB) error {
		session, err := findOwned[db.FocusSession](tx, userID, sessionID)
		if err != nil {
			return err
		}
		switch {
		case session.Cancelled:
			return fmt.Errorf("%w: focus session %d was cancelled", ErrInvalidTransition, sessionID)
		case session.Completed:
			return fmt.Errorf("%w: focus session %d", ErrAlreadyTerminal, sessionID)
		}
		if input.EndedAt != nil && input.EndedAt.Before(session.StartedAt) {
			return validationError("ended_at must not be before the session start")
		}

		acc, err := s.loadAccount(tx, userID)
		if err != nil {
			return err
		}

		stored := ledger.Reward{XP: session.XPAwarded, Coins: session.CoinsAwarded}
		base := ledger.FocusReward(session.DurationMinutes)
		applied, err := s.clamp(tx, userID, ledger.ChannelFocus, session.StartedOn, stored, base)
		if err != nil {
			return err
		}
		awarded := stored.Add(applied)

		endedAt := s.zone.Now()
		if input.EndedAt != nil {
			endedAt = *input.EndedAt
		}
		session.Completed = true
		session.Cancelled = false
		session.EndedAt = &endedAt
		if input.Notes != nil {
			session.Notes = cleanText(*input.Notes, maxNotesLength)
		}
		session.XPAwarded = awarded.XP
		session.CoinsAwarded = awarded.Coins

		if err := tx.Model(&db.FocusSession{}).Where("id = ?", session.ID).Updates(map[string]any{
			"completed":     true,
			"cancelled":     false,
			"ended_at":      session.EndedAt,
			"notes":         session.Notes,
			"xp_awarded":    session.XPAwarded,
			"coins_awarded": session.CoinsAwarded,
		}).Error; err != nil {
			return fmt.Errorf("update focus session: %w", err)
		}

		updated, err := s.applyDelta(tx, acc, applied)
		if err != nil {
			return err
		}

		logger.Debug("focus completed", "user_id", userID, "session_id", sessionID,
			"minutes", session.DurationMinutes, "xp", applied.XP, "coins", applied.Coins)
		result = FocusResult{Session: *session, Account: updated}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// CancelFocus 取消进行中的专注。已完成的专注不能取消，重复取消返回 ErrAlreadyTerminal。
func (s *LedgerService) CancelFocus(userID, sessionID uint) (*FocusResult, error) {
	var result FocusResult
	err := s.mutate(userID, func(tx *gorm.DB) error {
		session, err := findOwned[db.FocusSession](tx, userID, sessionID)
		if err != nil {
			return err
		}
		switch {
		case session.Completed:
			return fmt.Errorf("%w: focus session %d already completed", ErrInvalidTransition, sessionID)
		case session.Cancelled:
			return fmt.Errorf("%w: focus session %d", ErrAlreadyTerminal, sessionID)
		}

		acc, err := s.loadAccount(tx, userID)
		if err != nil {
			return err
		}

		// 进行中的专注通常没有奖励，这里仍按记录值完整撤销
		stored := ledger.Reward{XP: session.XPAwarded, Coins: session.CoinsAwarded}
		applied := stored.Neg()

		endedAt := s.zone.Now()
		session.Cancelled = true
		session.EndedAt = &endedAt
		session.XPAwarded = 0
		session.CoinsAwarded = 0

		if err := tx.Model(&db.FocusSession{}).Where("id = ?", session.ID).Updates(map[string]any{
			"cancelled":     true,
			"ended_at":      session.EndedAt,
			"xp_awarded":    0,
			"coins_awarded": 0,
		}).Error; err != nil {
			return fmt.Errorf("update focus session: %w", err)
		}

		updated, err := s.applyDelta(tx, acc, applied)
		if err != nil {
			return err
		}

		logger.Debug("focus cancelled", "user_id", userID, "session_id", sessionID)
		result = FocusResult{Session: *session, Account: updated}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Account 返回用户账户，不存在时创建初始账户
func (s *LedgerService) Account(userID uint) (ledger.Account, error) {
	var acc ledger.Account
	err := s.serialize(userID, func(tx *gorm.DB) error {
		row, err := s.loadAccount(tx, userID)
		if err != nil {
			return err
		}
		acc = row.Account()
		return nil
	})
	return acc, err
}

// Progress 返回账户以及今天两个通道的额度使用情况
func (s *LedgerService) Progress(userID uint) (*ProgressView, error) {
	acc, err := s.Account(userID)
	if err != nil {
		return nil, err
	}

	view := &ProgressView{
		Account:       acc,
		XPIntoLevel:   acc.XPIntoLevel(),
		XPToNextLevel: ledger.XPPerLevel - acc.XPIntoLevel(),
	}
	if next, ok := ledger.NextTier(acc.Level); ok {
		view.NextRank = &next
	}

	today := s.zone.Today()
	for _, ch := range []ledger.Channel{ledger.ChannelHabitTodo, ledger.ChannelFocus} {
		usage, err := s.channelUsage(s.db, userID, ch, today)
		if err != nil {
			return nil, err
		}
		if ch == ledger.ChannelFocus {
			view.Focus = usage
		} else {
			view.HabitTodo = usage
		}
	}
	return view, nil
}

// channelUsage 返回通道在 day 的已用额度，以及额度在本地时区下次重置的时间
func (s *LedgerService) channelUsage(tx *gorm.DB, userID uint, ch ledger.Channel, day string) (ChannelUsage, error) {
	used, err := ChannelTotal(tx, userID, ch, day)
	if err != nil {
		return ChannelUsage{}, err
	}
	_, resetsAt, err := s.zone.Bounds(day)
	if err != nil {
		return ChannelUsage{}, err
	}
	return ChannelUsage{Channel: ch, Day: day, Used: used, Caps: s.caps.For(ch), ResetsAt: resetsAt}, nil
}

// reverse 撤销一组记录已发放的奖励，供删除习惯/待办时在同一事务内调用。
func (s *LedgerService) reverse(tx *gorm.DB, userID uint, stored ledger.Reward) (ledger.Account, error) {
	acc, err := s.loadAccount(tx, userID)
	if err != nil {
		return ledger.Account{}, err
	}
	return s.applyDelta(tx, acc, stored.Neg())
}

// clamp 重新读取当天通道总额，并计算 existing -> target 的实际增量
func (s *LedgerService) clamp(tx *gorm.DB, userID uint, ch ledger.Channel, day string, existing, target ledger.Reward) (ledger.Reward, error) {
	total, err := ChannelTotal(tx, userID, ch, day)
	if err != nil {
		return ledger.Reward{}, err
	}
	return ledger.ClampReward(existing, target, total, s.caps.For(ch)), nil
}

// loadAccount 读取并锁定账户行，不存在时创建
func (s *LedgerService) loadAccount(tx *gorm.DB, userID uint) (*db.Progress, error) {
	var row db.Progress
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&row).Error
	switch {
	case err == nil:
		return &row, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		row = db.NewProgress(userID)
		if err := tx.Create(&row).Error; err != nil {
			return nil, fmt.Errorf("create progress: %w", err)
		}
		return &row, nil
	default:
		return nil, fmt.Errorf("load progress: %w", err)
	}
}

func (s *LedgerService) applyDelta(tx *gorm.DB, row *db.Progress, delta ledger.Reward) (ledger.Account, error) {
	acc := row.Account().Apply(delta)
	if delta.IsZero() && acc.Level == row.Level && acc.Rank == row.Rank {
		return acc, nil
	}
	row.SetAccount(acc)
	if err := tx.Model(&db.Progress{}).Where("id = ?", row.ID).Updates(map[string]any{
		"xp_total": row.XPTotal,
		"level":    row.Level,
		"coins":    row.Coins,
		"rank":     row.Rank,
	}).Error; err != nil {
		return ledger.Account{}, fmt.Errorf("update progress: %w", err)
	}
	return acc, nil
}

type rewardSum struct {
	XP    int
	Coins int
}

// ChannelTotal 汇总用户某天某个通道已发放的奖励
func ChannelTotal(tx *gorm.DB, userID uint, ch ledger.Channel, day string) (ledger.Reward, error) {
	const sumColumns = "COALESCE(SUM(xp_awarded), 0) AS xp, COALESCE(SUM(coins_awarded), 0) AS coins"

	if ch == ledger.ChannelFocus {
		var focus rewardSum
		if err := tx.Model(&db.FocusSession{}).Select(sumColumns).
			Where("user_id = ? AND started_on = ?", userID, day).
			Scan(&focus).Error; err != nil {
			return ledger.Reward{}, fmt.Errorf("sum focus rewards: %w", err)
		}
		return ledger.Reward{XP: focus.XP, Coins: focus.Coins}, nil
	}

	var habits, todos rewardSum
	if err := tx.Model(&db.HabitLog{}).Select(sumColumns).
		Where("user_id = ? AND log_date = ?", userID, day).
		Scan(&habits).Error; err != nil {
		return ledger.Reward{}, fmt.Errorf("sum habit rewards: %w", err)
	}
	if err := tx.Model(&db.Todo{}).Select(sumColumns).
		Where("user_id = ? AND completed_on = ? AND completed_at IS NOT NULL", userID, day).
		Scan(&todos).Error; err != nil {
		return ledger.Reward{}, fmt.Errorf("sum todo rewards: %w", err)
	}
	var archived rewardSum
	if err := tx.Model(&db.TodoCompletion{}).Select(sumColumns).
		Where("user_id = ? AND completed_on = ?", userID, day).
		Scan(&archived).Error; err != nil {
		return ledger.Reward{}, fmt.Errorf("sum archived todo rewards: %w", err)
	}
	return ledger.Reward{
		XP:    habits.XP + todos.XP + archived.XP,
		Coins: habits.Coins + todos.Coins + archived.Coins,
	}, nil
}

// findOwned 按 ID 与所有者读取记录，不属于该用户时同样返回 ErrNotFound
func findOwned[T any](tx *gorm.DB, userID, id uint) (*T, error) {
	var record T
	if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find record: %w", err)
	}
	return &record, nil
}
