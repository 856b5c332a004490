package service

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/forgeledger/internal/db"
	"github.com/forgeledger/internal/ledger"
)

func TestToggleHabitDayIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	userID := env.createUser(t, "alice")
	habit := env.createHabit(t, userID, "晨跑", "BUILD", 2)

	first, err := env.ledger.ToggleHabitDay(userID, habit.ID, "2025-01-09", "")
	if err != nil {
		t.Fatalf("first toggle: %v", err)
	}
	if first.Log.Outcome != string(ledger.OutcomeSuccess) || first.Log.XPAwarded != 20 || first.Log.CoinsAwarded != 2 {
		t.Fatalf("unexpected first log: %+v", first.Log)
	}
	if first.Account.XPTotal != 20 || first.Account.Coins != 2 {
		t.Fatalf("unexpected account: %+v", first.Account)
	}

	second, err := env.ledger.ToggleHabitDay(userID, habit.ID, "2025-01-09", "")
	if err != nil {
		t.Fatalf("second toggle: %v", err)
	}
	if second.Log.Outcome != string(ledger.OutcomeFailure) || second.Log.XPAwarded != 0 || second.Log.CoinsAwarded != 0 {
		t.Fatalf("unexpected second log: %+v", second.Log)
	}
	if second.Account.XPTotal != 0 || second.Account.Coins != 0 || second.Account.Level != 1 {
		t.Fatalf("expected account back to zero, got %+v", second.Account)
	}

	third, err := env.ledger.ToggleHabitDay(userID, habit.ID, "2025-01-09", "")
	if err != nil {
		t.Fatalf("third toggle: %v", err)
	}
	if third.Log.ID != first.Log.ID {
		t.Fatalf("expected upsert in place, got ids %d and %d", first.Log.ID, third.Log.ID)
	}
	if third.Account.XPTotal != 20 || third.Account.Coins != 2 {
		t.Fatalf("unexpected account after third toggle: %+v", third.Account)
	}

	var count int64
	env.db.Model(&db.HabitLog{}).Where("habit_id = ?", habit.ID).Count(&count)
	if count != 1 {
		t.Fatalf("expected exactly one log row, got %d", count)
	}
}

func TestToggleHabitDayClampsToDailyCap(t *testing.T) {
	env := newTestEnv(t)
	userID := env.createUser(t, "bob")
	run := env.createHabit(t, userID, "跑步", "BUILD", 2)
	read := env.createHabit(t, userID, "阅读", "BUILD", 3)
	filler := env.createHabit(t, userID, "冥想", "BUILD", 1)

	first, err := env.ledger.ToggleHabitDay(userID, run.ID, "2025-01-09", "SUCCESS")
	if err != nil {
		t.Fatalf("toggle run: %v", err)
	}
	if first.Log.XPAwarded != 20 || first.Log.CoinsAwarded != 2 {
		t.Fatalf("expected full award, got %+v", first.Log)
	}

	// 直接写入一条记录，把当天用量推到 195 XP / 10 金币
	seed := db.HabitLog{UserID: userID, HabitID: filler.ID, LogDate: "2025-01-09", Outcome: "SUCCESS", XPAwarded: 175, CoinsAwarded: 8}
	if err := env.db.Create(&seed).Error; err != nil {
		t.Fatalf("seed log: %v", err)
	}

	second, err := env.ledger.ToggleHabitDay(userID, read.ID, "2025-01-09", "SUCCESS")
	if err != nil {
		t.Fatalf("toggle read: %v", err)
	}
	if second.Log.XPAwarded != 5 {
		t.Fatalf("expected xp clamped to 5, got %d", second.Log.XPAwarded)
	}
	if second.Log.CoinsAwarded != 3 {
		t.Fatalf("expected coins unclamped, got %d", second.Log.CoinsAwarded)
	}
	if second.Account.XPTotal != 25 || second.Account.Coins != 5 {
		t.Fatalf("unexpected account: %+v", second.Account)
	}

	total, err := ChannelTotal(env.db, userID, ledger.ChannelHabitTodo, "2025-01-09")
	if err != nil {
		t.Fatalf("channel total: %v", err)
	}
	if total.XP != 200 {
		t.Fatalf("expected channel usage at cap, got %d", total.XP)
	}

	// 撤销被截断的记录只扣回实际发放的 5 XP
	reverted, err := env.ledger.ToggleHabitDay(userID, read.ID, "2025-01-09", "FAILURE")
	if err != nil {
		t.Fatalf("revert read: %v", err)
	}
	if reverted.Account.XPTotal != 20 || reverted.Account.Coins != 2 {
		t.Fatalf("expected exact reversal, got %+v", reverted.Account)
	}
	if reverted.Log.XPAwarded != 0 || reverted.Log.CoinsAwarded != 0 {
		t.Fatalf("expected reverted log to hold zero, got %+v", reverted.Log)
	}
}

func TestToggleHabitDayExplicitOutcome(t *testing.T) {
	env := newTestEnv(t)
	userID := env.createUser(t, "carol")
	build := env.createHabit(t, userID, "早睡", "BUILD", 1)
	quit := env.createHabit(t, userID, "戒糖", "BREAK", 3)

	result, err := env.ledger.ToggleHabitDay(userID, build.ID, "2025-01-08", "forged")
	if err != nil {
		t.Fatalf("explicit forged: %v", err)
	}
	if result.Log.Outcome != "SUCCESS" || result.Log.XPAwarded != 10 {
		t.Fatalf("unexpected log: %+v", result.Log)
	}

	again, err := env.ledger.ToggleHabitDay(userID, build.ID, "2025-01-08", "SUCCESS")
	if err != nil {
		t.Fatalf("repeat success: %v", err)
	}
	if again.Account.XPTotal != 10 || again.Log.XPAwarded != 10 {
		t.Fatalf("repeating the same outcome should be a no-op, got %+v", again)
	}

	resisted, err := env.ledger.ToggleHabitDay(userID, quit.ID, "2025-01-08", "RESISTED")
	if err != nil {
		t.Fatalf("explicit resisted: %v", err)
	}
	if resisted.Log.XPAwarded != 24 || resisted.Log.CoinsAwarded != 3 {
		t.Fatalf("unexpected break reward: %+v", resisted.Log)
	}

	if _, err := env.ledger.ToggleHabitDay(userID, build.ID, "2025-01-08", "SLIPPED"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for other kind alias, got %v", err)
	}
	if _, err := env.ledger.ToggleHabitDay(userID, build.ID, "2025-01-08", "maybe"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown outcome, got %v", err)
	}
	if _, err := env.ledger.ToggleHabitDay(userID, build.ID, "2025-13-40", ""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for bad date, got %v", err)
	}

	if acc := env.account(t, userID); acc.XPTotal != 34 || acc.Coins != 4 {
		t.Fatalf("failed calls must not change the account, got %+v", acc)
	}
}

func TestLedgerChecksOwnership(t *testing.T) {
	env := newTestEnv(t)
	owner := env.createUser(t, "owner")
	intruder := env.createUser(t, "intruder")
	habit := env.createHabit(t, owner, "写作", "BUILD", 1)

	if _, err := env.ledger.ToggleHabitDay(intruder, habit.ID, "2025-01-09", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := env.ledger.ToggleHabitDay(owner, habit.ID+100, "2025-01-09", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing habit, got %v", err)
	}
	if _, err := env.ledger.CompleteTodo(owner, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing todo, got %v", err)
	}

	session, err := env.ledger.StartFocus(owner, FocusStartInput{DurationMinutes: 30})
	if err != nil {
		t.Fatalf("start focus: %v", err)
	}
	if _, err := env.ledger.CompleteFocus(intruder, session.ID, FocusCompleteInput{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign session, got %v", err)
	}
	if _, err := env.ledger.CancelFocus(intruder, session.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign session, got %v", err)
	}
}

func TestCompleteTodoToggles(t *testing.T) {
	env := newTestEnv(t)
	userID := env.createUser(t, "dave")

	todo, err := env.todos.Create(userID, TodoInput{Title: "交房租"})
	if err != nil {
		t.Fatalf("create todo: %v", err)
	}
	if todo.Priority != ledger.PriorityMedium || todo.Reward.XP != 10 || todo.Completed {
		t.Fatalf("unexpected new todo: %+v", todo)
	}

	done, err := env.ledger.CompleteTodo(userID, todo.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Todo.CompletedAt == nil || done.Todo.CompletedOn != "2025-01-09" {
		t.Fatalf("expected completion stamped today, got %+v", done.Todo)
	}
	if done.Account.XPTotal != 10 || done.Account.Coins != 1 {
		t.Fatalf("unexpected account: %+v", done.Account)
	}

	undone, err := env.ledger.CompleteTodo(userID, todo.ID)
	if err != nil {
		t.Fatalf("uncomplete: %v", err)
	}
	if undone.Todo.CompletedAt != nil || undone.Todo.XPAwarded != 0 {
		t.Fatalf("expected todo cleared, got %+v", undone.Todo)
	}
	if undone.Account.XPTotal != 0 || undone.Account.Coins != 0 {
		t.Fatalf("expected account back to zero, got %+v", undone.Account)
	}
}

func TestDailyTodoResetsNextDay(t *testing.T) {
	env := newTestEnv(t)
	userID := env.createUser(t, "erin")

	todo, err := env.todos.Create(userID, TodoInput{Title: "喝水", Priority: "HIGH", IsDaily: true})
	if err != nil {
		t.Fatalf("create todo: %v", err)
	}
	if _, err := env.ledger.CompleteTodo(userID, todo.ID); err != nil {
		t.Fatalf("complete today: %v", err)
	}

	env.clock.Advance(24 * time.Hour)

	view, err := env.todos.Get(userID, todo.ID)
	if err != nil {
		t.Fatalf("get todo: %v", err)
	}
	if view.Completed || view.CompletedAt != nil {
		t.Fatalf("daily todo from yesterday should read as incomplete, got %+v", view)
	}
	if view.Reward.XP != 20 || view.Reward.Coins != 2 {
		t.Fatalf("expected prospective reward, got %+v", view.Reward)
	}

	var stored db.Todo
	env.db.First(&stored, todo.ID)
	if stored.CompletedAt == nil {
		t.Fatal("reading must not clear the stored completion")
	}

	result, err := env.ledger.CompleteTodo(userID, todo.ID)
	if err != nil {
		t.Fatalf("complete next day: %v", err)
	}
	if result.Todo.CompletedOn != "2025-01-10" {
		t.Fatalf("expected completion moved to today, got %s", result.Todo.CompletedOn)
	}
	if result.Account.XPTotal != 40 || result.Account.Coins != 4 {
		t.Fatalf("expected both days rewarded, got %+v", result.Account)
	}
}

func TestDailyTodoKeepsEarlierDayInCapTotals(t *testing.T) {
	env := newTestEnv(t)
	userID := env.createUser(t, "grace")

	todo, err := env.todos.Create(userID, TodoInput{Title: "冥想", Priority: "HIGH", IsDaily: true})
	if err != nil {
		t.Fatalf("create todo: %v", err)
	}
	if _, err := env.ledger.CompleteTodo(userID, todo.ID); err != nil {
		t.Fatalf("complete today: %v", err)
	}
	for i := 0; i < 6; i++ {
		habit := env.createHabit(t, userID, fmt.Sprintf("力量训练 %d", i), "BUILD", 3)
		if _, err := env.ledger.ToggleHabitDay(userID, habit.ID, "2025-01-09", ""); err != nil {
			t.Fatalf("toggle habit %d: %v", i, err)
		}
	}

	env.clock.Advance(24 * time.Hour)
	if _, err := env.ledger.CompleteTodo(userID, todo.ID); err != nil {
		t.Fatalf("complete next day: %v", err)
	}

	used, err := ChannelTotal(env.db, userID, ledger.ChannelHabitTodo, "2025-01-09")
	if err != nil {
		t.Fatalf("channel total: %v", err)
	}
	if used.XP != 200 || used.Coins != 20 {
		t.Fatalf("yesterday must still count the earlier todo award, got %+v", used)
	}

	late := env.createHabit(t, userID, "补记", "BUILD", 3)
	backdated, err := env.ledger.ToggleHabitDay(userID, late.ID, "2025-01-09", "")
	if err != nil {
		t.Fatalf("backdated toggle: %v", err)
	}
	if backdated.Log.XPAwarded != 0 {
		t.Fatalf("backdated log must find yesterday full, got %d XP", backdated.Log.XPAwarded)
	}
	if backdated.Account.XPTotal != 220 {
		t.Fatalf("expected 220 XP across both days, got %+v", backdated.Account)
	}

	acc, err := env.todos.Delete(userID, todo.ID)
	if err != nil {
		t.Fatalf("delete todo: %v", err)
	}
	if acc.XPTotal != 180 {
		t.Fatalf("deleting the todo must reverse both days, got %+v", acc)
	}
	var remaining int64
	env.db.Model(&db.TodoCompletion{}).Where("todo_id = ?", todo.ID).Count(&remaining)
	if remaining != 0 {
		t.Fatalf("expected archived completions removed, got %d", remaining)
	}
	used, err = ChannelTotal(env.db, userID, ledger.ChannelHabitTodo, "2025-01-09")
	if err != nil {
		t.Fatalf("channel total: %v", err)
	}
	if used.XP != 180 {
		t.Fatalf("expected 180 XP left on 2025-01-09, got %+v", used)
	}
}

func TestCompleteFocusRejectsEndBeforeStart(t *testing.T) {
	env := newTestEnv(t)
	userID := env.createUser(t, "heidi")

	session, err := env.ledger.StartFocus(userID, FocusStartInput{DurationMinutes: 25})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	early := session.StartedAt.Add(-time.Minute)
	if _, err := env.ledger.CompleteFocus(userID, session.ID, FocusCompleteInput{EndedAt: &early}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}

	ended := session.StartedAt.Add(25 * time.Minute)
	result, err := env.ledger.CompleteFocus(userID, session.ID, FocusCompleteInput{EndedAt: &ended})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !result.Session.Completed || !result.Session.EndedAt.Equal(ended) || result.Account.XPTotal != 10 {
		t.Fatalf("unexpected completion: %+v", result)
	}
}

func TestFocusLifecycle(t *testing.T) {
	env := newTestEnv(t)
	userID := env.createUser(t, "frank")

	if _, err := env.ledger.StartFocus(userID, FocusStartInput{DurationMinutes: 0}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for zero minutes, got %v", err)
	}
	if _, err := env.ledger.StartFocus(userID, FocusStartInput{DurationMinutes: 25, Kind: "NAP"}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for unknown kind, got %v", err)
	}

	session, err := env.ledger.StartFocus(userID, FocusStartInput{DurationMinutes: 45})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if session.Kind != "DEEP" || session.StartedOn != "2025-01-09" {
		t.Fatalf("unexpected session: %+v", session)
	}

	notes := "  <b>写完报告</b> "
	done, err := env.ledger.CompleteFocus(userID, session.ID, FocusCompleteInput{Notes: &notes})
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Session.XPAwarded != 10 || done.Session.CoinsAwarded != 0 {
		t.Fatalf("expected 45 minutes to award 10/0, got %+v", done.Session)
	}
	if done.Session.Notes != "写完报告" {
		t.Fatalf("expected sanitized notes, got %q", done.Session.Notes)
	}
	if done.Account.XPTotal != 10 {
		t.Fatalf("unexpected account: %+v", done.Account)
	}

	_, err = env.ledger.CompleteFocus(userID, session.ID, FocusCompleteInput{})
	if !errors.Is(err, ErrAlreadyTerminal) || !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrAlreadyTerminal, got %v", err)
	}

	if _, err := env.ledger.CancelFocus(userID, session.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition when cancelling completed session, got %v", err)
	}
	if acc := env.account(t, userID); acc.XPTotal != 10 {
		t.Fatalf("rejected cancel must not touch the account, got %+v", acc)
	}

	other, err := env.ledger.StartFocus(userID, FocusStartInput{DurationMinutes: 60, Kind: "light"})
	if err != nil {
		t.Fatalf("start second: %v", err)
	}
	cancelled, err := env.ledger.CancelFocus(userID, other.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !cancelled.Session.Cancelled || cancelled.Session.EndedAt == nil {
		t.Fatalf("expected cancelled session, got %+v", cancelled.Session)
	}
	if _, err := env.ledger.CompleteFocus(userID, other.ID, FocusCompleteInput{}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition for cancelled session, got %v", err)
	}
	if _, err := env.ledger.CancelFocus(userID, other.ID); !errors.Is(err, ErrAlreadyTerminal) {
		t.Fatalf("expected ErrAlreadyTerminal for repeated cancel, got %v", err)
	}
}

func TestFocusChannelHasSeparateCap(t *testing.T) {
	env := newTestEnv(t)
	userID := env.createUser(t, "grace")

	var xp, coins []int
	for i := 0; i < 4; i++ {
		session, err := env.ledger.StartFocus(userID, FocusStartInput{DurationMinutes: 90})
		if err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
		result, err := env.ledger.CompleteFocus(userID, session.ID, FocusCompleteInput{})
		if err != nil {
			t.Fatalf("complete %d: %v", i, err)
		}
		xp = append(xp, result.Session.XPAwarded)
		coins = append(coins, result.Session.CoinsAwarded)
	}

	if fmt.Sprint(xp) != "[30 30 30 10]" {
		t.Fatalf("unexpected xp sequence: %v", xp)
	}
	if fmt.Sprint(coins) != "[2 2 1 0]" {
		t.Fatalf("unexpected coin sequence: %v", coins)
	}

	// 专注用满不影响习惯通道
	habit := env.createHabit(t, userID, "拉伸", "BUILD", 1)
	result, err := env.ledger.ToggleHabitDay(userID, habit.ID, "2025-01-09", "")
	if err != nil {
		t.Fatalf("toggle habit: %v", err)
	}
	if result.Log.XPAwarded != 10 {
		t.Fatalf("habit channel should be independent, got %d", result.Log.XPAwarded)
	}
}

func TestConcurrentTogglesRespectCap(t *testing.T) {
	env := newTestEnv(t)
	userID := env.createUser(t, "heidi")

	habits := make([]*db.Habit, 0, 20)
	for i := 0; i < 20; i++ {
		habits = append(habits, env.createHabit(t, userID, fmt.Sprintf("habit-%d", i), "BUILD", 3))
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(habits))
	for _, habit := range habits {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			if _, err := env.ledger.ToggleHabitDay(userID, id, "2025-01-09", "SUCCESS"); err != nil {
				errs <- err
			}
		}(habit.ID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent toggle failed: %v", err)
	}

	acc := env.account(t, userID)
	if acc.XPTotal != 200 || acc.Coins != 25 {
		t.Fatalf("expected account at daily cap, got %+v", acc)
	}
	if acc.Level != 3 {
		t.Fatalf("expected level 3, got %d", acc.Level)
	}

	total, err := ChannelTotal(env.db, userID, ledger.ChannelHabitTodo, "2025-01-09")
	if err != nil {
		t.Fatalf("channel total: %v", err)
	}
	if total.XP != acc.XPTotal || total.Coins != acc.Coins {
		t.Fatalf("stored awards %+v disagree with account %+v", total, acc)
	}
}

func TestProgressReportsChannelUsage(t *testing.T) {
	env := newTestEnv(t)
	userID := env.createUser(t, "ivan")
	habit := env.createHabit(t, userID, "俯卧撑", "BUILD", 2)

	if _, err := env.ledger.ToggleHabitDay(userID, habit.ID, "2025-01-09", ""); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	view, err := env.ledger.Progress(userID)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if view.Account.XPTotal != 20 || view.Account.Rank != "Ember" {
		t.Fatalf("unexpected account: %+v", view.Account)
	}
	if view.HabitTodo.Used.XP != 20 || view.HabitTodo.Caps.XP != 200 {
		t.Fatalf("unexpected habit channel usage: %+v", view.HabitTodo)
	}
	if view.Focus.Caps.XP != 100 || view.Focus.Used.XP != 0 {
		t.Fatalf("unexpected focus channel usage: %+v", view.Focus)
	}
	if view.NextRank == nil || view.NextRank.Name != "Initiate" {
		t.Fatalf("expected next rank Initiate, got %+v", view.NextRank)
	}
	if view.XPIntoLevel != 20 || view.XPToNextLevel != 80 {
		t.Fatalf("unexpected level progress: %d into, %d to go", view.XPIntoLevel, view.XPToNextLevel)
	}
	midnight := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	if !view.HabitTodo.ResetsAt.Equal(midnight) || !view.Focus.ResetsAt.Equal(midnight) {
		t.Fatalf("expected caps to reset at %s, got %s / %s", midnight, view.HabitTodo.ResetsAt, view.Focus.ResetsAt)
	}
}
