package service

import (
	"strings"
	"testing"
	"time"

	"github.com/forgeledger/internal/calendar"
	"github.com/forgeledger/internal/db"
	"github.com/forgeledger/internal/ledger"
	"gorm.io/gorm"
)

// 2025-01-09 是周四
var testNow = time.Date(2025, 1, 9, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	db     *gorm.DB
	clock  *calendar.FakeClock
	ledger *LedgerService
	habits *HabitService
	todos  *TodoService
	focus  *FocusService
	stats  *StatsService
	auth   *AuthService
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	gdb, err := db.Open("file:"+name+"?mode=memory&cache=shared", true)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gdb
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gdb := setupTestDB(t)
	clock := calendar.NewFakeClock(testNow)
	gdb.Config.NowFunc = func() time.Time { return clock.Now() }

	ledgerService := NewLedgerService(gdb, calendar.NewZone(time.UTC, clock), ledger.DefaultCaps)
	return &testEnv{
		db:     gdb,
		clock:  clock,
		ledger: ledgerService,
		habits: NewHabitService(gdb, ledgerService),
		todos:  NewTodoService(gdb, ledgerService),
		focus:  NewFocusService(gdb, ledgerService),
		stats:  NewStatsService(gdb, ledgerService, NewStatsCache(64, time.Minute)),
		auth:   NewAuthService(gdb),
	}
}

func (e *testEnv) createUser(t *testing.T, username string) uint {
	t.Helper()
	user := db.User{Username: username, Password: "not-a-hash"}
	if err := e.db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user.ID
}

func (e *testEnv) createHabit(t *testing.T, userID uint, title, kind string, difficulty int) *db.Habit {
	t.Helper()
	habit, err := e.habits.Create(userID, HabitInput{Title: title, Kind: kind, Difficulty: difficulty})
	if err != nil {
		t.Fatalf("create habit: %v", err)
	}
	return habit
}

func (e *testEnv) account(t *testing.T, userID uint) ledger.Account {
	t.Helper()
	acc, err := e.ledger.Account(userID)
	if err != nil {
		t.Fatalf("load account: %v", err)
	}
	return acc
}
