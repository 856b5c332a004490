package main

import (
	"errors"
	"testing"
	"time"

	"github.com/forgeledger/internal/db"
	"github.com/forgeledger/internal/ledger"
	"github.com/forgeledger/internal/service"
	"gorm.io/gorm"
)

func setupSeedTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	gdb, err := db.Open("file:demo-seed?mode=memory&cache=shared", true)
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return gdb
}

func TestSeedDemoDataRespectsDailyCaps(t *testing.T) {
	gdb := setupSeedTestDB(t)
	now := time.Date(2025, 3, 31, 20, 0, 0, 0, time.UTC)

	summary, err := seedDemoData(gdb, time.UTC, now, 30)
	if err != nil {
		t.Fatalf("seedDemoData returned error: %v", err)
	}
	if summary.Habits != 3 || summary.Todos != 2 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.FocusSessions != 23 {
		t.Fatalf("expected 23 focus sessions, got %d", summary.FocusSessions)
	}

	var logCount int64
	if err := gdb.Model(&db.HabitLog{}).Where("user_id = ?", summary.UserID).Count(&logCount).Error; err != nil {
		t.Fatalf("count logs: %v", err)
	}
	if int(logCount) != summary.Logs {
		t.Fatalf("expected %d logs, got %d", summary.Logs, logCount)
	}

	var days []string
	if err := gdb.Model(&db.HabitLog{}).Where("user_id = ?", summary.UserID).Distinct("log_date").Pluck("log_date", &days).Error; err != nil {
		t.Fatalf("list days: %v", err)
	}
	if len(days) != 30 || days[0] < "2025-03-02" {
		t.Fatalf("unexpected seeded days: %d starting %v", len(days), days)
	}
	for _, day := range days {
		used, err := service.ChannelTotal(gdb, summary.UserID, ledger.ChannelHabitTodo, day)
		if err != nil {
			t.Fatalf("channel total: %v", err)
		}
		if used.XP > ledger.DefaultCaps.HabitTodo.XP || used.Coins > ledger.DefaultCaps.HabitTodo.Coins {
			t.Fatalf("day %s exceeds cap: %+v", day, used)
		}
	}

	var progress db.Progress
	if err := gdb.Where("user_id = ?", summary.UserID).First(&progress).Error; err != nil {
		t.Fatalf("load progress: %v", err)
	}
	if progress.XPTotal != summary.Account.XPTotal || progress.XPTotal == 0 {
		t.Fatalf("progress row %+v does not match summary %+v", progress, summary.Account)
	}

	if _, err := seedDemoData(gdb, time.UTC, now, 30); !errors.Is(err, errDemoUserExists) {
		t.Fatalf("expected errDemoUserExists on second run, got %v", err)
	}
}
