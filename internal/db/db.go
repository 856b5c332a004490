package db

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB 是一个全局的数据库连接实例
var DB *gorm.DB

// Init 初始化数据库连接并执行自动迁移。
// databasePath 为空时将回退到默认值 forgeledger.db。
func Init(databasePath string) error {
	path := strings.TrimSpace(databasePath)
	if path == "" {
		path = "forgeledger.db"
	}

	if err := ensureParentDir(path); err != nil {
		return err
	}

	gdb, err := Open(path, false)
	if err != nil {
		return err
	}
	DB = gdb
	return nil
}

// Open 打开 SQLite 连接并完成迁移，测试与命令行工具可以直接使用它拿到独立实例。
func Open(dsn string, silent bool) (*gorm.DB, error) {
	cfg := &gorm.Config{}
	if silent {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
	}

	gdb, err := gorm.Open(sqlite.Open(dsn), cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite 只允许一个写者，单连接让账本事务天然串行
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}

// Migrate 为核心模型创建或更新表结构
func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&User{},
		&Progress{},
		&Habit{},
		&HabitLog{},
		&Todo{},
		&TodoCompletion{},
		&FocusSession{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	// 早期版本的习惯类型使用 FORGE/PURGE
	if err := gdb.Model(&Habit{}).Where("kind = ?", "FORGE").Update("kind", "BUILD").Error; err != nil {
		return err
	}
	if err := gdb.Model(&Habit{}).Where("kind = ?", "PURGE").Update("kind", "BREAK").Error; err != nil {
		return err
	}
	return nil
}

func ensureParentDir(path string) error {
	if strings.HasPrefix(path, "file:") {
		return nil
	}

	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}

	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return errors.New("database path parent is not a directory")
		}
		return nil
	}

	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}

	return err
}
