package main

import (
	"github.com/forgeledger/internal/calendar"
	"github.com/forgeledger/internal/config"
	"github.com/forgeledger/internal/db"
	"github.com/forgeledger/internal/handler"
	"github.com/forgeledger/internal/ledger"
	"github.com/forgeledger/internal/logger"
	"github.com/forgeledger/internal/router"
	"github.com/forgeledger/internal/service"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg := config.Load()

	if err := logger.Init(logger.Config{Dir: cfg.LogDir, Debug: cfg.LogDebug}); err != nil {
		panic(err)
	}
	for _, warning := range cfg.Warnings {
		logger.Warn("config fallback", "detail", warning)
	}

	gin.SetMode(cfg.GinMode)

	// 初始化数据库
	if err := db.Init(cfg.DatabasePath); err != nil {
		logger.Fatal("failed to initialize database", "path", cfg.DatabasePath, "err", err)
	}
	if created, err := db.BackfillProgress(db.DB); err != nil {
		logger.Fatal("failed to backfill progress", "err", err)
	} else if created > 0 {
		logger.Info("backfilled progress rows", "count", created)
	}

	zone, err := calendar.LoadZone(cfg.Timezone, calendar.SystemClock{})
	if err != nil {
		logger.Fatal("invalid timezone", "timezone", cfg.Timezone, "err", err)
	}

	api := handler.NewAPI(db.DB, handler.Options{
		Zone: zone,
		Caps: ledger.CapTable{
			HabitTodo: ledger.Caps{XP: cfg.DailyXPCap, Coins: cfg.DailyCoinsCap},
			Focus:     ledger.Caps{XP: cfg.FocusDailyXPCap, Coins: cfg.FocusDailyCoinsCap},
		},
		Cache:   service.NewStatsCache(cfg.StatsCacheSize, cfg.StatsCacheTTL),
		Limiter: service.NewRateLimiter(cfg.LoginRateLimit, cfg.LoginRateWindow),
	})

	// 设置并运行 Gin 服务器
	r := router.SetupRouter(api, cfg.SessionSecret)
	logger.Info("server starting", "addr", cfg.ListenAddr, "timezone", cfg.Timezone)
	if err := r.Run(cfg.ListenAddr); err != nil {
		logger.Fatal("failed to run server", "err", err)
	}
}
