package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr    string
	Port          string
	DatabasePath  string
	SessionSecret string
	GinMode       string
	Timezone      string

	DailyXPCap         int
	DailyCoinsCap      int
	FocusDailyXPCap    int
	FocusDailyCoinsCap int

	LogDir   string
	LogDebug bool

	StatsCacheSize  int
	StatsCacheTTL   time.Duration
	LoginRateLimit  int
	LoginRateWindow time.Duration

	// Warnings 记录被回退为默认值的配置项，由调用方写入日志
	Warnings []string
}

// Load 从环境变量读取应用配置，并为缺失项提供安全的默认值。
func Load() AppConfig {
	cfg := AppConfig{}

	cfg.Port = stringEnv("PORT", "8080")
	cfg.ListenAddr = stringEnv("LISTEN_ADDR", fmt.Sprintf(":%s", cfg.Port))
	cfg.DatabasePath = stringEnv("DATABASE_PATH", "forgeledger.db")
	cfg.SessionSecret = stringEnv("SESSION_SECRET", "forgeledger-dev-secret")
	cfg.GinMode = stringEnv("GIN_MODE", "release")
	cfg.Timezone = stringEnv("APP_TIMEZONE", "UTC")

	cfg.DailyXPCap = cfg.intEnv("DAILY_XP_CAP", 200)
	cfg.DailyCoinsCap = cfg.intEnv("DAILY_COINS_CAP", 25)
	cfg.FocusDailyXPCap = cfg.intEnv("FOCUS_DAILY_XP_CAP", 100)
	cfg.FocusDailyCoinsCap = cfg.intEnv("FOCUS_DAILY_COINS_CAP", 5)

	cfg.LogDir = stringEnv("LOG_DIR", "")
	cfg.LogDebug = cfg.boolEnv("LOG_DEBUG", false)

	cfg.StatsCacheSize = cfg.intEnv("STATS_CACHE_SIZE", 512)
	cfg.StatsCacheTTL = cfg.durationEnv("STATS_CACHE_TTL", 2*time.Minute)
	cfg.LoginRateLimit = cfg.intEnv("LOGIN_RATE_LIMIT", 20)
	cfg.LoginRateWindow = cfg.durationEnv("LOGIN_RATE_WINDOW", 10*time.Minute)

	return cfg
}

func stringEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func (c *AppConfig) intEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		c.Warnings = append(c.Warnings, fmt.Sprintf("%s=%q is not a non-negative integer, using %d", key, raw, fallback))
		return fallback
	}
	return value
}

func (c *AppConfig) boolEnv(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		c.Warnings = append(c.Warnings, fmt.Sprintf("%s=%q is not a boolean, using %t", key, raw, fallback))
		return fallback
	}
	return value
}

func (c *AppConfig) durationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		c.Warnings = append(c.Warnings, fmt.Sprintf("%s=%q is not a positive duration, using %s", key, raw, fallback))
		return fallback
	}
	return value
}
