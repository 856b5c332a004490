package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger 是全局日志实例，未初始化时各辅助函数静默丢弃日志
var Logger *log.Logger

// Config 描述日志输出方式
type Config struct {
	// Dir 为空时只输出到 stderr，否则额外写入 Dir/forgeledger.log 并按大小轮转
	Dir   string
	Debug bool
	// Output 用于测试替换 stderr
	Output io.Writer
}

// Init 初始化全局日志
func Init(cfg Config) error {
	var writer io.Writer = os.Stderr
	if cfg.Output != nil {
		writer = cfg.Output
	}

	if dir := strings.TrimSpace(cfg.Dir); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		fileWriter := &lumberjack.Logger{
			Filename:   filepath.Join(dir, "forgeledger.log"),
			MaxSize:    10, // MB
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   true,
		}
		writer = io.MultiWriter(writer, fileWriter)
	}

	level := log.InfoLevel
	if cfg.Debug {
		level = log.DebugLevel
	}

	Logger = log.NewWithOptions(writer, log.Options{
		ReportCaller:    cfg.Debug,
		ReportTimestamp: true,
		Level:           level,
		Prefix:          "forgeledger",
	})
	return nil
}

// Debug 输出调试日志
func Debug(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Debug(msg, keyvals...)
	}
}

// Info 输出普通日志
func Info(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Info(msg, keyvals...)
	}
}

// Warn 输出警告
func Warn(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Warn(msg, keyvals...)
	}
}

// Error 输出错误
func Error(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Error(msg, keyvals...)
	}
}

// Fatal 输出错误并退出进程
func Fatal(msg string, keyvals ...interface{}) {
	if Logger != nil {
		Logger.Fatal(msg, keyvals...)
	}
	os.Exit(1)
}
