package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger = zap.NewNop()

// Init builds the global logger from LOG_LEVEL / LOG_FORMAT.
func Init() {
	level := parseLevel(os.Getenv("LOG_LEVEL"))

	var encoder zapcore.Encoder
	switch strings.ToLower(os.Getenv("LOG_FORMAT")) {
	case "json":
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.ISO8601TimeEncoder
		encoder = zapcore.NewJSONEncoder(cfg)
	default:
		cfg := zap.NewProductionEncoderConfig()
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.ConsoleSeparator = " | "
		encoder = zapcore.NewConsoleEncoder(cfg)
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), level)
	logger = zap.New(core, zap.AddStacktrace(zapcore.ErrorLevel))
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func Debug(msg string, fields ...zap.Field) { logger.Debug(msg, fields...) }

func Info(msg string, fields ...zap.Field) { logger.Info(msg, fields...) }

func Warn(msg string, fields ...zap.Field) { logger.Warn(msg, fields...) }

func Error(msg string, fields ...zap.Field) { logger.Error(msg, fields...) }

func Fatal(msg string, fields ...zap.Field) { logger.Fatal(msg, fields...) }

// Sync flushes buffered entries. Safe to call on shutdown.
func Sync() { _ = logger.Sync() }
