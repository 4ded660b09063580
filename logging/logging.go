// Package logging builds the zap logger used across propctl.
//
// Without a log file, human readable output goes to stderr. With
// GlobalLog.Filename set, JSON lines go to a lumberjack rotated file.
package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"propctl/config"
)

// New returns a logger configured from cfg. The returned close function
// flushes and releases the log file.
func New(cfg *config.GlobalLogConfig) (*zap.Logger, func() error) {
	level := zapcore.InfoLevel
	if cfg != nil && cfg.Verbose {
		level = zapcore.DebugLevel
	}

	if cfg == nil || cfg.Filename == "" {
		return newConsole(os.Stderr, level), func() error { return nil }
	}

	lj := &lumberjack.Logger{
		Filename:   cfg.Filename,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	logger := newJSON(lj, level)
	return logger, func() error {
		_ = logger.Sync()
		return lj.Close()
	}
}

func newConsole(w io.Writer, level zapcore.Level) *zap.Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:          "ts",
		LevelKey:         "level",
		MessageKey:       "msg",
		EncodeTime:       zapcore.TimeEncoderOfLayout("15:04:05.000"),
		EncodeLevel:      zapcore.CapitalLevelEncoder,
		ConsoleSeparator: " ",
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(w), level)
	return zap.New(core)
}

func newJSON(w io.Writer, level zapcore.Level) *zap.Logger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(w), level)
	return zap.New(core)
}
