package log

import (
	"fmt"
	"strings"

	"github.com/bronystylecrazy/tiered/build"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Level      string   `mapstructure:"level"`
	DropFields []string `mapstructure:"drop_fields"`
}

// ParseLevel maps a level name to a zapcore.Level. Unknown names map to the
// build mode default: debug in development, info in production.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "fatal":
		return zapcore.FatalLevel
	}
	if build.IsDevelopment() {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}

// New builds a logger whose level can be changed later through the returned
// AtomicLevel.
func New(cfg Config) (*zap.Logger, zap.AtomicLevel, error) {
	var zapConfig zap.Config
	if build.IsDevelopment() {
		zapConfig = zap.NewDevelopmentConfig()
		zapConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	} else {
		zapConfig = zap.NewProductionConfig()
	}
	zapConfig.Level = zap.NewAtomicLevelAt(ParseLevel(cfg.Level))

	var opts []zap.Option
	if len(cfg.DropFields) > 0 {
		opts = append(opts, zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return DropFieldsCore(core, cfg.DropFields...)
		}))
	}
	logger, err := zapConfig.Build(opts...)
	if err != nil {
		return nil, zapConfig.Level, fmt.Errorf("log: build logger: %w", err)
	}
	return logger, zapConfig.Level, nil
}

func NewEventLogger(log *zap.Logger) fxevent.Logger {
	return &fxevent.ZapLogger{Logger: log}
}
