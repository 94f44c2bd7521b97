package cfg

import (
	"github.com/bronystylecrazy/tiered/log"
	"go.uber.org/zap"
)

// LogLevelReloader returns an onChange callback for Watch that applies the
// reloaded log level to level.
func LogLevelReloader(level zap.AtomicLevel) func(*Config) {
	return func(c *Config) {
		level.SetLevel(log.ParseLevel(c.Log.Level))
	}
}
