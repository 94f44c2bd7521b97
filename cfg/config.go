package cfg

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bronystylecrazy/tiered/lc"
	"github.com/bronystylecrazy/tiered/log"
)

var ErrInvalidConfig = errors.New("cfg: invalid config")

type Config struct {
	Log       log.Config `mapstructure:"log"`
	Lifecycle Lifecycle  `mapstructure:"lifecycle"`
}

// Lifecycle is the static table of managed services and their levels.
type Lifecycle struct {
	Name         string         `mapstructure:"name"`
	StartTimeout time.Duration  `mapstructure:"start_timeout"`
	StopTimeout  time.Duration  `mapstructure:"stop_timeout"`
	Services     []ServiceEntry `mapstructure:"services"`
}

type ServiceEntry struct {
	Name  string `mapstructure:"name"`
	Level int64  `mapstructure:"level"`
}

// Options converts the lifecycle settings into centre options.
func (l Lifecycle) Options() []lc.Option {
	return []lc.Option{
		lc.WithName(l.Name),
		lc.WithStartTimeout(l.StartTimeout),
		lc.WithStopTimeout(l.StopTimeout),
	}
}

// LevelOf returns the configured level of the named service.
func (l Lifecycle) LevelOf(name string) (lc.Level, bool) {
	for _, entry := range l.Services {
		if entry.Name == name {
			return lc.Level(entry.Level), true
		}
	}
	return 0, false
}

func (l Lifecycle) Validate() error {
	if l.StartTimeout < 0 || l.StopTimeout < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalidConfig)
	}
	seen := make(map[string]struct{}, len(l.Services))
	for i, entry := range l.Services {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			return fmt.Errorf("%w: lifecycle.services[%d] has no name", ErrInvalidConfig, i)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("%w: service %q is listed twice", ErrInvalidConfig, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// Registrations builds one service per configured entry with factory and
// registers it at the configured level.
func (l Lifecycle) Registrations(factory func(ServiceEntry) (lc.ManagedService, error)) ([]lc.Registration, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}
	registry := lc.NewRegistry()
	for _, entry := range l.Services {
		svc, err := factory(entry)
		if err != nil {
			return nil, fmt.Errorf("cfg: build service %q: %w", entry.Name, err)
		}
		if err := registry.Register(svc, lc.Level(entry.Level)); err != nil {
			return nil, err
		}
	}
	return registry.Registrations(), nil
}
