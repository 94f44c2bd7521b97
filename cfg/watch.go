package cfg

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const defaultWatchDebounce = 200 * time.Millisecond

// Watch loads path and reloads it whenever the file changes, calling onChange
// with every successfully decoded revision that differs from the last one.
// The initial config is returned; onChange is not called for it.
//
// Once ctx is done a pending reload is cancelled and later file events are
// ignored. viper offers no way to close its fsnotify watcher, so that
// goroutine lives until the process exits.
func Watch(ctx context.Context, path string, logger *zap.Logger, onChange func(*Config), opts ...Option) (*Config, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	v, err := load(newState(opts), path)
	if err != nil {
		return nil, err
	}
	initial, err := decodeConfig(v)
	if err != nil {
		return nil, err
	}
	handler := changeHandler(v, logger, onChange)
	d := &debouncer{delay: defaultWatchDebounce}
	v.OnConfigChange(func(e fsnotify.Event) {
		if ctx.Err() != nil {
			return
		}
		d.schedule(func() {
			if ctx.Err() == nil {
				handler(e)
			}
		})
	})
	context.AfterFunc(ctx, d.stop)
	v.WatchConfig()
	return initial, nil
}

// debouncer runs only the last function scheduled within delay.
type debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

func (d *debouncer) schedule(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, fn)
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}

func changeHandler(v *viper.Viper, logger *zap.Logger, onChange func(*Config)) func(fsnotify.Event) {
	var mu sync.Mutex
	last := snapshot(v)
	return func(e fsnotify.Event) {
		mu.Lock()
		defer mu.Unlock()
		next := snapshot(v)
		if next == last {
			return
		}
		cfg, err := decodeConfig(v)
		if err != nil {
			logger.Warn("config reload rejected", zap.String("file", e.Name), zap.Error(err))
			return
		}
		last = next
		logger.Info("config changed", zap.String("file", e.Name), zap.String("op", e.Op.String()))
		if onChange != nil {
			onChange(cfg)
		}
	}
}

func snapshot(v *viper.Viper) string {
	return fmt.Sprintf("%v", v.AllSettings())
}
