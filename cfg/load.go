package cfg

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bronystylecrazy/tiered/build"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const DefaultEnvPrefix = "TIERED"

type Option interface {
	apply(*configState)
}

type optionFunc func(*configState)

func (f optionFunc) apply(s *configState) { f(s) }

type configState struct {
	configType   string
	envPrefix    string
	keyReplacer  *strings.Replacer
	automaticEnv bool
	optional     bool
	defaults     map[string]any
}

func WithType(kind string) Option {
	return optionFunc(func(s *configState) { s.configType = kind })
}

// WithOptional makes a missing config file yield the defaults instead of an error.
func WithOptional() Option {
	return optionFunc(func(s *configState) { s.optional = true })
}

func WithEnvPrefix(prefix string) Option {
	return optionFunc(func(s *configState) { s.envPrefix = prefix })
}

func WithNoEnv() Option {
	return optionFunc(func(s *configState) {
		s.automaticEnv = false
		s.envPrefix = ""
	})
}

func WithDefault(key string, value any) Option {
	return optionFunc(func(s *configState) { s.defaults[key] = value })
}

func newState(opts []Option) configState {
	s := configState{
		envPrefix:    DefaultEnvPrefix,
		keyReplacer:  strings.NewReplacer(".", "_", "-", "_"),
		automaticEnv: true,
		defaults: map[string]any{
			"lifecycle.name": build.Name,
			"log.level":      "info",
		},
	}
	if build.IsDevelopment() {
		s.defaults["log.level"] = "debug"
	}
	for _, opt := range opts {
		if opt != nil {
			opt.apply(&s)
		}
	}
	return s
}

// Load reads path (TOML, YAML or JSON by extension) with environment overrides
// and decodes it into a validated Config.
func Load(path string, opts ...Option) (*Config, error) {
	state := newState(opts)
	v, err := load(state, path)
	if err != nil {
		return nil, err
	}
	return decodeConfig(v)
}

func decodeConfig(v *viper.Viper) (*Config, error) {
	var out Config
	if err := decode(v, "", &out); err != nil {
		return nil, fmt.Errorf("cfg: decode: %w", err)
	}
	if err := out.Lifecycle.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

func load(cfg configState, path string) (*viper.Viper, error) {
	v := viper.New()
	if cfg.envPrefix != "" {
		v.SetEnvPrefix(cfg.envPrefix)
	}
	if cfg.keyReplacer != nil {
		v.SetEnvKeyReplacer(cfg.keyReplacer)
	}
	if cfg.automaticEnv {
		v.AutomaticEnv()
	}
	if path != "" {
		v.SetConfigFile(path)
	}
	if cfg.configType != "" {
		v.SetConfigType(cfg.configType)
	}
	for k, val := range cfg.defaults {
		v.SetDefault(k, val)
	}
	if path == "" {
		return v, nil
	}
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if cfg.optional && (errors.As(err, &nf) || errors.Is(err, os.ErrNotExist)) {
			return v, nil
		}
		if cleaned, ok := sanitize(path); ok {
			if cfg.configType == "" {
				if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext != "" {
					v.SetConfigType(ext)
				}
			}
			if rerr := v.ReadConfig(bytes.NewReader(cleaned)); rerr == nil {
				return v, nil
			}
		}
		return nil, fmt.Errorf("cfg: read %s: %w", path, err)
	}
	return v, nil
}

// sanitize strips byte order marks and zero width spaces some editors leave
// behind. It reports false when the file needs no cleaning.
func sanitize(path string) ([]byte, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	changed := false
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if i+2 < len(data) && data[i] == 0xEF && data[i+1] == 0xBB && data[i+2] == 0xBF {
			i += 2
			changed = true
			continue
		}
		if i+2 < len(data) && data[i] == 0xE2 && data[i+1] == 0x80 && data[i+2] == 0x8B {
			i += 2
			changed = true
			continue
		}
		out = append(out, data[i])
	}
	if changed {
		return out, true
	}
	return nil, false
}

func decode(v *viper.Viper, key string, out any) error {
	hook := viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	)
	if key == "" {
		return v.Unmarshal(out, hook)
	}
	return v.UnmarshalKey(key, out, hook)
}
