// Package config loads synx daemon settings from YAML or JSON files and
// command line overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/synx/internal/logging"
	"github.com/aretw0/synx/pkg/domain"
)

// Backends understood by Directory.Backend.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config is the daemon configuration.
type Config struct {
	Directory DirectoryConfig `mapstructure:"directory"`
	Dispatch  DispatchConfig  `mapstructure:"dispatch"`
	Log       LogConfig       `mapstructure:"log"`
	HTTP      HTTPConfig      `mapstructure:"http"`
}

// DirectoryConfig selects and sizes the Global Directory.
type DirectoryConfig struct {
	Backend  string      `mapstructure:"backend"`
	Capacity int         `mapstructure:"capacity"`
	Redis    RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// DispatchConfig tunes the object store and sessions.
type DispatchConfig struct {
	MergePolicy    domain.MergePolicy `mapstructure:"merge_policy"`
	MaxCallbacks   int                `mapstructure:"max_callbacks"`
	MaxHandles     int                `mapstructure:"max_handles"`
	PublishRetries int                `mapstructure:"publish_retries"`
	PublishBackoff time.Duration      `mapstructure:"publish_backoff"`
	PollInterval   time.Duration      `mapstructure:"poll_interval"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type HTTPConfig struct {
	// Addr is the listen address. Empty disables the HTTP surface.
	Addr string `mapstructure:"addr"`
	// EnableRecover mounts POST /domains/{domain}/recover. Off by default:
	// recovery normally runs from the platform's reset detection.
	EnableRecover bool `mapstructure:"enable_recover"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Directory: DirectoryConfig{
			Backend:  BackendMemory,
			Capacity: 4096,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "synx:dir:",
			},
		},
		Dispatch: DispatchConfig{
			MergePolicy:    domain.MergeFirstInOrder,
			MaxCallbacks:   1024,
			MaxHandles:     1 << 16,
			PublishRetries: 3,
			PublishBackoff: 5 * time.Millisecond,
			PollInterval:   time.Second,
		},
		Log: LogConfig{Level: "info", Format: "text"},
		HTTP: HTTPConfig{
			Addr: "127.0.0.1:7070",
		},
	}
}

// Load reads path on top of the defaults. A missing file yields the defaults.
// Files ending in .json are parsed as JSON, everything else as YAML.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	raw := map[string]any{}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &raw)
	} else {
		err = yaml.Unmarshal(data, &raw)
	}
	if err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	if err := decode(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return cfg, nil
}

// Apply overlays dotted key overrides such as "dispatch.max_handles=64".
func Apply(cfg *Config, overrides map[string]string) error {
	raw := map[string]any{}
	for key, val := range overrides {
		parts := strings.Split(key, ".")
		m := raw
		for _, p := range parts[:len(parts)-1] {
			next, ok := m[p].(map[string]any)
			if !ok {
				next = map[string]any{}
				m[p] = next
			}
			m = next
		}
		m[parts[len(parts)-1]] = val
	}
	return decode(raw, cfg)
}

// ParseOverrides splits "key=value" pairs.
func ParseOverrides(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid override %q, expected key=value", p)
		}
		out[k] = v
	}
	return out, nil
}

func decode(raw map[string]any, out *Config) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mergePolicyHook,
		),
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

func mergePolicyHook(from, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(domain.MergePolicy("")) || from.Kind() != reflect.String {
		return data, nil
	}
	return domain.MergePolicy(strings.ToLower(data.(string))), nil
}

// Validate reports the first inconsistent setting.
func (c Config) Validate() error {
	switch c.Directory.Backend {
	case BackendMemory, BackendRedis:
	default:
		return fmt.Errorf("directory.backend: unknown backend %q", c.Directory.Backend)
	}
	if c.Directory.Capacity <= 0 {
		return errors.New("directory.capacity must be positive")
	}
	if c.Directory.Backend == BackendRedis && c.Directory.Redis.Addr == "" {
		return errors.New("directory.redis.addr is required for the redis backend")
	}
	switch c.Dispatch.MergePolicy {
	case domain.MergeFirstInOrder, domain.MergeHighestSeverity:
	default:
		return fmt.Errorf("dispatch.merge_policy: unknown policy %q", c.Dispatch.MergePolicy)
	}
	if c.Dispatch.MaxCallbacks <= 0 || c.Dispatch.MaxHandles <= 0 {
		return errors.New("dispatch.max_callbacks and dispatch.max_handles must be positive")
	}
	if c.Dispatch.PublishRetries < 0 || c.Dispatch.PublishBackoff < 0 {
		return errors.New("dispatch.publish_retries and dispatch.publish_backoff must not be negative")
	}
	if c.Dispatch.PollInterval < 0 {
		return errors.New("dispatch.poll_interval must not be negative")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		return fmt.Errorf("log.format: %w", err)
	}
	return nil
}
