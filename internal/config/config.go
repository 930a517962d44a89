package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Store   StoreConfig   `yaml:"store" json:"store"`
	Queue   QueueConfig   `yaml:"queue" json:"queue"`
	Server  ServerConfig  `yaml:"server" json:"server"`
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

type StoreConfig struct {
	// Driver is "redis" or "sqlite".
	Driver string       `yaml:"driver" json:"driver"`
	Redis  RedisConfig  `yaml:"redis" json:"redis"`
	SQLite SQLiteConfig `yaml:"sqlite" json:"sqlite"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr" json:"addr"`
	Password  string `yaml:"password" json:"-"`
	DB        int    `yaml:"db" json:"db"`
	Namespace string `yaml:"namespace" json:"namespace"`
}

type SQLiteConfig struct {
	Path string `yaml:"path" json:"path"`
}

type QueueConfig struct {
	MaxRetries        int           `yaml:"max_retries" json:"max_retries"`
	BackoffBase       float64       `yaml:"backoff_base" json:"backoff_base"`
	BackoffMax        time.Duration `yaml:"backoff_max" json:"backoff_max"`
	PollInterval      time.Duration `yaml:"poll_interval" json:"poll_interval"`
	CommandTimeout    time.Duration `yaml:"command_timeout" json:"command_timeout"`
	Concurrency       int           `yaml:"concurrency" json:"concurrency"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout" json:"visibility_timeout"`
}

type ServerConfig struct {
	Addr       string `yaml:"addr" json:"addr"`
	AuthSecret string `yaml:"auth_secret" json:"-"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

const (
	DriverRedis  = "redis"
	DriverSQLite = "sqlite"
)

// Defaults returns the configuration used when no file or environment overrides exist.
func Defaults() *Config {
	return &Config{
		Store: StoreConfig{
			Driver: DriverRedis,
			Redis: RedisConfig{
				Addr:      "127.0.0.1:6379",
				Namespace: "default",
			},
			SQLite: SQLiteConfig{
				Path: "./jobq.db",
			},
		},
		Queue: QueueConfig{
			MaxRetries:   3,
			BackoffBase:  2.0,
			PollInterval: time.Second,
			Concurrency:  1,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// DefaultPath returns <user config dir>/jobq/config.yaml.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve user config dir: %w", err)
	}
	return filepath.Join(dir, "jobq", "config.yaml"), nil
}

// Load reads the YAML file at path over the defaults, then applies JOBQ_*
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads the YAML file at path over the defaults, ignoring the environment.
func LoadFile(path string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Redacted returns a copy with secrets masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Store.Redis.Password != "" {
		out.Store.Redis.Password = "********"
	}
	if out.Server.AuthSecret != "" {
		out.Server.AuthSecret = "********"
	}
	return &out
}

// Save writes cfg as YAML to path, creating parent directories.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// setter parses a raw value into one config field.
type setter func(c *Config, v string) error

var setters = map[string]setter{
	"store.driver":             func(c *Config, v string) error { c.Store.Driver = v; return nil },
	"store.redis.addr":         func(c *Config, v string) error { c.Store.Redis.Addr = v; return nil },
	"store.redis.password":     func(c *Config, v string) error { c.Store.Redis.Password = v; return nil },
	"store.redis.db":           intField(func(c *Config) *int { return &c.Store.Redis.DB }),
	"store.redis.namespace":    func(c *Config, v string) error { c.Store.Redis.Namespace = v; return nil },
	"store.sqlite.path":        func(c *Config, v string) error { c.Store.SQLite.Path = v; return nil },
	"queue.max_retries":        intField(func(c *Config) *int { return &c.Queue.MaxRetries }),
	"queue.backoff_base":       floatField(func(c *Config) *float64 { return &c.Queue.BackoffBase }),
	"queue.backoff_max":        durationField(func(c *Config) *time.Duration { return &c.Queue.BackoffMax }),
	"queue.poll_interval":      durationField(func(c *Config) *time.Duration { return &c.Queue.PollInterval }),
	"queue.command_timeout":    durationField(func(c *Config) *time.Duration { return &c.Queue.CommandTimeout }),
	"queue.concurrency":        intField(func(c *Config) *int { return &c.Queue.Concurrency }),
	"queue.visibility_timeout": durationField(func(c *Config) *time.Duration { return &c.Queue.VisibilityTimeout }),
	"server.addr":              func(c *Config, v string) error { c.Server.Addr = v; return nil },
	"server.auth_secret":       func(c *Config, v string) error { c.Server.AuthSecret = v; return nil },
	"logging.level":            func(c *Config, v string) error { c.Logging.Level = v; return nil },
	"logging.format":           func(c *Config, v string) error { c.Logging.Format = v; return nil },
}

// aliases keeps the short CLI names working.
var aliases = map[string]string{
	"max-retries":  "queue.max_retries",
	"backoff-base": "queue.backoff_base",
	"concurrency":  "queue.concurrency",
}

// Keys lists the settable keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set assigns value to the dotted key, e.g. "queue.max_retries".
func (c *Config) Set(key, value string) error {
	if full, ok := aliases[key]; ok {
		key = full
	}
	set, ok := setters[key]
	if !ok {
		return fmt.Errorf("unknown config key: %s", key)
	}
	if err := set(c, value); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	env := map[string]string{
		"JOBQ_STORE_DRIVER":       "store.driver",
		"JOBQ_REDIS_ADDR":         "store.redis.addr",
		"JOBQ_REDIS_PASSWORD":     "store.redis.password",
		"JOBQ_REDIS_DB":           "store.redis.db",
		"JOBQ_REDIS_NAMESPACE":    "store.redis.namespace",
		"JOBQ_SQLITE_PATH":        "store.sqlite.path",
		"JOBQ_MAX_RETRIES":        "queue.max_retries",
		"JOBQ_BACKOFF_BASE":       "queue.backoff_base",
		"JOBQ_BACKOFF_MAX":        "queue.backoff_max",
		"JOBQ_POLL_INTERVAL":      "queue.poll_interval",
		"JOBQ_COMMAND_TIMEOUT":    "queue.command_timeout",
		"JOBQ_CONCURRENCY":        "queue.concurrency",
		"JOBQ_VISIBILITY_TIMEOUT": "queue.visibility_timeout",
		"JOBQ_SERVER_ADDR":        "server.addr",
		"JOBQ_AUTH_SECRET":        "server.auth_secret",
		"JOBQ_LOG_LEVEL":          "logging.level",
		"JOBQ_LOG_FORMAT":         "logging.format",
	}
	for name, key := range env {
		v, ok := lookup(name)
		if !ok || v == "" {
			continue
		}
		if err := c.Set(key, v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverRedis:
		if c.Store.Redis.Addr == "" {
			return fmt.Errorf("redis addr is required")
		}
		if c.Store.Redis.DB < 0 {
			return fmt.Errorf("redis db must be non-negative")
		}
	case DriverSQLite:
		if c.Store.SQLite.Path == "" {
			return fmt.Errorf("sqlite path is required")
		}
	default:
		return fmt.Errorf("invalid store driver: %s (valid: redis, sqlite)", c.Store.Driver)
	}

	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("max retries must be non-negative")
	}
	if b := c.Queue.BackoffBase; math.IsNaN(b) || math.IsInf(b, 0) || b < 1 {
		return fmt.Errorf("backoff base must be a finite number >= 1, got %v", b)
	}
	if c.Queue.BackoffMax < 0 {
		return fmt.Errorf("backoff max must be non-negative")
	}
	if c.Queue.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.Queue.CommandTimeout < 0 {
		return fmt.Errorf("command timeout must be non-negative")
	}
	if c.Queue.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	if c.Queue.VisibilityTimeout < 0 {
		return fmt.Errorf("visibility timeout must be non-negative")
	}

	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}

	validFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (valid: json, console)", c.Logging.Format)
	}
	return nil
}

func intField(field func(*Config) *int) setter {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*field(c) = n
		return nil
	}
}

func floatField(field func(*Config) *float64) setter {
	return func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*field(c) = f
		return nil
	}
}

func durationField(field func(*Config) *time.Duration) setter {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}
