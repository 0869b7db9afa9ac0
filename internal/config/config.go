// Package config loads server and CLI settings from an optional YAML file
// overlaid with DROPIN_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	Env        string `yaml:"env"` // development | production
	Addr       string `yaml:"addr"`
	CenterName string `yaml:"center_name"` // shown on donation receipts

	Database struct {
		Path      string `yaml:"path"`
		SlowQuery string `yaml:"slow_query"`
	} `yaml:"database"`

	Persistence struct {
		Disabled  bool   `yaml:"disabled"`
		BaseDelay string `yaml:"base_delay"`
		BulkDelay string `yaml:"bulk_delay"`
	} `yaml:"persistence"`

	KV struct {
		Driver string `yaml:"driver"` // sqlite | postgres | redis | memory
		DSN    string `yaml:"dsn"`
		Prefix string `yaml:"prefix"`
		Redis  struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
		} `yaml:"redis"`
	} `yaml:"kv"`

	Admin struct {
		Email    string `yaml:"email"`
		Password string `yaml:"password"`
	} `yaml:"admin"`

	Email struct {
		ResendKey string `yaml:"resend_key"`
		From      string `yaml:"from"`
	} `yaml:"email"`

	HTTP struct {
		CSRFKey        string   `yaml:"csrf_key"`
		TrustedOrigins []string `yaml:"trusted_origins"`
		SlowRequest    string   `yaml:"slow_request"`
		RateLimit      int      `yaml:"rate_limit"` // requests per minute per IP
	} `yaml:"http"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Load reads path when it exists, applies defaults, then environment overrides.
// A missing file is not an error; a malformed one is.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			slog.Debug("config_file_missing", "path", path)
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(b, &c); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	c.applyEnvOverrides()
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Env == "" {
		c.Env = "development"
	}
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.CenterName == "" {
		c.CenterName = "Drop-in Center"
	}
	if c.Database.Path == "" {
		c.Database.Path = "dropin.db"
	}
	if c.Database.SlowQuery == "" {
		c.Database.SlowQuery = "50ms"
	}
	if c.Persistence.BaseDelay == "" {
		c.Persistence.BaseDelay = "100ms"
	}
	if c.Persistence.BulkDelay == "" {
		c.Persistence.BulkDelay = "500ms"
	}
	if c.KV.Driver == "" {
		c.KV.Driver = "sqlite"
	}
	if c.KV.Prefix == "" {
		c.KV.Prefix = "dropin:"
	}
	if c.Admin.Email == "" {
		c.Admin.Email = "admin@dropin.local"
	}
	if c.Email.From == "" {
		c.Email.From = "Drop-in Center <receipts@dropin.local>"
	}
	if len(c.HTTP.TrustedOrigins) == 0 {
		c.HTTP.TrustedOrigins = []string{"localhost:8080", "127.0.0.1:8080"}
	}
	if c.HTTP.SlowRequest == "" {
		c.HTTP.SlowRequest = "200ms"
	}
	if c.HTTP.RateLimit == 0 {
		c.HTTP.RateLimit = 120
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

func (c *Config) applyEnvOverrides() {
	if v, ok := getEnvStr("DROPIN_ENV"); ok {
		c.Env = strings.ToLower(v)
	}
	if v, ok := getEnvStr("DROPIN_ADDR"); ok {
		c.Addr = v
	}
	if v, ok := getEnvStr("DROPIN_CENTER_NAME"); ok {
		c.CenterName = v
	}
	if v, ok := getEnvStr("DROPIN_DB_PATH"); ok {
		c.Database.Path = v
	}
	if v, ok := getEnvMillis("DROPIN_SLOW_QUERY_MS"); ok {
		c.Database.SlowQuery = v
	}
	if v, ok := getEnvBool("DROPIN_DISABLE_PERSISTENCE"); ok {
		c.Persistence.Disabled = v
	}
	if v, ok := getEnvMillis("DROPIN_PERSIST_BASE_DELAY_MS"); ok {
		c.Persistence.BaseDelay = v
	}
	if v, ok := getEnvMillis("DROPIN_PERSIST_BULK_DELAY_MS"); ok {
		c.Persistence.BulkDelay = v
	}
	if v, ok := getEnvStr("DROPIN_KV_DRIVER"); ok {
		c.KV.Driver = strings.ToLower(v)
	}
	if v, ok := getEnvStr("DROPIN_KV_DSN"); ok {
		c.KV.DSN = v
	}
	if v, ok := getEnvStr("DROPIN_KV_PREFIX"); ok {
		c.KV.Prefix = v
	}
	if v, ok := getEnvStr("DROPIN_REDIS_ADDR"); ok {
		c.KV.Redis.Addr = v
	}
	if v, ok := getEnvStr("DROPIN_REDIS_PASSWORD"); ok {
		c.KV.Redis.Password = v
	}
	if v, ok := getEnvInt("DROPIN_REDIS_DB"); ok {
		c.KV.Redis.DB = v
	}
	if v, ok := getEnvStr("DROPIN_ADMIN_EMAIL"); ok {
		c.Admin.Email = v
	}
	if v, ok := getEnvStr("DROPIN_ADMIN_PASSWORD"); ok {
		c.Admin.Password = v
	}
	if v, ok := getEnvStr("DROPIN_RESEND_KEY"); ok {
		c.Email.ResendKey = v
	}
	if v, ok := getEnvStr("DROPIN_RESEND_FROM"); ok {
		c.Email.From = v
	}
	if v, ok := getEnvStr("DROPIN_CSRF_KEY"); ok {
		c.HTTP.CSRFKey = v
	}
	if v, ok := getEnvMillis("DROPIN_SLOW_REQUEST_MS"); ok {
		c.HTTP.SlowRequest = v
	}
	if v, ok := getEnvInt("DROPIN_RATE_LIMIT"); ok {
		c.HTTP.RateLimit = v
	}
	if v, ok := getEnvStr("DROPIN_TRUSTED_ORIGINS"); ok {
		c.HTTP.TrustedOrigins = strings.Split(v, ",")
	}
	if v, ok := getEnvStr("DROPIN_LOG_LEVEL"); ok {
		c.Log.Level = strings.ToLower(v)
	}
}

// Validate checks the values that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.KV.Driver {
	case "sqlite", "postgres", "redis", "memory":
	default:
		return fmt.Errorf("config: unknown kv driver %q", c.KV.Driver)
	}
	if c.KV.Driver == "postgres" && c.KV.DSN == "" {
		return errors.New("config: kv driver postgres requires a dsn")
	}
	if c.KV.Driver == "redis" && c.KV.Redis.Addr == "" {
		return errors.New("config: kv driver redis requires an address")
	}
	for name, v := range map[string]string{
		"database.slow_query":    c.Database.SlowQuery,
		"persistence.base_delay": c.Persistence.BaseDelay,
		"persistence.bulk_delay": c.Persistence.BulkDelay,
		"http.slow_request":      c.HTTP.SlowRequest,
	} {
		if d, err := time.ParseDuration(v); err != nil || d < 0 {
			return fmt.Errorf("config: %s: invalid duration %q", name, v)
		}
	}
	if c.HTTP.CSRFKey != "" && len(c.HTTP.CSRFKey) != 32 {
		return errors.New("config: DROPIN_CSRF_KEY must be 32 bytes")
	}
	if c.IsProduction() && c.HTTP.CSRFKey == "" {
		return errors.New("config: DROPIN_CSRF_KEY is required in production")
	}
	return nil
}

// IsProduction reports whether Env is production.
func (c *Config) IsProduction() bool { return c.Env == "production" }

// BaseDelay is the write queue's normal debounce.
func (c *Config) BaseDelay() time.Duration { return mustDuration(c.Persistence.BaseDelay) }

// BulkDelay is the write queue's debounce during bulk operations.
func (c *Config) BulkDelay() time.Duration { return mustDuration(c.Persistence.BulkDelay) }

// SlowQuery is the slow-query logging threshold.
func (c *Config) SlowQuery() time.Duration { return mustDuration(c.Database.SlowQuery) }

// SlowRequest is the slow-request logging threshold.
func (c *Config) SlowRequest() time.Duration { return mustDuration(c.HTTP.SlowRequest) }

// LogLevel maps Log.Level onto slog levels; unknown values mean info.
func (c *Config) LogLevel() slog.Level {
	switch c.Log.Level {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// mustDuration is only called on values Validate accepted.
func mustDuration(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

func getEnvStr(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(s); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(s); err == nil {
			return b, true
		}
	}
	return false, false
}

// getEnvMillis reads an integer millisecond value and returns it as a duration string.
func getEnvMillis(key string) (string, bool) {
	if n, ok := getEnvInt(key); ok && n >= 0 {
		return (time.Duration(n) * time.Millisecond).String(), true
	}
	return "", false
}
