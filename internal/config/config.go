// Package config loads the proxy configuration from an optional YAML
// file, a .env file and SIGNPROXY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// SIGNPROXY_SERVER_PORT for server.port.
const EnvPrefix = "SIGNPROXY"

var (
	ErrBackendURL    = errors.New("config: backend.url must be an absolute http(s) URL")
	ErrBackendSecret = errors.New("config: backend.secret is required")
	ErrLogLevel      = errors.New("config: logging.level must be one of debug, info, warn, error")
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Backend     BackendConfig     `mapstructure:"backend"`
	CORS        CORSConfig        `mapstructure:"cors"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Limits      LimitsConfig      `mapstructure:"limits"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Debug       DebugConfig       `mapstructure:"debug"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// HSTSMaxAge sets Strict-Transport-Security in seconds; zero disables it.
	HSTSMaxAge int `mapstructure:"hsts_max_age"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type BackendConfig struct {
	URL     string        `mapstructure:"url"`
	Secret  string        `mapstructure:"secret"`
	Timeout time.Duration `mapstructure:"timeout"`

	// ASCIIEscape escapes non-ASCII characters in the signed payload,
	// for verifiers that serialize with ensure_ascii.
	ASCIIEscape bool `mapstructure:"ascii_escape"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// Enabled reports whether rate limiting is on.
func (r RateLimitConfig) Enabled() bool {
	return r.RequestsPerSecond > 0 && r.Burst > 0
}

type LimitsConfig struct {
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	BufferSize int    `mapstructure:"buffer_size"`
}

type MaintenanceConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	IndexPath string `mapstructure:"index_path"`
}

type DebugConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.hsts_max_age", 0)

	v.SetDefault("backend.url", "https://api.moddy.app")
	v.SetDefault("backend.secret", "")
	v.SetDefault("backend.timeout", 10*time.Second)
	v.SetDefault("backend.ascii_escape", false)

	v.SetDefault("cors.allowed_origins", []string{})

	v.SetDefault("rate_limit.requests_per_second", 10.0)
	v.SetDefault("rate_limit.burst", 20)

	v.SetDefault("limits.max_body_bytes", 1<<20)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file_path", "")
	v.SetDefault("logging.buffer_size", 100)

	v.SetDefault("maintenance.enabled", false)
	v.SetDefault("maintenance.index_path", "app/index.html")

	v.SetDefault("debug.enabled", false)
}

// Load reads path (skipped when empty) and applies environment
// overrides. API_URL and API_KEY are accepted for backend.url and
// backend.secret so existing deployments keep working.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("backend.url", EnvPrefix+"_BACKEND_URL", "API_URL")
	_ = v.BindEnv("backend.secret", EnvPrefix+"_BACKEND_SECRET", "API_KEY")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadDotEnv loads .env style files into the process environment
// without overriding variables that are already set. Missing files are
// skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	return nil
}

// Validate checks the settings the proxy cannot run without.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrBackendURL
	}

	if c.Backend.Secret == "" {
		return ErrBackendSecret
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return ErrLogLevel
	}

	return nil
}

// Redacted returns the settings safe to expose on the debug endpoint.
// The secret is reduced to whether one is configured.
func (c *Config) Redacted() map[string]any {
	return map[string]any{
		"server.addr":                    c.Server.Addr(),
		"backend.url":                    c.Backend.URL,
		"backend.secret_configured":      c.Backend.Secret != "",
		"backend.timeout":                c.Backend.Timeout.String(),
		"backend.ascii_escape":           c.Backend.ASCIIEscape,
		"cors.allowed_origins":           c.CORS.AllowedOrigins,
		"rate_limit.requests_per_second": c.RateLimit.RequestsPerSecond,
		"rate_limit.burst":               c.RateLimit.Burst,
		"limits.max_body_bytes":          c.Limits.MaxBodyBytes,
		"logging.level":                  c.Logging.Level,
		"logging.format":                 c.Logging.Format,
		"maintenance.enabled":            c.Maintenance.Enabled,
		"debug.enabled":                  c.Debug.Enabled,
	}
}
