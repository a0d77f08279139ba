package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Wikid82/revalidator/internal/models"
	"github.com/Wikid82/revalidator/internal/revalidator"
)

// EnvPrefix is prepended to every environment variable. Nested keys use
// underscores, so "security.secret" is read from REVALIDATE_SECURITY_SECRET.
const EnvPrefix = "REVALIDATE"

// Config captures runtime configuration sourced from environment variables
// and an optional YAML file.
type Config struct {
	Environment    string   `mapstructure:"env"`
	HTTPPort       string   `mapstructure:"http_port"`
	Debug          bool     `mapstructure:"debug"`
	LogDir         string   `mapstructure:"log_dir"`
	TrustedProxies []string `mapstructure:"trusted_proxies"`

	Security     SecurityConfig     `mapstructure:"security"`
	Audit        AuditConfig        `mapstructure:"audit"`
	Invalidation InvalidationConfig `mapstructure:"invalidation"`
	Notify       NotifyConfig       `mapstructure:"notify"`

	// Rules extend the built-in revalidation rule table. File only.
	Rules []revalidator.RuleSpec `mapstructure:"rules"`
}

// SecurityConfig seeds the webhook gate.
type SecurityConfig struct {
	Secret          string        `mapstructure:"secret"`
	AllowedIPs      []string      `mapstructure:"allowed_ips"`
	RateLimitWindow time.Duration `mapstructure:"rate_limit_window"`
	RateLimitMax    int           `mapstructure:"rate_limit_max"`
	BlockDuration   time.Duration `mapstructure:"block_duration"`
}

// AuditConfig seeds the in-memory audit log.
type AuditConfig struct {
	MaxEntries      int      `mapstructure:"max_entries"`
	SensitiveFields []string `mapstructure:"sensitive_fields"`
	IncludePayload  bool     `mapstructure:"include_payload"`
	TopN            int      `mapstructure:"top_n"`
}

// InvalidationConfig describes how cache keys are expired on the frontend.
type InvalidationConfig struct {
	TargetURL    string        `mapstructure:"target_url"`
	TargetSecret string        `mapstructure:"target_secret"`
	SecretHeader string        `mapstructure:"secret_header"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Concurrency  int           `mapstructure:"concurrency"`
}

// NotifyConfig points failure alerts at a shoutrrr URL. Empty disables alerts.
type NotifyConfig struct {
	URL string `mapstructure:"url"`
}

// IsDevelopment reports whether the service runs in development mode.
func (c Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Runtime returns the initial value for the config store.
func (c Config) Runtime() models.RuntimeConfig {
	return models.RuntimeConfig{
		Security: models.SecurityConfig{
			Secret:          c.Security.Secret,
			AllowedIPs:      c.Security.AllowedIPs,
			RateLimitWindow: c.Security.RateLimitWindow,
			RateLimitMax:    c.Security.RateLimitMax,
			BlockDuration:   c.Security.BlockDuration,
		},
		Logger: models.LoggerConfig{
			MaxEntries:      c.Audit.MaxEntries,
			SensitiveFields: c.Audit.SensitiveFields,
			IncludePayload:  c.Audit.IncludePayload,
			TopN:            c.Audit.TopN,
		},
	}.Normalize()
}

// Load reads env vars, the optional config file, and falls back to defaults.
// When path is empty a "revalidator.yaml" in the working directory is used
// if present.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("revalidator")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.TrustedProxies = splitList(cfg.TrustedProxies)
	cfg.Security.AllowedIPs = splitList(cfg.Security.AllowedIPs)
	cfg.Audit.SensitiveFields = splitList(cfg.Audit.SensitiveFields)

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "production")
	v.SetDefault("http_port", "8080")
	v.SetDefault("debug", false)
	v.SetDefault("log_dir", "data/logs")
	v.SetDefault("trusted_proxies", []string{})

	v.SetDefault("security.secret", "")
	v.SetDefault("security.allowed_ips", []string{})
	v.SetDefault("security.rate_limit_window", time.Minute)
	v.SetDefault("security.rate_limit_max", 60)
	v.SetDefault("security.block_duration", time.Duration(0))

	v.SetDefault("audit.max_entries", 1000)
	v.SetDefault("audit.sensitive_fields", models.DefaultSensitiveFields)
	v.SetDefault("audit.include_payload", true)
	v.SetDefault("audit.top_n", 5)

	v.SetDefault("invalidation.target_url", "")
	v.SetDefault("invalidation.target_secret", "")
	v.SetDefault("invalidation.secret_header", "X-Revalidate-Secret")
	v.SetDefault("invalidation.timeout", 5*time.Second)
	v.SetDefault("invalidation.concurrency", 8)

	v.SetDefault("notify.url", "")
}

// splitList flattens comma-separated entries; env values arrive as one string.
// An explicitly empty list stays non-nil.
func splitList(in []string) []string {
	if in == nil {
		return nil
	}
	out := []string{}
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
