package models

import (
	"strings"
	"time"
)

// SecurityConfig holds the shared secret, IP allowlist and rate-limit
// settings the webhook gate enforces.
type SecurityConfig struct {
	Secret          string        `json:"-"`
	AllowedIPs      []string      `json:"allowed_ips"` // literal IPs or CIDR prefixes
	RateLimitWindow time.Duration `json:"rate_limit_window"`
	RateLimitMax    int           `json:"rate_limit_max"`
	BlockDuration   time.Duration `json:"block_duration"`
}

// LoggerConfig bounds the audit log and controls payload sanitization.
type LoggerConfig struct {
	MaxEntries      int      `json:"max_entries"`
	SensitiveFields []string `json:"sensitive_fields"`
	IncludePayload  bool     `json:"include_payload"`
	TopN            int      `json:"top_n"`
}

// RuntimeConfig is the single configuration value in force at a time.
type RuntimeConfig struct {
	Security SecurityConfig `json:"security"`
	Logger   LoggerConfig   `json:"logger"`
}

// DefaultSensitiveFields are redacted from audited payloads when no list is
// configured. An explicit empty list turns redaction off.
var DefaultSensitiveFields = []string{"secret", "token", "password", "authorization", "apiKey", "api_key"}

// Clone returns a deep copy so callers never share slices with the store.
func (c RuntimeConfig) Clone() RuntimeConfig {
	out := c
	out.Security.AllowedIPs = cloneStrings(c.Security.AllowedIPs)
	out.Logger.SensitiveFields = cloneStrings(c.Logger.SensitiveFields)
	return out
}

// Normalize trims list entries and drops blanks. An empty allowlist becomes
// nil; a nil sensitive field list becomes DefaultSensitiveFields while an
// explicit empty one stays empty.
func (c RuntimeConfig) Normalize() RuntimeConfig {
	out := c.Clone()
	out.Security.Secret = strings.TrimSpace(out.Security.Secret)
	out.Security.AllowedIPs = trimStrings(out.Security.AllowedIPs)
	if out.Logger.SensitiveFields == nil {
		out.Logger.SensitiveFields = cloneStrings(DefaultSensitiveFields)
	} else {
		out.Logger.SensitiveFields = append([]string{}, trimStrings(out.Logger.SensitiveFields)...)
	}
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func trimStrings(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// SecuritySummary is the textual view of SecurityConfig used by config
// export/import. Durations are carried in milliseconds.
type SecuritySummary struct {
	Secret          string   `json:"secret" yaml:"secret"`
	AllowedIPs      []string `json:"allowedIps" yaml:"allowedIps"`
	WindowMS        int64    `json:"windowMs" yaml:"windowMs"`
	MaxRequests     int      `json:"maxRequests" yaml:"maxRequests"`
	BlockDurationMS int64    `json:"blockDurationMs" yaml:"blockDurationMs"`
}

// LoggerSummary is the textual view of LoggerConfig.
type LoggerSummary struct {
	MaxEntries      int      `json:"maxEntries" yaml:"maxEntries"`
	SensitiveFields []string `json:"sensitiveFields" yaml:"sensitiveFields"`
	IncludePayload  bool     `json:"includePayload" yaml:"includePayload"`
	TopN            int      `json:"topN" yaml:"topN"`
}

// ConfigExport is the document produced by a config export.
type ConfigExport struct {
	Version    int             `json:"version" yaml:"version"`
	ExportedAt time.Time       `json:"exportedAt" yaml:"exportedAt"`
	Security   SecuritySummary `json:"security" yaml:"security"`
	Logger     LoggerSummary   `json:"logger" yaml:"logger"`
}

// Summary converts the runtime config into its textual view.
func (c RuntimeConfig) Summary() (SecuritySummary, LoggerSummary) {
	c = c.Clone()
	return SecuritySummary{
			Secret:          c.Security.Secret,
			AllowedIPs:      c.Security.AllowedIPs,
			WindowMS:        c.Security.RateLimitWindow.Milliseconds(),
			MaxRequests:     c.Security.RateLimitMax,
			BlockDurationMS: c.Security.BlockDuration.Milliseconds(),
		}, LoggerSummary{
			MaxEntries:      c.Logger.MaxEntries,
			SensitiveFields: c.Logger.SensitiveFields,
			IncludePayload:  c.Logger.IncludePayload,
			TopN:            c.Logger.TopN,
		}
}

// RuntimeConfig converts an export document back into a runtime config.
func (e ConfigExport) RuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		Security: SecurityConfig{
			Secret:          e.Security.Secret,
			AllowedIPs:      e.Security.AllowedIPs,
			RateLimitWindow: time.Duration(e.Security.WindowMS) * time.Millisecond,
			RateLimitMax:    e.Security.MaxRequests,
			BlockDuration:   time.Duration(e.Security.BlockDurationMS) * time.Millisecond,
		},
		Logger: LoggerConfig{
			MaxEntries:      e.Logger.MaxEntries,
			SensitiveFields: e.Logger.SensitiveFields,
			IncludePayload:  e.Logger.IncludePayload,
			TopN:            e.Logger.TopN,
		},
	}.Normalize()
}
