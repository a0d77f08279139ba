package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/Wikid82/revalidator/internal/logger"
	"github.com/Wikid82/revalidator/internal/models"
	"github.com/Wikid82/revalidator/internal/util"
)

// ConfigExportVersion is stamped into every exported document.
const ConfigExportVersion = 1

// Export formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatCSV  = "csv"
)

// ValidationError lists every problem found in a candidate configuration.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	var merr *multierror.Error
	for _, p := range e.Problems {
		merr = multierror.Append(merr, fmt.Errorf("%s", p))
	}
	if merr == nil {
		return "invalid configuration"
	}
	merr.ErrorFormat = func(errs []error) string {
		parts := make([]string, len(errs))
		for i, err := range errs {
			parts[i] = err.Error()
		}
		return "invalid configuration: " + strings.Join(parts, "; ")
	}
	return merr.Error()
}

// ValidateConfig returns the problems with cfg. An empty result means valid.
func ValidateConfig(cfg models.RuntimeConfig) []string {
	var problems []string
	sec := cfg.Security
	if strings.TrimSpace(sec.Secret) == "" {
		problems = append(problems, "security.secret must not be empty")
	}
	if sec.RateLimitWindow <= 0 {
		problems = append(problems, "security.windowMs must be positive")
	} else if sec.RateLimitWindow%time.Millisecond != 0 {
		problems = append(problems, "security.windowMs must be a whole number of milliseconds")
	}
	if sec.RateLimitMax <= 0 {
		problems = append(problems, "security.maxRequests must be positive")
	}
	if sec.BlockDuration < 0 {
		problems = append(problems, "security.blockDurationMs must not be negative")
	} else if sec.BlockDuration%time.Millisecond != 0 {
		problems = append(problems, "security.blockDurationMs must be a whole number of milliseconds")
	}
	for _, entry := range sec.AllowedIPs {
		if !util.IsValidCIDR(entry) {
			problems = append(problems, fmt.Sprintf("security.allowedIps: %q is not an IP address or CIDR", entry))
		}
	}
	if cfg.Logger.MaxEntries <= 0 {
		problems = append(problems, "logger.maxEntries must be positive")
	}
	if cfg.Logger.TopN < 0 {
		problems = append(problems, "logger.topN must not be negative")
	}
	return problems
}

// ConfigPatch carries a partial update. Nil fields keep their current value.
type ConfigPatch struct {
	Security *SecurityPatch `json:"security,omitempty"`
	Logger   *LoggerPatch   `json:"logger,omitempty"`
}

// SecurityPatch uses the same field names as the export document.
type SecurityPatch struct {
	Secret          *string   `json:"secret,omitempty"`
	AllowedIPs      *[]string `json:"allowedIps,omitempty"`
	WindowMS        *int64    `json:"windowMs,omitempty"`
	MaxRequests     *int      `json:"maxRequests,omitempty"`
	BlockDurationMS *int64    `json:"blockDurationMs,omitempty"`
}

type LoggerPatch struct {
	MaxEntries      *int      `json:"maxEntries,omitempty"`
	SensitiveFields *[]string `json:"sensitiveFields,omitempty"`
	IncludePayload  *bool     `json:"includePayload,omitempty"`
	TopN            *int      `json:"topN,omitempty"`
}

func (p ConfigPatch) apply(cfg models.RuntimeConfig) models.RuntimeConfig {
	out := cfg.Clone()
	if s := p.Security; s != nil {
		if s.Secret != nil {
			out.Security.Secret = *s.Secret
		}
		if s.AllowedIPs != nil {
			out.Security.AllowedIPs = append([]string(nil), (*s.AllowedIPs)...)
		}
		if s.WindowMS != nil {
			out.Security.RateLimitWindow = time.Duration(*s.WindowMS) * time.Millisecond
		}
		if s.MaxRequests != nil {
			out.Security.RateLimitMax = *s.MaxRequests
		}
		if s.BlockDurationMS != nil {
			out.Security.BlockDuration = time.Duration(*s.BlockDurationMS) * time.Millisecond
		}
	}
	if l := p.Logger; l != nil {
		if l.MaxEntries != nil {
			out.Logger.MaxEntries = *l.MaxEntries
		}
		if l.SensitiveFields != nil {
			out.Logger.SensitiveFields = append([]string{}, (*l.SensitiveFields)...)
		}
		if l.IncludePayload != nil {
			out.Logger.IncludePayload = *l.IncludePayload
		}
		if l.TopN != nil {
			out.Logger.TopN = *l.TopN
		}
	}
	return out.Normalize()
}

// ConfigStore holds the runtime configuration. Readers always receive a deep
// copy; writers validate first and then swap the whole value. Subscribers see
// commits in the order they were made.
type ConfigStore struct {
	mu          sync.RWMutex
	version     uint64
	notifyMu    sync.Mutex
	notified    uint64
	cfg         models.RuntimeConfig
	subscribers []func(models.RuntimeConfig)
	now         func() time.Time
}

// NewConfigStore validates initial and returns a store holding it.
func NewConfigStore(initial models.RuntimeConfig) (*ConfigStore, error) {
	initial = initial.Normalize()
	if problems := ValidateConfig(initial); len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return &ConfigStore{cfg: initial, now: time.Now}, nil
}

// Get returns a snapshot of the configuration in force.
func (s *ConfigStore) Get() models.RuntimeConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.Clone()
}

// Validate checks the configuration in force without changing it.
func (s *ConfigStore) Validate() []string {
	return ValidateConfig(s.Get())
}

// Subscribe registers fn to run after every successful commit.
func (s *ConfigStore) Subscribe(fn func(models.RuntimeConfig)) {
	s.mu.Lock()
	s.subscribers = append(s.subscribers, fn)
	s.mu.Unlock()
}

// Update merges patch into the current configuration. On validation failure
// the previous configuration stays in force and a *ValidationError is returned.
func (s *ConfigStore) Update(patch ConfigPatch) (models.RuntimeConfig, error) {
	s.mu.Lock()
	next := patch.apply(s.cfg)
	if problems := ValidateConfig(next); len(problems) > 0 {
		s.mu.Unlock()
		return models.RuntimeConfig{}, &ValidationError{Problems: problems}
	}
	return s.commit(next), nil
}

// Export renders the configuration as JSON (the default) or YAML.
func (s *ConfigStore) Export(format string) ([]byte, error) {
	sec, lg := s.Get().Summary()
	doc := models.ConfigExport{
		Version:    ConfigExportVersion,
		ExportedAt: s.now().UTC(),
		Security:   sec,
		Logger:     lg,
	}
	switch strings.ToLower(format) {
	case "", FormatJSON:
		return json.MarshalIndent(doc, "", "  ")
	case FormatYAML, "yml":
		return yaml.Marshal(doc)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// Import replaces the configuration with a JSON or YAML export document.
// The format is detected from the first non-space character.
func (s *ConfigStore) Import(text []byte) (models.RuntimeConfig, error) {
	var doc models.ConfigExport
	trimmed := bytes.TrimSpace(text)
	if len(trimmed) == 0 {
		return models.RuntimeConfig{}, &ValidationError{Problems: []string{"config document is empty"}}
	}
	var err error
	if trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.DisallowUnknownFields()
		err = dec.Decode(&doc)
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(trimmed))
		dec.KnownFields(true)
		err = dec.Decode(&doc)
	}
	if err != nil {
		return models.RuntimeConfig{}, &ValidationError{Problems: []string{fmt.Sprintf("parse config document: %v", err)}}
	}

	next := doc.RuntimeConfig()
	if problems := ValidateConfig(next); len(problems) > 0 {
		return models.RuntimeConfig{}, &ValidationError{Problems: problems}
	}
	s.mu.Lock()
	return s.commit(next), nil
}

// commit must be called with mu held; it releases the lock before notifying.
// Notifications run one at a time, and a commit that was overtaken by a newer
// one is not delivered, so subscribers never move back to an older config.
func (s *ConfigStore) commit(next models.RuntimeConfig) models.RuntimeConfig {
	s.cfg = next
	s.version++
	version := s.version
	subs := append([]func(models.RuntimeConfig){}, s.subscribers...)
	s.mu.Unlock()

	logger.Component("config").WithFields(map[string]interface{}{
		"allowed_ips": len(next.Security.AllowedIPs),
		"window":      next.Security.RateLimitWindow.String(),
		"max":         next.Security.RateLimitMax,
		"max_entries": next.Logger.MaxEntries,
	}).Info("runtime configuration updated")

	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if version <= s.notified {
		return next.Clone()
	}
	s.notified = version

	for _, fn := range subs {
		fn(next.Clone())
	}
	return next.Clone()
}
