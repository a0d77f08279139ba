package services

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Wikid82/revalidator/internal/models"
	"github.com/Wikid82/revalidator/internal/util"
)

// Audit log defaults.
const (
	DefaultAuditMaxEntries = 1000
	DefaultAuditTopN       = 5
)

var auditCSVHeader = []string{
	"timestamp", "requestId", "ip", "method", "path", "statusCode",
	"processingTimeMs", "contentType", "action", "pathsRevalidated",
	"tagsRevalidated", "errors",
}

// AuditLog is a bounded, in-memory history of webhook and admin requests.
// The oldest entry is evicted once MaxEntries is reached.
type AuditLog struct {
	mu             sync.RWMutex
	entries        []models.AuditEntry
	maxEntries     int
	sensitive      []string
	includePayload bool
	topN           int
	now            func() time.Time
}

// NewAuditLog builds an audit log using the logger section of cfg.
func NewAuditLog(cfg models.LoggerConfig) *AuditLog {
	l := &AuditLog{now: time.Now}
	l.SetLimits(cfg.MaxEntries, cfg.SensitiveFields, cfg.IncludePayload, cfg.TopN)
	return l
}

// SetLimits applies new limits, evicting the oldest entries if the log is
// now over capacity. A nil sensitive list uses DefaultSensitiveFields; an
// empty one disables redaction.
func (l *AuditLog) SetLimits(maxEntries int, sensitive []string, includePayload bool, topN int) {
	if maxEntries <= 0 {
		maxEntries = DefaultAuditMaxEntries
	}
	if topN <= 0 {
		topN = DefaultAuditTopN
	}
	if sensitive == nil {
		sensitive = models.DefaultSensitiveFields
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.maxEntries = maxEntries
	l.sensitive = append([]string(nil), sensitive...)
	l.includePayload = includePayload
	l.topN = topN
	l.evictLocked()
}

// ApplyConfig is a ConfigStore subscriber.
func (l *AuditLog) ApplyConfig(cfg models.RuntimeConfig) {
	l.SetLimits(cfg.Logger.MaxEntries, cfg.Logger.SensitiveFields, cfg.Logger.IncludePayload, cfg.Logger.TopN)
}

// Record appends entry. The payload is redacted, or dropped entirely when
// payload capture is off.
func (l *AuditLog) Record(entry models.AuditEntry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = l.now()
	}
	entry.Errors = append([]string(nil), entry.Errors...)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.includePayload && entry.Payload != nil {
		entry.Payload = util.RedactFields(entry.Payload, l.sensitive)
	} else {
		entry.Payload = nil
	}
	l.entries = append(l.entries, entry)
	l.evictLocked()
}

func (l *AuditLog) evictLocked() {
	if over := len(l.entries) - l.maxEntries; over > 0 {
		kept := make([]models.AuditEntry, l.maxEntries)
		copy(kept, l.entries[over:])
		l.entries = kept
	}
}

// Len returns the number of retained entries.
func (l *AuditLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Recent returns up to limit entries, newest first. limit <= 0 returns all.
func (l *AuditLog) Recent(limit int) []models.AuditEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := len(l.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.AuditEntry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, l.entries[i])
	}
	return out
}

// ByTimeRange returns entries with start <= timestamp <= end in insertion order.
func (l *AuditLog) ByTimeRange(start, end time.Time) []models.AuditEntry {
	return l.filter(func(e models.AuditEntry) bool {
		return !e.Timestamp.Before(start) && !e.Timestamp.After(end)
	})
}

// ByStatus returns entries with the given status code in insertion order.
func (l *AuditLog) ByStatus(code int) []models.AuditEntry {
	return l.filter(func(e models.AuditEntry) bool { return e.StatusCode == code })
}

// ErrorsOnly returns failed entries in insertion order.
func (l *AuditLog) ErrorsOnly() []models.AuditEntry {
	return l.filter(models.AuditEntry.Failed)
}

func (l *AuditLog) filter(keep func(models.AuditEntry) bool) []models.AuditEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := []models.AuditEntry{}
	for _, e := range l.entries {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Statistics summarises entries recorded within window of now.
func (l *AuditLog) Statistics(window time.Duration) models.AuditStatistics {
	now := l.now()
	start := now.Add(-window)

	l.mu.RLock()
	topN := l.topN
	var entries []models.AuditEntry
	for _, e := range l.entries {
		if !e.Timestamp.Before(start) && !e.Timestamp.After(now) {
			entries = append(entries, e)
		}
	}
	l.mu.RUnlock()

	stats := models.AuditStatistics{
		WindowMS:        window.Milliseconds(),
		TopIPs:          []models.CountEntry{},
		TopContentTypes: []models.CountEntry{},
	}
	if len(entries) == 0 {
		return stats
	}

	ips := newCounter()
	types := newCounter()
	var totalMS int64
	for _, e := range entries {
		stats.TotalRequests++
		if e.Successful() {
			stats.SuccessfulRequests++
		}
		totalMS += e.ProcessingTimeMS
		stats.TotalPathsRevalidated += e.PathsRevalidated
		stats.TotalTagsRevalidated += e.TagsRevalidated
		ips.add(e.IP)
		if e.ContentType != "" {
			types.add(e.ContentType)
		}
	}
	stats.ErrorRequests = stats.TotalRequests - stats.SuccessfulRequests
	stats.AverageProcessingTime = float64(totalMS) / float64(stats.TotalRequests)
	stats.TopIPs = ips.top(topN)
	stats.TopContentTypes = types.top(topN)
	return stats
}

// Clear drops every entry and returns how many were removed.
func (l *AuditLog) Clear() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.entries)
	l.entries = nil
	return n
}

// Export renders all entries in insertion order as csv or json (the default).
func (l *AuditLog) Export(format string) ([]byte, error) {
	entries := l.filter(func(models.AuditEntry) bool { return true })
	switch strings.ToLower(format) {
	case "", FormatJSON:
		return json.MarshalIndent(entries, "", "  ")
	case FormatCSV:
		return EntriesCSV(entries), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// EntriesCSV renders entries as CSV with every string column quoted.
func EntriesCSV(entries []models.AuditEntry) []byte {
	var b strings.Builder
	b.WriteString(strings.Join(auditCSVHeader, ","))
	b.WriteByte('\n')
	for _, e := range entries {
		row := []string{
			quoteCSV(e.Timestamp.UTC().Format(time.RFC3339Nano)),
			quoteCSV(e.RequestID),
			quoteCSV(e.IP),
			quoteCSV(e.Method),
			quoteCSV(e.Path),
			strconv.Itoa(e.StatusCode),
			strconv.FormatInt(e.ProcessingTimeMS, 10),
			quoteCSV(e.ContentType),
			quoteCSV(e.Action),
			strconv.Itoa(e.PathsRevalidated),
			strconv.Itoa(e.TagsRevalidated),
			quoteCSV(strings.Join(e.Errors, "; ")),
		}
		b.WriteString(strings.Join(row, ","))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

func quoteCSV(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// counter tallies keys while remembering first-seen order for tie breaks.
type counter struct {
	order  []string
	counts map[string]int
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(key string) {
	if _, ok := c.counts[key]; !ok {
		c.order = append(c.order, key)
	}
	c.counts[key]++
}

func (c *counter) top(n int) []models.CountEntry {
	out := make([]models.CountEntry, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, models.CountEntry{Key: k, Count: c.counts[k]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > n {
		out = out[:n]
	}
	return out
}
