package models

import (
	"time"
)

// AuditEntry records the outcome of one webhook or admin request.
type AuditEntry struct {
	Timestamp        time.Time      `json:"timestamp"`
	RequestID        string         `json:"requestId"`
	IP               string         `json:"ip"`
	Method           string         `json:"method"`
	Path             string         `json:"path"`
	StatusCode       int            `json:"statusCode"`
	ProcessingTimeMS int64          `json:"processingTimeMs"`
	ContentType      string         `json:"contentType,omitempty"`
	Action           string         `json:"action,omitempty"`
	PathsRevalidated int            `json:"pathsRevalidated"`
	TagsRevalidated  int            `json:"tagsRevalidated"`
	Errors           []string       `json:"errors,omitempty"`
	Payload          map[string]any `json:"payload,omitempty"`
}

// Successful reports whether the status code is in [200, 400).
func (e AuditEntry) Successful() bool {
	return e.StatusCode >= 200 && e.StatusCode < 400
}

// Failed reports whether the entry is an error status or carries errors.
func (e AuditEntry) Failed() bool {
	return e.StatusCode >= 400 || len(e.Errors) > 0
}

// CountEntry is one row of a top-N frequency list.
type CountEntry struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// AuditStatistics aggregates audit entries inside a time window.
type AuditStatistics struct {
	WindowMS              int64        `json:"windowMs"`
	TotalRequests         int          `json:"totalRequests"`
	SuccessfulRequests    int          `json:"successfulRequests"`
	ErrorRequests         int          `json:"errorRequests"`
	AverageProcessingTime float64      `json:"averageProcessingTimeMs"`
	TopIPs                []CountEntry `json:"topIps"`
	TopContentTypes       []CountEntry `json:"topContentTypes"`
	TotalPathsRevalidated int          `json:"totalPathsRevalidated"`
	TotalTagsRevalidated  int          `json:"totalTagsRevalidated"`
}
