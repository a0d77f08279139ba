package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/revalidator/internal/api/middleware"
	"github.com/Wikid82/revalidator/internal/cerberus"
	"github.com/Wikid82/revalidator/internal/invalidator"
	"github.com/Wikid82/revalidator/internal/metrics"
	"github.com/Wikid82/revalidator/internal/models"
	"github.com/Wikid82/revalidator/internal/services"
	"github.com/Wikid82/revalidator/internal/util"
	"github.com/Wikid82/revalidator/internal/version"
)

const (
	maxBodyBytes        = 1 << 20
	defaultLogsLimit    = 50
	defaultStatsWindow  = time.Hour
	maskedSecret        = "********"
	internalErrorString = "internal error"
)

// Admin actions.
const (
	ActionConfig       = "config"
	ActionStats        = "stats"
	ActionLogs         = "logs"
	ActionExport       = "export"
	ActionUpdateConfig = "update-config"
	ActionImportConfig = "import-config"
	ActionClearLogs    = "clear-logs"
)

var (
	validGetActions  = []string{ActionConfig, ActionStats, ActionLogs, ActionExport}
	validPostActions = []string{ActionUpdateConfig, ActionImportConfig, ActionClearLogs}
)

// Planner turns a change event into an invalidation plan.
type Planner interface {
	Plan(ev models.ChangeEvent) models.InvalidationPlan
}

// Executor applies a plan against the frontend cache.
type Executor interface {
	Execute(ctx context.Context, plan models.InvalidationPlan) invalidator.Result
}

// RevalidateHandler serves the CMS webhook and its admin surface.
type RevalidateHandler struct {
	gate     *cerberus.Gate
	store    *services.ConfigStore
	audit    *services.AuditLog
	planner  Planner
	executor Executor
	notify   *services.NotificationService

	startedAt time.Time
	now       func() time.Time
}

// NewRevalidateHandler wires the handler. notify may be nil.
func NewRevalidateHandler(gate *cerberus.Gate, store *services.ConfigStore, audit *services.AuditLog,
	planner Planner, executor Executor, notify *services.NotificationService) *RevalidateHandler {
	return &RevalidateHandler{
		gate:      gate,
		store:     store,
		audit:     audit,
		planner:   planner,
		executor:  executor,
		notify:    notify,
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// RevalidateResponse is the body returned for an admitted webhook.
type RevalidateResponse struct {
	Revalidated bool                    `json:"revalidated"`
	Timestamp   time.Time               `json:"timestamp"`
	Paths       int                     `json:"paths"`
	Tags        int                     `json:"tags"`
	Errors      []string                `json:"errors,omitempty"`
	Plan        models.InvalidationPlan `json:"plan"`
	Metadata    ResponseMetadata        `json:"metadata"`
}

// ResponseMetadata carries request bookkeeping.
type ResponseMetadata struct {
	ProcessingTimeMS int64  `json:"processingTimeMs"`
	RequestID        string `json:"requestId"`
}

// Webhook handles POST /api/revalidate.
func (h *RevalidateHandler) Webhook(c *gin.Context) {
	start := h.now()
	rid := middleware.GetRequestID(c)
	entry := models.AuditEntry{
		RequestID: rid,
		IP:        c.ClientIP(),
		Method:    c.Request.Method,
		Path:      c.Request.URL.Path,
	}
	outcome := "ok"
	defer func() {
		metrics.IncWebhook(outcome)
		metrics.ObserveWebhook(h.now().Sub(start))
	}()
	defer func() {
		if r := recover(); r != nil {
			outcome = "panic"
			middleware.GetRequestLogger(c).Errorf("PANIC in webhook: %v", r)
			entry.StatusCode = http.StatusInternalServerError
			entry.Errors = append(entry.Errors, internalErrorString)
			h.record(entry, start)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "requestId": rid})
		}
	}()

	d := h.gate.Authorize(c.ClientIP(), cerberus.SecretFromRequest(c.Request))
	if !d.Allowed {
		outcome = string(d.Reason)
		entry.StatusCode = d.Reason.Status()
		entry.Errors = []string{string(d.Reason)}
		h.record(entry, start)
		rejectJSON(c, d)
		return
	}

	ev, payload, problems := decodeEvent(c)
	entry.Payload = payload
	entry.ContentType = string(ev.ContentType)
	entry.Action = string(ev.Action)
	if len(problems) > 0 {
		outcome = "invalid"
		entry.StatusCode = http.StatusBadRequest
		entry.Errors = problems
		h.record(entry, start)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": problems, "requestId": rid})
		return
	}

	plan := h.planner.Plan(ev)
	res := h.executor.Execute(c.Request.Context(), plan)

	status := http.StatusOK
	if !res.OK() {
		status = http.StatusMultiStatus
		outcome = "partial"
		h.notify.NotifyFailure(services.InvalidationFailure{
			RequestID:   rid,
			ContentType: string(ev.ContentType),
			ContentID:   string(ev.ContentID),
			Action:      string(ev.Action),
			Errors:      res.Errors,
		})
	}
	entry.StatusCode = status
	entry.PathsRevalidated = len(res.Paths)
	entry.TagsRevalidated = len(res.Tags)
	entry.Errors = res.Errors
	elapsed := h.record(entry, start)

	middleware.GetRequestLogger(c).WithFields(map[string]interface{}{
		"content_type": util.SanitizeForLog(string(ev.ContentType)),
		"action":       ev.Action,
		"paths":        len(res.Paths),
		"tags":         len(res.Tags),
		"errors":       len(res.Errors),
	}).Info("revalidation complete")

	c.JSON(status, RevalidateResponse{
		Revalidated: res.OK(),
		Timestamp:   start.UTC(),
		Paths:       len(res.Paths),
		Tags:        len(res.Tags),
		Errors:      res.Errors,
		Plan:        plan,
		Metadata:    ResponseMetadata{ProcessingTimeMS: elapsed.Milliseconds(), RequestID: rid},
	})
}

// decodeEvent reads and validates the body. payload is the generic form of
// the body for the audit log.
func decodeEvent(c *gin.Context) (models.ChangeEvent, map[string]any, []string) {
	var ev models.ChangeEvent
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return ev, nil, []string{fmt.Sprintf("body exceeds %d bytes", maxBodyBytes)}
		}
		return ev, nil, []string{"could not read body"}
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return ev, nil, []string{"body is required"}
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return ev, nil, []string{"body must be a JSON object"}
	}
	if err := json.Unmarshal(body, &ev); err != nil {
		return ev, payload, []string{fmt.Sprintf("malformed change event: %v", err)}
	}
	return ev, payload, ev.Validate()
}

// record stamps timing onto entry, stores it and returns the elapsed time.
func (h *RevalidateHandler) record(entry models.AuditEntry, start time.Time) time.Duration {
	elapsed := h.now().Sub(start)
	entry.Timestamp = start
	entry.ProcessingTimeMS = elapsed.Milliseconds()
	h.audit.Record(entry)
	return elapsed
}

func rejectJSON(c *gin.Context, d cerberus.Decision) {
	body := gin.H{"error": d.Reason.Message(), "reason": d.Reason, "requestId": middleware.GetRequestID(c)}
	if d.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(cerberus.RetryAfterSeconds(d.RetryAfter)))
		body["retryAfterMs"] = d.RetryAfter.Milliseconds()
	}
	c.AbortWithStatusJSON(d.Reason.Status(), body)
}

// AuditRejection is the gate's onReject hook for the admin routes.
func (h *RevalidateHandler) AuditRejection(c *gin.Context, d cerberus.Decision) {
	h.record(models.AuditEntry{
		RequestID:  middleware.GetRequestID(c),
		IP:         c.ClientIP(),
		Method:     c.Request.Method,
		Path:       c.Request.URL.Path,
		StatusCode: d.Reason.Status(),
		Errors:     []string{string(d.Reason)},
	}, middleware.GetRequestStart(c))
}

// AdminGet handles GET /api/revalidate/admin.
func (h *RevalidateHandler) AdminGet(c *gin.Context) {
	switch action := c.Query("action"); action {
	case "":
		h.adminStatus(c)
	case ActionConfig:
		h.adminConfig(c)
	case ActionStats:
		h.adminStats(c)
	case ActionLogs:
		h.adminLogs(c)
	case ActionExport:
		h.adminExport(c)
	default:
		h.unknownAction(c, action, validGetActions)
	}
}

type adminRequest struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

// AdminPost handles POST /api/revalidate/admin.
func (h *RevalidateHandler) AdminPost(c *gin.Context) {
	var req adminRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.adminError(c, "", "body must be {\"action\": ..., \"data\": ...}", gin.H{"validActions": validPostActions})
		return
	}

	var (
		status int
		body   any
	)
	switch req.Action {
	case ActionUpdateConfig:
		status, body = h.updateConfig(req.Data)
	case ActionImportConfig:
		status, body = h.importConfig(req.Data)
	case ActionClearLogs:
		n := h.audit.Clear()
		status, body = http.StatusOK, gin.H{"cleared": n}
	default:
		h.unknownAction(c, req.Action, validPostActions)
		return
	}

	entry := models.AuditEntry{
		RequestID:  middleware.GetRequestID(c),
		IP:         c.ClientIP(),
		Method:     c.Request.Method,
		Path:       c.Request.URL.Path,
		StatusCode: status,
		Action:     req.Action,
	}
	if eb, ok := body.(gin.H); ok {
		if problems, ok := eb["problems"].([]string); ok {
			entry.Errors = problems
		}
	}
	h.record(entry, middleware.GetRequestStart(c))
	middleware.GetRequestLogger(c).WithField("action", req.Action).WithField("status", status).Info("admin action")
	c.JSON(status, body)
}

func (h *RevalidateHandler) updateConfig(data json.RawMessage) (int, any) {
	var patch services.ConfigPatch
	if len(data) == 0 {
		return http.StatusBadRequest, gin.H{"error": "data is required", "problems": []string{"data is required"}}
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		p := fmt.Sprintf("malformed config patch: %v", err)
		return http.StatusBadRequest, gin.H{"error": "invalid configuration", "problems": []string{p}}
	}
	cfg, err := h.store.Update(patch)
	if err != nil {
		return validationFailure(err)
	}
	return http.StatusOK, gin.H{"updated": true, "config": configView(cfg)}
}

// importConfig accepts the document either as a JSON string (JSON or YAML
// text) or as an inline JSON object.
func (h *RevalidateHandler) importConfig(data json.RawMessage) (int, any) {
	text := []byte(data)
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		text = []byte(s)
	}
	cfg, err := h.store.Import(text)
	if err != nil {
		return validationFailure(err)
	}
	return http.StatusOK, gin.H{"imported": true, "config": configView(cfg)}
}

func validationFailure(err error) (int, any) {
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, gin.H{"error": "invalid configuration", "problems": verr.Problems}
	}
	return http.StatusInternalServerError, gin.H{"error": internalErrorString, "problems": []string{internalErrorString}}
}

func (h *RevalidateHandler) unknownAction(c *gin.Context, action string, valid []string) {
	msg := fmt.Sprintf("unknown action %q", util.SanitizeForLog(action))
	h.adminError(c, action, msg, gin.H{"validActions": valid})
}

// adminError audits a rejected admin request and answers 400 with msg.
func (h *RevalidateHandler) adminError(c *gin.Context, action, msg string, extra gin.H) {
	h.record(models.AuditEntry{
		RequestID:  middleware.GetRequestID(c),
		IP:         c.ClientIP(),
		Method:     c.Request.Method,
		Path:       c.Request.URL.Path,
		StatusCode: http.StatusBadRequest,
		Action:     util.SanitizeForLog(action),
		Errors:     []string{msg},
	}, middleware.GetRequestStart(c))
	body := gin.H{"error": msg}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(http.StatusBadRequest, body)
}

func (h *RevalidateHandler) adminStatus(c *gin.Context) {
	problems := h.store.Validate()
	c.JSON(http.StatusOK, gin.H{
		"status":        "ok",
		"service":       version.Name,
		"version":       version.Version,
		"uptimeSeconds": int64(h.now().Sub(h.startedAt).Seconds()),
		"auditEntries":  h.audit.Len(),
		"configValid":   len(problems) == 0,
		"configIssues":  problems,
		"gate":          h.gate.Stats(),
		"getActions":    validGetActions,
		"postActions":   validPostActions,
	})
}

type adminConfigView struct {
	Security models.SecuritySummary `json:"security"`
	Logger   models.LoggerSummary   `json:"logger"`
}

func configView(cfg models.RuntimeConfig) adminConfigView {
	sec, lg := cfg.Summary()
	if sec.Secret != "" {
		sec.Secret = maskedSecret
	}
	return adminConfigView{Security: sec, Logger: lg}
}

func (h *RevalidateHandler) adminConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"config":   configView(h.store.Get()),
		"problems": h.store.Validate(),
	})
}

func (h *RevalidateHandler) adminStats(c *gin.Context) {
	window := defaultStatsWindow
	if raw := c.Query("window"); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || ms <= 0 {
			h.adminError(c, ActionStats, "window must be a positive number of milliseconds", nil)
			return
		}
		window = time.Duration(ms) * time.Millisecond
	}
	c.JSON(http.StatusOK, gin.H{
		"gate":  h.gate.Stats(),
		"audit": h.audit.Statistics(window),
	})
}

func (h *RevalidateHandler) adminLogs(c *gin.Context) {
	limit := defaultLogsLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			h.adminError(c, ActionLogs, "limit must be a positive integer", nil)
			return
		}
		limit = n
	}

	var entries []models.AuditEntry
	switch {
	case c.Query("status") != "":
		code, err := strconv.Atoi(c.Query("status"))
		if err != nil {
			h.adminError(c, ActionLogs, "status must be an integer", nil)
			return
		}
		entries = newestFirst(h.audit.ByStatus(code), limit)
	case c.Query("errors") == "true":
		entries = newestFirst(h.audit.ErrorsOnly(), limit)
	default:
		entries = h.audit.Recent(limit)
	}

	switch c.DefaultQuery("format", services.FormatJSON) {
	case services.FormatCSV:
		c.Header("Content-Disposition", `attachment; filename="revalidate-logs.csv"`)
		c.Data(http.StatusOK, "text/csv; charset=utf-8", services.EntriesCSV(entries))
	case services.FormatJSON:
		c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries), "total": h.audit.Len()})
	default:
		h.adminError(c, ActionLogs, "format must be csv or json", nil)
	}
}

func (h *RevalidateHandler) adminExport(c *gin.Context) {
	format := c.DefaultQuery("format", services.FormatJSON)
	text, err := h.store.Export(format)
	if err != nil {
		h.adminError(c, ActionExport, "format must be json or yaml", nil)
		return
	}
	contentType := "application/json"
	if format != services.FormatJSON {
		contentType = "application/yaml"
	}
	c.Data(http.StatusOK, contentType, text)
}

// newestFirst reverses entries (oldest first) and keeps the first limit.
func newestFirst(entries []models.AuditEntry, limit int) []models.AuditEntry {
	out := make([]models.AuditEntry, 0, min(limit, len(entries)))
	for i := len(entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, entries[i])
	}
	return out
}
