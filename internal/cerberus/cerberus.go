package cerberus

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/revalidator/internal/logger"
	"github.com/Wikid82/revalidator/internal/metrics"
	"github.com/Wikid82/revalidator/internal/models"
	"github.com/Wikid82/revalidator/internal/util"
)

// SecretHeader carries the shared webhook secret.
const SecretHeader = "X-Revalidate-Secret"

// DecisionKey is the gin context key holding the gate Decision.
const DecisionKey = "gateDecision"

// Reason explains why the gate rejected a request.
type Reason string

const (
	ReasonUnauthorized Reason = "unauthorized"
	ReasonForbidden    Reason = "forbidden"
	ReasonRateLimited  Reason = "rate_limited"
)

// Status maps the reason onto the HTTP status returned to the caller.
func (r Reason) Status() int {
	switch r {
	case ReasonUnauthorized:
		return http.StatusUnauthorized
	case ReasonForbidden:
		return http.StatusForbidden
	case ReasonRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusOK
	}
}

// Message is the caller-facing error text for the reason.
func (r Reason) Message() string {
	switch r {
	case ReasonUnauthorized:
		return "invalid or missing secret"
	case ReasonForbidden:
		return "client IP is not allowed"
	case ReasonRateLimited:
		return "too many requests"
	default:
		return ""
	}
}

// Decision is the outcome of authorizing one request.
type Decision struct {
	Allowed    bool          `json:"allowed"`
	Reason     Reason        `json:"reason,omitempty"`
	RetryAfter time.Duration `json:"-"`
}

// ConfigSource supplies the security settings in force.
type ConfigSource interface {
	Get() models.RuntimeConfig
}

// Stats summarises gate activity for the admin surface.
type Stats struct {
	TrackedIPs    int              `json:"trackedIps"`
	BlockedIPs    int              `json:"blockedIps"`
	Admitted      int64            `json:"admitted"`
	Rejected      map[Reason]int64 `json:"rejected"`
	TotalRejected int64            `json:"totalRejected"`
}

// Gate validates inbound webhook requests: shared secret, IP allowlist and
// per-IP rate limiting, in that order.
type Gate struct {
	cfg     ConfigSource
	limiter *rateLimiter
	now     func() time.Time

	admitted     atomic.Int64
	unauthorized atomic.Int64
	forbidden    atomic.Int64
	rateLimited  atomic.Int64
}

// Option customises a Gate.
type Option func(*Gate)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// New creates a Gate reading its settings from cfg on every request.
func New(cfg ConfigSource, opts ...Option) *Gate {
	g := &Gate{
		cfg:     cfg,
		limiter: newRateLimiter(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Authorize runs every check against the caller and records the outcome.
func (g *Gate) Authorize(ip, secret string) Decision {
	sec := g.cfg.Get().Security

	d := g.authorize(sec, ip, secret)
	g.count(d)
	if !d.Allowed {
		logger.Component("cerberus").WithFields(map[string]interface{}{
			"ip":     util.SanitizeForLog(ip),
			"reason": d.Reason,
		}).Warn("gate rejected request")
	}
	return d
}

func (g *Gate) authorize(sec models.SecurityConfig, ip, secret string) Decision {
	if !secretsEqual(sec.Secret, secret) {
		return Decision{Reason: ReasonUnauthorized}
	}
	if !util.IPAllowed(ip, sec.AllowedIPs) {
		return Decision{Reason: ReasonForbidden}
	}
	allowed, retry := g.limiter.hit(ip, g.now(), limits(sec))
	if !allowed {
		return Decision{Reason: ReasonRateLimited, RetryAfter: retry}
	}
	return Decision{Allowed: true}
}

// CheckSecret runs only the secret comparison. The admin surface uses it.
func (g *Gate) CheckSecret(secret string) Decision {
	if !secretsEqual(g.cfg.Get().Security.Secret, secret) {
		d := Decision{Reason: ReasonUnauthorized}
		g.count(d)
		return d
	}
	return Decision{Allowed: true}
}

func (g *Gate) count(d Decision) {
	switch d.Reason {
	case ReasonUnauthorized:
		g.unauthorized.Add(1)
	case ReasonForbidden:
		g.forbidden.Add(1)
	case ReasonRateLimited:
		g.rateLimited.Add(1)
	default:
		g.admitted.Add(1)
		metrics.IncGateDecision("admitted")
		return
	}
	metrics.IncGateDecision(string(d.Reason))
}

// Stats sweeps idle records and reports the current gate state.
func (g *Gate) Stats() Stats {
	now := g.now()
	l := limits(g.cfg.Get().Security)
	g.limiter.sweep(now, l.window)
	tracked, blocked := g.limiter.snapshot(now, l.window)

	s := Stats{
		TrackedIPs: tracked,
		BlockedIPs: blocked,
		Admitted:   g.admitted.Load(),
		Rejected: map[Reason]int64{
			ReasonUnauthorized: g.unauthorized.Load(),
			ReasonForbidden:    g.forbidden.Load(),
			ReasonRateLimited:  g.rateLimited.Load(),
		},
	}
	for _, n := range s.Rejected {
		s.TotalRejected += n
	}
	return s
}

// Sweep drops rate-limit records whose window has elapsed.
func (g *Gate) Sweep() int {
	return g.limiter.sweep(g.now(), limits(g.cfg.Get().Security).window)
}

// Record returns a copy of the rate-limit record for ip, if tracked.
func (g *Gate) Record(ip string) (models.RateLimitRecord, bool) {
	return g.limiter.get(ip)
}

// Middleware enforces the full gate. Rejections are passed to onReject
// (which may be nil) before the request is aborted.
func (g *Gate) Middleware(onReject func(*gin.Context, Decision)) gin.HandlerFunc {
	return g.middleware(func(c *gin.Context) Decision {
		return g.Authorize(c.ClientIP(), SecretFromRequest(c.Request))
	}, onReject)
}

// SecretMiddleware enforces only the shared secret.
func (g *Gate) SecretMiddleware(onReject func(*gin.Context, Decision)) gin.HandlerFunc {
	return g.middleware(func(c *gin.Context) Decision {
		return g.CheckSecret(SecretFromRequest(c.Request))
	}, onReject)
}

func (g *Gate) middleware(check func(*gin.Context) Decision, onReject func(*gin.Context, Decision)) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := check(c)
		c.Set(DecisionKey, d)
		if d.Allowed {
			c.Next()
			return
		}
		if onReject != nil {
			onReject(c, d)
		}
		if d.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(RetryAfterSeconds(d.RetryAfter)))
		}
		body := gin.H{"error": d.Reason.Message(), "reason": d.Reason}
		if d.RetryAfter > 0 {
			body["retryAfterMs"] = d.RetryAfter.Milliseconds()
		}
		c.AbortWithStatusJSON(d.Reason.Status(), body)
	}
}

// RetryAfterSeconds rounds d up to whole seconds for the Retry-After header.
func RetryAfterSeconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}

// SecretFromRequest reads the shared secret from the dedicated header or a
// bearer Authorization header.
func SecretFromRequest(r *http.Request) string {
	if s := r.Header.Get(SecretHeader); s != "" {
		return s
	}
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// secretsEqual compares digests so neither the mismatching prefix nor the
// length of the provided value affects timing.
func secretsEqual(expected, provided string) bool {
	if expected == "" || provided == "" {
		return false
	}
	a := sha256.Sum256([]byte(expected))
	b := sha256.Sum256([]byte(provided))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}
