package middleware

import (
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Wikid82/revalidator/internal/logger"
)

const RequestIDKey = "requestID"
const RequestIDHeader = "X-Request-ID"

const (
	loggerKey       = "logger"
	requestStartKey = "requestStart"
)

// Inbound ids are reused only when they are short and free of anything that
// could break a log line or a CSV export.
var validRequestID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// RequestID reuses a well-formed inbound X-Request-ID or generates a uuid,
// and places it in context, the response header and a request-scoped logger.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(RequestIDHeader)
		if !validRequestID.MatchString(rid) {
			rid = uuid.New().String()
		}
		c.Set(RequestIDKey, rid)
		c.Set(requestStartKey, time.Now())
		c.Writer.Header().Set(RequestIDHeader, rid)
		c.Set(loggerKey, logger.WithRequestID(rid))
		c.Next()
	}
}

// GetRequestID returns the id assigned by RequestID, generating one if the
// middleware did not run.
func GetRequestID(c *gin.Context) string {
	if rid := c.GetString(RequestIDKey); rid != "" {
		return rid
	}
	rid := uuid.New().String()
	c.Set(RequestIDKey, rid)
	return rid
}

// GetRequestStart returns when RequestID saw the request, or now.
func GetRequestStart(c *gin.Context) time.Time {
	if t := c.GetTime(requestStartKey); !t.IsZero() {
		return t
	}
	return time.Now()
}

// GetRequestLogger retrieves the request-scoped logger from context or the global logger
func GetRequestLogger(c *gin.Context) *logrus.Entry {
	if v, ok := c.Get(loggerKey); ok {
		if entry, ok := v.(*logrus.Entry); ok {
			return entry
		}
	}
	return logger.Log()
}
