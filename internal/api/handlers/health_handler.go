package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/revalidator/internal/version"
)

// ConfigValidator reports problems with the configuration in force.
type ConfigValidator interface {
	Validate() []string
}

// HealthHandler responds with basic service metadata for uptime checks. The
// status degrades when the runtime configuration no longer validates.
func HealthHandler(cfg ConfigValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, code := "ok", http.StatusOK
		if cfg != nil && len(cfg.Validate()) > 0 {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":     status,
			"service":    version.Name,
			"version":    version.Version,
			"git_commit": version.GitCommit,
			"build_time": version.BuildTime,
		})
	}
}
