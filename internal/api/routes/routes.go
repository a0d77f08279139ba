package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Wikid82/revalidator/internal/api/handlers"
	"github.com/Wikid82/revalidator/internal/cerberus"
	"github.com/Wikid82/revalidator/internal/services"
)

// Dependencies are the long-lived components the routes are served from.
type Dependencies struct {
	Gate     *cerberus.Gate
	Store    *services.ConfigStore
	Audit    *services.AuditLog
	Planner  handlers.Planner
	Executor handlers.Executor
	Notify   *services.NotificationService
	Registry *prometheus.Registry
}

// Register wires up the webhook, admin, health and metrics routes.
func Register(router *gin.Engine, deps Dependencies) {
	router.GET("/api/v1/health", handlers.HealthHandler(deps.Store))
	if deps.Registry != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}

	h := handlers.NewRevalidateHandler(deps.Gate, deps.Store, deps.Audit, deps.Planner, deps.Executor, deps.Notify)

	api := router.Group("/api/revalidate")
	api.POST("", h.Webhook)

	admin := api.Group("/admin", deps.Gate.SecretMiddleware(h.AuditRejection))
	admin.GET("", h.AdminGet)
	admin.POST("", h.AdminPost)

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
}
