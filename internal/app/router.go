package app

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"crmflow/internal/handlers"
	"crmflow/internal/metrics"
	"crmflow/internal/middleware"
)

// Router builds the HTTP surface. Everything under /api/v1 requires a bearer
// token; each resource group checks <resource>.read / <resource>.write.
func (a *App) Router() *gin.Engine {
	cfg := a.Config
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.AccessLog(a.Logger))
	router.Use(middleware.CORS(cfg.Security.CORS))
	if cfg.Monitoring.Tracing.Enabled {
		name := cfg.Monitoring.Tracing.ServiceName
		if name == "" {
			name = "crmflow"
		}
		router.Use(otelgin.Middleware(name))
	}

	health := handlers.NewHealthHandler(cfg, a.DB, a.Redis, a.Outreach, a.Logger)
	router.GET("/health", health.Health)
	router.GET("/ready", health.Ready)
	if cfg.Monitoring.Enabled {
		path := cfg.Monitoring.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		router.GET(path, gin.WrapH(metrics.Handler()))
	}

	api := router.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware(cfg))
	api.Use(middleware.AuthMiddleware(cfg))

	handlers.RegisterClientRoutes(
		api.Group("", middleware.RequireResourcePermission("clients")),
		handlers.NewClientHandler(a.Clients, a.Tags, a.Logger))
	handlers.RegisterAutomationRoutes(
		api.Group("", middleware.RequireResourcePermission("automations")),
		handlers.NewAutomationHandler(a.Automation, a.Logger))
	handlers.RegisterTemplateRoutes(
		api.Group("", middleware.RequireResourcePermission("templates")),
		handlers.NewTemplateHandler(a.Templates, a.Logger))
	handlers.RegisterTaskRoutes(
		api.Group("", middleware.RequireResourcePermission("tasks")),
		handlers.NewTaskHandler(a.Tasks, a.Logger))
	handlers.RegisterAppointmentRoutes(
		api.Group("", middleware.RequireResourcePermission("appointments")),
		handlers.NewAppointmentHandler(a.Appointments, a.Reminders, a.Logger))
	handlers.RegisterNotificationRoutes(
		api.Group("", middleware.RequireResourcePermission("notifications")),
		handlers.NewNotificationHandler(a.Notifications, a.Hub, a.Logger))
	handlers.RegisterDashboardRoutes(
		api.Group("", middleware.RequireResourcePermission("dashboard")),
		handlers.NewDashboardHandler(a.Dashboard, a.Logger))

	return router
}
