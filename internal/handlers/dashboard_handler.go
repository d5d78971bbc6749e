package handlers

import (
	"net/http"

	"crmflow/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// DashboardHandler 看板
type DashboardHandler struct {
	dashboard *services.DashboardService
	logger    *logrus.Logger
}

func NewDashboardHandler(dashboard *services.DashboardService, logger *logrus.Logger) *DashboardHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &DashboardHandler{dashboard: dashboard, logger: logger}
}

func (h *DashboardHandler) Billing(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	summary, err := h.dashboard.Billing(c.Request.Context(), uid)
	if err != nil {
		serviceError(c, h.logger, "load billing dashboard", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *DashboardHandler) Pipeline(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	summary, err := h.dashboard.Pipeline(c.Request.Context(), uid)
	if err != nil {
		serviceError(c, h.logger, "load pipeline dashboard", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func RegisterDashboardRoutes(r *gin.RouterGroup, h *DashboardHandler) {
	g := r.Group("/dashboard")
	{
		g.GET("/cobranca", h.Billing)
		g.GET("/pipeline", h.Pipeline)
	}
}
