package handlers

import (
	"net/http"

	"crmflow/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// NotificationHandler 站内通知与实时推送
type NotificationHandler struct {
	notifications *services.NotificationService
	hub           *services.NotificationHub
	logger        *logrus.Logger
}

func NewNotificationHandler(notifications *services.NotificationService, hub *services.NotificationHub, logger *logrus.Logger) *NotificationHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &NotificationHandler{notifications: notifications, hub: hub, logger: logger}
}

func (h *NotificationHandler) List(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req services.NotificationListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid query parameters", Message: err.Error()})
		return
	}
	list, total, err := h.notifications.List(c.Request.Context(), uid, &req)
	if err != nil {
		serviceError(c, h.logger, "list notifications", err)
		return
	}
	c.JSON(http.StatusOK, paginated(list, total, req.Page, req.PageSize))
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id", "notification")
	if !ok {
		return
	}
	n, err := h.notifications.MarkRead(c.Request.Context(), uid, id)
	if err != nil {
		serviceError(c, h.logger, "mark notification read", err)
		return
	}
	c.JSON(http.StatusOK, n)
}

// Stream 升级为 websocket，推送当前用户的新通知
func (h *NotificationHandler) Stream(c *gin.Context) {
	if _, ok := currentUser(c); !ok {
		return
	}
	if h.hub == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "Realtime disabled", Message: "notification hub not running"})
		return
	}
	h.hub.HandleWebSocket(c)
}

func RegisterNotificationRoutes(r *gin.RouterGroup, h *NotificationHandler) {
	g := r.Group("/notificacoes")
	{
		g.GET("", h.List)
		g.PATCH("/:id/lida", h.MarkRead)
		g.GET("/ws", h.Stream)
	}
}
