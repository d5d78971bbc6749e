package handlers

import (
	"net/http"
	"strings"

	"crmflow/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ClientHandler 客户管理处理器；状态与付款变化会经由 ClientService 触发自动化
type ClientHandler struct {
	clients *services.ClientService
	tags    *services.TagService
	logger  *logrus.Logger
}

// NewClientHandler 创建客户处理器
func NewClientHandler(clients *services.ClientService, tags *services.TagService, logger *logrus.Logger) *ClientHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ClientHandler{clients: clients, tags: tags, logger: logger}
}

// CreateClient 创建客户
// @Router /api/v1/clientes [post]
func (h *ClientHandler) CreateClient(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req services.ClientCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	client, err := h.clients.CreateClient(c.Request.Context(), uid, &req)
	if err != nil {
		serviceError(c, h.logger, "create client", err)
		return
	}
	c.JSON(http.StatusCreated, client)
}

// ListClients 客户列表
// @Router /api/v1/clientes [get]
func (h *ClientHandler) ListClients(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req services.ClientListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid query parameters", Message: err.Error()})
		return
	}
	clients, total, err := h.clients.ListClients(c.Request.Context(), uid, &req)
	if err != nil {
		serviceError(c, h.logger, "list clients", err)
		return
	}
	c.JSON(http.StatusOK, paginated(clients, total, req.Page, req.PageSize))
}

// GetClient 客户详情
// @Router /api/v1/clientes/{id} [get]
func (h *ClientHandler) GetClient(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id", "client")
	if !ok {
		return
	}
	client, err := h.clients.GetClient(c.Request.Context(), uid, id)
	if err != nil {
		serviceError(c, h.logger, "get client", err)
		return
	}
	c.JSON(http.StatusOK, client)
}

// UpdateClient 更新客户
// @Router /api/v1/clientes/{id} [put]
func (h *ClientHandler) UpdateClient(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id", "client")
	if !ok {
		return
	}
	var req services.ClientUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	client, err := h.clients.UpdateClient(c.Request.Context(), uid, id, &req)
	if err != nil {
		serviceError(c, h.logger, "update client", err)
		return
	}
	c.JSON(http.StatusOK, client)
}

// DeleteClient 删除客户
// @Router /api/v1/clientes/{id} [delete]
func (h *ClientHandler) DeleteClient(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id", "client")
	if !ok {
		return
	}
	if err := h.clients.DeleteClient(c.Request.Context(), uid, id); err != nil {
		serviceError(c, h.logger, "delete client", err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "cliente removido"})
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

// ChangeStatus 变更管道状态，触发 status_mudou
// @Router /api/v1/clientes/{id}/status [patch]
func (h *ClientHandler) ChangeStatus(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id", "client")
	if !ok {
		return
	}
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	client, err := h.clients.ChangeStatus(c.Request.Context(), uid, id, req.Status)
	if err != nil {
		serviceError(c, h.logger, "change client status", err)
		return
	}
	c.JSON(http.StatusOK, client)
}

// UpdatePayment 更新付款状态
// @Router /api/v1/clientes/{id}/pagamento [patch]
func (h *ClientHandler) UpdatePayment(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id", "client")
	if !ok {
		return
	}
	var req services.PaymentUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	client, err := h.clients.UpdatePayment(c.Request.Context(), uid, id, &req)
	if err != nil {
		serviceError(c, h.logger, "update payment", err)
		return
	}
	c.JSON(http.StatusOK, client)
}

// LogContact 记录一次联系
// @Router /api/v1/clientes/{id}/contatos [post]
func (h *ClientHandler) LogContact(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id", "client")
	if !ok {
		return
	}
	var req services.ContactRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
	}
	entry, err := h.clients.LogContact(c.Request.Context(), uid, id, &req)
	if err != nil {
		serviceError(c, h.logger, "log contact", err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

type tagRequest struct {
	Tag string `json:"tag" binding:"required"`
}

// AddTag 为客户添加标签，重复添加不报错
// @Router /api/v1/clientes/{id}/tags [post]
func (h *ClientHandler) AddTag(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id", "client")
	if !ok {
		return
	}
	var req tagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	ctx := c.Request.Context()
	client, err := h.clients.GetClient(ctx, uid, id)
	if err != nil {
		serviceError(c, h.logger, "add tag", err)
		return
	}
	created, err := h.tags.AttachTag(ctx, client.UserID, client.ID, req.Tag)
	if err != nil {
		serviceError(c, h.logger, "add tag", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"tag": strings.TrimSpace(req.Tag), "criada": created})
}

// RemoveTag 移除客户标签
// @Router /api/v1/clientes/{id}/tags/{tag} [delete]
func (h *ClientHandler) RemoveTag(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id", "client")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	client, err := h.clients.GetClient(ctx, uid, id)
	if err != nil {
		serviceError(c, h.logger, "remove tag", err)
		return
	}
	if err := h.tags.DetachTag(ctx, client.UserID, client.ID, c.Param("tag")); err != nil {
		serviceError(c, h.logger, "remove tag", err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "tag removida"})
}

// ListTags 当前用户的全部标签
// @Router /api/v1/tags [get]
func (h *ClientHandler) ListTags(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	tags, err := h.tags.ListTags(c.Request.Context(), uid)
	if err != nil {
		serviceError(c, h.logger, "list tags", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": tags})
}

// RegisterClientRoutes 注册客户路由
func RegisterClientRoutes(r *gin.RouterGroup, h *ClientHandler) {
	g := r.Group("/clientes")
	{
		g.POST("", h.CreateClient)
		g.GET("", h.ListClients)
		g.GET("/:id", h.GetClient)
		g.PUT("/:id", h.UpdateClient)
		g.DELETE("/:id", h.DeleteClient)
		g.PATCH("/:id/status", h.ChangeStatus)
		g.PATCH("/:id/pagamento", h.UpdatePayment)
		g.POST("/:id/contatos", h.LogContact)
		g.POST("/:id/tags", h.AddTag)
		g.DELETE("/:id/tags/:tag", h.RemoveTag)
	}
	r.GET("/tags", h.ListTags)
}
