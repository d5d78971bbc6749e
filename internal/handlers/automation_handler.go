package handlers

import (
	"net/http"

	"crmflow/internal/middleware"
	"crmflow/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AutomationHandler 自动化规则与执行记录
type AutomationHandler struct {
	automation *services.AutomationService
	logger     *logrus.Logger
}

// NewAutomationHandler 创建自动化处理器
func NewAutomationHandler(automation *services.AutomationService, logger *logrus.Logger) *AutomationHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AutomationHandler{automation: automation, logger: logger}
}

// ListRules 规则列表
// @Router /api/v1/automacoes [get]
func (h *AutomationHandler) ListRules(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req services.AutomationListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid query parameters", Message: err.Error()})
		return
	}
	rules, err := h.automation.ListRules(c.Request.Context(), uid, &req)
	if err != nil {
		serviceError(c, h.logger, "list automations", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rules, "total": len(rules)})
}

// GetRule 规则详情
// @Router /api/v1/automacoes/{id} [get]
func (h *AutomationHandler) GetRule(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id", "automation")
	if !ok {
		return
	}
	rule, err := h.automation.GetRule(c.Request.Context(), uid, id)
	if err != nil {
		serviceError(c, h.logger, "get automation", err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// CreateRule 创建规则；定义非法时返回 400
// @Router /api/v1/automacoes [post]
func (h *AutomationHandler) CreateRule(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req services.AutomationRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	rule, err := h.automation.CreateRule(c.Request.Context(), uid, &req)
	if err != nil {
		serviceError(c, h.logger, "create automation", err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

// UpdateRule 更新规则
// @Router /api/v1/automacoes/{id} [put]
func (h *AutomationHandler) UpdateRule(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id", "automation")
	if !ok {
		return
	}
	var req services.AutomationRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	rule, err := h.automation.UpdateRule(c.Request.Context(), uid, id, &req)
	if err != nil {
		serviceError(c, h.logger, "update automation", err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// DeleteRule 删除规则；执行记录保留
// @Router /api/v1/automacoes/{id} [delete]
func (h *AutomationHandler) DeleteRule(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id", "automation")
	if !ok {
		return
	}
	if err := h.automation.DeleteRule(c.Request.Context(), uid, id); err != nil {
		serviceError(c, h.logger, "delete automation", err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "automação removida"})
}

type toggleRequest struct {
	Active *bool `json:"ativo"`
}

// ToggleRule 启用/停用；无 body 时翻转
// @Router /api/v1/automacoes/{id}/toggle [patch]
func (h *AutomationHandler) ToggleRule(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id", "automation")
	if !ok {
		return
	}
	var req toggleRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
	}
	rule, err := h.automation.ToggleRule(c.Request.Context(), uid, id, req.Active)
	if err != nil {
		serviceError(c, h.logger, "toggle automation", err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// ListExecutions 执行日志
// @Router /api/v1/automacoes/execucoes [get]
func (h *AutomationHandler) ListExecutions(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req services.ExecutionListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid query parameters", Message: err.Error()})
		return
	}
	if id := c.Param("id"); id != "" {
		ruleID, ok := parseID(c, "id", "automation")
		if !ok {
			return
		}
		req.AutomationID = ruleID
	}
	items, total, err := h.automation.ListExecutions(c.Request.Context(), uid, &req)
	if err != nil {
		serviceError(c, h.logger, "list executions", err)
		return
	}
	c.JSON(http.StatusOK, paginated(items, total, req.Page, req.PageSize))
}

// BatchRun 对一批客户手动触发事件；dry_run 只评估
// @Router /api/v1/automacoes/executar-lote [post]
// 需要 owner 或 admin 角色
func (h *AutomationHandler) BatchRun(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req services.AutomationBatchRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	resp, err := h.automation.BatchRun(c.Request.Context(), uid, &req)
	if err != nil {
		serviceError(c, h.logger, "run automations", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// SubmitEvent 提交单个事件
// @Router /api/v1/automacoes/eventos [post]
func (h *AutomationHandler) SubmitEvent(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req services.AutomationEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	res, err := h.automation.SubmitEvent(c.Request.Context(), uid, &req)
	if err != nil {
		serviceError(c, h.logger, "submit event", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// RegisterAutomationRoutes 注册自动化路由
func RegisterAutomationRoutes(r *gin.RouterGroup, h *AutomationHandler) {
	g := r.Group("/automacoes")
	{
		g.GET("", h.ListRules)
		g.POST("", h.CreateRule)
		g.GET("/execucoes", h.ListExecutions)
		// 批量执行可能一次触达数百个客户，只开放给 owner/admin
		g.POST("/executar-lote", middleware.RequireRolesAny("owner", "admin"), h.BatchRun)
		g.POST("/eventos", h.SubmitEvent)
		g.GET("/:id", h.GetRule)
		g.PUT("/:id", h.UpdateRule)
		g.DELETE("/:id", h.DeleteRule)
		g.PATCH("/:id/toggle", h.ToggleRule)
		g.GET("/:id/execucoes", h.ListExecutions)
	}
}
