package handlers

import (
	"net/http"

	"crmflow/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// TemplateHandler 消息模板
type TemplateHandler struct {
	templates *services.TemplateService
	logger    *logrus.Logger
}

func NewTemplateHandler(templates *services.TemplateService, logger *logrus.Logger) *TemplateHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &TemplateHandler{templates: templates, logger: logger}
}

func (h *TemplateHandler) List(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	list, err := h.templates.List(c.Request.Context(), uid, c.Query("canal"))
	if err != nil {
		serviceError(c, h.logger, "list templates", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

func (h *TemplateHandler) Get(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id", "template")
	if !ok {
		return
	}
	tpl, err := h.templates.Get(c.Request.Context(), uid, id)
	if err != nil {
		serviceError(c, h.logger, "get template", err)
		return
	}
	c.JSON(http.StatusOK, tpl)
}

func (h *TemplateHandler) Create(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req services.TemplateCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	tpl, err := h.templates.Create(c.Request.Context(), uid, &req)
	if err != nil {
		serviceError(c, h.logger, "create template", err)
		return
	}
	c.JSON(http.StatusCreated, tpl)
}

func (h *TemplateHandler) Update(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id", "template")
	if !ok {
		return
	}
	var req services.TemplateUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	tpl, err := h.templates.Update(c.Request.Context(), uid, id, &req)
	if err != nil {
		serviceError(c, h.logger, "update template", err)
		return
	}
	c.JSON(http.StatusOK, tpl)
}

func (h *TemplateHandler) Delete(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id", "template")
	if !ok {
		return
	}
	if err := h.templates.Delete(c.Request.Context(), uid, id); err != nil {
		serviceError(c, h.logger, "delete template", err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "template removido"})
}

type previewRequest struct {
	Variables map[string]string `json:"variaveis"`
}

// Preview 用示例变量渲染模板，返回缺失的占位符
func (h *TemplateHandler) Preview(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id", "template")
	if !ok {
		return
	}
	var req previewRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			bindError(c, err)
			return
		}
	}
	p, err := h.templates.Preview(c.Request.Context(), uid, id, req.Variables)
	if err != nil {
		serviceError(c, h.logger, "preview template", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func RegisterTemplateRoutes(r *gin.RouterGroup, h *TemplateHandler) {
	g := r.Group("/templates")
	{
		g.GET("", h.List)
		g.POST("", h.Create)
		g.GET("/:id", h.Get)
		g.PUT("/:id", h.Update)
		g.DELETE("/:id", h.Delete)
		g.POST("/:id/preview", h.Preview)
	}
}
