package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"crmflow/internal/automation"
	"crmflow/internal/middleware"
	"crmflow/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ErrorResponse 错误响应结构
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code,omitempty"`
}

// PaginatedResponse 分页响应结构
type PaginatedResponse struct {
	Data     interface{} `json:"data"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Pages    int         `json:"pages"`
}

// SuccessResponse 成功响应结构
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func paginated(data interface{}, total int64, page, pageSize int) PaginatedResponse {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	pages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return PaginatedResponse{Data: data, Total: total, Page: page, PageSize: pageSize, Pages: pages}
}

// currentUser 读取 AuthMiddleware 写入的 user_id
func currentUser(c *gin.Context) (uint, bool) {
	uid, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "Unauthorized",
			Message: "user not authenticated",
		})
		return 0, false
	}
	return uid, true
}

func parseID(c *gin.Context, name, label string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid " + label + " ID",
			Message: "ID must be a valid number",
		})
		return 0, false
	}
	return uint(id), true
}

func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   "Invalid request body",
		Message: err.Error(),
	})
}

// serviceError maps service sentinels to HTTP statuses and logs the rest.
func serviceError(c *gin.Context, logger *logrus.Logger, op string, err error) {
	status := http.StatusInternalServerError
	title := "Failed to " + op
	switch {
	case errors.Is(err, services.ErrRuleNotFound),
		errors.Is(err, services.ErrClientNotFound),
		errors.Is(err, services.ErrTemplateNotFound),
		errors.Is(err, services.ErrTaskNotFound),
		errors.Is(err, services.ErrNotificationNotFound):
		status = http.StatusNotFound
		title = "Not found"
	case errors.Is(err, services.ErrInvalidInput), errors.Is(err, automation.ErrInvalidRule):
		status = http.StatusBadRequest
		title = "Invalid request"
	case errors.Is(err, services.ErrChannelUnavailable):
		status = http.StatusServiceUnavailable
		title = "Channel unavailable"
	default:
		logger.WithError(err).Errorf("failed to %s", op)
	}
	c.JSON(status, ErrorResponse{Error: title, Message: err.Error()})
}
