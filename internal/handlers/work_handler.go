package handlers

import (
	"net/http"

	"crmflow/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// TaskHandler 任务
type TaskHandler struct {
	tasks  *services.TaskService
	logger *logrus.Logger
}

func NewTaskHandler(tasks *services.TaskService, logger *logrus.Logger) *TaskHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &TaskHandler{tasks: tasks, logger: logger}
}

func (h *TaskHandler) Create(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req services.TaskCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	task, err := h.tasks.Create(c.Request.Context(), uid, &req)
	if err != nil {
		serviceError(c, h.logger, "create task", err)
		return
	}
	c.JSON(http.StatusCreated, task)
}

func (h *TaskHandler) List(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req services.TaskListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid query parameters", Message: err.Error()})
		return
	}
	tasks, total, err := h.tasks.List(c.Request.Context(), uid, &req)
	if err != nil {
		serviceError(c, h.logger, "list tasks", err)
		return
	}
	c.JSON(http.StatusOK, paginated(tasks, total, req.Page, req.PageSize))
}

func (h *TaskHandler) Complete(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := parseID(c, "id", "task")
	if !ok {
		return
	}
	task, err := h.tasks.Complete(c.Request.Context(), uid, id)
	if err != nil {
		serviceError(c, h.logger, "complete task", err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func RegisterTaskRoutes(r *gin.RouterGroup, h *TaskHandler) {
	g := r.Group("/tarefas")
	{
		g.GET("", h.List)
		g.POST("", h.Create)
		g.PATCH("/:id/concluir", h.Complete)
	}
}

// AppointmentHandler 预约与付款提醒
type AppointmentHandler struct {
	appointments *services.AppointmentService
	reminders    *services.ReminderService
	logger       *logrus.Logger
}

func NewAppointmentHandler(appointments *services.AppointmentService, reminders *services.ReminderService, logger *logrus.Logger) *AppointmentHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AppointmentHandler{appointments: appointments, reminders: reminders, logger: logger}
}

// Create 创建预约，触发 agendamento_criado
func (h *AppointmentHandler) Create(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req services.AppointmentCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	appt, err := h.appointments.Create(c.Request.Context(), uid, &req)
	if err != nil {
		serviceError(c, h.logger, "create appointment", err)
		return
	}
	c.JSON(http.StatusCreated, appt)
}

func (h *AppointmentHandler) List(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req services.AppointmentListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid query parameters", Message: err.Error()})
		return
	}
	list, err := h.appointments.List(c.Request.Context(), uid, &req)
	if err != nil {
		serviceError(c, h.logger, "list appointments", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

func (h *AppointmentHandler) ListReminders(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	list, err := h.reminders.List(c.Request.Context(), uid, c.Query("status"))
	if err != nil {
		serviceError(c, h.logger, "list reminders", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": list})
}

func RegisterAppointmentRoutes(r *gin.RouterGroup, h *AppointmentHandler) {
	g := r.Group("/agendamentos")
	{
		g.GET("", h.List)
		g.POST("", h.Create)
	}
	r.GET("/lembretes", h.ListReminders)
}
