package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"crmflow/internal/models"
)

// TaskService 待办任务
type TaskService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewTaskService(db *gorm.DB, logger *logrus.Logger) *TaskService {
	if logger == nil {
		logger = logrus.New()
	}
	return &TaskService{db: db, logger: logger}
}

// TaskCreateRequest 创建任务请求
type TaskCreateRequest struct {
	ClientID    *uint      `json:"cliente_id"`
	Title       string     `json:"titulo" binding:"required"`
	Description string     `json:"descricao"`
	Type        string     `json:"tipo"`
	Priority    string     `json:"prioridade"`
	DueDate     *time.Time `json:"data_vencimento"`
}

// TaskListRequest 任务列表请求
type TaskListRequest struct {
	Page     int    `form:"page,default=1"`
	PageSize int    `form:"page_size,default=20"`
	Status   string `form:"status"`
	ClientID uint   `form:"cliente_id"`
}

// CreateTask persists a task built by the engine or the API.
func (s *TaskService) CreateTask(ctx context.Context, task *models.Task) error {
	if task == nil || strings.TrimSpace(task.Title) == "" {
		return fmt.Errorf("%w: título da tarefa vazio", ErrInvalidInput)
	}
	if task.Status == "" {
		task.Status = models.TaskStatusOpen
	}
	if task.Priority == "" {
		task.Priority = "media"
	}
	if err := s.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (s *TaskService) Create(ctx context.Context, userID uint, req *TaskCreateRequest) (*models.Task, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request required", ErrInvalidInput)
	}
	task := &models.Task{
		UserID:      userID,
		ClientID:    req.ClientID,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Type:        req.Type,
		Priority:    req.Priority,
		DueDate:     req.DueDate,
	}
	if task.Type == "" {
		task.Type = "geral"
	}
	if err := s.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (s *TaskService) List(ctx context.Context, userID uint, req *TaskListRequest) ([]models.Task, int64, error) {
	if req == nil {
		req = &TaskListRequest{}
	}
	page, pageSize := normalizePage(req.Page, req.PageSize)
	q := s.db.WithContext(ctx).Model(&models.Task{}).Scopes(ownedBy(userID))
	if req.Status != "" {
		q = q.Where("status = ?", req.Status)
	}
	if req.ClientID != 0 {
		q = q.Where("cliente_id = ?", req.ClientID)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}
	var tasks []models.Task
	if err := q.Order("data_vencimento ASC, id ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&tasks).Error; err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, total, nil
}

// Complete 标记完成
func (s *TaskService) Complete(ctx context.Context, userID, id uint) (*models.Task, error) {
	var task models.Task
	err := s.db.WithContext(ctx).Scopes(ownedBy(userID)).First(&task, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	if task.Status == models.TaskStatusDone {
		return &task, nil
	}
	now := time.Now()
	task.Status = models.TaskStatusDone
	task.CompletedAt = &now
	if err := s.db.WithContext(ctx).Save(&task).Error; err != nil {
		return nil, fmt.Errorf("complete task: %w", err)
	}
	return &task, nil
}
