package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"crmflow/internal/automation"
	"crmflow/internal/models"
)

// AppointmentService 日程管理
type AppointmentService struct {
	db         *gorm.DB
	logger     *logrus.Logger
	automation EventHandler
}

func NewAppointmentService(db *gorm.DB, logger *logrus.Logger) *AppointmentService {
	if logger == nil {
		logger = logrus.New()
	}
	return &AppointmentService{db: db, logger: logger}
}

// SetAutomationService 注入自动化引擎
func (s *AppointmentService) SetAutomationService(h EventHandler) {
	s.automation = h
}

// AppointmentCreateRequest 创建预约请求
type AppointmentCreateRequest struct {
	ClientID    uint      `json:"cliente_id" binding:"required"`
	Title       string    `json:"titulo" binding:"required"`
	Type        string    `json:"tipo"`
	ScheduledAt time.Time `json:"data_hora" binding:"required"`
	DurationMin int       `json:"duracao_minutos"`
	Notes       string    `json:"observacoes"`
}

// AppointmentListRequest 列表过滤
type AppointmentListRequest struct {
	From     *time.Time `form:"de" time_format:"2006-01-02"`
	To       *time.Time `form:"ate" time_format:"2006-01-02"`
	ClientID uint       `form:"cliente_id"`
}

// ScheduleAppointment is used by agendar_followup; it does not emit agendamento_criado.
func (s *AppointmentService) ScheduleAppointment(ctx context.Context, a *models.Appointment) error {
	if a == nil || strings.TrimSpace(a.Title) == "" {
		return fmt.Errorf("%w: título do agendamento vazio", ErrInvalidInput)
	}
	if a.Status == "" {
		a.Status = "agendado"
	}
	if a.DurationMin == 0 {
		a.DurationMin = 30
	}
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("create appointment: %w", err)
	}
	return nil
}

// Create 创建预约并发出 agendamento_criado
func (s *AppointmentService) Create(ctx context.Context, userID uint, req *AppointmentCreateRequest) (*models.Appointment, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request required", ErrInvalidInput)
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Client{}).
		Scopes(ownedBy(userID)).Where("id = ?", req.ClientID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check client: %w", err)
	}
	if count == 0 {
		return nil, ErrClientNotFound
	}
	appt := &models.Appointment{
		UserID:      userID,
		ClientID:    req.ClientID,
		Title:       req.Title,
		Type:        req.Type,
		ScheduledAt: req.ScheduledAt,
		DurationMin: req.DurationMin,
		Notes:       req.Notes,
	}
	if appt.Type == "" {
		appt.Type = "reuniao"
	}
	if err := s.ScheduleAppointment(ctx, appt); err != nil {
		return nil, err
	}
	if s.automation != nil {
		evt := automation.Event{
			Type:          automation.TriggerAppointmentCreated,
			UserID:        userID,
			ClientID:      appt.ClientID,
			AppointmentID: appt.ID,
			OccurredAt:    time.Now(),
		}
		if _, err := s.automation.HandleEvent(ctx, evt); err != nil {
			s.logger.Warnf("appointment %d: automation event failed: %v", appt.ID, err)
		}
	}
	return appt, nil
}

func (s *AppointmentService) List(ctx context.Context, userID uint, req *AppointmentListRequest) ([]models.Appointment, error) {
	q := s.db.WithContext(ctx).Scopes(ownedBy(userID))
	if req != nil {
		if req.From != nil {
			q = q.Where("data_hora >= ?", *req.From)
		}
		if req.To != nil {
			q = q.Where("data_hora < ?", req.To.AddDate(0, 0, 1))
		}
		if req.ClientID != 0 {
			q = q.Where("cliente_id = ?", req.ClientID)
		}
	}
	var appts []models.Appointment
	if err := q.Order("data_hora ASC").Find(&appts).Error; err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return appts, nil
}
