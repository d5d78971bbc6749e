package services

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"crmflow/internal/models"
)

// ReminderService 催缴提醒
type ReminderService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewReminderService(db *gorm.DB, logger *logrus.Logger) *ReminderService {
	if logger == nil {
		logger = logrus.New()
	}
	return &ReminderService{db: db, logger: logger}
}

func (s *ReminderService) CreateReminder(ctx context.Context, r *models.BillingReminder) error {
	if r == nil || r.ClientID == 0 {
		return fmt.Errorf("%w: lembrete sem cliente", ErrInvalidInput)
	}
	if r.Status == "" {
		r.Status = "pendente"
	}
	if r.Channel == "" {
		r.Channel = models.ChannelEmail
	}
	if err := s.db.WithContext(ctx).Create(r).Error; err != nil {
		return fmt.Errorf("create reminder: %w", err)
	}
	return nil
}

// List 按提醒日期排序；status 为空时返回全部
func (s *ReminderService) List(ctx context.Context, userID uint, status string) ([]models.BillingReminder, error) {
	q := s.db.WithContext(ctx).Scopes(ownedBy(userID))
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var out []models.BillingReminder
	if err := q.Order("data_lembrete ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}
	return out, nil
}
