package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/slack-go/slack"
	"gorm.io/gorm"

	"crmflow/internal/config"
	"crmflow/internal/models"
)

// NotificationMirror forwards a notification to an external channel.
type NotificationMirror interface {
	Mirror(ctx context.Context, n *models.Notification) error
}

// SlackMirror posts notifications to an incoming webhook.
type SlackMirror struct {
	webhookURL string
	channel    string
}

func NewSlackMirror(cfg config.SlackConfig) *SlackMirror {
	return &SlackMirror{webhookURL: cfg.WebhookURL, channel: cfg.Channel}
}

func (m *SlackMirror) Mirror(ctx context.Context, n *models.Notification) error {
	msg := &slack.WebhookMessage{
		Channel: m.channel,
		Text:    fmt.Sprintf("*%s*", n.Title),
		Attachments: []slack.Attachment{{
			Text:   n.Message,
			Footer: "crmflow · " + n.Type,
		}},
	}
	return slack.PostWebhookContext(ctx, m.webhookURL, msg)
}

// NotificationService 站内通知：持久化、实时推送、可选 Slack 镜像
type NotificationService struct {
	db     *gorm.DB
	logger *logrus.Logger
	hub    *NotificationHub
	mirror NotificationMirror
}

func NewNotificationService(db *gorm.DB, hub *NotificationHub, logger *logrus.Logger) *NotificationService {
	if logger == nil {
		logger = logrus.New()
	}
	return &NotificationService{db: db, hub: hub, logger: logger}
}

// SetMirror 注入外部镜像（Slack）
func (s *NotificationService) SetMirror(m NotificationMirror) {
	s.mirror = m
}

// NotificationListRequest 通知列表请求
type NotificationListRequest struct {
	Page       int  `form:"page,default=1"`
	PageSize   int  `form:"page_size,default=20"`
	UnreadOnly bool `form:"nao_lidas"`
}

// Notify persists n and pushes it to live subscribers. Mirror failures are
// logged, not returned.
func (s *NotificationService) Notify(ctx context.Context, n *models.Notification) error {
	if n == nil || strings.TrimSpace(n.Title) == "" {
		return fmt.Errorf("%w: notificação sem título", ErrInvalidInput)
	}
	if n.Type == "" {
		n.Type = "automacao"
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(n).Error; err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	if s.hub != nil {
		s.hub.Publish(n.UserID, "notificacao", n)
	}
	if s.mirror != nil {
		if err := s.mirror.Mirror(ctx, n); err != nil {
			s.logger.Warnf("notification %d: mirror failed: %v", n.ID, err)
		}
	}
	return nil
}

func (s *NotificationService) List(ctx context.Context, userID uint, req *NotificationListRequest) ([]models.Notification, int64, error) {
	if req == nil {
		req = &NotificationListRequest{}
	}
	page, pageSize := normalizePage(req.Page, req.PageSize)
	q := s.db.WithContext(ctx).Model(&models.Notification{}).Scopes(ownedBy(userID))
	if req.UnreadOnly {
		q = q.Where("lida = ?", false)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}
	var out []models.Notification
	if err := q.Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&out).Error; err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	return out, total, nil
}

// MarkRead 标记已读
func (s *NotificationService) MarkRead(ctx context.Context, userID, id uint) (*models.Notification, error) {
	var n models.Notification
	err := s.db.WithContext(ctx).Scopes(ownedBy(userID)).First(&n, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotificationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get notification: %w", err)
	}
	if !n.Read {
		n.Read = true
		if err := s.db.WithContext(ctx).Model(&n).Update("lida", true).Error; err != nil {
			return nil, fmt.Errorf("mark read: %w", err)
		}
	}
	return &n, nil
}
