package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"crmflow/internal/automation"
	"crmflow/internal/models"
)

// TemplateService 管理邮件/WhatsApp 模板
type TemplateService struct {
	db     *gorm.DB
	logger *logrus.Logger
}

func NewTemplateService(db *gorm.DB, logger *logrus.Logger) *TemplateService {
	if logger == nil {
		logger = logrus.New()
	}
	return &TemplateService{db: db, logger: logger}
}

// TemplateCreateRequest 创建请求
type TemplateCreateRequest struct {
	Name    string `json:"nome" binding:"required"`
	Channel string `json:"canal"`
	Subject string `json:"assunto"`
	Content string `json:"conteudo" binding:"required"`
	Active  *bool  `json:"ativo"`
}

// TemplateUpdateRequest 更新请求
type TemplateUpdateRequest struct {
	Name    *string `json:"nome"`
	Channel *string `json:"canal"`
	Subject *string `json:"assunto"`
	Content *string `json:"conteudo"`
	Active  *bool   `json:"ativo"`
}

// TemplatePreview is a template rendered against a set of variables.
type TemplatePreview struct {
	Subject string   `json:"assunto"`
	Content string   `json:"conteudo"`
	Missing []string `json:"variaveis_ausentes,omitempty"`
}

func (s *TemplateService) List(ctx context.Context, userID uint, channel string) ([]models.Template, error) {
	var templates []models.Template
	q := s.db.WithContext(ctx).Scopes(ownedBy(userID))
	if channel != "" {
		q = q.Where("canal = ?", channel)
	}
	if err := q.Order("updated_at DESC").Find(&templates).Error; err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return templates, nil
}

func (s *TemplateService) Get(ctx context.Context, userID, id uint) (*models.Template, error) {
	var tpl models.Template
	err := s.db.WithContext(ctx).Scopes(ownedBy(userID)).First(&tpl, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTemplateNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return &tpl, nil
}

func (s *TemplateService) Create(ctx context.Context, userID uint, req *TemplateCreateRequest) (*models.Template, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request required", ErrInvalidInput)
	}
	channel, err := normalizeChannel(req.Channel)
	if err != nil {
		return nil, err
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	tpl := &models.Template{
		UserID:    userID,
		Name:      strings.TrimSpace(req.Name),
		Channel:   channel,
		Subject:   req.Subject,
		Content:   req.Content,
		Active:    active,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(tpl).Error; err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	return tpl, nil
}

func (s *TemplateService) Update(ctx context.Context, userID, id uint, req *TemplateUpdateRequest) (*models.Template, error) {
	if req == nil {
		return nil, fmt.Errorf("%w: request required", ErrInvalidInput)
	}
	tpl, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		tpl.Name = strings.TrimSpace(*req.Name)
	}
	if req.Channel != nil {
		if tpl.Channel, err = normalizeChannel(*req.Channel); err != nil {
			return nil, err
		}
	}
	if req.Subject != nil {
		tpl.Subject = *req.Subject
	}
	if req.Content != nil {
		tpl.Content = *req.Content
	}
	if req.Active != nil {
		tpl.Active = *req.Active
	}
	tpl.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Save(tpl).Error; err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}
	return tpl, nil
}

func (s *TemplateService) Delete(ctx context.Context, userID, id uint) error {
	result := s.db.WithContext(ctx).Scopes(ownedBy(userID)).Delete(&models.Template{}, id)
	if result.Error != nil {
		return fmt.Errorf("delete template: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

// Resolve returns an active template for outreach.
func (s *TemplateService) Resolve(ctx context.Context, userID, id uint) (*models.Template, error) {
	tpl, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if !tpl.Active {
		return nil, fmt.Errorf("%w: template %d inativo", ErrTemplateNotFound, id)
	}
	return tpl, nil
}

// Preview renders the template with vars and lists placeholders left unresolved.
func (s *TemplateService) Preview(ctx context.Context, userID, id uint, vars map[string]string) (*TemplatePreview, error) {
	tpl, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	out := &TemplatePreview{
		Subject: automation.Render(tpl.Subject, vars),
		Content: automation.Render(tpl.Content, vars),
	}
	seen := map[string]bool{}
	for _, name := range append(automation.Placeholders(tpl.Subject), automation.Placeholders(tpl.Content)...) {
		if _, ok := vars[name]; !ok && !seen[name] {
			seen[name] = true
			out.Missing = append(out.Missing, name)
		}
	}
	return out, nil
}

func normalizeChannel(ch string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(ch)) {
	case "", models.ChannelEmail:
		return models.ChannelEmail, nil
	case models.ChannelWhatsApp, "wpp", "zap":
		return models.ChannelWhatsApp, nil
	default:
		return "", fmt.Errorf("%w: canal desconhecido %q", ErrInvalidInput, ch)
	}
}
