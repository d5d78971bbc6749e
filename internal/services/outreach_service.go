package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"crmflow/internal/automation"
	"crmflow/internal/config"
	"crmflow/internal/metrics"
	"crmflow/internal/models"
	"crmflow/pkg/mailer"
	"crmflow/pkg/utils"
)

// OutreachRequest is one message to render and send.
type OutreachRequest struct {
	Channel       string
	UserID        uint
	ClientID      uint
	AutomationID  *uint
	TemplateID    uint
	Subject       string
	Body          string
	Recipient     string
	RecipientName string
	Vars          map[string]string
}

// Delivery describes a sent message.
type Delivery struct {
	HistoryID uint
	Recipient string
	Attempts  int
}

// OutreachService 外发邮件/WhatsApp：模板渲染、重试、熔断、历史记录
type OutreachService struct {
	db        *gorm.DB
	logger    *logrus.Logger
	templates TemplateStore
	email     EmailSender
	whatsapp  WhatsAppSender
	retry     config.RetryConfig
	breakers  map[string]*CircuitBreaker
}

func NewOutreachService(db *gorm.DB, templates TemplateStore, cfg config.AutomationConfig, logger *logrus.Logger) *OutreachService {
	if logger == nil {
		logger = logrus.New()
	}
	return &OutreachService{
		db:        db,
		logger:    logger,
		templates: templates,
		retry:     cfg.Retry,
		breakers: map[string]*CircuitBreaker{
			models.ChannelEmail:    NewCircuitBreaker(cfg.CircuitBreaker),
			models.ChannelWhatsApp: NewCircuitBreaker(cfg.CircuitBreaker),
		},
	}
}

// SetEmailSender 注入邮件发送器
func (s *OutreachService) SetEmailSender(sender EmailSender) { s.email = sender }

// SetWhatsAppSender 注入 WhatsApp 发送器
func (s *OutreachService) SetWhatsAppSender(sender WhatsAppSender) { s.whatsapp = sender }

// BreakerStats 各渠道熔断器状态
func (s *OutreachService) BreakerStats() map[string]interface{} {
	out := make(map[string]interface{}, len(s.breakers))
	for ch, cb := range s.breakers {
		out[ch] = cb.Stats()
	}
	return out
}

// Deliver renders and sends req. Exactly one history row is written per call,
// with status enviado or erro.
func (s *OutreachService) Deliver(ctx context.Context, req OutreachRequest) (*Delivery, error) {
	hist := &models.EmailHistory{
		UserID:       req.UserID,
		ClientID:     req.ClientID,
		AutomationID: req.AutomationID,
		Channel:      req.Channel,
		Recipient:    strings.TrimSpace(req.Recipient),
	}
	if req.TemplateID != 0 {
		id := req.TemplateID
		hist.TemplateID = &id
	}

	attempts, err := s.deliver(ctx, req, hist)
	hist.SentAt = time.Now()
	if err != nil {
		hist.Status = models.MessageStatusFailed
		hist.Error = err.Error()
	} else {
		hist.Status = models.MessageStatusSent
	}
	metrics.ObserveOutreach(req.Channel, hist.Status)

	if dbErr := s.db.WithContext(context.WithoutCancel(ctx)).Create(hist).Error; dbErr != nil {
		s.logger.Warnf("outreach: write history failed: %v", dbErr)
		if err == nil {
			err = fmt.Errorf("write history: %w", dbErr)
		}
	}
	if err != nil {
		return nil, err
	}
	return &Delivery{HistoryID: hist.ID, Recipient: hist.Recipient, Attempts: attempts}, nil
}

func (s *OutreachService) deliver(ctx context.Context, req OutreachRequest, hist *models.EmailHistory) (int, error) {
	subject, body := req.Subject, req.Body
	if req.TemplateID != 0 {
		if s.templates == nil {
			return 0, ErrTemplateNotFound
		}
		tpl, err := s.templates.Resolve(ctx, req.UserID, req.TemplateID)
		if err != nil {
			return 0, err
		}
		subject, body = tpl.Subject, tpl.Content
	}
	hist.Subject = automation.Render(subject, req.Vars)
	hist.Content = automation.Render(body, req.Vars)

	var send func(context.Context) error
	switch req.Channel {
	case models.ChannelEmail:
		if hist.Recipient == "" {
			return 0, errors.New("cliente sem email")
		}
		if s.email == nil {
			return 0, errors.New("envio de email não configurado")
		}
		msg := mailer.Message{To: hist.Recipient, ToName: req.RecipientName, Subject: hist.Subject, Body: hist.Content}
		send = func(ctx context.Context) error { return s.email.Send(ctx, msg) }
	case models.ChannelWhatsApp:
		if hist.Recipient == "" {
			return 0, errors.New("cliente sem telefone")
		}
		if s.whatsapp == nil {
			return 0, errors.New("envio de WhatsApp não configurado")
		}
		text := hist.Content
		send = func(ctx context.Context) error {
			_, err := s.whatsapp.SendText(ctx, hist.Recipient, text)
			return err
		}
	default:
		return 0, fmt.Errorf("%w: canal desconhecido %q", ErrInvalidInput, req.Channel)
	}
	if strings.TrimSpace(hist.Content) == "" {
		return 0, errors.New("mensagem vazia")
	}
	if req.Channel == models.ChannelWhatsApp && !utils.ValidateMessage(hist.Content) {
		return 0, errors.New("mensagem de WhatsApp acima de 4096 caracteres")
	}
	return s.withRetry(ctx, req.Channel, send)
}

// withRetry 指数退避重试；熔断打开或错误不可重试时立即停止
func (s *OutreachService) withRetry(ctx context.Context, channel string, send func(context.Context) error) (int, error) {
	breaker := s.breakers[channel]
	attempts := 0
	op := func() error {
		if breaker != nil && !breaker.Allow() {
			return backoff.Permanent(ErrChannelUnavailable)
		}
		attempts++
		err := send(ctx)
		if err == nil {
			if breaker != nil {
				breaker.OnSuccess()
			}
			return nil
		}
		if breaker != nil {
			breaker.OnFailure()
		}
		if !retryable(err) {
			return backoff.Permanent(err)
		}
		s.logger.Debugf("outreach: %s attempt %d failed: %v", channel, attempts, err)
		return err
	}
	err := backoff.Retry(op, s.backoffPolicy(ctx))
	return attempts, err
}

func (s *OutreachService) backoffPolicy(ctx context.Context) backoff.BackOff {
	max := s.retry.MaxAttempts
	if max <= 0 {
		max = 1
	}
	exp := backoff.NewExponentialBackOff()
	if s.retry.InitialInterval > 0 {
		exp.InitialInterval = s.retry.InitialInterval
	}
	if s.retry.MaxInterval > 0 {
		exp.MaxInterval = s.retry.MaxInterval
	}
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(max-1)), ctx)
}

// retryable 上下文取消与明确的客户端错误不重试
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var temp interface{ Temporary() bool }
	if errors.As(err, &temp) {
		return temp.Temporary()
	}
	return true
}
