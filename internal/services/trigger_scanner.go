package services

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"crmflow/internal/automation"
	"crmflow/internal/config"
	"crmflow/internal/models"
	"crmflow/pkg/utils"
)

// ScanReport counts what one scanner pass did.
type ScanReport struct {
	Checked int `json:"clientes_verificados"`
	Events  int `json:"eventos"`
	Fired   int `json:"regras_disparadas"`
	Errors  int `json:"erros"`
}

// TriggerScanner 定时扫描，把经过的时间转换为 dias_atraso / dias_sem_contato 事件
type TriggerScanner struct {
	db     *gorm.DB
	engine EventHandler
	logger *logrus.Logger
	spec   string
	cron   *cron.Cron
	now    func() time.Time
}

func NewTriggerScanner(db *gorm.DB, engine EventHandler, cfg config.ScannerConfig, logger *logrus.Logger) *TriggerScanner {
	if logger == nil {
		logger = logrus.New()
	}
	spec := cfg.Cron
	if spec == "" {
		spec = "0 * * * *"
	}
	return &TriggerScanner{db: db, engine: engine, logger: logger, spec: spec, now: time.Now}
}

// Start schedules Scan on the cron spec and stops the scheduler when ctx ends.
func (s *TriggerScanner) Start(ctx context.Context) error {
	if _, err := cron.ParseStandard(s.spec); err != nil {
		return fmt.Errorf("invalid scanner cron %q: %w", s.spec, err)
	}
	s.cron = cron.New()
	if _, err := s.cron.AddFunc(s.spec, func() {
		report, err := s.Scan(ctx)
		if err != nil {
			s.logger.Errorf("trigger scan failed: %v", err)
			return
		}
		s.logger.Infof("trigger scan completed: %d clients, %d events, %d rules fired", report.Checked, report.Events, report.Fired)
	}); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Infof("Trigger scanner scheduled (%s)", s.spec)

	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
		s.logger.Info("Trigger scanner stopped")
	}()
	return nil
}

// Scan runs one pass over overdue and idle clients. Each (rule, client) pair
// fires at most once per day.
func (s *TriggerScanner) Scan(ctx context.Context) (*ScanReport, error) {
	ctx, span := otel.Tracer("crmflow.automation").Start(ctx, "automation.scan")
	defer span.End()

	report := &ScanReport{}
	now := s.now()

	if ok, err := s.hasActiveRules(ctx, automation.TriggerPaymentOverdueDays); err != nil {
		return nil, err
	} else if ok {
		q := s.db.WithContext(ctx).Model(&models.Client{}).
			Where("status_pagamento = ? AND data_vencimento IS NOT NULL AND data_vencimento < ?",
				models.PaymentStatusOverdue, utils.StartOfDay(now))
		err := s.each(q, func(c *models.Client) {
			report.Checked++
			days := utils.DaysBetween(*c.DueDate, now)
			if days <= 0 {
				return
			}
			s.fire(ctx, report, automation.Event{
				Type:       automation.TriggerPaymentOverdueDays,
				UserID:     c.UserID,
				ClientID:   c.ID,
				Days:       days,
				OccurredAt: now,
				OncePerDay: true,
			})
		})
		if err != nil {
			return nil, err
		}
	}

	if ok, err := s.hasActiveRules(ctx, automation.TriggerNoContactDays); err != nil {
		return nil, err
	} else if ok {
		cutoff := now.AddDate(0, 0, -1)
		q := s.db.WithContext(ctx).Model(&models.Client{}).
			Where("status <> ?", models.ClientStatusCancelled).
			Where("COALESCE(ultimo_contato, created_at) < ?", cutoff)
		err := s.each(q, func(c *models.Client) {
			report.Checked++
			last := c.CreatedAt
			if c.LastContactAt != nil {
				last = *c.LastContactAt
			}
			days := utils.DaysBetween(last, now)
			if days <= 0 {
				return
			}
			s.fire(ctx, report, automation.Event{
				Type:       automation.TriggerNoContactDays,
				UserID:     c.UserID,
				ClientID:   c.ID,
				Days:       days,
				OccurredAt: now,
				OncePerDay: true,
			})
		})
		if err != nil {
			return nil, err
		}
	}

	span.SetAttributes(
		attribute.Int("automation.scan.checked", report.Checked),
		attribute.Int("automation.scan.fired", report.Fired),
	)
	return report, nil
}

func (s *TriggerScanner) fire(ctx context.Context, report *ScanReport, evt automation.Event) {
	report.Events++
	res, err := s.engine.HandleEvent(ctx, evt)
	if err != nil {
		report.Errors++
		s.logger.WithFields(logrus.Fields{"event": evt.Type, "client_id": evt.ClientID}).Warnf("scan event failed: %v", err)
		return
	}
	if res != nil {
		report.Fired += res.Fired
	}
}

func (s *TriggerScanner) each(q *gorm.DB, fn func(c *models.Client)) error {
	var batch []models.Client
	res := q.FindInBatches(&batch, 200, func(tx *gorm.DB, _ int) error {
		for i := range batch {
			fn(&batch[i])
		}
		return nil
	})
	if res.Error != nil {
		return fmt.Errorf("scan clients: %w", res.Error)
	}
	return nil
}

func (s *TriggerScanner) hasActiveRules(ctx context.Context, trigger automation.TriggerType) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Automation{}).
		Where("ativo = ? AND trigger_tipo = ?", true, string(trigger)).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("count automations: %w", err)
	}
	return count > 0, nil
}
