package services

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"crmflow/internal/models"
	"crmflow/pkg/utils"
)

// BillingSummary 付款状态看板
type BillingSummary struct {
	ByStatus       map[string]int64 `json:"por_status"`
	OverdueClients int64            `json:"clientes_inadimplentes"`
	OverdueAmount  float64          `json:"valor_em_atraso"`
	MonthlyRevenue float64          `json:"receita_mensal"`
	DueThisWeek    int64            `json:"vencendo_semana"`
	OverdueLabel   string           `json:"valor_em_atraso_formatado"`
	RevenueLabel   string           `json:"receita_mensal_formatada"`
}

// PipelineSummary 管道看板
type PipelineSummary struct {
	ByStatus      map[string]int64 `json:"por_status"`
	Total         int64            `json:"total"`
	OpenTasks     int64            `json:"tarefas_pendentes"`
	UpcomingAppts int64            `json:"agendamentos_proximos"`
}

// DashboardService 看板计数
type DashboardService struct {
	db     *gorm.DB
	logger *logrus.Logger
	now    func() time.Time
}

func NewDashboardService(db *gorm.DB, logger *logrus.Logger) *DashboardService {
	if logger == nil {
		logger = logrus.New()
	}
	return &DashboardService{db: db, logger: logger, now: time.Now}
}

type statusCount struct {
	Status string
	Total  int64
	Amount float64
}

func (s *DashboardService) Billing(ctx context.Context, userID uint) (*BillingSummary, error) {
	var rows []statusCount
	if err := s.db.WithContext(ctx).Model(&models.Client{}).Scopes(ownedBy(userID)).
		Select("status_pagamento AS status, COUNT(*) AS total, COALESCE(SUM(valor_plano), 0) AS amount").
		Group("status_pagamento").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("billing summary: %w", err)
	}
	out := &BillingSummary{ByStatus: map[string]int64{}}
	for _, st := range models.PaymentStatuses {
		out.ByStatus[st] = 0
	}
	for _, r := range rows {
		out.ByStatus[r.Status] = r.Total
		switch r.Status {
		case models.PaymentStatusOverdue:
			out.OverdueClients = r.Total
			out.OverdueAmount = r.Amount
		case models.PaymentStatusUpToDate:
			out.MonthlyRevenue = r.Amount
		}
	}

	today := utils.StartOfDay(s.now())
	if err := s.db.WithContext(ctx).Model(&models.Client{}).Scopes(ownedBy(userID)).
		Where("status_pagamento <> ? AND data_vencimento >= ? AND data_vencimento < ?",
			models.PaymentStatusUpToDate, today, today.AddDate(0, 0, 7)).
		Count(&out.DueThisWeek).Error; err != nil {
		return nil, fmt.Errorf("billing summary: %w", err)
	}
	out.OverdueLabel = utils.FormatMoney(out.OverdueAmount)
	out.RevenueLabel = utils.FormatMoney(out.MonthlyRevenue)
	return out, nil
}

func (s *DashboardService) Pipeline(ctx context.Context, userID uint) (*PipelineSummary, error) {
	var rows []statusCount
	if err := s.db.WithContext(ctx).Model(&models.Client{}).Scopes(ownedBy(userID)).
		Select("status, COUNT(*) AS total").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("pipeline summary: %w", err)
	}
	out := &PipelineSummary{ByStatus: map[string]int64{}}
	for _, st := range models.ClientStatuses {
		out.ByStatus[st] = 0
	}
	for _, r := range rows {
		out.ByStatus[r.Status] = r.Total
		out.Total += r.Total
	}
	if err := s.db.WithContext(ctx).Model(&models.Task{}).Scopes(ownedBy(userID)).
		Where("status = ?", models.TaskStatusOpen).
		Count(&out.OpenTasks).Error; err != nil {
		return nil, fmt.Errorf("pipeline summary: %w", err)
	}
	now := s.now()
	if err := s.db.WithContext(ctx).Model(&models.Appointment{}).Scopes(ownedBy(userID)).
		Where("status = ? AND data_hora >= ? AND data_hora < ?", "agendado", now, now.AddDate(0, 0, 7)).
		Count(&out.UpcomingAppts).Error; err != nil {
		return nil, fmt.Errorf("pipeline summary: %w", err)
	}
	return out, nil
}
