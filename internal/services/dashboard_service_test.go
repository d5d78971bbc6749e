package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmflow/internal/models"
)

func floatPtr(v float64) *float64 { return &v }

func TestDashboardService(t *testing.T) {
	db := newTestDB(t)
	svc := NewDashboardService(db, quietLogger())
	ctx := context.Background()

	soon := time.Now().AddDate(0, 0, 2)
	late := time.Now().AddDate(0, 0, -5)
	seed := []models.Client{
		{UserID: 1, Name: "A", Status: "Assinante", PaymentStatus: "Adimplente", PlanValue: floatPtr(100)},
		{UserID: 1, Name: "B", Status: "Assinante", PaymentStatus: "Adimplente", PlanValue: floatPtr(250.5)},
		{UserID: 1, Name: "C", Status: "Assinante", PaymentStatus: "Inadimplente", PlanValue: floatPtr(80), DueDate: &late},
		{UserID: 1, Name: "D", Status: "Proposta", PaymentStatus: "Pendente", DueDate: &soon},
		{UserID: 1, Name: "E", Status: "Lead", PaymentStatus: "Pendente"},
		{UserID: 2, Name: "Z", Status: "Lead", PaymentStatus: "Inadimplente", PlanValue: floatPtr(999)},
	}
	require.NoError(t, db.Create(&seed).Error)
	require.NoError(t, db.Create(&models.Task{UserID: 1, Title: "t1", Status: models.TaskStatusOpen}).Error)
	require.NoError(t, db.Create(&models.Task{UserID: 1, Title: "t2", Status: models.TaskStatusDone}).Error)
	require.NoError(t, db.Create(&models.Appointment{UserID: 1, ClientID: seed[3].ID, Title: "demo", Status: "agendado", ScheduledAt: soon}).Error)

	billing, err := svc.Billing(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, billing.ByStatus["Adimplente"])
	assert.EqualValues(t, 1, billing.ByStatus["Inadimplente"])
	assert.EqualValues(t, 2, billing.ByStatus["Pendente"])
	assert.EqualValues(t, 1, billing.OverdueClients)
	assert.InDelta(t, 80, billing.OverdueAmount, 0.001)
	assert.InDelta(t, 350.5, billing.MonthlyRevenue, 0.001)
	assert.EqualValues(t, 1, billing.DueThisWeek)
	assert.Equal(t, "R$ 350,50", billing.RevenueLabel)

	pipeline, err := svc.Pipeline(ctx, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 5, pipeline.Total)
	assert.EqualValues(t, 3, pipeline.ByStatus["Assinante"])
	assert.EqualValues(t, 0, pipeline.ByStatus["Cancelado"])
	assert.EqualValues(t, 1, pipeline.OpenTasks)
	assert.EqualValues(t, 1, pipeline.UpcomingAppts)

	all, err := svc.Pipeline(ctx, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 6, all.Total)
}
