package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmflow/internal/automation"
	"crmflow/internal/models"
)

type recordingHandler struct {
	events []automation.Event
}

func (h *recordingHandler) HandleEvent(_ context.Context, evt automation.Event) (*EventResult, error) {
	h.events = append(h.events, evt)
	return &EventResult{Event: evt}, nil
}

func TestClientService_EmitsLifecycleEvents(t *testing.T) {
	db := newTestDB(t)
	svc := NewClientService(db, quietLogger())
	rec := &recordingHandler{}
	svc.SetAutomationService(rec)
	ctx := context.Background()

	c, err := svc.CreateClient(ctx, 1, &ClientCreateRequest{Name: "Ana", PaymentStatus: "inadimplente"})
	require.NoError(t, err)
	assert.Equal(t, models.ClientStatusLead, c.Status)
	assert.Equal(t, models.PaymentStatusOverdue, c.PaymentStatus)

	_, err = svc.ChangeStatus(ctx, 1, c.ID, "proposta")
	require.NoError(t, err)
	_, err = svc.UpdatePayment(ctx, 1, c.ID, &PaymentUpdateRequest{Status: "Adimplente"})
	require.NoError(t, err)
	// 名称变化不发事件
	name := "Ana Paula"
	_, err = svc.UpdateClient(ctx, 1, c.ID, &ClientUpdateRequest{Name: &name})
	require.NoError(t, err)

	require.Len(t, rec.events, 3)
	assert.Equal(t, automation.TriggerClientCreated, rec.events[0].Type)
	assert.Equal(t, automation.TriggerStatusChanged, rec.events[1].Type)
	assert.Equal(t, "Lead", rec.events[1].FromStatus)
	assert.Equal(t, "Proposta", rec.events[1].ToStatus)
	assert.Equal(t, automation.TriggerPaymentRegularized, rec.events[2].Type)
	for _, evt := range rec.events {
		assert.Equal(t, c.ID, evt.ClientID)
		assert.EqualValues(t, 1, evt.UserID)
		assert.False(t, evt.OccurredAt.IsZero())
	}
}

func TestClientService_Validation(t *testing.T) {
	db := newTestDB(t)
	svc := NewClientService(db, quietLogger())
	ctx := context.Background()

	_, err := svc.CreateClient(ctx, 1, &ClientCreateRequest{Name: "  "})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = svc.CreateClient(ctx, 1, &ClientCreateRequest{Name: "X", Status: "Fantasma"})
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = svc.GetClient(ctx, 1, 999)
	assert.True(t, errors.Is(err, ErrClientNotFound))

	c, err := svc.CreateClient(ctx, 1, &ClientCreateRequest{Name: "Y"})
	require.NoError(t, err)
	_, err = svc.GetClient(ctx, 2, c.ID)
	assert.True(t, errors.Is(err, ErrClientNotFound), "other tenants cannot read the client")

	assert.True(t, errors.Is(svc.SetStatus(ctx, 999, "Contato"), ErrClientNotFound))
}

func TestClientService_ListFilters(t *testing.T) {
	db := newTestDB(t)
	svc := NewClientService(db, quietLogger())
	ctx := context.Background()

	for _, req := range []*ClientCreateRequest{
		{Name: "Alice", Email: "alice@acme.com", Company: "Acme", Status: "Lead", Tags: []string{"vip"}},
		{Name: "Bruno", Email: "bruno@x.com", Status: "Assinante", PaymentStatus: "Adimplente"},
		{Name: "Carla", Email: "carla@acme.com", Company: "ACME Ltda", Status: "Assinante", PaymentStatus: "Inadimplente", Tags: []string{"vip", "b2b"}},
	} {
		_, err := svc.CreateClient(ctx, 1, req)
		require.NoError(t, err)
	}
	_, err := svc.CreateClient(ctx, 2, &ClientCreateRequest{Name: "Alheio"})
	require.NoError(t, err)

	list, total, err := svc.ListClients(ctx, 1, &ClientListRequest{Search: "acme", SortBy: "nome", SortOrder: "asc"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, list, 2)
	assert.Equal(t, "Alice", list[0].Name)
	assert.Equal(t, []string{"b2b", "vip"}, list[1].Tags)

	_, total, err = svc.ListClients(ctx, 1, &ClientListRequest{Status: []string{"Assinante"}, PaymentStatus: []string{"Inadimplente"}})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	_, total, err = svc.ListClients(ctx, 1, &ClientListRequest{Tag: "vip"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	list, total, err = svc.ListClients(ctx, 1, &ClientListRequest{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, list, 1)
}

func TestClientService_LogContactAndSubject(t *testing.T) {
	db := newTestDB(t)
	svc := NewClientService(db, quietLogger())
	ctx := context.Background()

	created := time.Now().AddDate(0, 0, -10)
	due := time.Now().AddDate(0, 0, -4)
	c := &models.Client{
		UserID: 1, Name: "Davi Lima", Status: "Assinante", PaymentStatus: "Inadimplente",
		DueDate: &due, CreatedAt: created,
	}
	require.NoError(t, db.Create(c).Error)

	subj, err := svc.Subject(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, subj.DaysOverdue)
	assert.Equal(t, 4, *subj.DaysOverdue)
	require.NotNil(t, subj.DaysSinceContact)
	assert.Equal(t, 10, *subj.DaysSinceContact)
	assert.Equal(t, "Davi", subj.Variables()["primeiro_nome"])

	entry, err := svc.LogContact(ctx, 1, c.ID, &ContactRequest{Channel: "telefone", Summary: "Prometeu pagar"})
	require.NoError(t, err)
	assert.NotZero(t, entry.ID)

	subj, err = svc.Subject(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, *subj.DaysSinceContact)
}

func TestDaysOverdue(t *testing.T) {
	now := time.Date(2026, 5, 20, 15, 0, 0, 0, time.Local)
	past := now.AddDate(0, 0, -6)
	future := now.AddDate(0, 0, 3)

	assert.Nil(t, daysOverdue(&models.Client{PaymentStatus: "Inadimplente"}, now))
	assert.Equal(t, 6, *daysOverdue(&models.Client{PaymentStatus: "Inadimplente", DueDate: &past}, now))
	assert.Equal(t, 0, *daysOverdue(&models.Client{PaymentStatus: "Adimplente", DueDate: &past}, now))
	assert.Equal(t, 0, *daysOverdue(&models.Client{PaymentStatus: "Pendente", DueDate: &future}, now))
}

func TestClientService_DeleteClient(t *testing.T) {
	db := newTestDB(t)
	svc := NewClientService(db, quietLogger())
	ctx := context.Background()

	c, err := svc.CreateClient(ctx, 1, &ClientCreateRequest{Name: "Temp"})
	require.NoError(t, err)
	assert.True(t, errors.Is(svc.DeleteClient(ctx, 2, c.ID), ErrClientNotFound))
	require.NoError(t, svc.DeleteClient(ctx, 1, c.ID))
	_, err = svc.GetClient(ctx, 1, c.ID)
	assert.True(t, errors.Is(err, ErrClientNotFound))
}
