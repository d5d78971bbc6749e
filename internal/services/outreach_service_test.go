package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmflow/internal/config"
	"crmflow/internal/models"
)

func TestOutreachDeliver_RetriesTransientErrors(t *testing.T) {
	e := newTestEngine(t)
	e.email.err = errSMTPDown
	e.email.failures = 2

	d, err := e.outreach.Deliver(context.Background(), OutreachRequest{
		Channel:   models.ChannelEmail,
		UserID:    1,
		ClientID:  7,
		Subject:   "Oi {{nome}}",
		Body:      "Corpo para {{nome}}",
		Recipient: " ana@example.com ",
		Vars:      map[string]string{"nome": "Ana"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, d.Attempts)
	assert.Equal(t, "ana@example.com", d.Recipient)

	var hist []models.EmailHistory
	require.NoError(t, e.db.Find(&hist).Error)
	require.Len(t, hist, 1)
	assert.Equal(t, models.MessageStatusSent, hist[0].Status)
	assert.Equal(t, "Oi Ana", hist[0].Subject)
	assert.Equal(t, "Corpo para Ana", hist[0].Content)
	assert.Equal(t, d.HistoryID, hist[0].ID)
}

func TestOutreachDeliver_PermanentErrorIsNotRetried(t *testing.T) {
	e := newTestEngine(t)
	e.email.err = permanentErr{}

	_, err := e.outreach.Deliver(context.Background(), OutreachRequest{
		Channel: models.ChannelEmail, UserID: 1, ClientID: 1, Body: "x", Recipient: "a@b.c",
	})
	require.Error(t, err)
	assert.Equal(t, "recipient rejected", err.Error())
	assert.Equal(t, 1, e.email.calls)
	assert.EqualValues(t, 1, countRows(t, e, &models.EmailHistory{}, "status = ?", models.MessageStatusFailed))
}

func TestOutreachDeliver_Validation(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  OutreachRequest
		want string
	}{
		{"no email", OutreachRequest{Channel: models.ChannelEmail, Body: "x"}, "cliente sem email"},
		{"no phone", OutreachRequest{Channel: models.ChannelWhatsApp, Body: "x"}, "cliente sem telefone"},
		{"empty body", OutreachRequest{Channel: models.ChannelWhatsApp, Recipient: "119"}, "mensagem vazia"},
		{"whatsapp too long", OutreachRequest{Channel: models.ChannelWhatsApp, Recipient: "119", Body: strings.Repeat("a", 4097)}, "acima de 4096"},
		{"unknown channel", OutreachRequest{Channel: "sms", Body: "x", Recipient: "1"}, "canal desconhecido"},
		{"missing template", OutreachRequest{Channel: models.ChannelEmail, TemplateID: 42, Recipient: "a@b.c"}, ErrTemplateNotFound.Error()},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.outreach.Deliver(ctx, tc.req)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
	// 每次调用都记录一条历史
	assert.EqualValues(t, len(cases), countRows(t, e, &models.EmailHistory{}))
	assert.Equal(t, 0, e.email.calls)
}

func TestOutreachDeliver_InactiveTemplate(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	tpl, err := e.templates.Create(ctx, 1, &TemplateCreateRequest{Name: "Off", Content: "x", Active: boolPtr(false)})
	require.NoError(t, err)

	_, err = e.outreach.Deliver(ctx, OutreachRequest{
		Channel: models.ChannelEmail, UserID: 1, TemplateID: tpl.ID, Recipient: "a@b.c",
	})
	assert.True(t, errors.Is(err, ErrTemplateNotFound))
}

func TestOutreachDeliver_WhatsAppTemplate(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()
	tpl, err := e.templates.Create(ctx, 1, &TemplateCreateRequest{
		Name: "Lembrete", Channel: "zap", Content: "{{nome}}, seu plano de {{valor_plano}} vence amanhã",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ChannelWhatsApp, tpl.Channel)

	_, err = e.outreach.Deliver(ctx, OutreachRequest{
		Channel:    models.ChannelWhatsApp,
		UserID:     1,
		TemplateID: tpl.ID,
		Recipient:  "11999998888",
		Vars:       map[string]string{"nome": "Bia", "valor_plano": "R$ 99,90"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Bia, seu plano de R$ 99,90 vence amanhã", e.whatsapp.sent["11999998888"])
}

func TestOutreachDeliver_OpenBreakerFailsFast(t *testing.T) {
	e := newTestEngine(t, func(c *config.AutomationConfig) {
		c.Retry.MaxAttempts = 1
		c.CircuitBreaker = config.BreakerConfig{Enabled: true, MaxFailures: 2, ResetTimeout: time.Hour, HalfOpenMaxReqs: 1}
	})
	e.email.err = errSMTPDown
	req := OutreachRequest{Channel: models.ChannelEmail, UserID: 1, Body: "x", Recipient: "a@b.c"}

	for i := 0; i < 2; i++ {
		_, err := e.outreach.Deliver(context.Background(), req)
		require.Error(t, err)
	}
	_, err := e.outreach.Deliver(context.Background(), req)
	assert.True(t, errors.Is(err, ErrChannelUnavailable))
	assert.Equal(t, 2, e.email.calls)

	stats := e.outreach.BreakerStats()
	assert.Equal(t, "open", stats[models.ChannelEmail].(map[string]interface{})["state"])
	assert.Equal(t, "closed", stats[models.ChannelWhatsApp].(map[string]interface{})["state"])
}

func TestOutreachDeliver_CanceledContext(t *testing.T) {
	e := newTestEngine(t)
	e.email.err = context.Canceled
	_, err := e.outreach.Deliver(context.Background(), OutreachRequest{
		Channel: models.ChannelEmail, Body: "x", Recipient: "a@b.c",
	})
	require.Error(t, err)
	assert.Equal(t, 1, e.email.calls)
}

func TestCircuitBreaker(t *testing.T) {
	clock := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(config.BreakerConfig{Enabled: true, MaxFailures: 3, ResetTimeout: time.Minute, HalfOpenMaxReqs: 1})
	cb.now = func() time.Time { return clock }

	for i := 0; i < 3; i++ {
		require.True(t, cb.Allow())
		cb.OnFailure()
	}
	assert.Equal(t, StateOpenCB, cb.State())
	assert.False(t, cb.Allow())

	clock = clock.Add(2 * time.Minute)
	assert.True(t, cb.Allow())
	assert.Equal(t, StateHalfOpenCB, cb.State())
	assert.False(t, cb.Allow(), "half-open admits one trial call")

	cb.OnFailure()
	assert.Equal(t, StateOpenCB, cb.State())

	clock = clock.Add(2 * time.Minute)
	require.True(t, cb.Allow())
	cb.OnSuccess()
	assert.Equal(t, StateClosedCB, cb.State())
	assert.Equal(t, 0, cb.Stats()["failure_count"])
}

func TestCircuitBreakerDisabled(t *testing.T) {
	cb := NewCircuitBreaker(config.BreakerConfig{Enabled: false})
	for i := 0; i < 20; i++ {
		cb.OnFailure()
	}
	assert.True(t, cb.Allow())
	assert.Equal(t, 5, cb.Stats()["max_failures"])
}
