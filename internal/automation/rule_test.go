package automation

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompile_FullRule(t *testing.T) {
	r, err := Compile(Definition{
		ID:            3,
		UserID:        1,
		Name:          " Cobrança D+3 ",
		Active:        true,
		TriggerType:   "dias_atraso",
		TriggerConfig: json.RawMessage(`{"dias":3}`),
		Conditions:    json.RawMessage(`[{"campo":"status_pagamento","operador":"igual","valor":"Inadimplente"}]`),
		Actions: json.RawMessage(`[
			{"tipo":"enviar_email","config":{"template_id":9,"delay_horas":"2"}},
			{"tipo":"adicionar_tag","config":{"tag":"Inadimplente"}},
			{"tipo":"criar_tarefa","config":{"titulo":"Ligar para {{nome}}"}}
		]`),
	})
	require.NoError(t, err)

	assert.Equal(t, "Cobrança D+3", r.Name)
	assert.Equal(t, TriggerPaymentOverdueDays, r.Trigger)
	require.NotNil(t, r.TriggerConfig.Days)
	assert.Equal(t, 3, *r.TriggerConfig.Days)
	require.Len(t, r.Conditions, 1)
	require.Len(t, r.Actions, 3)

	email, ok := r.Actions[0].(SendEmail)
	require.True(t, ok)
	assert.Equal(t, uint(9), email.TemplateID)
	assert.Equal(t, 2*time.Hour, email.Delay())

	task, ok := r.Actions[2].(CreateTask)
	require.True(t, ok)
	assert.Equal(t, 1, task.DueInDays)
	assert.Equal(t, "media", task.Priority)
	assert.False(t, r.IsNoOp())
}

func TestCompile_TypeParamsShape(t *testing.T) {
	r, err := Compile(Definition{
		Name:        "legacy",
		TriggerType: "clienteCreated",
		Actions:     json.RawMessage(`[{"type":"addTag","params":{"tag":"novo"}}]`),
	})
	require.NoError(t, err)
	assert.Equal(t, TriggerClientCreated, r.Trigger)
	assert.Equal(t, AddTag{Tag: "novo"}, r.Actions[0])
}

func TestCompile_Rejects(t *testing.T) {
	tests := []struct {
		name string
		def  Definition
	}{
		{"missing name", Definition{TriggerType: "cliente_criado"}},
		{"unknown trigger", Definition{Name: "x", TriggerType: "aniversario"}},
		{"dias on wrong trigger", Definition{Name: "x", TriggerType: "cliente_criado", TriggerConfig: json.RawMessage(`{"dias":2}`)}},
		{"negative dias", Definition{Name: "x", TriggerType: "dias_atraso", TriggerConfig: json.RawMessage(`{"dias":-1}`)}},
		{"unknown field", Definition{Name: "x", TriggerType: "cliente_criado", Conditions: json.RawMessage(`[{"campo":"foo","operador":"igual","valor":1}]`)}},
		{"unknown action", Definition{Name: "x", TriggerType: "cliente_criado", Actions: json.RawMessage(`[{"tipo":"enviar_sms"}]`)}},
		{"email without body", Definition{Name: "x", TriggerType: "cliente_criado", Actions: json.RawMessage(`[{"tipo":"enviar_email","config":{}}]`)}},
		{"task without title", Definition{Name: "x", TriggerType: "cliente_criado", Actions: json.RawMessage(`[{"tipo":"criar_tarefa","config":{}}]`)}},
		{"bad integer", Definition{Name: "x", TriggerType: "cliente_criado", Actions: json.RawMessage(`[{"tipo":"agendar_followup","config":{"dias":"amanha"}}]`)}},
		{"negative delay", Definition{Name: "x", TriggerType: "cliente_criado", Actions: json.RawMessage(`[{"tipo":"enviar_whatsapp","config":{"mensagem":"oi","delay_horas":-2}}]`)}},
		{"malformed json", Definition{Name: "x", TriggerType: "cliente_criado", Conditions: json.RawMessage(`{`)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(tt.def)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidRule), "got %v", err)
		})
	}
}

func TestRuleEncode_Normalizes(t *testing.T) {
	r, err := Compile(Definition{
		Name:          "normalize",
		TriggerType:   "status_mudou",
		TriggerConfig: json.RawMessage(`{"status_para":"Proposta"}`),
		Conditions:    json.RawMessage(`[{"field":"origem","op":"neq","value":"Google"}]`),
		Actions:       json.RawMessage(`[{"tipo":"mudar_status","config":{"status":"Contato"}}]`),
	})
	require.NoError(t, err)

	tc, conds, actions, err := r.Encode()
	require.NoError(t, err)
	assert.JSONEq(t, `{"status_para":"Proposta"}`, string(tc))
	assert.JSONEq(t, `[{"campo":"origem","operador":"diferente","valor":"Google"}]`, string(conds))
	assert.JSONEq(t, `[{"tipo":"mudar_status","config":{"status":"Contato"}}]`, string(actions))
}

func TestCompile_EmptyRuleIsNoOp(t *testing.T) {
	r, err := Compile(Definition{Name: "vazia", TriggerType: "cliente_criado", Conditions: json.RawMessage(`null`)})
	require.NoError(t, err)
	assert.True(t, r.IsNoOp())
	assert.Empty(t, r.Conditions)
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []ActionOutcome
		status   Status
		errMsg   string
	}{
		{"all success", []ActionOutcome{{Status: StatusSuccess}, {Status: StatusSuccess}}, StatusSuccess, ""},
		{"first error wins", []ActionOutcome{{Status: StatusSuccess}, {Status: StatusError, Error: "smtp down"}, {Status: StatusError, Error: "later"}}, StatusError, "smtp down"},
		{"pending", []ActionOutcome{{Status: StatusPending}, {Status: StatusSuccess}}, StatusPending, ""},
		{"error beats pending", []ActionOutcome{{Status: StatusPending}, {Status: StatusError, Error: "x"}}, StatusError, "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := Summarize(tt.outcomes)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.errMsg, msg)
		})
	}
}
