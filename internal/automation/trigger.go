package automation

import (
	"fmt"
	"strings"
	"time"
)

// TriggerType is the lifecycle event a rule listens to.
type TriggerType string

const (
	TriggerClientCreated      TriggerType = "cliente_criado"
	TriggerStatusChanged      TriggerType = "status_mudou"
	TriggerNoContactDays      TriggerType = "dias_sem_contato"
	TriggerPaymentOverdueDays TriggerType = "dias_atraso"
	TriggerAppointmentCreated TriggerType = "agendamento_criado"
	TriggerPaymentRegularized TriggerType = "pagamento_regularizado"
)

// TriggerTypes lists every supported trigger.
var TriggerTypes = []TriggerType{
	TriggerClientCreated,
	TriggerStatusChanged,
	TriggerNoContactDays,
	TriggerPaymentOverdueDays,
	TriggerAppointmentCreated,
	TriggerPaymentRegularized,
}

var triggerAliases = map[string]TriggerType{
	"clientecreated":     TriggerClientCreated,
	"clientcreated":      TriggerClientCreated,
	"statuschanged":      TriggerStatusChanged,
	"nocontactdays":      TriggerNoContactDays,
	"paymentoverduedays": TriggerPaymentOverdueDays,
	"daysoverdue":        TriggerPaymentOverdueDays,
	"appointmentcreated": TriggerAppointmentCreated,
	"paymentregularized": TriggerPaymentRegularized,
}

// ParseTriggerType accepts the persisted names plus camelCase aliases.
func ParseTriggerType(s string) (TriggerType, error) {
	s = strings.TrimSpace(s)
	for _, t := range TriggerTypes {
		if string(t) == s {
			return t, nil
		}
	}
	key := strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(s))
	if t, ok := triggerAliases[key]; ok {
		return t, nil
	}
	return "", fmt.Errorf("%w: trigger %q não suportado", ErrInvalidRule, s)
}

// IsDayCount reports whether the trigger carries an elapsed-days count.
func (t TriggerType) IsDayCount() bool {
	return t == TriggerNoContactDays || t == TriggerPaymentOverdueDays
}

// Event is one occurrence of a lifecycle event for a client.
type Event struct {
	Type          TriggerType `json:"tipo"`
	UserID        uint        `json:"user_id,omitempty"`
	ClientID      uint        `json:"cliente_id"`
	Days          int         `json:"dias,omitempty"`
	FromStatus    string      `json:"status_de,omitempty"`
	ToStatus      string      `json:"status_para,omitempty"`
	AppointmentID uint        `json:"agendamento_id,omitempty"`
	OccurredAt    time.Time   `json:"ocorrido_em"`
	// OncePerDay suppresses a rule that already has an execution for the same client today.
	OncePerDay bool `json:"-"`
}

// TriggerConfig is the per-rule filter applied during classification.
type TriggerConfig struct {
	Days       *int   `json:"dias,omitempty"`
	FromStatus string `json:"status_de,omitempty"`
	ToStatus   string `json:"status_para,omitempty"`
}

func (tc TriggerConfig) validate(t TriggerType) error {
	if tc.Days != nil {
		if !t.IsDayCount() {
			return fmt.Errorf("%w: 'dias' só se aplica a %s e %s", ErrInvalidRule, TriggerNoContactDays, TriggerPaymentOverdueDays)
		}
		if *tc.Days < 0 {
			return fmt.Errorf("%w: 'dias' não pode ser negativo", ErrInvalidRule)
		}
	}
	if (tc.FromStatus != "" || tc.ToStatus != "") && t != TriggerStatusChanged {
		return fmt.Errorf("%w: 'status_de'/'status_para' só se aplicam a %s", ErrInvalidRule, TriggerStatusChanged)
	}
	return nil
}
