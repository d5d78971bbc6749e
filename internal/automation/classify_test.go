package automation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassifier_Match(t *testing.T) {
	overdue3 := &Rule{ID: 1, Name: "D+3", Active: true, Trigger: TriggerPaymentOverdueDays, TriggerConfig: TriggerConfig{Days: intPtr(3)}}
	overdueAny := &Rule{ID: 2, Name: "any", Active: true, Trigger: TriggerPaymentOverdueDays}
	inactive := &Rule{ID: 3, Name: "off", Active: false, Trigger: TriggerPaymentOverdueDays}
	toProposal := &Rule{ID: 4, Name: "proposta", Active: true, Trigger: TriggerStatusChanged, TriggerConfig: TriggerConfig{ToStatus: "Proposta"}}
	created := &Rule{ID: 5, Name: "boas vindas", Active: true, Trigger: TriggerClientCreated}

	rules := []*Rule{overdue3, overdueAny, inactive, toProposal, created}

	tests := []struct {
		name   string
		policy DaysPolicy
		evt    Event
		want   []uint
	}{
		{"gte below threshold", DaysAtLeast, Event{Type: TriggerPaymentOverdueDays, Days: 2}, []uint{2}},
		{"gte at threshold", DaysAtLeast, Event{Type: TriggerPaymentOverdueDays, Days: 3}, []uint{1, 2}},
		{"gte above threshold", DaysAtLeast, Event{Type: TriggerPaymentOverdueDays, Days: 10}, []uint{1, 2}},
		{"eq above threshold", DaysExactly, Event{Type: TriggerPaymentOverdueDays, Days: 4}, []uint{2}},
		{"eq at threshold", DaysExactly, Event{Type: TriggerPaymentOverdueDays, Days: 3}, []uint{1, 2}},
		{"status to matches", DaysAtLeast, Event{Type: TriggerStatusChanged, FromStatus: "Lead", ToStatus: "Proposta"}, []uint{4}},
		{"status to differs", DaysAtLeast, Event{Type: TriggerStatusChanged, FromStatus: "Lead", ToStatus: "Contato"}, nil},
		{"created", DaysAtLeast, Event{Type: TriggerClientCreated, OccurredAt: time.Now()}, []uint{5}},
		{"no listeners", DaysAtLeast, Event{Type: TriggerAppointmentCreated}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Classifier{Policy: tt.policy}
			var got []uint
			for _, r := range c.Classify(rules, tt.evt) {
				got = append(got, r.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifier_InactiveNeverMatches(t *testing.T) {
	r := &Rule{Active: false, Trigger: TriggerClientCreated}
	assert.False(t, Classifier{}.Match(r, Event{Type: TriggerClientCreated}))
	assert.False(t, Classifier{}.Match(nil, Event{Type: TriggerClientCreated}))
}

func TestParseDaysPolicy(t *testing.T) {
	assert.Equal(t, DaysExactly, ParseDaysPolicy(" EQ "))
	assert.Equal(t, DaysAtLeast, ParseDaysPolicy("gte"))
	assert.Equal(t, DaysAtLeast, ParseDaysPolicy(""))
}

func TestParseTriggerType(t *testing.T) {
	for _, in := range []string{"dias_atraso", "paymentOverdueDays", "payment_overdue_days"} {
		got, err := ParseTriggerType(in)
		assert.NoError(t, err, in)
		assert.Equal(t, TriggerPaymentOverdueDays, got)
	}
	_, err := ParseTriggerType("birthday")
	assert.Error(t, err)
}
