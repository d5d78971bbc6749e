package automation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"crmflow/pkg/utils"
)

// Subject is the client snapshot rules are evaluated against.
type Subject struct {
	ID               uint
	UserID           uint
	Name             string
	Email            string
	Phone            string
	Company          string
	City             string
	Status           string
	PaymentStatus    string
	Origin           string
	PlanValue        *float64
	DueDate          *time.Time
	DaysOverdue      *int
	DaysSinceContact *int
	Tags             []string
}

// Field is a subject attribute conditions may reference.
type Field string

const (
	FieldName             Field = "nome"
	FieldEmail            Field = "email"
	FieldPhone            Field = "telefone"
	FieldCompany          Field = "empresa"
	FieldCity             Field = "cidade"
	FieldStatus           Field = "status"
	FieldPaymentStatus    Field = "status_pagamento"
	FieldOrigin           Field = "origem"
	FieldPlanValue        Field = "valor_plano"
	FieldDaysOverdue      Field = "dias_atraso"
	FieldDaysSinceContact Field = "dias_sem_contato"
	FieldTags             Field = "tags"
)

type fieldKind int

const (
	kindString fieldKind = iota
	kindNumber
	kindList
)

type fieldSpec struct {
	kind fieldKind
	// get returns the value and whether the subject has one at all.
	get func(s *Subject) (any, bool)
}

func stringField(f func(s *Subject) string) fieldSpec {
	return fieldSpec{kind: kindString, get: func(s *Subject) (any, bool) {
		v := f(s)
		return v, v != ""
	}}
}

func intField(f func(s *Subject) *int) fieldSpec {
	return fieldSpec{kind: kindNumber, get: func(s *Subject) (any, bool) {
		p := f(s)
		if p == nil {
			return nil, false
		}
		return float64(*p), true
	}}
}

var fieldRegistry = map[Field]fieldSpec{
	FieldName:          stringField(func(s *Subject) string { return s.Name }),
	FieldEmail:         stringField(func(s *Subject) string { return s.Email }),
	FieldPhone:         stringField(func(s *Subject) string { return s.Phone }),
	FieldCompany:       stringField(func(s *Subject) string { return s.Company }),
	FieldCity:          stringField(func(s *Subject) string { return s.City }),
	FieldStatus:        stringField(func(s *Subject) string { return s.Status }),
	FieldPaymentStatus: stringField(func(s *Subject) string { return s.PaymentStatus }),
	FieldOrigin:        stringField(func(s *Subject) string { return s.Origin }),
	FieldPlanValue: {kind: kindNumber, get: func(s *Subject) (any, bool) {
		if s.PlanValue == nil {
			return nil, false
		}
		return *s.PlanValue, true
	}},
	FieldDaysOverdue:      intField(func(s *Subject) *int { return s.DaysOverdue }),
	FieldDaysSinceContact: intField(func(s *Subject) *int { return s.DaysSinceContact }),
	FieldTags: {kind: kindList, get: func(s *Subject) (any, bool) {
		return s.Tags, len(s.Tags) > 0
	}},
}

var fieldAliases = map[string]Field{
	"name":             FieldName,
	"phone":            FieldPhone,
	"company":          FieldCompany,
	"city":             FieldCity,
	"paymentstatus":    FieldPaymentStatus,
	"origin":           FieldOrigin,
	"planvalue":        FieldPlanValue,
	"daysoverdue":      FieldDaysOverdue,
	"dayssincecontact": FieldDaysSinceContact,
}

// ParseField resolves a condition field name against the registry.
func ParseField(name string) (Field, error) {
	name = strings.TrimSpace(name)
	if _, ok := fieldRegistry[Field(name)]; ok {
		return Field(name), nil
	}
	if f, ok := fieldAliases[strings.ToLower(strings.ReplaceAll(name, "_", ""))]; ok {
		return f, nil
	}
	return "", fmt.Errorf("%w: campo %q não suportado", ErrInvalidRule, name)
}

// Lookup returns the subject's value for f and whether it is present.
func (s *Subject) Lookup(f Field) (any, bool) {
	spec, ok := fieldRegistry[f]
	if !ok || s == nil {
		return nil, false
	}
	return spec.get(s)
}

// Variables returns the {{placeholder}} values templates may use. Empty
// fields are left out so their placeholders stay unsubstituted.
func (s *Subject) Variables() map[string]string {
	vars := make(map[string]string, 13)
	// 空值不算已定义，占位符原样保留
	for name, v := range map[string]string{
		"nome":             s.Name,
		"email":            s.Email,
		"telefone":         s.Phone,
		"empresa":          s.Company,
		"cidade":           s.City,
		"status":           s.Status,
		"status_pagamento": s.PaymentStatus,
		"origem":           s.Origin,
	} {
		if strings.TrimSpace(v) != "" {
			vars[name] = v
		}
	}
	if first, _, _ := strings.Cut(strings.TrimSpace(s.Name), " "); first != "" {
		vars["primeiro_nome"] = first
	}
	if s.PlanValue != nil {
		vars["valor_plano"] = utils.FormatMoney(*s.PlanValue)
	}
	if s.DueDate != nil {
		vars["data_vencimento"] = utils.FormatDate(*s.DueDate)
	}
	if s.DaysOverdue != nil {
		vars["dias_atraso"] = strconv.Itoa(*s.DaysOverdue)
	}
	if s.DaysSinceContact != nil {
		vars["dias_sem_contato"] = strconv.Itoa(*s.DaysSinceContact)
	}
	return vars
}
