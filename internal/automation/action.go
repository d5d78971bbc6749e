package automation

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ActionKind names an action in the persisted {tipo, config} form.
type ActionKind string

const (
	ActionSendEmail        ActionKind = "enviar_email"
	ActionSendWhatsApp     ActionKind = "enviar_whatsapp"
	ActionCreateTask       ActionKind = "criar_tarefa"
	ActionChangeStatus     ActionKind = "mudar_status"
	ActionAddTag           ActionKind = "adicionar_tag"
	ActionScheduleFollowUp ActionKind = "agendar_followup"
	ActionSendNotification ActionKind = "enviar_notificacao"
	ActionBillingReminder  ActionKind = "criar_lembrete_cobranca"
)

var actionAliases = map[string]ActionKind{
	"sendemail":             ActionSendEmail,
	"send_email":            ActionSendEmail,
	"sendwhatsapp":          ActionSendWhatsApp,
	"createtask":            ActionCreateTask,
	"changestatus":          ActionChangeStatus,
	"addtag":                ActionAddTag,
	"schedulefollowup":      ActionScheduleFollowUp,
	"sendnotification":      ActionSendNotification,
	"createbillingreminder": ActionBillingReminder,
}

// ParseActionKind accepts persisted names and camelCase aliases.
func ParseActionKind(s string) (ActionKind, error) {
	s = strings.TrimSpace(s)
	switch k := ActionKind(s); k {
	case ActionSendEmail, ActionSendWhatsApp, ActionCreateTask, ActionChangeStatus,
		ActionAddTag, ActionScheduleFollowUp, ActionSendNotification, ActionBillingReminder:
		return k, nil
	}
	if k, ok := actionAliases[strings.ToLower(s)]; ok {
		return k, nil
	}
	if k, ok := actionAliases[strings.ToLower(strings.ReplaceAll(s, "_", ""))]; ok {
		return k, nil
	}
	return "", fmt.Errorf("%w: ação %q não suportada", ErrInvalidRule, s)
}

// Action is the closed set of things a rule can do. Dispatchers switch on the
// concrete type.
type Action interface {
	Kind() ActionKind
	// Delay is how long to wait before running; zero runs inline.
	Delay() time.Duration
	config() map[string]any
}

// SendEmail sends a templated or inline email to the client.
type SendEmail struct {
	TemplateID uint
	Subject    string
	Body       string
	DelayHours int
}

// SendWhatsApp sends a templated or inline WhatsApp text to the client.
type SendWhatsApp struct {
	TemplateID uint
	Message    string
	DelayHours int
}

// CreateTask creates a follow-up task linked to the client.
type CreateTask struct {
	Title       string
	Description string
	Type        string
	Priority    string
	DueInDays   int
}

// ChangeStatus moves the client to another pipeline status.
type ChangeStatus struct {
	Status string
}

// AddTag attaches a tag to the client, creating it when needed.
type AddTag struct {
	Tag string
}

// ScheduleFollowUp books an appointment N days ahead.
type ScheduleFollowUp struct {
	InDays int
	Title  string
	Type   string
}

// SendNotification creates an in-app notification for the rule owner.
type SendNotification struct {
	Title   string
	Message string
	Type    string
}

// CreateBillingReminder records a billing reminder relative to the due date.
type CreateBillingReminder struct {
	DaysBefore int
	InDays     int
	Message    string
	Channel    string
}

func (SendEmail) Kind() ActionKind             { return ActionSendEmail }
func (SendWhatsApp) Kind() ActionKind          { return ActionSendWhatsApp }
func (CreateTask) Kind() ActionKind            { return ActionCreateTask }
func (ChangeStatus) Kind() ActionKind          { return ActionChangeStatus }
func (AddTag) Kind() ActionKind                { return ActionAddTag }
func (ScheduleFollowUp) Kind() ActionKind      { return ActionScheduleFollowUp }
func (SendNotification) Kind() ActionKind      { return ActionSendNotification }
func (CreateBillingReminder) Kind() ActionKind { return ActionBillingReminder }

func (a SendEmail) Delay() time.Duration           { return time.Duration(a.DelayHours) * time.Hour }
func (a SendWhatsApp) Delay() time.Duration        { return time.Duration(a.DelayHours) * time.Hour }
func (CreateTask) Delay() time.Duration            { return 0 }
func (ChangeStatus) Delay() time.Duration          { return 0 }
func (AddTag) Delay() time.Duration                { return 0 }
func (ScheduleFollowUp) Delay() time.Duration      { return 0 }
func (SendNotification) Delay() time.Duration      { return 0 }
func (CreateBillingReminder) Delay() time.Duration { return 0 }

func (a SendEmail) config() map[string]any {
	m := map[string]any{}
	if a.TemplateID != 0 {
		m["template_id"] = a.TemplateID
	}
	putString(m, "assunto", a.Subject)
	putString(m, "corpo", a.Body)
	if a.DelayHours > 0 {
		m["delay_horas"] = a.DelayHours
	}
	return m
}

func (a SendWhatsApp) config() map[string]any {
	m := map[string]any{}
	if a.TemplateID != 0 {
		m["template_id"] = a.TemplateID
	}
	putString(m, "mensagem", a.Message)
	if a.DelayHours > 0 {
		m["delay_horas"] = a.DelayHours
	}
	return m
}

func (a CreateTask) config() map[string]any {
	m := map[string]any{"titulo": a.Title, "dias_vencimento": a.DueInDays}
	putString(m, "descricao", a.Description)
	putString(m, "tipo", a.Type)
	putString(m, "prioridade", a.Priority)
	return m
}

func (a ChangeStatus) config() map[string]any { return map[string]any{"status": a.Status} }
func (a AddTag) config() map[string]any       { return map[string]any{"tag": a.Tag} }

func (a ScheduleFollowUp) config() map[string]any {
	m := map[string]any{"dias": a.InDays}
	putString(m, "titulo", a.Title)
	putString(m, "tipo", a.Type)
	return m
}

func (a SendNotification) config() map[string]any {
	m := map[string]any{"titulo": a.Title}
	putString(m, "mensagem", a.Message)
	putString(m, "tipo", a.Type)
	return m
}

func (a CreateBillingReminder) config() map[string]any {
	m := map[string]any{}
	if a.DaysBefore > 0 {
		m["dias_antes"] = a.DaysBefore
	}
	if a.InDays > 0 {
		m["dias"] = a.InDays
	}
	putString(m, "mensagem", a.Message)
	putString(m, "canal", a.Channel)
	return m
}

// RawAction is the stored JSON shape of an action.
type RawAction struct {
	Type   string         `json:"tipo"`
	Config map[string]any `json:"config"`
}

// UnmarshalJSON also accepts {type, params} as written by older clients.
func (ra *RawAction) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	for _, k := range []string{"tipo", "type"} {
		if v, ok := m[k]; ok {
			if err := json.Unmarshal(v, &ra.Type); err != nil {
				return err
			}
			break
		}
	}
	for _, k := range []string{"config", "params"} {
		if v, ok := m[k]; ok && string(v) != "null" {
			if err := json.Unmarshal(v, &ra.Config); err != nil {
				return err
			}
			break
		}
	}
	if ra.Config == nil {
		ra.Config = map[string]any{}
	}
	return nil
}

// EncodeAction turns a validated action back into its stored form.
func EncodeAction(a Action) RawAction {
	return RawAction{Type: string(a.Kind()), Config: a.config()}
}

// Compile validates the raw action and returns the typed variant.
func (ra RawAction) Compile() (Action, error) {
	kind, err := ParseActionKind(ra.Type)
	if err != nil {
		return nil, err
	}
	c := actionConfig{kind: kind, m: ra.Config}
	var a Action
	switch kind {
	case ActionSendEmail:
		e := SendEmail{
			TemplateID: c.id("template_id"),
			Subject:    c.str("assunto", "subject"),
			Body:       c.str("corpo", "mensagem", "body"),
			DelayHours: c.integer(0, "delay_horas"),
		}
		if e.TemplateID == 0 && e.Body == "" {
			c.fail("informe 'template_id' ou 'corpo'")
		}
		a = e
	case ActionSendWhatsApp:
		w := SendWhatsApp{
			TemplateID: c.id("template_id"),
			Message:    c.str("mensagem", "message"),
			DelayHours: c.integer(0, "delay_horas"),
		}
		if w.TemplateID == 0 && w.Message == "" {
			c.fail("informe 'template_id' ou 'mensagem'")
		}
		a = w
	case ActionCreateTask:
		t := CreateTask{
			Title:       c.str("titulo", "title"),
			Description: c.str("descricao", "description"),
			Type:        c.str("tipo", "type"),
			Priority:    c.str("prioridade", "priority"),
			DueInDays:   c.integer(1, "dias_vencimento", "due_in_days"),
		}
		if t.Title == "" {
			c.fail("'titulo' é obrigatório")
		}
		if t.Type == "" {
			t.Type = "follow_up"
		}
		if t.Priority == "" {
			t.Priority = "media"
		}
		a = t
	case ActionChangeStatus:
		s := ChangeStatus{Status: c.str("status", "novo_status")}
		if s.Status == "" {
			c.fail("'status' é obrigatório")
		}
		a = s
	case ActionAddTag:
		t := AddTag{Tag: c.str("tag", "nome")}
		if t.Tag == "" {
			c.fail("'tag' é obrigatória")
		}
		a = t
	case ActionScheduleFollowUp:
		f := ScheduleFollowUp{
			InDays: c.integer(1, "dias", "days"),
			Title:  c.str("titulo", "title"),
			Type:   c.str("tipo", "type"),
		}
		if f.Title == "" {
			f.Title = "Follow-up com {{nome}}"
		}
		if f.Type == "" {
			f.Type = "follow_up"
		}
		a = f
	case ActionSendNotification:
		n := SendNotification{
			Title:   c.str("titulo", "title"),
			Message: c.str("mensagem", "message"),
			Type:    c.str("tipo", "type"),
		}
		if n.Title == "" {
			c.fail("'titulo' é obrigatório")
		}
		if n.Type == "" {
			n.Type = "automacao"
		}
		a = n
	case ActionBillingReminder:
		r := CreateBillingReminder{
			DaysBefore: c.integer(0, "dias_antes"),
			InDays:     c.integer(0, "dias"),
			Message:    c.str("mensagem", "message"),
			Channel:    c.str("canal", "channel"),
		}
		if r.Channel == "" {
			r.Channel = "email"
		}
		a = r
	}
	if c.err != nil {
		return nil, c.err
	}
	if a.Delay() < 0 {
		return nil, fmt.Errorf("%w: %s: 'delay_horas' não pode ser negativo", ErrInvalidRule, kind)
	}
	return a, nil
}

// actionConfig reads loosely typed config values and keeps the first error.
type actionConfig struct {
	kind ActionKind
	m    map[string]any
	err  error
}

func (c *actionConfig) fail(msg string) {
	if c.err == nil {
		c.err = fmt.Errorf("%w: %s: %s", ErrInvalidRule, c.kind, msg)
	}
}

func (c *actionConfig) lookup(keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := c.m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func (c *actionConfig) str(keys ...string) string {
	v, ok := c.lookup(keys...)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64, int, json.Number:
		return stringify(t)
	}
	c.fail(fmt.Sprintf("'%s' deve ser texto", keys[0]))
	return ""
}

func (c *actionConfig) integer(def int, keys ...string) int {
	v, ok := c.lookup(keys...)
	if !ok {
		return def
	}
	switch t := v.(type) {
	case float64:
		return int(t)
	case int:
		return t
	case json.Number:
		n, err := t.Int64()
		if err == nil {
			return int(n)
		}
	case string:
		if strings.TrimSpace(t) == "" {
			return def
		}
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err == nil {
			return n
		}
	}
	c.fail(fmt.Sprintf("'%s' deve ser inteiro", keys[0]))
	return def
}

func (c *actionConfig) id(keys ...string) uint {
	n := c.integer(0, keys...)
	if n < 0 {
		c.fail(fmt.Sprintf("'%s' inválido", keys[0]))
		return 0
	}
	return uint(n)
}

func putString(m map[string]any, key, v string) {
	if v != "" {
		m[key] = v
	}
}
