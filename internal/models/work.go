package models

import "time"

// Task 待办任务
type Task struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	UserID       uint       `gorm:"index" json:"user_id"`
	ClientID     *uint      `gorm:"column:cliente_id;index" json:"cliente_id,omitempty"`
	Title        string     `gorm:"column:titulo;not null" json:"titulo"`
	Description  string     `gorm:"column:descricao;type:text" json:"descricao"`
	Type         string     `gorm:"column:tipo;default:'geral'" json:"tipo"`
	Priority     string     `gorm:"column:prioridade;default:'media'" json:"prioridade"` // baixa, media, alta
	Status       string     `gorm:"column:status;index;default:'pendente'" json:"status"` // pendente, concluida
	DueDate      *time.Time `gorm:"column:data_vencimento;index" json:"data_vencimento"`
	CompletedAt  *time.Time `gorm:"column:concluida_em" json:"concluida_em,omitempty"`
	AutomationID *uint      `gorm:"column:origem_automacao_id" json:"origem_automacao_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (Task) TableName() string { return "tarefas" }

// Task status values.
const (
	TaskStatusOpen = "pendente"
	TaskStatusDone = "concluida"
)

// Appointment 日程/预约
type Appointment struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"index" json:"user_id"`
	ClientID     uint      `gorm:"column:cliente_id;index" json:"cliente_id"`
	Title        string    `gorm:"column:titulo;not null" json:"titulo"`
	Type         string    `gorm:"column:tipo;default:'reuniao'" json:"tipo"` // reuniao, ligacao, follow_up
	ScheduledAt  time.Time `gorm:"column:data_hora;index" json:"data_hora"`
	DurationMin  int       `gorm:"column:duracao_minutos;default:30" json:"duracao_minutos"`
	Status       string    `gorm:"column:status;default:'agendado'" json:"status"` // agendado, concluido, cancelado
	Notes        string    `gorm:"column:observacoes;type:text" json:"observacoes"`
	AutomationID *uint     `gorm:"column:origem_automacao_id" json:"origem_automacao_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Appointment) TableName() string { return "agendamentos" }

// BillingReminder 催缴提醒
type BillingReminder struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"index" json:"user_id"`
	ClientID     uint      `gorm:"column:cliente_id;index" json:"cliente_id"`
	RemindOn     time.Time `gorm:"column:data_lembrete;index" json:"data_lembrete"`
	Message      string    `gorm:"column:mensagem;type:text" json:"mensagem"`
	Channel      string    `gorm:"column:canal;default:'email'" json:"canal"`
	Status       string    `gorm:"column:status;default:'pendente'" json:"status"` // pendente, enviado
	AutomationID *uint     `gorm:"column:origem_automacao_id" json:"origem_automacao_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

func (BillingReminder) TableName() string { return "lembretes_cobranca" }

// Notification 站内通知
type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index" json:"user_id"`
	ClientID  *uint     `gorm:"column:cliente_id" json:"cliente_id,omitempty"`
	Title     string    `gorm:"column:titulo;not null" json:"titulo"`
	Message   string    `gorm:"column:mensagem;type:text" json:"mensagem"`
	Type      string    `gorm:"column:tipo;default:'automacao'" json:"tipo"`
	Read      bool      `gorm:"column:lida;not null;index" json:"lida"`
	CreatedAt time.Time `json:"created_at"`
}

func (Notification) TableName() string { return "notificacoes" }
