package models

import (
	"time"

	"gorm.io/gorm"
)

// 客户管道状态
const (
	ClientStatusLead       = "Lead"
	ClientStatusContact    = "Contato"
	ClientStatusProposal   = "Proposta"
	ClientStatusSubscriber = "Assinante"
	ClientStatusCancelled  = "Cancelado"
)

// 付款状态
const (
	PaymentStatusUpToDate = "Adimplente"
	PaymentStatusOverdue  = "Inadimplente"
	PaymentStatusPending  = "Pendente"
)

// ClientStatuses lists the pipeline columns in order.
var ClientStatuses = []string{
	ClientStatusLead,
	ClientStatusContact,
	ClientStatusProposal,
	ClientStatusSubscriber,
	ClientStatusCancelled,
}

// PaymentStatuses lists the accepted billing states.
var PaymentStatuses = []string{
	PaymentStatusUpToDate,
	PaymentStatusOverdue,
	PaymentStatusPending,
}

// User 系统用户（租户所有者）
type User struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Email     string         `gorm:"unique;not null" json:"email"`
	Name      string         `gorm:"column:nome" json:"nome"`
	Role      string         `gorm:"default:'owner'" json:"role"` // owner, staff, admin
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string { return "usuarios" }

// Client 客户/线索，自动化规则的评估对象
type Client struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	UserID        uint           `gorm:"index" json:"user_id"`
	Name          string         `gorm:"column:nome;not null" json:"nome"`
	Email         string         `gorm:"column:email;index" json:"email"`
	Phone         string         `gorm:"column:telefone" json:"telefone"`
	Company       string         `gorm:"column:empresa" json:"empresa"`
	City          string         `gorm:"column:cidade" json:"cidade"`
	Status        string         `gorm:"column:status;index;default:'Lead'" json:"status"`
	PaymentStatus string         `gorm:"column:status_pagamento;index;default:'Pendente'" json:"status_pagamento"`
	PlanValue     *float64       `gorm:"column:valor_plano" json:"valor_plano"`
	DueDate       *time.Time     `gorm:"column:data_vencimento" json:"data_vencimento"`
	LastContactAt *time.Time     `gorm:"column:ultimo_contato" json:"ultimo_contato"`
	Origin        string         `gorm:"column:origem" json:"origem"`
	Notes         string         `gorm:"column:observacoes;type:text" json:"observacoes"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`

	// 由 TagService 填充
	Tags []string `gorm:"-" json:"tags,omitempty"`
}

func (Client) TableName() string { return "clientes" }

// ContactLog 联系记录，写入时刷新 clientes.ultimo_contato
type ContactLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index" json:"user_id"`
	ClientID  uint      `gorm:"column:cliente_id;index;not null" json:"cliente_id"`
	Channel   string    `gorm:"column:canal" json:"canal"` // telefone, email, whatsapp, reuniao
	Summary   string    `gorm:"column:resumo;type:text" json:"resumo"`
	CreatedAt time.Time `json:"created_at"`
}

func (ContactLog) TableName() string { return "contatos" }

// Tag 标签（按用户唯一）
type Tag struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex:idx_tags_user_nome" json:"user_id"`
	Name      string    `gorm:"column:nome;not null;uniqueIndex:idx_tags_user_nome" json:"nome"`
	Color     string    `gorm:"column:cor" json:"cor"`
	CreatedAt time.Time `json:"created_at"`
}

func (Tag) TableName() string { return "tags" }

// ClientTag 客户与标签的关联，(cliente_id, tag_id) 唯一
type ClientTag struct {
	ClientID  uint      `gorm:"column:cliente_id;primaryKey;autoIncrement:false" json:"cliente_id"`
	TagID     uint      `gorm:"column:tag_id;primaryKey;autoIncrement:false" json:"tag_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (ClientTag) TableName() string { return "cliente_tags" }

// All returns every model for AutoMigrate.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Client{},
		&ContactLog{},
		&Tag{},
		&ClientTag{},
		&Template{},
		&EmailHistory{},
		&Task{},
		&Appointment{},
		&BillingReminder{},
		&Notification{},
		&Automation{},
		&AutomationExecution{},
		&PendingAction{},
	}
}
