package models

import "time"

// 模板渠道
const (
	ChannelEmail    = "email"
	ChannelWhatsApp = "whatsapp"
)

// Template 邮件/WhatsApp 模板，支持 {{nome}} 等变量
type Template struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index" json:"user_id"`
	Name      string    `gorm:"column:nome;not null" json:"nome"`
	Channel   string    `gorm:"column:canal;not null;default:'email'" json:"canal"`
	Subject   string    `gorm:"column:assunto" json:"assunto"`
	Content   string    `gorm:"column:conteudo;type:text" json:"conteudo"`
	Active    bool      `gorm:"column:ativo;not null" json:"ativo"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Template) TableName() string { return "templates" }

// EmailHistory 外发消息历史，每次发送一条
type EmailHistory struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"index" json:"user_id"`
	ClientID     uint      `gorm:"column:cliente_id;index" json:"cliente_id"`
	TemplateID   *uint     `gorm:"column:template_id" json:"template_id,omitempty"`
	AutomationID *uint     `gorm:"column:automacao_id" json:"automacao_id,omitempty"`
	Channel      string    `gorm:"column:canal" json:"canal"`
	Recipient    string    `gorm:"column:destinatario" json:"destinatario"`
	Subject      string    `gorm:"column:assunto" json:"assunto"`
	Content      string    `gorm:"column:conteudo;type:text" json:"conteudo"`
	Status       string    `gorm:"column:status;index" json:"status"` // enviado, erro
	Error        string    `gorm:"column:erro;type:text" json:"erro,omitempty"`
	SentAt       time.Time `gorm:"column:enviado_em;index" json:"enviado_em"`
}

func (EmailHistory) TableName() string { return "historico_emails" }

// EmailHistory status values.
const (
	MessageStatusSent   = "enviado"
	MessageStatusFailed = "erro"
)
