package models

import (
	"time"

	"gorm.io/datatypes"
)

// Automation 自动化规则：触发器 + 条件 + 动作
type Automation struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	UserID        uint           `gorm:"index" json:"user_id"`
	Name          string         `gorm:"column:nome;not null" json:"nome"`
	Description   string         `gorm:"column:descricao;type:text" json:"descricao"`
	Active        bool           `gorm:"column:ativo;not null;index" json:"ativo"`
	TriggerType   string         `gorm:"column:trigger_tipo;not null;index" json:"trigger_tipo"`
	TriggerConfig datatypes.JSON `gorm:"column:trigger_config" json:"trigger_config"` // {"dias":3,"status_de":"Lead","status_para":"Proposta"}
	Conditions    datatypes.JSON `gorm:"column:condicoes" json:"condicoes"`           // [{campo,operador,valor}]
	Actions       datatypes.JSON `gorm:"column:acoes" json:"acoes"`                   // [{tipo,config}]
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (Automation) TableName() string { return "automacoes" }

// AutomationExecution 执行记录用于审计；规则删除后保留
type AutomationExecution struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	AutomationID uint           `gorm:"column:automacao_id;index" json:"automacao_id"`
	ClientID     uint           `gorm:"column:cliente_id;index" json:"cliente_id"`
	UserID       uint           `gorm:"index" json:"user_id"`
	TriggerType  string         `gorm:"column:trigger_tipo" json:"trigger_tipo"`
	Status       string         `gorm:"column:status;index" json:"status"` // sucesso, erro, pendente, ignorado
	Result       datatypes.JSON `gorm:"column:resultado" json:"resultado"`
	Error        string         `gorm:"column:erro;type:text" json:"erro,omitempty"`
	ExecutedAt   time.Time      `gorm:"column:executado_em;index" json:"executado_em"`
}

func (AutomationExecution) TableName() string { return "automacao_execucoes" }

// PendingAction 延迟动作（delay_horas）
type PendingAction struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	ExecutionID  uint           `gorm:"column:execucao_id;index" json:"execucao_id"`
	AutomationID uint           `gorm:"column:automacao_id;index" json:"automacao_id"`
	ClientID     uint           `gorm:"column:cliente_id" json:"cliente_id"`
	ActionIndex  int            `gorm:"column:indice_acao" json:"indice_acao"`
	Action       datatypes.JSON `gorm:"column:acao" json:"acao"`
	RunAt        time.Time      `gorm:"column:executar_em;index" json:"executar_em"`
	Status       string         `gorm:"column:status;index" json:"status"` // pendente, executando, sucesso, erro, cancelado
	Attempts     int            `gorm:"column:tentativas" json:"tentativas"`
	Error        string         `gorm:"column:erro;type:text" json:"erro,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

func (PendingAction) TableName() string { return "acoes_pendentes" }

// PendingAction status values.
const (
	PendingStatusWaiting   = "pendente"
	PendingStatusRunning   = "executando"
	PendingStatusDone      = "sucesso"
	PendingStatusFailed    = "erro"
	PendingStatusCancelled = "cancelado"
)
