package services

import "errors"

// 哨兵错误，handler 通过 errors.Is 映射为 404/400
var (
	ErrRuleNotFound         = errors.New("automação não encontrada")
	ErrClientNotFound       = errors.New("cliente não encontrado")
	ErrTemplateNotFound     = errors.New("template não encontrado")
	ErrTaskNotFound         = errors.New("tarefa não encontrada")
	ErrNotificationNotFound = errors.New("notificação não encontrada")
	ErrInvalidInput         = errors.New("dados inválidos")
	ErrChannelUnavailable   = errors.New("canal temporariamente indisponível")
)
