package automation

// Status is the persisted outcome of one rule evaluation.
type Status string

const (
	StatusSuccess Status = "sucesso"
	StatusError   Status = "erro"
	StatusPending Status = "pendente"
	StatusSkipped Status = "ignorado"
)

// ActionOutcome is one action's result inside an execution record.
type ActionOutcome struct {
	Index    int        `json:"indice"`
	Type     ActionKind `json:"tipo"`
	Status   Status     `json:"status"`
	Detail   string     `json:"detalhe,omitempty"`
	Error    string     `json:"erro,omitempty"`
	Attempts int        `json:"tentativas,omitempty"`
}

// Result is what lands in automacao_execucoes.resultado.
type Result struct {
	Event    Event           `json:"evento"`
	Outcomes []ActionOutcome `json:"acoes"`
	Reason   string          `json:"motivo,omitempty"`
}

// Summarize folds per-action outcomes into the record status: any error wins
// and reports the first error message, otherwise queued actions make it pending.
func Summarize(outcomes []ActionOutcome) (Status, string) {
	pending := false
	for _, o := range outcomes {
		switch o.Status {
		case StatusError:
			return StatusError, o.Error
		case StatusPending:
			pending = true
		}
	}
	if pending {
		return StatusPending, ""
	}
	return StatusSuccess, ""
}
