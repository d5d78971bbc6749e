package automation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRule wraps every validation failure on rule load or save.
var ErrInvalidRule = errors.New("regra de automação inválida")

// Rule is a validated automation: trigger, AND-ed conditions, ordered actions.
type Rule struct {
	ID            uint
	UserID        uint
	Name          string
	Active        bool
	Trigger       TriggerType
	TriggerConfig TriggerConfig
	Conditions    []Condition
	Actions       []Action
}

// Definition is the unvalidated rule as stored or received over the API.
type Definition struct {
	ID            uint
	UserID        uint
	Name          string
	Active        bool
	TriggerType   string
	TriggerConfig json.RawMessage
	Conditions    json.RawMessage
	Actions       json.RawMessage
}

// Compile validates d and returns the typed rule. Unknown fields, operators or
// action kinds and malformed configs are rejected with ErrInvalidRule.
func Compile(d Definition) (*Rule, error) {
	if strings.TrimSpace(d.Name) == "" {
		return nil, fmt.Errorf("%w: nome é obrigatório", ErrInvalidRule)
	}
	trigger, err := ParseTriggerType(d.TriggerType)
	if err != nil {
		return nil, err
	}
	r := &Rule{
		ID:      d.ID,
		UserID:  d.UserID,
		Name:    strings.TrimSpace(d.Name),
		Active:  d.Active,
		Trigger: trigger,
	}
	if !isEmptyJSON(d.TriggerConfig) {
		if err := json.Unmarshal(d.TriggerConfig, &r.TriggerConfig); err != nil {
			return nil, fmt.Errorf("%w: trigger_config: %v", ErrInvalidRule, err)
		}
	}
	if err := r.TriggerConfig.validate(trigger); err != nil {
		return nil, err
	}

	var rawConds []RawCondition
	if !isEmptyJSON(d.Conditions) {
		if err := json.Unmarshal(d.Conditions, &rawConds); err != nil {
			return nil, fmt.Errorf("%w: condicoes: %v", ErrInvalidRule, err)
		}
	}
	for i, rc := range rawConds {
		c, err := rc.Compile()
		if err != nil {
			return nil, fmt.Errorf("condição %d: %w", i+1, err)
		}
		r.Conditions = append(r.Conditions, c)
	}

	var rawActions []RawAction
	if !isEmptyJSON(d.Actions) {
		if err := json.Unmarshal(d.Actions, &rawActions); err != nil {
			return nil, fmt.Errorf("%w: acoes: %v", ErrInvalidRule, err)
		}
	}
	for i, ra := range rawActions {
		a, err := ra.Compile()
		if err != nil {
			return nil, fmt.Errorf("ação %d: %w", i+1, err)
		}
		r.Actions = append(r.Actions, a)
	}
	return r, nil
}

// Encode returns the normalized JSON columns for r.
func (r *Rule) Encode() (triggerConfig, conditions, actions []byte, err error) {
	if triggerConfig, err = json.Marshal(r.TriggerConfig); err != nil {
		return nil, nil, nil, err
	}
	conds := r.Conditions
	if conds == nil {
		conds = []Condition{}
	}
	if conditions, err = json.Marshal(conds); err != nil {
		return nil, nil, nil, err
	}
	raw := make([]RawAction, 0, len(r.Actions))
	for _, a := range r.Actions {
		raw = append(raw, EncodeAction(a))
	}
	if actions, err = json.Marshal(raw); err != nil {
		return nil, nil, nil, err
	}
	return triggerConfig, conditions, actions, nil
}

// IsNoOp reports whether the rule has nothing to dispatch.
func (r *Rule) IsNoOp() bool { return len(r.Actions) == 0 }

func isEmptyJSON(b json.RawMessage) bool {
	s := strings.TrimSpace(string(b))
	return s == "" || s == "null"
}
