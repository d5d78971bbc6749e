package automation

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Operator compares a subject field with a rule value.
type Operator string

const (
	OpEquals      Operator = "igual"
	OpNotEquals   Operator = "diferente"
	OpGreaterThan Operator = "maior_que"
	OpLessThan    Operator = "menor_que"
	OpContains    Operator = "contem"
)

var operatorAliases = map[string]Operator{
	"igual":       OpEquals,
	"equals":      OpEquals,
	"eq":          OpEquals,
	"=":           OpEquals,
	"==":          OpEquals,
	"diferente":   OpNotEquals,
	"notequals":   OpNotEquals,
	"neq":         OpNotEquals,
	"ne":          OpNotEquals,
	"!=":          OpNotEquals,
	"maior_que":   OpGreaterThan,
	"greaterthan": OpGreaterThan,
	"gt":          OpGreaterThan,
	">":           OpGreaterThan,
	"menor_que":   OpLessThan,
	"lessthan":    OpLessThan,
	"lt":          OpLessThan,
	"<":           OpLessThan,
	"contem":      OpContains,
	"contém":      OpContains,
	"contains":    OpContains,
	"in":          OpContains,
}

// ParseOperator normalizes persisted, English and short operator names.
func ParseOperator(s string) (Operator, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if op, ok := operatorAliases[key]; ok {
		return op, nil
	}
	if op, ok := operatorAliases[strings.ReplaceAll(key, "_", "")]; ok {
		return op, nil
	}
	return "", fmt.Errorf("%w: operador %q não suportado", ErrInvalidRule, s)
}

// Condition is one validated (field, operator, value) predicate.
type Condition struct {
	Field    Field    `json:"campo"`
	Operator Operator `json:"operador"`
	Value    any      `json:"valor"`
}

// RawCondition is the stored JSON shape before validation.
type RawCondition struct {
	Field    string `json:"campo"`
	Operator string `json:"operador"`
	Value    any    `json:"valor"`
}

// UnmarshalJSON also accepts the English keys field/operator/value and the short op.
func (rc *RawCondition) UnmarshalJSON(data []byte) error {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	rc.Field = firstString(m, "campo", "field")
	rc.Operator = firstString(m, "operador", "operator", "op")
	if v, ok := m["valor"]; ok {
		rc.Value = v
	} else {
		rc.Value = m["value"]
	}
	return nil
}

// Compile validates the raw condition against the field registry.
func (rc RawCondition) Compile() (Condition, error) {
	f, err := ParseField(rc.Field)
	if err != nil {
		return Condition{}, err
	}
	op, err := ParseOperator(rc.Operator)
	if err != nil {
		return Condition{}, err
	}
	switch rc.Value.(type) {
	case string, float64, bool, json.Number, int, int64:
	case nil:
		return Condition{}, fmt.Errorf("%w: condição em %q sem valor", ErrInvalidRule, f)
	default:
		return Condition{}, fmt.Errorf("%w: valor da condição em %q deve ser escalar", ErrInvalidRule, f)
	}
	if op == OpGreaterThan || op == OpLessThan {
		if fieldRegistry[f].kind != kindNumber {
			return Condition{}, fmt.Errorf("%w: %s exige campo numérico, %q não é", ErrInvalidRule, op, f)
		}
	}
	return Condition{Field: f, Operator: op, Value: rc.Value}, nil
}

// Evaluate reports whether s satisfies c. Anomalies evaluate to false.
func (c Condition) Evaluate(s *Subject) bool {
	actual, ok := s.Lookup(c.Field)
	if !ok {
		return false
	}
	switch c.Operator {
	case OpEquals:
		return looseEqual(actual, c.Value)
	case OpNotEquals:
		return !looseEqual(actual, c.Value)
	case OpGreaterThan:
		a, okA := toNumber(actual)
		b, okB := toNumber(c.Value)
		return okA && okB && a > b
	case OpLessThan:
		a, okA := toNumber(actual)
		b, okB := toNumber(c.Value)
		return okA && okB && a < b
	case OpContains:
		return contains(actual, c.Value)
	}
	return false
}

// EvaluateAll is the logical AND of every condition; empty means true.
func EvaluateAll(conds []Condition, s *Subject) bool {
	for _, c := range conds {
		if !c.Evaluate(s) {
			return false
		}
	}
	return true
}

func looseEqual(actual, expected any) bool {
	if list, ok := actual.([]string); ok {
		return contains(list, expected)
	}
	a, okA := toNumber(actual)
	b, okB := toNumber(expected)
	if okA && okB {
		return a == b
	}
	return strings.TrimSpace(stringify(actual)) == strings.TrimSpace(stringify(expected))
}

// contains ignores case for text and tags; igual stays exact.
func contains(actual, expected any) bool {
	needle := strings.TrimSpace(stringify(expected))
	if needle == "" {
		return false
	}
	switch v := actual.(type) {
	case []string:
		for _, item := range v {
			if strings.EqualFold(strings.TrimSpace(item), needle) {
				return true
			}
		}
		return false
	case string:
		return strings.Contains(strings.ToLower(v), strings.ToLower(needle))
	default:
		return strings.Contains(stringify(v), needle)
	}
}

func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(strings.Replace(s, ",", ".", 1), 64)
		return f, err == nil
	}
	return 0, false
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []string:
		return strings.Join(t, ",")
	}
	return fmt.Sprint(v)
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}
