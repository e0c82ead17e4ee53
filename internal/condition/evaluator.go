// Package condition implements the closed, side-effect-free comparison DSL
// transitions and conditional approval/validation rules are expressed in
// (§4.2). It intentionally contains no embedded scripting engine: every
// operator is a fixed Go case, so a condition can never execute arbitrary
// user-supplied code.
package condition

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/novaflow/ticketflow/internal/domain"
)

// Evaluate reports whether a condition group holds against context. An
// empty group (no conditions, no nested groups) is vacuously true. A single
// condition that fails to evaluate (type mismatch, bad numeric literal)
// counts as false rather than propagating an error: conditions fail closed.
func Evaluate(group *domain.ConditionGroup, context map[string]interface{}) bool {
	if group == nil {
		return true
	}
	if len(group.Conditions) == 0 && len(group.Groups) == 0 {
		return true
	}

	results := make([]bool, 0, len(group.Conditions)+len(group.Groups))
	for _, c := range group.Conditions {
		results = append(results, evaluateSingle(c, context))
	}
	for i := range group.Groups {
		results = append(results, Evaluate(&group.Groups[i], context))
	}

	if strings.EqualFold(string(group.Logic), string(domain.LogicOr)) {
		for _, r := range results {
			if r {
				return true
			}
		}
		return false
	}

	for _, r := range results {
		if !r {
			return false
		}
	}
	return true
}

func evaluateSingle(c domain.Condition, context map[string]interface{}) bool {
	fieldValue := fieldValueAt(c.Field, context)
	return compare(fieldValue, c.Operator, c.Value)
}

// fieldValueAt resolves dot-notation paths against a nested map context,
// e.g. "form_values.amount" -> context["form_values"].(map)["amount"].
// Any non-map intermediate value resolves the whole path to nil.
func fieldValueAt(path string, context map[string]interface{}) interface{} {
	parts := strings.Split(path, ".")
	var cur interface{} = context
	for _, part := range parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

func compare(fieldValue interface{}, op domain.ConditionOperator, compareValue interface{}) bool {
	switch op {
	case domain.OpEquals:
		return equal(fieldValue, compareValue)
	case domain.OpNotEquals:
		return !equal(fieldValue, compareValue)
	case domain.OpGreaterThan:
		return compareNumeric(fieldValue, compareValue, func(a, b float64) bool { return a > b })
	case domain.OpLessThan:
		return compareNumeric(fieldValue, compareValue, func(a, b float64) bool { return a < b })
	case domain.OpGreaterThanOrEqual:
		return compareNumeric(fieldValue, compareValue, func(a, b float64) bool { return a >= b })
	case domain.OpLessThanOrEqual:
		return compareNumeric(fieldValue, compareValue, func(a, b float64) bool { return a <= b })
	case domain.OpContains:
		if fieldValue == nil {
			return false
		}
		return strings.Contains(toString(fieldValue), toString(compareValue))
	case domain.OpNotContains:
		if fieldValue == nil {
			return true
		}
		return !strings.Contains(toString(fieldValue), toString(compareValue))
	case domain.OpIn:
		return inList(fieldValue, compareValue)
	case domain.OpNotIn:
		return !inList(fieldValue, compareValue)
	case domain.OpIsEmpty:
		return isEmpty(fieldValue)
	case domain.OpIsNotEmpty:
		return !isEmpty(fieldValue)
	default:
		return false
	}
}

func equal(a, b interface{}) bool {
	if an, aok := toFloat(a); aok {
		if bn, bok := toFloat(b); bok {
			return an == bn
		}
	}
	return toString(a) == toString(b) && (a != nil) == (b != nil)
}

func compareNumeric(fieldValue, compareValue interface{}, cmp func(a, b float64) bool) bool {
	a, aok := toFloat(fieldValue)
	b, bok := toFloat(compareValue)
	if !aok || !bok {
		return false
	}
	return cmp(a, b)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func toString(v interface{}) string {
	if v == nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	default:
		return fmt.Sprintf("%v", s)
	}
}

func inList(fieldValue, compareValue interface{}) bool {
	list, ok := compareValue.([]interface{})
	if !ok {
		list = []interface{}{compareValue}
	}
	for _, item := range list {
		if equal(fieldValue, item) {
			return true
		}
	}
	return false
}

func isEmpty(v interface{}) bool {
	if v == nil {
		return true
	}
	switch s := v.(type) {
	case string:
		return s == ""
	case []interface{}:
		return len(s) == 0
	default:
		return false
	}
}
