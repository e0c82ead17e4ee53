package condition

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/novaflow/ticketflow/internal/domain"
)

func ctx(formValues map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{"form_values": formValues}
}

func TestEvaluate_EmptyGroupIsTrue(t *testing.T) {
	assert.True(t, Evaluate(&domain.ConditionGroup{}, ctx(nil)))
	assert.True(t, Evaluate(nil, ctx(nil)))
}

func TestEvaluate_Operators(t *testing.T) {
	cases := []struct {
		name   string
		field  string
		op     domain.ConditionOperator
		value  interface{}
		values map[string]interface{}
		want   bool
	}{
		{"equals match", "form_values.amount", domain.OpEquals, "100", map[string]interface{}{"amount": "100"}, true},
		{"equals numeric coercion", "form_values.amount", domain.OpEquals, 100.0, map[string]interface{}{"amount": "100"}, true},
		{"not equals", "form_values.amount", domain.OpNotEquals, "100", map[string]interface{}{"amount": "200"}, true},
		{"greater than true", "form_values.amount", domain.OpGreaterThan, 50.0, map[string]interface{}{"amount": "100"}, true},
		{"greater than false on bad literal", "form_values.amount", domain.OpGreaterThan, 50.0, map[string]interface{}{"amount": "not-a-number"}, false},
		{"less than or equal", "form_values.amount", domain.OpLessThanOrEqual, 100.0, map[string]interface{}{"amount": 100.0}, true},
		{"contains", "form_values.description", domain.OpContains, "urgent", map[string]interface{}{"description": "this is urgent work"}, true},
		{"contains nil field", "form_values.description", domain.OpContains, "urgent", map[string]interface{}{}, false},
		{"not contains nil field", "form_values.description", domain.OpNotContains, "urgent", map[string]interface{}{}, true},
		{"in list", "form_values.region", domain.OpIn, []interface{}{"us", "eu"}, map[string]interface{}{"region": "eu"}, true},
		{"in scalar coercion", "form_values.region", domain.OpIn, "eu", map[string]interface{}{"region": "eu"}, true},
		{"not in", "form_values.region", domain.OpNotIn, []interface{}{"us", "eu"}, map[string]interface{}{"region": "ap"}, true},
		{"is empty string", "form_values.note", domain.OpIsEmpty, nil, map[string]interface{}{"note": ""}, true},
		{"is empty missing", "form_values.note", domain.OpIsEmpty, nil, map[string]interface{}{}, true},
		{"is not empty", "form_values.note", domain.OpIsNotEmpty, nil, map[string]interface{}{"note": "hi"}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			group := &domain.ConditionGroup{
				Conditions: []domain.Condition{{Field: tc.field, Operator: tc.op, Value: tc.value}},
			}
			got := Evaluate(group, ctx(tc.values))
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestEvaluate_AndOrLogic(t *testing.T) {
	values := map[string]interface{}{"amount": "500", "region": "us"}

	and := &domain.ConditionGroup{
		Logic: domain.LogicAnd,
		Conditions: []domain.Condition{
			{Field: "form_values.amount", Operator: domain.OpGreaterThan, Value: 100.0},
			{Field: "form_values.region", Operator: domain.OpEquals, Value: "eu"},
		},
	}
	assert.False(t, Evaluate(and, ctx(values)))

	or := &domain.ConditionGroup{
		Logic: domain.LogicOr,
		Conditions: []domain.Condition{
			{Field: "form_values.amount", Operator: domain.OpGreaterThan, Value: 100.0},
			{Field: "form_values.region", Operator: domain.OpEquals, Value: "eu"},
		},
	}
	assert.True(t, Evaluate(or, ctx(values)))
}

func TestEvaluate_NestedGroups(t *testing.T) {
	values := map[string]interface{}{"amount": "5000", "region": "eu"}

	group := &domain.ConditionGroup{
		Logic: domain.LogicAnd,
		Conditions: []domain.Condition{
			{Field: "form_values.amount", Operator: domain.OpGreaterThan, Value: 1000.0},
		},
		Groups: []domain.ConditionGroup{
			{
				Logic: domain.LogicOr,
				Conditions: []domain.Condition{
					{Field: "form_values.region", Operator: domain.OpEquals, Value: "eu"},
					{Field: "form_values.region", Operator: domain.OpEquals, Value: "us"},
				},
			},
		},
	}
	assert.True(t, Evaluate(group, ctx(values)))
}

func TestEvaluate_DotNotationMissingPath(t *testing.T) {
	group := &domain.ConditionGroup{
		Conditions: []domain.Condition{
			{Field: "form_values.amount.nested", Operator: domain.OpIsEmpty, Value: nil},
		},
	}
	assert.True(t, Evaluate(group, ctx(map[string]interface{}{"amount": "100"})))
}
