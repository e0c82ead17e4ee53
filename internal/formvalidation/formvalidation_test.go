package formvalidation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/novaflow/ticketflow/internal/domain"
)

func emptyContext() map[string]interface{} {
	return map[string]interface{}{"form_values": map[string]interface{}{}}
}

func TestValidate_RequiredFieldMissing(t *testing.T) {
	fields := []domain.FormFieldDefinition{
		{FieldKey: "amount", Label: "Amount", FieldType: domain.FieldNumber, Required: true},
	}
	errs := Validate("details", fields, map[string]interface{}{}, emptyContext())
	assert.Len(t, errs, 1)
	assert.Equal(t, "amount", errs[0].FieldKey)
}

func TestValidate_LengthAndPattern(t *testing.T) {
	minLen := 5
	fields := []domain.FormFieldDefinition{
		{FieldKey: "justification", Label: "Justification", FieldType: domain.FieldText, MinLength: &minLen},
		{FieldKey: "code", Label: "Code", FieldType: domain.FieldText, Pattern: "^[A-Z]{3}$"},
	}
	errs := Validate("details", fields, map[string]interface{}{"justification": "no", "code": "abc"}, emptyContext())
	assert.Len(t, errs, 2)
}

func TestValidate_NumericRange(t *testing.T) {
	min := 0.0
	max := 1000.0
	fields := []domain.FormFieldDefinition{
		{FieldKey: "amount", Label: "Amount", FieldType: domain.FieldNumber, Min: &min, Max: &max},
	}
	assert.Empty(t, Validate("details", fields, map[string]interface{}{"amount": 500.0}, emptyContext()))
	assert.NotEmpty(t, Validate("details", fields, map[string]interface{}{"amount": 5000.0}, emptyContext()))
}

func TestValidate_ConditionalRequired_TriggeredBySibling(t *testing.T) {
	fields := []domain.FormFieldDefinition{
		{FieldKey: "category", Label: "Category", FieldType: domain.FieldSelect},
		{
			FieldKey: "justification", Label: "Justification", FieldType: domain.FieldTextarea,
			ConditionalRequired: &domain.ConditionGroup{
				Conditions: []domain.Condition{
					{Field: "form_values.details.category", Operator: domain.OpEquals, Value: "other"},
				},
			},
		},
	}

	values := map[string]interface{}{"category": "other"}
	errs := Validate("details", fields, values, emptyContext())
	assert.Len(t, errs, 1)
	assert.Equal(t, "justification", errs[0].FieldKey)

	values["justification"] = "because reasons"
	assert.Empty(t, Validate("details", fields, values, emptyContext()))
}

func TestValidate_ConditionalRequired_NotTriggered(t *testing.T) {
	fields := []domain.FormFieldDefinition{
		{FieldKey: "category", Label: "Category", FieldType: domain.FieldSelect},
		{
			FieldKey: "justification", Label: "Justification", FieldType: domain.FieldTextarea,
			ConditionalRequired: &domain.ConditionGroup{
				Conditions: []domain.Condition{
					{Field: "form_values.details.category", Operator: domain.OpEquals, Value: "other"},
				},
			},
		},
	}

	values := map[string]interface{}{"category": "travel"}
	assert.Empty(t, Validate("details", fields, values, emptyContext()))
}

func TestValidate_CleanSubmissionHasNoErrors(t *testing.T) {
	fields := []domain.FormFieldDefinition{
		{FieldKey: "amount", Label: "Amount", FieldType: domain.FieldNumber, Required: true},
		{FieldKey: "justification", Label: "Justification", FieldType: domain.FieldTextarea, Required: true},
	}
	values := map[string]interface{}{"amount": 120.0, "justification": "conference travel"}
	assert.Empty(t, Validate("details", fields, values, emptyContext()))
}
