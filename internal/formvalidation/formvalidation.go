// Package formvalidation checks a FORM_STEP submission against its field
// definitions: static shape (length, pattern, numeric range) via a
// generated JSON Schema, and conditional requirements (field X required
// only when field Y holds) via the condition evaluator, since those
// reference sibling field values a JSON Schema can't express (§4.11).
// A field's MinDate/MaxDate are not checked.
package formvalidation

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"

	"github.com/novaflow/ticketflow/internal/condition"
	"github.com/novaflow/ticketflow/internal/domain"
)

// Validate runs both passes and returns every violation found; a nil/empty
// result means the submission is clean. stepID and context let conditional
// requirements reference this step's own in-progress values alongside
// earlier steps' already-submitted ones (context is the usual
// {"form_values": {...}} evaluation context; this step's values are
// overlaid onto it under stepID before conditions are judged).
func Validate(stepID string, fields []domain.FormFieldDefinition, values map[string]interface{}, context map[string]interface{}) []domain.FieldError {
	var errs []domain.FieldError
	errs = append(errs, validateSchema(fields, values)...)
	errs = append(errs, validateConditionalRequired(stepID, fields, values, context)...)
	return errs
}

// validateSchema checks each field's own static shape in isolation: an
// unconditionally required field missing its value is judged directly
// (avoiding any ambiguity in how a library reports which property a
// top-level "required" violation belongs to), and every present value is
// validated against a single-field JSON Schema built from that field's
// type/length/pattern/range constraints.
func validateSchema(fields []domain.FormFieldDefinition, values map[string]interface{}) []domain.FieldError {
	var errs []domain.FieldError
	for _, f := range fields {
		v, present := values[f.FieldKey]
		if f.Required && f.ConditionalRequired == nil && (!present || isBlank(v)) {
			errs = append(errs, domain.FieldError{FieldKey: f.FieldKey, Message: fmt.Sprintf("%s is required", f.Label)})
			continue
		}
		if !present || v == nil {
			continue
		}

		schemaBytes, err := json.Marshal(fieldSchema(f))
		if err != nil {
			continue
		}
		dataBytes, err := json.Marshal(v)
		if err != nil {
			errs = append(errs, domain.FieldError{FieldKey: f.FieldKey, Message: "value could not be encoded"})
			continue
		}

		result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schemaBytes), gojsonschema.NewBytesLoader(dataBytes))
		if err != nil {
			errs = append(errs, domain.FieldError{FieldKey: f.FieldKey, Message: fmt.Sprintf("schema validation error: %v", err)})
			continue
		}
		if result.Valid() {
			continue
		}
		for _, desc := range result.Errors() {
			errs = append(errs, domain.FieldError{FieldKey: f.FieldKey, Message: fmt.Sprintf("%s: %s", f.Label, desc.Description())})
		}
	}
	return errs
}

// fieldSchema renders one field definition's static constraints into a
// JSON Schema document describing that field's value alone.
func fieldSchema(f domain.FormFieldDefinition) map[string]interface{} {
	prop := map[string]interface{}{}
	switch f.FieldType {
	case domain.FieldNumber:
		prop["type"] = "number"
		if f.Min != nil {
			prop["minimum"] = *f.Min
		}
		if f.Max != nil {
			prop["maximum"] = *f.Max
		}
	case domain.FieldCheckbox:
		prop["type"] = "boolean"
	case domain.FieldMultiSelect:
		prop["type"] = "array"
	default:
		prop["type"] = "string"
		if f.MinLength != nil {
			prop["minLength"] = *f.MinLength
		}
		if f.MaxLength != nil {
			prop["maxLength"] = *f.MaxLength
		}
		if f.Pattern != "" {
			prop["pattern"] = f.Pattern
		}
	}
	return prop
}

// validateConditionalRequired checks every ConditionalRequired field
// against context with this step's in-progress values overlaid, so a
// field's own sibling values are visible to its condition.
func validateConditionalRequired(stepID string, fields []domain.FormFieldDefinition, values map[string]interface{}, context map[string]interface{}) []domain.FieldError {
	evalCtx := overlayStepValues(stepID, values, context)

	var errs []domain.FieldError
	for _, f := range fields {
		if f.ConditionalRequired == nil {
			continue
		}
		if !condition.Evaluate(f.ConditionalRequired, evalCtx) {
			continue
		}
		if isBlank(values[f.FieldKey]) {
			errs = append(errs, domain.FieldError{
				FieldKey: f.FieldKey,
				Message:  fmt.Sprintf("%s is required", f.Label),
			})
		}
	}
	return errs
}

func overlayStepValues(stepID string, values map[string]interface{}, context map[string]interface{}) map[string]interface{} {
	formValues, _ := context["form_values"].(map[string]interface{})
	merged := make(map[string]interface{}, len(formValues)+1)
	for k, v := range formValues {
		merged[k] = v
	}
	merged[stepID] = values
	return map[string]interface{}{"form_values": merged}
}

func isBlank(v interface{}) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	return false
}
