package changerequest

import (
	"context"
	"reflect"

	"github.com/novaflow/ticketflow/internal/domain"
)

// stepLabels maps a step id to its display name and, per field key, the
// field's label — drawn from the workflow version's definition (§4.8).
type stepLabels struct {
	stepName    string
	fieldLabels map[string]string
}

// fieldLabels resolves display labels for every step in ticket's workflow
// version, used to decorate field_changes. Unresolvable (e.g. no workflow
// version on record) degrades to empty labels rather than failing the CR.
func (s *Service) fieldLabels(ctx context.Context, ticket *domain.Ticket) (map[string]stepLabels, map[string]string) {
	labels := map[string]stepLabels{}
	stepNames := map[string]string{}
	if s.workflows == nil {
		return labels, stepNames
	}
	version, err := s.workflows.GetVersionByNumber(ctx, ticket.WorkflowID, ticket.WorkflowVersion)
	if err != nil || version == nil {
		return labels, stepNames
	}
	for _, step := range version.Definition.Steps {
		sl := stepLabels{stepName: step.StepName, fieldLabels: map[string]string{}}
		if step.Form != nil {
			for _, f := range step.Form.Fields {
				sl.fieldLabels[f.FieldKey] = f.Label
			}
		}
		if step.Task != nil {
			for _, f := range step.Task.OutputFields {
				sl.fieldLabels[f.FieldKey] = f.Label
			}
		}
		labels[step.StepID] = sl
		stepNames[step.StepID] = step.StepName
	}
	return labels, stepNames
}

// computeFieldChanges diffs two form_values trees keyed step_id ->
// field_key -> value, mirroring the original's dict/dict and
// whole-section fallback comparison (§4.8).
func computeFieldChanges(oldValues, newValues map[string]interface{}, labels map[string]stepLabels, stepNames map[string]string) []domain.FieldChange {
	var changes []domain.FieldChange
	stepIDs := unionKeys(oldValues, newValues)
	for _, stepID := range stepIDs {
		oldStep := oldValues[stepID]
		newStep := newValues[stepID]

		oldMap, oldIsMap := oldStep.(map[string]interface{})
		newMap, newIsMap := newStep.(map[string]interface{})

		stepName := stepNames[stepID]
		if stepName == "" {
			stepName = stepID
		}

		if oldIsMap && newIsMap {
			for _, fieldKey := range unionKeys(oldMap, newMap) {
				oldVal := oldMap[fieldKey]
				newVal := newMap[fieldKey]
				if !reflect.DeepEqual(oldVal, newVal) {
					changes = append(changes, domain.FieldChange{
						StepID:   stepID,
						StepName: stepName,
						FieldKey: fieldKey,
						Label:    fieldLabel(labels, stepID, fieldKey),
						OldValue: oldVal,
						NewValue: newVal,
					})
				}
			}
			continue
		}

		if !reflect.DeepEqual(oldStep, newStep) {
			changes = append(changes, domain.FieldChange{
				StepID:   stepID,
				StepName: stepName,
				FieldKey: "_section_data",
				Label:    "Section Data",
				OldValue: oldStep,
				NewValue: newStep,
			})
		}
	}
	return changes
}

func fieldLabel(labels map[string]stepLabels, stepID, fieldKey string) string {
	if sl, ok := labels[stepID]; ok {
		if label, ok := sl.fieldLabels[fieldKey]; ok && label != "" {
			return label
		}
	}
	return fieldKey
}

func unionKeys(a, b map[string]interface{}) []string {
	seen := map[string]struct{}{}
	var out []string
	for k := range a {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	for k := range b {
		if _, ok := seen[k]; !ok {
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	return out
}

// computeAttachmentChanges reports attachments present only in new (ADDED)
// or only in old (REMOVED) (§4.8). Original filenames aren't resolved here
// (attachment storage is out of scope, §1); callers needing them decorate
// after the fact.
func computeAttachmentChanges(oldIDs, newIDs []string) []domain.AttachmentChange {
	oldSet := toSet(oldIDs)
	newSet := toSet(newIDs)

	var changes []domain.AttachmentChange
	for _, id := range newIDs {
		if !oldSet[id] {
			changes = append(changes, domain.AttachmentChange{Kind: domain.AttachmentAdded, AttachmentID: id, OriginalName: id})
		}
	}
	for _, id := range oldIDs {
		if !newSet[id] {
			changes = append(changes, domain.AttachmentChange{Kind: domain.AttachmentRemoved, AttachmentID: id, OriginalName: id})
		}
	}
	return changes
}

func toSet(ids []string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}
