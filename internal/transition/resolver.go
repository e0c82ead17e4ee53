// Package transition resolves the next step id for a (current step, event)
// pair against a workflow definition's transition table (§4.2, §4.3).
package transition

import (
	"fmt"
	"sort"

	"github.com/novaflow/ticketflow/internal/condition"
	"github.com/novaflow/ticketflow/internal/domain"
)

// candidate pairs a transition with the priority it resolved to, so ties
// can be broken by declaration order after the stable sort below.
type candidate struct {
	transition *domain.Transition
	priority   int
}

// Resolve finds the next step id from currentStepID on event, evaluating
// each candidate transition's condition against context.
//
//   - No candidate transitions and the current step is terminal: returns
//     ("", nil, nil) — there is no next step.
//   - No candidate transitions and the current step is not terminal:
//     returns KindTransitionNotFound.
//   - Candidates exist but none has a satisfied condition: returns
//     KindTransitionNotFound.
//   - Otherwise: the highest-priority satisfied candidate wins; ties are
//     broken by declaration order (the Order the transitions appear in the
//     definition), matching a stable descending sort.
func Resolve(def *domain.Definition, currentStepID string, event domain.TransitionEvent, context map[string]interface{}) (string, error) {
	var candidates []*domain.Transition
	for i := range def.Transitions {
		t := &def.Transitions[i]
		if t.FromStepID == currentStepID && t.OnEvent == event {
			candidates = append(candidates, t)
		}
	}

	if len(candidates) == 0 {
		step := def.StepByID(currentStepID)
		if step != nil && step.IsTerminal {
			return "", nil
		}
		return "", domain.New(domain.KindTransitionNotFound,
			fmt.Sprintf("no transition from step %s on event %s", currentStepID, event))
	}

	var valid []candidate
	for _, t := range candidates {
		if t.Condition == nil {
			valid = append(valid, candidate{transition: t, priority: 0})
			continue
		}
		if condition.Evaluate(t.Condition, context) {
			valid = append(valid, candidate{transition: t, priority: t.Priority})
		}
	}

	if len(valid) == 0 {
		return "", domain.New(domain.KindTransitionNotFound,
			fmt.Sprintf("no valid transition (conditions not met) from step %s on event %s", currentStepID, event))
	}

	sort.SliceStable(valid, func(i, j int) bool {
		if valid[i].priority != valid[j].priority {
			return valid[i].priority > valid[j].priority
		}
		return valid[i].transition.Order < valid[j].transition.Order
	})

	return valid[0].transition.ToStepID, nil
}

// OutgoingTransitions returns every transition declared from stepID.
func OutgoingTransitions(def *domain.Definition, stepID string) []*domain.Transition {
	var out []*domain.Transition
	for i := range def.Transitions {
		if def.Transitions[i].FromStepID == stepID {
			out = append(out, &def.Transitions[i])
		}
	}
	return out
}

// EventsForStep returns the distinct events a step can transition on.
func EventsForStep(def *domain.Definition, stepID string) []domain.TransitionEvent {
	seen := make(map[domain.TransitionEvent]bool)
	var out []domain.TransitionEvent
	for _, t := range OutgoingTransitions(def, stepID) {
		if !seen[t.OnEvent] {
			seen[t.OnEvent] = true
			out = append(out, t.OnEvent)
		}
	}
	return out
}
