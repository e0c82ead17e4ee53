package transition

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novaflow/ticketflow/internal/domain"
)

func defWithTransitions(ts ...domain.Transition) *domain.Definition {
	return &domain.Definition{
		Steps: []domain.StepDefinition{
			{StepID: "start"},
			{StepID: "approve"},
			{StepID: "reject"},
			{StepID: "done", IsTerminal: true},
		},
		Transitions: ts,
	}
}

func TestResolve_NoCandidatesTerminalStep(t *testing.T) {
	def := defWithTransitions()
	next, err := Resolve(def, "done", domain.EventSubmitForm, nil)
	require.NoError(t, err)
	assert.Equal(t, "", next)
}

func TestResolve_NoCandidatesNonTerminalStep(t *testing.T) {
	def := defWithTransitions()
	_, err := Resolve(def, "start", domain.EventSubmitForm, nil)
	require.Error(t, err)
	var derr *domain.Error
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, domain.KindTransitionNotFound, derr.Kind)
}

func TestResolve_UnconditionalTransition(t *testing.T) {
	def := defWithTransitions(
		domain.Transition{FromStepID: "start", OnEvent: domain.EventSubmitForm, ToStepID: "approve", Order: 0},
	)
	next, err := Resolve(def, "start", domain.EventSubmitForm, nil)
	require.NoError(t, err)
	assert.Equal(t, "approve", next)
}

func TestResolve_ConditionsNotMet(t *testing.T) {
	def := defWithTransitions(
		domain.Transition{
			FromStepID: "start", OnEvent: domain.EventSubmitForm, ToStepID: "approve", Order: 0,
			Condition: &domain.ConditionGroup{Conditions: []domain.Condition{
				{Field: "form_values.amount", Operator: domain.OpGreaterThan, Value: 1000.0},
			}},
		},
	)
	ctx := map[string]interface{}{"form_values": map[string]interface{}{"amount": "10"}}
	_, err := Resolve(def, "start", domain.EventSubmitForm, ctx)
	require.Error(t, err)
	var derr *domain.Error
	require.True(t, errors.As(err, &derr))
	assert.Equal(t, domain.KindTransitionNotFound, derr.Kind)
}

func TestResolve_HighestPriorityWins(t *testing.T) {
	def := defWithTransitions(
		domain.Transition{FromStepID: "start", OnEvent: domain.EventSubmitForm, ToStepID: "approve", Priority: 5, Order: 0},
		domain.Transition{FromStepID: "start", OnEvent: domain.EventSubmitForm, ToStepID: "reject", Priority: 10, Order: 1},
	)
	next, err := Resolve(def, "start", domain.EventSubmitForm, nil)
	require.NoError(t, err)
	assert.Equal(t, "reject", next)
}

func TestResolve_TiesBreakByDeclarationOrder(t *testing.T) {
	def := defWithTransitions(
		domain.Transition{FromStepID: "start", OnEvent: domain.EventSubmitForm, ToStepID: "approve", Priority: 5, Order: 0},
		domain.Transition{FromStepID: "start", OnEvent: domain.EventSubmitForm, ToStepID: "reject", Priority: 5, Order: 1},
	)
	next, err := Resolve(def, "start", domain.EventSubmitForm, nil)
	require.NoError(t, err)
	assert.Equal(t, "approve", next)
}
