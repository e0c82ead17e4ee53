// Package subworkflow expands a referenced workflow version's steps into
// an enclosing ticket when a SUB_WORKFLOW_STEP activates (§4.4).
package subworkflow

import (
	"context"

	"github.com/novaflow/ticketflow/internal/domain"
)

// Workflows is the subset of store.WorkflowRepository the expander needs.
type Workflows interface {
	GetTemplate(ctx context.Context, id domain.ID) (*domain.WorkflowTemplate, error)
	GetVersion(ctx context.Context, id domain.ID) (*domain.WorkflowVersion, error)
	GetVersionByNumber(ctx context.Context, templateID domain.ID, number int) (*domain.WorkflowVersion, error)
}

// Expander materializes a sub-workflow's step graph into a parent ticket.
type Expander struct {
	workflows Workflows
	ids       domain.IDGen
	clock     domain.Clock
}

func New(workflows Workflows, ids domain.IDGen, clock domain.Clock) *Expander {
	return &Expander{workflows: workflows, ids: ids, clock: clock}
}

// Expand resolves spec's referenced version and materializes a TicketStep
// for every one of its step definitions, tagged with parentStepID and,
// when the SUB_WORKFLOW_STEP itself lives inside a fork branch,
// inheriting that branch identity (§4.4). It returns the expanded
// version's definition (so the caller can resolve the start step and
// keep transitioning within it) and the new steps in declaration order.
// None of the returned steps are persisted; the caller creates them.
func (e *Expander) Expand(ctx context.Context, spec *domain.SubWorkflowStepSpec, ticketID, parentStepID domain.ID, inheritedBranch *domain.BranchIdentity) (*domain.Definition, []*domain.TicketStep, error) {
	version, err := e.resolveVersion(ctx, spec)
	if err != nil {
		return nil, nil, err
	}

	name := string(spec.WorkflowID)
	if tmpl, err := e.workflows.GetTemplate(ctx, spec.WorkflowID); err == nil {
		name = tmpl.Name
	}
	subIdentity := &domain.SubWorkflowIdentity{
		ParentSubWorkflowStepID: parentStepID,
		FromSubWorkflowID:       spec.WorkflowID,
		FromSubWorkflowName:     name,
		Version:                 version.Number,
	}

	steps := make([]*domain.TicketStep, 0, len(version.Definition.Steps))
	for _, def := range version.Definition.Steps {
		steps = append(steps, &domain.TicketStep{
			TicketStepID: e.ids.New(domain.PrefixTicketStep),
			TicketID:     ticketID,
			StepID:       def.StepID,
			StepName:     def.StepName,
			StepType:     def.StepType,
			State:        domain.StepNotStarted,
			Branch:       inheritedBranch,
			SubWorkflow:  subIdentity,
		})
	}
	return &version.Definition, steps, nil
}

func (e *Expander) resolveVersion(ctx context.Context, spec *domain.SubWorkflowStepSpec) (*domain.WorkflowVersion, error) {
	if spec.Version > 0 {
		if version, err := e.workflows.GetVersionByNumber(ctx, spec.WorkflowID, spec.Version); err == nil {
			return version, nil
		}
	}
	return e.workflows.GetVersion(ctx, spec.WorkflowID)
}
