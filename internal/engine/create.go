package engine

import (
	"context"

	"github.com/novaflow/ticketflow/internal/domain"
	"github.com/novaflow/ticketflow/internal/transition"
)

// InitialFormStep is one wizard-style pre-filled form the caller supplies
// to CreateTicket, applied in order before the engine activates anything
// past the last one (§4.4).
type InitialFormStep struct {
	StepID     string
	FormValues map[string]interface{}
}

// CreateTicket resolves the requester's manager, materializes a TicketStep
// for every step definition of the template's latest published version
// (precomputing branch identity along the way), applies any pre-filled
// wizard forms, and activates the resulting starting point (§4.4).
func (s *Service) CreateTicket(ctx context.Context, templateID domain.ID, requester domain.UserRef, title, description string, initialForms []InitialFormStep, actor domain.ActorContext, correlationID string) (*domain.Ticket, error) {
	version, err := s.workflows.LatestPublished(ctx, templateID)
	if err != nil {
		return nil, err
	}
	def := &version.Definition

	var managerSnapshot *domain.UserRef
	if s.directory != nil {
		if m, err := s.directory.ManagerOf(ctx, requester); err == nil {
			managerSnapshot = m
		}
	}

	now := s.clock.Now()
	ticket := &domain.Ticket{
		TicketID:        s.ids.New(domain.PrefixTicket),
		WorkflowID:      templateID,
		WorkflowVersion: version.Number,
		Title:           title,
		Description:     description,
		Status:          domain.TicketInProgress,
		Requester:       requester,
		ManagerSnapshot: managerSnapshot,
		FormValues:      map[string]interface{}{},
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}

	branchIdentities := precomputeBranchIdentities(def)
	stepByID := make(map[string]*domain.TicketStep, len(def.Steps))
	for _, sd := range def.Steps {
		ts := &domain.TicketStep{
			TicketStepID: s.ids.New(domain.PrefixTicketStep),
			TicketID:     ticket.TicketID,
			StepID:       sd.StepID,
			StepName:     sd.StepName,
			StepType:     sd.StepType,
			State:        domain.StepNotStarted,
			Branch:       branchIdentities[sd.StepID],
		}
		if err := s.steps.Create(ctx, ts); err != nil {
			return nil, err
		}
		stepByID[sd.StepID] = ts
	}

	workflowName := string(templateID)
	if tmpl, err := s.workflows.GetTemplate(ctx, templateID); err == nil {
		workflowName = tmpl.Name
	}
	ctx = s.startTicketSpan(ctx, ticket.TicketID, workflowName, correlationID)
	s.auditEvent(ctx, ticket.TicketID, domain.AuditCreateTicket, actor, "", map[string]interface{}{"workflow_name": workflowName}, correlationID)

	var lastFilledStepID string
	for _, f := range initialForms {
		ts := stepByID[f.StepID]
		if ts == nil {
			continue
		}
		if err := s.recordFormSubmission(ctx, ticket, ts, f.FormValues, actor, correlationID); err != nil {
			return nil, err
		}
		lastFilledStepID = f.StepID
	}

	var startID string
	if lastFilledStepID != "" {
		next, err := transition.Resolve(def, lastFilledStepID, domain.EventSubmitForm, evalContext(ticket))
		if err != nil {
			return nil, err
		}
		startID = next
	} else {
		startID = startStepID(def)
	}

	if startID == "" {
		return ticket, nil
	}
	startStep := stepByID[startID]
	if startStep == nil {
		return nil, domain.New(domain.KindStepNotFound, "resolved start step not materialized on ticket")
	}
	if err := s.activateStep(ctx, ticket, def, startStep, actor, correlationID); err != nil {
		return nil, err
	}
	return ticket, nil
}

// recordFormSubmission marks step COMPLETED, folds values into the
// ticket's form_values under its step id, and audits SUBMIT_FORM — the
// shared tail of both wizard pre-fill and the SubmitForm action.
func (s *Service) recordFormSubmission(ctx context.Context, ticket *domain.Ticket, step *domain.TicketStep, values map[string]interface{}, actor domain.ActorContext, correlationID string) error {
	now := s.clock.Now()
	cp := *step
	cp.State = domain.StepCompleted
	cp.CompletedAt = &now
	cp.Data.FormValues = values
	if err := s.steps.Update(ctx, &cp, step.Version); err != nil {
		return err
	}
	*step = cp

	ticket.FormValues[step.StepID] = values
	ticket.UpdatedAt = now
	if err := s.tickets.Update(ctx, ticket, ticket.Version); err != nil {
		return err
	}

	s.auditEvent(ctx, ticket.TicketID, domain.AuditSubmitForm, actor, step.TicketStepID, map[string]interface{}{"field_count": len(values)}, correlationID)
	return nil
}

// evalContext builds the condition-evaluator context every transition and
// approver-resolution decision is judged against (§4.2).
func evalContext(ticket *domain.Ticket) map[string]interface{} {
	return map[string]interface{}{"form_values": ticket.FormValues}
}
