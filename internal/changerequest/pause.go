package changerequest

import (
	"context"

	"github.com/novaflow/ticketflow/internal/domain"
)

// pauseWorkflow sets every pausable step to WAITING_FOR_CR, recording each
// one's previous state for later restoration, and moves the ticket itself
// into WAITING_FOR_CR (§4.8).
func (s *Service) pauseWorkflow(ctx context.Context, ticket *domain.Ticket, crID domain.ID, actor domain.ActorContext, correlationID string) error {
	steps, err := s.steps.ListForTicket(ctx, ticket.TicketID)
	if err != nil {
		return err
	}

	var pausedStepIDs []string
	var participants []domain.UserRef
	for _, step := range steps {
		if !step.State.Pausable() {
			continue
		}
		previous := step.State
		step.PreviousState = &previous
		step.State = domain.StepWaitingForCR
		if err := s.steps.Update(ctx, step, step.Version); err != nil {
			return err
		}
		pausedStepIDs = append(pausedStepIDs, step.StepID)
		if step.AssignedTo != nil {
			participants = append(participants, *step.AssignedTo)
		}
		for _, approver := range step.Data.ParallelApproversInfo {
			participants = append(participants, approver)
		}
	}

	previousStatus := ticket.Status
	ticket.PreviousStatus = previousStatus
	ticket.Status = domain.TicketWaitingForCR
	ticket.UpdatedAt = s.clock.Now()
	if err := s.tickets.Update(ctx, ticket, ticket.Version); err != nil {
		return err
	}

	if s.audit != nil {
		_, _ = s.audit.WriteEvent(ctx, ticket.TicketID, domain.AuditChangeRequestWorkflowPaused, actor, "", map[string]interface{}{
			"change_request_id":  crID,
			"paused_steps_count": len(pausedStepIDs),
			"paused_steps":       pausedStepIDs,
		}, correlationID)
	}

	participants = append(participants, ticket.Requester)
	if ticket.ManagerSnapshot != nil {
		participants = append(participants, *ticket.ManagerSnapshot)
	}
	s.notify(ctx, ticket, domain.TemplateChangeRequestWorkflowPaused, dedupeUsers(participants), map[string]interface{}{"change_request_id": crID}, correlationID)

	return nil
}

// resumeWorkflow restores every WAITING_FOR_CR step to its recorded
// previous state and the ticket to its recorded previous status (§4.8).
func (s *Service) resumeWorkflow(ctx context.Context, ticket *domain.Ticket, crID domain.ID, actor domain.ActorContext, resolution, correlationID string) error {
	steps, err := s.steps.ListForTicket(ctx, ticket.TicketID)
	if err != nil {
		return err
	}

	var resumedStepIDs []string
	var participants []domain.UserRef
	for _, step := range steps {
		if step.State != domain.StepWaitingForCR {
			continue
		}
		restored := domain.StepActive
		if step.PreviousState != nil {
			restored = *step.PreviousState
		}
		step.State = restored
		step.PreviousState = nil
		if err := s.steps.Update(ctx, step, step.Version); err != nil {
			return err
		}
		resumedStepIDs = append(resumedStepIDs, step.StepID)
		if step.AssignedTo != nil {
			participants = append(participants, *step.AssignedTo)
		}
	}

	previousStatus := ticket.PreviousStatus
	if previousStatus == "" {
		previousStatus = domain.TicketInProgress
	}
	ticket.Status = previousStatus
	ticket.PreviousStatus = ""
	ticket.UpdatedAt = s.clock.Now()
	if err := s.tickets.Update(ctx, ticket, ticket.Version); err != nil {
		return err
	}

	if s.audit != nil {
		_, _ = s.audit.WriteEvent(ctx, ticket.TicketID, domain.AuditChangeRequestWorkflowResumed, actor, "", map[string]interface{}{
			"change_request_id":   crID,
			"resolution":          resolution,
			"resumed_steps_count": len(resumedStepIDs),
			"resumed_steps":       resumedStepIDs,
		}, correlationID)
	}

	participants = append(participants, ticket.Requester)
	if ticket.ManagerSnapshot != nil {
		participants = append(participants, *ticket.ManagerSnapshot)
	}
	s.notify(ctx, ticket, domain.TemplateChangeRequestWorkflowResumed, dedupeUsers(participants), map[string]interface{}{"change_request_id": crID, "resolution": resolution}, correlationID)

	return nil
}

func dedupeUsers(users []domain.UserRef) []domain.UserRef {
	seen := map[string]bool{}
	var out []domain.UserRef
	for _, u := range users {
		key := u.Email
		if key == "" {
			continue
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, u)
	}
	return out
}
