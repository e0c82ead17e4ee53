package engine

import (
	"context"

	"github.com/novaflow/ticketflow/internal/domain"
)

// ReassignApproval swaps one pending approver for another on an
// APPROVAL_STEP without disturbing any other approver's already-recorded
// decision (§6 action "reassign approval"). previousApprover identifies
// which pending task to retarget; this is needed beyond the action
// table's listed inputs because a parallel step can have more than one
// still-pending task.
func (s *Service) ReassignApproval(ctx context.Context, ticketID, ticketStepID domain.ID, previousApprover, newApprover domain.UserRef, reason string, actor domain.ActorContext, correlationID string) error {
	ticket, step, _, err := s.loadTicketAndStep(ctx, ticketID, ticketStepID)
	if err != nil {
		return err
	}
	if step.StepType != domain.StepTypeApproval {
		return domain.New(domain.KindInvalidState, "step is not an approval step")
	}
	if step.State.IsTerminal() {
		return domain.New(domain.KindInvalidState, "approval step already resolved")
	}

	tasks, err := s.approvals.ListForStep(ctx, step.TicketStepID)
	if err != nil {
		return err
	}
	var task *domain.ApprovalTask
	for _, t := range tasks {
		if t.Decision == domain.DecisionPending && domain.SameUser(&t.Approver, &previousApprover) {
			task = t
			break
		}
	}
	if task == nil {
		return domain.New(domain.KindNotFound, "no pending approval task for that approver")
	}

	cp := *task
	cp.Approver = newApprover
	if err := s.approvals.Update(ctx, &cp, task.Version); err != nil {
		return err
	}

	if len(step.Data.ParallelPendingApprovers) > 0 {
		stepCp := *step
		pending := make([]string, 0, len(stepCp.Data.ParallelPendingApprovers))
		for _, e := range stepCp.Data.ParallelPendingApprovers {
			if domain.SameUserEmail(&previousApprover, e) {
				pending = append(pending, newApprover.Email)
				continue
			}
			pending = append(pending, e)
		}
		stepCp.Data.ParallelPendingApprovers = pending
		if err := s.steps.Update(ctx, &stepCp, step.Version); err != nil {
			return err
		}
		*step = stepCp
	}

	s.auditEvent(ctx, ticket.TicketID, domain.AuditReassignApproval, actor, step.TicketStepID, map[string]interface{}{
		"previous_approver": previousApprover.Email,
		"new_approver":      newApprover.Email,
		"reason":            reason,
	}, correlationID)
	s.notify(ctx, ticket.TicketID, domain.TemplateApprovalReassigned, domain.CategoryApproval, []domain.UserRef{newApprover}, map[string]interface{}{"step_name": step.StepName}, correlationID)
	return nil
}

// SaveDraft persists in-progress form values on a not-yet-submitted form
// step without advancing the workflow, so a requester or agent can come
// back later and finish it (§6 action "save draft").
func (s *Service) SaveDraft(ctx context.Context, ticketID, ticketStepID domain.ID, draftValues map[string]interface{}, notes string, actor domain.ActorContext, correlationID string) error {
	_, step, _, err := s.loadTicketAndStep(ctx, ticketID, ticketStepID)
	if err != nil {
		return err
	}
	if step.StepType != domain.StepTypeForm {
		return domain.New(domain.KindInvalidState, "step is not a form step")
	}
	if step.State.IsTerminal() {
		return domain.New(domain.KindInvalidState, "form step already submitted")
	}

	cp := *step
	cp.Data.DraftValues = draftValues
	if notes != "" {
		cp.Data.Notes = append(append([]domain.Note{}, cp.Data.Notes...), domain.Note{
			Author:    actor.Ref(),
			Content:   notes,
			CreatedAt: s.clock.Now(),
		})
	}
	return s.steps.Update(ctx, &cp, step.Version)
}

// AddNote appends a free-form activity-log entry to a step, and
// AddRequesterNote does the same but tagged as requester-authored so
// watchers are notified with the requester-facing template (§6 action
// "add note / requester note").
func (s *Service) AddNote(ctx context.Context, ticketID, ticketStepID domain.ID, content string, attachmentIDs []string, actor domain.ActorContext, correlationID string) error {
	return s.addNote(ctx, ticketID, ticketStepID, content, attachmentIDs, actor, correlationID, false)
}

func (s *Service) AddRequesterNote(ctx context.Context, ticketID, ticketStepID domain.ID, content string, attachmentIDs []string, actor domain.ActorContext, correlationID string) error {
	return s.addNote(ctx, ticketID, ticketStepID, content, attachmentIDs, actor, correlationID, true)
}

func (s *Service) addNote(ctx context.Context, ticketID, ticketStepID domain.ID, content string, attachmentIDs []string, actor domain.ActorContext, correlationID string, fromRequester bool) error {
	ticket, step, _, err := s.loadTicketAndStep(ctx, ticketID, ticketStepID)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	cp := *step
	cp.Data.Notes = append(append([]domain.Note{}, cp.Data.Notes...), domain.Note{
		Author:        actor.Ref(),
		Content:       content,
		AttachmentIDs: attachmentIDs,
		CreatedAt:     now,
	})
	if err := s.steps.Update(ctx, &cp, step.Version); err != nil {
		return err
	}
	*step = cp

	auditType := domain.AuditNoteAdded
	template := domain.TemplateNoteAdded
	recipients := []domain.UserRef{}
	if step.AssignedTo != nil {
		recipients = append(recipients, *step.AssignedTo)
	}
	if fromRequester {
		auditType = domain.AuditRequesterNoteAdded
		template = domain.TemplateRequesterNoteAdded
	} else {
		recipients = append(recipients, ticket.Requester)
	}

	s.auditEvent(ctx, ticket.TicketID, auditType, actor, step.TicketStepID, map[string]interface{}{"content_length": len(content)}, correlationID)
	if len(recipients) > 0 {
		s.notify(ctx, ticket.TicketID, template, domain.CategoryTicket, dedupeUsers(recipients), map[string]interface{}{"step_name": step.StepName}, correlationID)
	}
	return nil
}
