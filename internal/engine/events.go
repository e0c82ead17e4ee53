package engine

import (
	"context"
	"strings"

	"github.com/novaflow/ticketflow/internal/domain"
	"github.com/novaflow/ticketflow/internal/formvalidation"
)

// loadTicketAndStep fetches a ticket and one of its materialized steps,
// resolving the step's owning definition — the ticket's own published
// version, or the sub-workflow version it was expanded from.
func (s *Service) loadTicketAndStep(ctx context.Context, ticketID, ticketStepID domain.ID) (*domain.Ticket, *domain.TicketStep, *domain.Definition, error) {
	ticket, err := s.tickets.Get(ctx, ticketID)
	if err != nil {
		return nil, nil, nil, err
	}
	step, err := s.steps.Get(ctx, ticketStepID)
	if err != nil {
		return nil, nil, nil, err
	}
	if step.TicketID != ticket.TicketID {
		return nil, nil, nil, domain.New(domain.KindStepNotFound, "step does not belong to ticket")
	}
	def, err := s.definitionFor(ctx, ticket, step)
	if err != nil {
		return nil, nil, nil, err
	}
	return ticket, step, def, nil
}

func (s *Service) definitionFor(ctx context.Context, ticket *domain.Ticket, step *domain.TicketStep) (*domain.Definition, error) {
	if step.SubWorkflow != nil {
		version, err := s.workflows.GetVersionByNumber(ctx, step.SubWorkflow.FromSubWorkflowID, step.SubWorkflow.Version)
		if err != nil {
			return nil, err
		}
		return &version.Definition, nil
	}
	version, err := s.workflows.GetVersionByNumber(ctx, ticket.WorkflowID, ticket.WorkflowVersion)
	if err != nil {
		return nil, err
	}
	return &version.Definition, nil
}

func (s *Service) loadTicketAndDefinition(ctx context.Context, ticketID domain.ID) (*domain.Ticket, *domain.Definition, error) {
	ticket, err := s.tickets.Get(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	version, err := s.workflows.GetVersionByNumber(ctx, ticket.WorkflowID, ticket.WorkflowVersion)
	if err != nil {
		return nil, nil, err
	}
	return ticket, &version.Definition, nil
}

// SubmitForm records a requester's (or wizard-style pre-filled) form
// submission and advances the ticket (§4.4, action "submit form").
func (s *Service) SubmitForm(ctx context.Context, ticketID, ticketStepID domain.ID, values map[string]interface{}, actor domain.ActorContext, correlationID string) error {
	ticket, step, def, err := s.loadTicketAndStep(ctx, ticketID, ticketStepID)
	if err != nil {
		return err
	}
	if step.StepType != domain.StepTypeForm {
		return domain.New(domain.KindInvalidState, "step is not a form step")
	}
	if step.State.IsTerminal() {
		return domain.New(domain.KindInvalidState, "form step already submitted")
	}

	stepDef := def.StepByID(step.StepID)
	if stepDef != nil && stepDef.Form != nil {
		if fieldErrs := formvalidation.Validate(step.StepID, stepDef.Form.Fields, values, evalContext(ticket)); len(fieldErrs) > 0 {
			return domain.New(domain.KindValidation, "form submission failed validation").WithFields(fieldErrs)
		}
	}

	if err := s.recordFormSubmission(ctx, ticket, step, values, actor, correlationID); err != nil {
		return err
	}
	return s.completeStepAndAdvance(ctx, ticket, def, step, domain.EventSubmitForm, actor, correlationID)
}

// Approve, Reject and SkipApproval are the three approval decisions an
// approver can record on an APPROVAL_STEP (§6 action "approve / reject / skip").
func (s *Service) Approve(ctx context.Context, ticketID, ticketStepID domain.ID, approver domain.UserRef, comment string, actor domain.ActorContext, correlationID string) error {
	return s.decideApproval(ctx, ticketID, ticketStepID, approver, domain.DecisionApproved, comment, actor, correlationID)
}

func (s *Service) Reject(ctx context.Context, ticketID, ticketStepID domain.ID, approver domain.UserRef, comment string, actor domain.ActorContext, correlationID string) error {
	return s.decideApproval(ctx, ticketID, ticketStepID, approver, domain.DecisionRejected, comment, actor, correlationID)
}

func (s *Service) SkipApproval(ctx context.Context, ticketID, ticketStepID domain.ID, approver domain.UserRef, comment string, actor domain.ActorContext, correlationID string) error {
	return s.decideApproval(ctx, ticketID, ticketStepID, approver, domain.DecisionSkipped, comment, actor, correlationID)
}

// decideApproval records one approver's decision. If the step already
// resolved under a parallel ANY rule, a later decision only credits or
// retires the decider's own task without touching the step again (§8
// property 6 — approval race).
func (s *Service) decideApproval(ctx context.Context, ticketID, ticketStepID domain.ID, approver domain.UserRef, decision domain.ApprovalDecision, comment string, actor domain.ActorContext, correlationID string) error {
	ticket, step, def, err := s.loadTicketAndStep(ctx, ticketID, ticketStepID)
	if err != nil {
		return err
	}
	if step.StepType != domain.StepTypeApproval {
		return domain.New(domain.KindInvalidState, "step is not an approval step")
	}

	tasks, err := s.approvals.ListForStep(ctx, step.TicketStepID)
	if err != nil {
		return err
	}
	var task *domain.ApprovalTask
	for _, t := range tasks {
		if domain.SameUser(&t.Approver, &approver) {
			task = t
			break
		}
	}
	if task == nil {
		return domain.New(domain.KindPermissionDenied, "principal is not an approver on this step")
	}
	if task.Decision != domain.DecisionPending {
		return nil
	}

	now := s.clock.Now()
	cpTask := *task
	cpTask.Decision = decision
	cpTask.Comment = comment
	cpTask.DecidedAt = &now
	if err := s.approvals.Update(ctx, &cpTask, task.Version); err != nil {
		return err
	}

	auditType := domain.AuditApprove
	switch decision {
	case domain.DecisionRejected:
		auditType = domain.AuditReject
	case domain.DecisionSkipped:
		auditType = domain.AuditSkip
	}
	s.auditEvent(ctx, ticket.TicketID, auditType, actor, step.TicketStepID, map[string]interface{}{"approver": approver.Email, "comment": comment}, correlationID)

	if step.State.IsTerminal() {
		return nil
	}
	if step.State != domain.StepWaitingForApproval {
		return domain.New(domain.KindInvalidState, "step is not awaiting approval")
	}

	if err := s.cancelOpenInfoRequest(ctx, step); err != nil {
		return err
	}

	stepDef := def.StepByID(step.StepID)
	if stepDef.Approval.Parallel {
		return s.resolveParallelApproval(ctx, ticket, def, stepDef, step, approver, decision, actor, correlationID)
	}
	return s.finishApprovalStep(ctx, ticket, def, step, decision, actor, correlationID)
}

// resolveParallelApproval applies the ALL/ANY parallel approval rule: ALL
// requires every approver to approve (any single reject/skip fails the
// step immediately); ANY completes the step on its first approval, or on
// its last pending decision if none approved.
func (s *Service) resolveParallelApproval(ctx context.Context, ticket *domain.Ticket, def *domain.Definition, stepDef *domain.StepDefinition, step *domain.TicketStep, approver domain.UserRef, decision domain.ApprovalDecision, actor domain.ActorContext, correlationID string) error {
	cp := *step
	var pending []string
	for _, e := range cp.Data.ParallelPendingApprovers {
		if strings.EqualFold(e, approver.Email) {
			continue
		}
		pending = append(pending, e)
	}
	cp.Data.ParallelPendingApprovers = pending
	cp.Data.ParallelCompletedApprovers = append(append([]string{}, cp.Data.ParallelCompletedApprovers...), approver.Email)
	if err := s.steps.Update(ctx, &cp, step.Version); err != nil {
		return err
	}
	*step = cp

	if stepDef.Approval.ParallelRule == domain.ParallelAny {
		if decision == domain.DecisionApproved {
			return s.finishApprovalStep(ctx, ticket, def, step, domain.DecisionApproved, actor, correlationID)
		}
		if len(pending) == 0 {
			return s.finishApprovalStep(ctx, ticket, def, step, decision, actor, correlationID)
		}
		return nil
	}

	// ALL: any single reject/skip fails the step at once.
	if decision != domain.DecisionApproved {
		return s.finishApprovalStep(ctx, ticket, def, step, decision, actor, correlationID)
	}
	if len(pending) == 0 {
		return s.finishApprovalStep(ctx, ticket, def, step, domain.DecisionApproved, actor, correlationID)
	}
	return nil
}

// finishApprovalStep stamps the step's final state from one decision and
// routes onward: forward progress on approval, termination on
// reject/skip (§4.5).
func (s *Service) finishApprovalStep(ctx context.Context, ticket *domain.Ticket, def *domain.Definition, step *domain.TicketStep, decision domain.ApprovalDecision, actor domain.ActorContext, correlationID string) error {
	now := s.clock.Now()
	cp := *step
	switch decision {
	case domain.DecisionApproved:
		cp.State = domain.StepCompleted
	case domain.DecisionRejected:
		cp.State = domain.StepRejected
	case domain.DecisionSkipped:
		cp.State = domain.StepSkipped
	}
	cp.CompletedAt = &now
	if err := s.steps.Update(ctx, &cp, step.Version); err != nil {
		return err
	}
	*step = cp

	if decision == domain.DecisionApproved {
		return s.completeStepAndAdvance(ctx, ticket, def, step, domain.EventApprove, actor, correlationID)
	}
	return s.terminateStep(ctx, ticket, def, step, actor, correlationID)
}

// terminateStep routes a rejected/skipped step: branch failure semantics
// when it lives inside a fork branch, otherwise the step's decision
// rejects or skips the whole ticket (§4.5).
func (s *Service) terminateStep(ctx context.Context, ticket *domain.Ticket, def *domain.Definition, step *domain.TicketStep, actor domain.ActorContext, correlationID string) error {
	if step.Branch != nil {
		return s.onBranchStepFailed(ctx, ticket, def, step, actor, correlationID)
	}
	reason := step.StepName + " " + strings.ToLower(string(step.State))
	if step.State == domain.StepSkipped {
		return s.skipTicket(ctx, ticket, def, actor, reason, correlationID)
	}
	return s.rejectTicket(ctx, ticket, def, actor, reason, correlationID)
}

func (s *Service) cancelOpenInfoRequest(ctx context.Context, step *domain.TicketStep) error {
	if s.infoRequests == nil {
		return nil
	}
	open, err := s.infoRequests.FindOpenForStep(ctx, step.TicketStepID)
	if err != nil {
		return err
	}
	if open == nil {
		return nil
	}
	cp := *open
	cp.Status = domain.InfoRequestCancelled
	return s.infoRequests.Update(ctx, &cp, open.Version)
}

// CompleteTask fills in a task step's output. A repeat completion by the
// same assignee is a no-op; a different principal is denied (§8 property 2).
func (s *Service) CompleteTask(ctx context.Context, ticketID, ticketStepID domain.ID, outputValues map[string]interface{}, notes string, actor domain.ActorContext, correlationID string) error {
	ticket, step, def, err := s.loadTicketAndStep(ctx, ticketID, ticketStepID)
	if err != nil {
		return err
	}
	if step.StepType != domain.StepTypeTask {
		return domain.New(domain.KindInvalidState, "step is not a task step")
	}
	actorRef := actor.Ref()
	if step.State.IsTerminal() {
		if step.State == domain.StepCompleted && step.AssignedTo != nil && domain.SameUser(step.AssignedTo, &actorRef) {
			return nil
		}
		return domain.New(domain.KindPermissionDenied, "task step already resolved")
	}
	if step.State != domain.StepActive {
		return domain.New(domain.KindInvalidState, "task step is not active")
	}
	if step.AssignedTo == nil || !domain.SameUser(step.AssignedTo, &actorRef) {
		return domain.New(domain.KindPermissionDenied, "only the assigned agent may complete this task")
	}

	if err := s.cancelOpenInfoRequest(ctx, step); err != nil {
		return err
	}

	now := s.clock.Now()
	cp := *step
	cp.State = domain.StepCompleted
	cp.CompletedAt = &now
	cp.Data.OutputValues = outputValues
	if notes != "" {
		cp.Data.Notes = append(append([]domain.Note{}, cp.Data.Notes...), domain.Note{Author: actorRef, Content: notes, CreatedAt: now})
	}
	if err := s.steps.Update(ctx, &cp, step.Version); err != nil {
		return err
	}
	*step = cp

	s.auditEvent(ctx, ticket.TicketID, domain.AuditCompleteTask, actor, step.TicketStepID, map[string]interface{}{"output_count": len(outputValues)}, correlationID)
	return s.completeStepAndAdvance(ctx, ticket, def, step, domain.EventCompleteTask, actor, correlationID)
}

// AssignAgent and ReassignAgent both close out any active Assignment and
// open a new one; they differ only in which audit/template they use,
// matching how the action API distinguishes a first assignment from a
// reassignment (§6).
func (s *Service) AssignAgent(ctx context.Context, ticketID, ticketStepID domain.ID, agent domain.UserRef, reason string, actor domain.ActorContext, correlationID string) error {
	return s.assignAgent(ctx, ticketID, ticketStepID, agent, reason, actor, correlationID, false)
}

func (s *Service) ReassignAgent(ctx context.Context, ticketID, ticketStepID domain.ID, agent domain.UserRef, reason string, actor domain.ActorContext, correlationID string) error {
	return s.assignAgent(ctx, ticketID, ticketStepID, agent, reason, actor, correlationID, true)
}

func (s *Service) assignAgent(ctx context.Context, ticketID, ticketStepID domain.ID, agent domain.UserRef, reason string, actor domain.ActorContext, correlationID string, reassign bool) error {
	ticket, step, _, err := s.loadTicketAndStep(ctx, ticketID, ticketStepID)
	if err != nil {
		return err
	}
	if step.StepType != domain.StepTypeTask {
		return domain.New(domain.KindInvalidState, "step is not a task step")
	}
	if step.State.IsTerminal() {
		return domain.New(domain.KindInvalidState, "task step already resolved")
	}

	if prev, err := s.assignments.FindActiveForStep(ctx, step.TicketStepID); err == nil && prev != nil {
		now := s.clock.Now()
		cp := *prev
		cp.Status = domain.AssignmentReassigned
		cp.EndedAt = &now
		if err := s.assignments.Update(ctx, &cp, prev.Version); err != nil {
			return err
		}
	}
	assignment := &domain.Assignment{
		AssignmentID: s.ids.New(domain.PrefixAssignment),
		TicketStepID: step.TicketStepID,
		Assignee:     agent,
		AssignedBy:   actor.Ref(),
		Status:       domain.AssignmentActive,
		Reason:       reason,
		StartedAt:    s.clock.Now(),
	}
	if err := s.assignments.Create(ctx, assignment); err != nil {
		return err
	}

	cp := *step
	cp.AssignedTo = &agent
	if err := s.steps.Update(ctx, &cp, step.Version); err != nil {
		return err
	}
	*step = cp

	trigger := domain.TriggerTaskAssignment
	auditType := domain.AuditAssignAgent
	template := domain.TemplateTaskAssigned
	if reassign {
		trigger = domain.TriggerTaskReassignment
		auditType = domain.AuditReassignAgent
		template = domain.TemplateTaskReassigned
	}
	s.onboardTrigger(ctx, agent, domain.PersonaAgent, trigger, actor, ticket.TicketID, correlationID)
	s.auditEvent(ctx, ticket.TicketID, auditType, actor, step.TicketStepID, map[string]interface{}{"assignee": agent.Email, "reason": reason}, correlationID)
	s.notify(ctx, ticket.TicketID, template, domain.CategoryTask, []domain.UserRef{agent}, map[string]interface{}{"step_name": step.StepName}, correlationID)
	return nil
}

// SkipStep administratively bypasses any non-terminal step and continues
// the workflow along its SKIP_STEP transition, distinct from an
// approver's own SKIP decision (§6 action "skip step").
func (s *Service) SkipStep(ctx context.Context, ticketID, ticketStepID domain.ID, reason string, actor domain.ActorContext, correlationID string) error {
	ticket, step, def, err := s.loadTicketAndStep(ctx, ticketID, ticketStepID)
	if err != nil {
		return err
	}
	if step.State.IsTerminal() {
		return domain.New(domain.KindInvalidState, "step already terminal")
	}
	now := s.clock.Now()
	cp := *step
	cp.State = domain.StepSkipped
	cp.CompletedAt = &now
	if err := s.steps.Update(ctx, &cp, step.Version); err != nil {
		return err
	}
	*step = cp

	s.auditEvent(ctx, ticket.TicketID, domain.AuditStepSkipped, actor, step.TicketStepID, map[string]interface{}{"reason": reason}, correlationID)
	return s.completeStepAndAdvance(ctx, ticket, def, step, domain.EventSkipStep, actor, correlationID)
}

// CancelTicket cancels the whole ticket (§6 action "cancel ticket"),
// reusing the same non-terminal-step cancellation procedure as
// rejection/skip with status CANCELLED.
func (s *Service) CancelTicket(ctx context.Context, ticketID domain.ID, reason string, actor domain.ActorContext, correlationID string) error {
	ticket, def, err := s.loadTicketAndDefinition(ctx, ticketID)
	if err != nil {
		return err
	}
	if ticket.Status.IsTerminal() {
		return nil
	}
	return s.terminateTicket(ctx, ticket, def, domain.TicketCancelled, actor, reason, correlationID)
}
