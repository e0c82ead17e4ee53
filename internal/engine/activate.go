package engine

import (
	"context"
	"time"

	"github.com/novaflow/ticketflow/internal/domain"
	"github.com/novaflow/ticketflow/internal/transition"
)

// activateStep dispatches a NOT_STARTED step to its type-specific
// activation routine (§4.4).
func (s *Service) activateStep(ctx context.Context, ticket *domain.Ticket, def *domain.Definition, step *domain.TicketStep, actor domain.ActorContext, correlationID string) error {
	stepDef := def.StepByID(step.StepID)
	if stepDef == nil {
		return domain.New(domain.KindStepNotFound, "step "+step.StepID+" not declared in definition")
	}

	ctx, span, started := s.startStepSpan(ctx, ticket.TicketID, step.StepID, step.StepType, correlationID)
	var err error
	switch step.StepType {
	case domain.StepTypeForm:
		err = s.activateForm(ctx, ticket, def, stepDef, step, actor, correlationID)
	case domain.StepTypeApproval:
		err = s.activateApproval(ctx, ticket, def, stepDef, step, actor, correlationID)
	case domain.StepTypeTask:
		err = s.activateTask(ctx, ticket, stepDef, step, actor, correlationID)
	case domain.StepTypeNotify:
		err = s.activateNotify(ctx, ticket, def, stepDef, step, actor, correlationID)
	case domain.StepTypeFork:
		err = s.activateFork(ctx, ticket, def, stepDef, step, actor, correlationID)
	case domain.StepTypeJoin:
		err = s.activateJoin(ctx, ticket, def, stepDef, step, actor, correlationID)
	case domain.StepTypeSubWorkflow:
		err = s.activateSubWorkflow(ctx, ticket, stepDef, step, actor, correlationID)
	default:
		err = domain.New(domain.KindInvalidState, "unknown step type "+string(step.StepType))
	}
	s.endStepSpan(span, started, step.StepType, err)
	return err
}

// beginStep transitions a materialized step out of NOT_STARTED, stamping
// started_at/due_at and persisting under CAS.
func (s *Service) beginStep(ctx context.Context, step *domain.TicketStep, state domain.StepState, assignedTo *domain.UserRef, sla *domain.SLA) error {
	now := s.clock.Now()
	cp := *step
	cp.State = state
	cp.AssignedTo = assignedTo
	cp.StartedAt = &now
	if sla != nil {
		due := now.Add(time.Duration(sla.DueMinutes) * time.Minute)
		cp.DueAt = &due
	}
	if err := s.steps.Update(ctx, &cp, step.Version); err != nil {
		return err
	}
	*step = cp
	return nil
}

// setCurrentStep records which step now drives the ticket: the ticket's
// own current_step_id outside any fork, or the owning BranchState's
// current_step_id when the step lives inside a branch (invariant 1, §3).
func (s *Service) setCurrentStep(ctx context.Context, ticket *domain.Ticket, step *domain.TicketStep) error {
	if step.Branch != nil {
		for i := range ticket.ActiveBranches {
			b := &ticket.ActiveBranches[i]
			if b.ParentForkStepID == step.Branch.ParentForkStepID && b.BranchID == step.Branch.BranchID {
				b.CurrentStepID = step.StepID
			}
		}
	} else {
		ticket.CurrentStepID = step.StepID
	}
	ticket.UpdatedAt = s.clock.Now()
	return s.tickets.Update(ctx, ticket, ticket.Version)
}

func (s *Service) activateForm(ctx context.Context, ticket *domain.Ticket, def *domain.Definition, stepDef *domain.StepDefinition, step *domain.TicketStep, actor domain.ActorContext, correlationID string) error {
	if err := s.beginStep(ctx, step, domain.StepActive, &ticket.Requester, stepDef.SLA); err != nil {
		return err
	}
	if err := s.setCurrentStep(ctx, ticket, step); err != nil {
		return err
	}
	s.auditEvent(ctx, ticket.TicketID, domain.AuditStepActivated, actor, step.TicketStepID, nil, correlationID)
	if step.StepID != startStepID(def) {
		s.notify(ctx, ticket.TicketID, domain.TemplateFormPending, domain.CategoryTicket, []domain.UserRef{ticket.Requester}, map[string]interface{}{"step_name": step.StepName}, correlationID)
	}
	return nil
}

func (s *Service) activateApproval(ctx context.Context, ticket *domain.Ticket, def *domain.Definition, stepDef *domain.StepDefinition, step *domain.TicketStep, actor domain.ActorContext, correlationID string) error {
	spec := stepDef.Approval
	if spec.Parallel {
		return s.activateParallelApproval(ctx, ticket, stepDef, step, actor, correlationID)
	}

	allSteps, err := s.steps.ListForTicket(ctx, ticket.TicketID)
	if err != nil {
		return err
	}
	resolved, err := resolveApprover(spec, def, ticket, allSteps)
	if err != nil {
		return err
	}

	if err := s.beginStep(ctx, step, domain.StepWaitingForApproval, &resolved.Primary, stepDef.SLA); err != nil {
		return err
	}
	if err := s.setCurrentStep(ctx, ticket, step); err != nil {
		return err
	}

	s.onboardTrigger(ctx, resolved.Primary, domain.PersonaManager, domain.TriggerApprovalAssignment, actor, ticket.TicketID, correlationID)
	task := &domain.ApprovalTask{ApprovalTaskID: s.ids.New(domain.PrefixApprovalTask), TicketStepID: step.TicketStepID, Approver: resolved.Primary, Decision: domain.DecisionPending}
	if err := s.approvals.Create(ctx, task); err != nil {
		return err
	}
	s.notify(ctx, ticket.TicketID, domain.TemplateApprovalPending, domain.CategoryApproval, []domain.UserRef{resolved.Primary}, map[string]interface{}{"step_name": step.StepName}, correlationID)
	if len(resolved.Secondaries) > 0 {
		s.notify(ctx, ticket.TicketID, domain.TemplateApprovalPending, domain.CategoryApproval, resolved.Secondaries, map[string]interface{}{"step_name": step.StepName}, correlationID)
	}
	s.auditEvent(ctx, ticket.TicketID, domain.AuditStepActivated, actor, step.TicketStepID, nil, correlationID)
	return nil
}

func (s *Service) activateParallelApproval(ctx context.Context, ticket *domain.Ticket, stepDef *domain.StepDefinition, step *domain.TicketStep, actor domain.ActorContext, correlationID string) error {
	spec := stepDef.Approval
	approvers := buildParallelApprovers(spec)
	if len(approvers) == 0 {
		return approverResolutionError()
	}

	if err := s.beginStep(ctx, step, domain.StepWaitingForApproval, nil, stepDef.SLA); err != nil {
		return err
	}
	cp := *step
	pending := make([]string, 0, len(approvers))
	for _, a := range approvers {
		pending = append(pending, a.Email)
	}
	cp.Data.ParallelApproversInfo = approvers
	cp.Data.ParallelPendingApprovers = pending
	cp.Data.PrimaryApproverEmail = approvers[0].Email
	if err := s.steps.Update(ctx, &cp, step.Version); err != nil {
		return err
	}
	*step = cp
	if err := s.setCurrentStep(ctx, ticket, step); err != nil {
		return err
	}

	for _, appr := range approvers {
		s.onboardTrigger(ctx, appr, domain.PersonaManager, domain.TriggerApprovalAssignment, actor, ticket.TicketID, correlationID)
		task := &domain.ApprovalTask{ApprovalTaskID: s.ids.New(domain.PrefixApprovalTask), TicketStepID: step.TicketStepID, Approver: appr, Decision: domain.DecisionPending}
		if err := s.approvals.Create(ctx, task); err != nil {
			return err
		}
		s.notify(ctx, ticket.TicketID, domain.TemplateApprovalPending, domain.CategoryApproval, []domain.UserRef{appr}, map[string]interface{}{"step_name": step.StepName}, correlationID)
	}
	s.auditEvent(ctx, ticket.TicketID, domain.AuditStepActivated, actor, step.TicketStepID, nil, correlationID)
	return nil
}

func (s *Service) activateTask(ctx context.Context, ticket *domain.Ticket, stepDef *domain.StepDefinition, step *domain.TicketStep, actor domain.ActorContext, correlationID string) error {
	if err := s.beginStep(ctx, step, domain.StepActive, nil, stepDef.SLA); err != nil {
		return err
	}
	if stepDef.Task != nil && stepDef.Task.LinkedSectionID != "" {
		cp := *step
		cp.Data.LinkedRows = linkedRowsFrom(ticket, stepDef.Task)
		if err := s.steps.Update(ctx, &cp, step.Version); err != nil {
			return err
		}
		*step = cp
	}
	if err := s.setCurrentStep(ctx, ticket, step); err != nil {
		return err
	}
	s.auditEvent(ctx, ticket.TicketID, domain.AuditStepActivated, actor, step.TicketStepID, nil, correlationID)
	return nil
}

// linkedRowsFrom reads a source form's repeating section rows out of
// form_values and converts them into the task step's pre-populated rows.
func linkedRowsFrom(ticket *domain.Ticket, spec *domain.TaskStepSpec) []domain.LinkedRow {
	raw, ok := ticket.FormValues[spec.LinkedSourceStepID]
	if !ok {
		return nil
	}
	values, ok := raw.(map[string]interface{})
	if !ok {
		return nil
	}
	rowsRaw, ok := values[spec.LinkedSectionID]
	if !ok {
		return nil
	}
	rows, ok := rowsRaw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]domain.LinkedRow, 0, len(rows))
	for i, r := range rows {
		rowMap, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		cells := make(map[string]domain.LinkedCell, len(rowMap))
		for k, v := range rowMap {
			cells[k] = domain.LinkedCell{Value: v, Label: k}
		}
		out = append(out, domain.LinkedRow{SourceRowIndex: i, Context: cells})
	}
	return out
}

func (s *Service) activateNotify(ctx context.Context, ticket *domain.Ticket, def *domain.Definition, stepDef *domain.StepDefinition, step *domain.TicketStep, actor domain.ActorContext, correlationID string) error {
	if stepDef.IsTerminal && ticket.JoinProceeded && anyBranchNonTerminal(ticket) {
		ticket.PendingEndStepID = step.StepID
		ticket.UpdatedAt = s.clock.Now()
		return s.tickets.Update(ctx, ticket, ticket.Version)
	}
	if err := s.sendAndCompleteNotify(ctx, ticket, stepDef, step, actor, correlationID); err != nil {
		return err
	}
	return s.completeStepAndAdvance(ctx, ticket, def, step, domain.EventNotifyComplete, actor, correlationID)
}

// sendAndCompleteNotify enqueues the step's notifications and marks it
// COMPLETED, without following any outgoing transition — the shared tail
// used both by normal NOTIFY activation and by ticket termination, which
// fires a pending NOTIFY_STEP's notification without further advancing it.
func (s *Service) sendAndCompleteNotify(ctx context.Context, ticket *domain.Ticket, stepDef *domain.StepDefinition, step *domain.TicketStep, actor domain.ActorContext, correlationID string) error {
	recipients, err := s.notifyRecipients(ctx, ticket, stepDef.Notify)
	if err != nil {
		return err
	}
	s.notify(ctx, ticket.TicketID, stepDef.Notify.TemplateKey, domain.CategoryTicket, recipients, map[string]interface{}{"step_name": step.StepName}, correlationID)

	now := s.clock.Now()
	cp := *step
	if cp.StartedAt == nil {
		cp.StartedAt = &now
	}
	cp.State = domain.StepCompleted
	cp.CompletedAt = &now
	if err := s.steps.Update(ctx, &cp, step.Version); err != nil {
		return err
	}
	*step = cp
	s.auditEvent(ctx, ticket.TicketID, domain.AuditNotifySent, actor, step.TicketStepID, nil, correlationID)
	return nil
}

func (s *Service) notifyRecipients(ctx context.Context, ticket *domain.Ticket, spec *domain.NotifyStepSpec) ([]domain.UserRef, error) {
	var steps []*domain.TicketStep
	needsSteps := false
	for _, r := range spec.Recipients {
		if r == domain.RecipientAssignedAgent || r == domain.RecipientApprovers {
			needsSteps = true
		}
	}
	if needsSteps {
		var err error
		steps, err = s.steps.ListForTicket(ctx, ticket.TicketID)
		if err != nil {
			return nil, err
		}
	}

	var out []domain.UserRef
	for _, r := range spec.Recipients {
		switch r {
		case domain.RecipientRequester:
			out = append(out, ticket.Requester)
		case domain.RecipientAssignedAgent:
			for _, st := range steps {
				if st.StepType == domain.StepTypeTask && st.AssignedTo != nil {
					out = append(out, *st.AssignedTo)
				}
			}
		case domain.RecipientApprovers:
			for _, st := range steps {
				if st.StepType != domain.StepTypeApproval {
					continue
				}
				if st.AssignedTo != nil {
					out = append(out, *st.AssignedTo)
				}
				out = append(out, st.Data.ParallelApproversInfo...)
			}
		}
	}
	return dedupeUsers(out), nil
}

func (s *Service) activateFork(ctx context.Context, ticket *domain.Ticket, def *domain.Definition, stepDef *domain.StepDefinition, step *domain.TicketStep, actor domain.ActorContext, correlationID string) error {
	now := s.clock.Now()
	cp := *step
	cp.State = domain.StepCompleted
	cp.StartedAt = &now
	cp.CompletedAt = &now
	if err := s.steps.Update(ctx, &cp, step.Version); err != nil {
		return err
	}
	*step = cp

	if step.Branch == nil {
		ticket.CurrentStepID = ""
	}
	for _, branch := range stepDef.Fork.Branches {
		ticket.ActiveBranches = append(ticket.ActiveBranches, domain.BranchState{
			ParentForkStepID: step.StepID,
			BranchID:         branch.BranchID,
			BranchName:       branch.BranchName,
			CurrentStepID:    branch.StartStepID,
			State:            domain.StepActive,
		})
	}
	ticket.UpdatedAt = s.clock.Now()
	if err := s.tickets.Update(ctx, ticket, ticket.Version); err != nil {
		return err
	}
	s.auditEvent(ctx, ticket.TicketID, domain.AuditForkActivated, actor, step.TicketStepID, nil, correlationID)

	if joinDef := joinForFork(def, step.StepID); joinDef != nil {
		if joinStep, err := s.findStepByStepID(ctx, ticket.TicketID, joinDef.StepID); err == nil && joinStep.State == domain.StepNotStarted {
			if err := s.activateStep(ctx, ticket, def, joinStep, actor, correlationID); err != nil {
				return err
			}
		}
	}

	for _, branch := range stepDef.Fork.Branches {
		startStep, err := s.findStepByStepID(ctx, ticket.TicketID, branch.StartStepID)
		if err != nil {
			return err
		}
		if err := s.activateStep(ctx, ticket, def, startStep, actor, correlationID); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) activateJoin(ctx context.Context, ticket *domain.Ticket, def *domain.Definition, stepDef *domain.StepDefinition, step *domain.TicketStep, actor domain.ActorContext, correlationID string) error {
	if err := s.beginStep(ctx, step, domain.StepWaitingForBranches, nil, stepDef.SLA); err != nil {
		return err
	}
	s.auditEvent(ctx, ticket.TicketID, domain.AuditJoinWaiting, actor, step.TicketStepID, nil, correlationID)
	return s.evaluateJoin(ctx, ticket, def, stepDef, step, actor, correlationID)
}

// evaluateJoin applies the join-completion proceed-condition table (§4.5).
func (s *Service) evaluateJoin(ctx context.Context, ticket *domain.Ticket, def *domain.Definition, stepDef *domain.StepDefinition, step *domain.TicketStep, actor domain.ActorContext, correlationID string) error {
	if step.State.IsTerminal() {
		return nil
	}
	spec := stepDef.Join
	forkDef := def.StepByID(spec.SourceForkStepID)
	if forkDef == nil || forkDef.Fork == nil {
		return domain.New(domain.KindInvalidState, "join's source fork not found")
	}
	policy := forkDef.Fork.FailurePolicy

	var total, completed, failed int
	for _, b := range ticket.ActiveBranches {
		if b.ParentForkStepID != spec.SourceForkStepID {
			continue
		}
		total++
		switch b.State {
		case domain.StepCompleted:
			completed++
		case domain.StepRejected, domain.StepCancelled, domain.StepSkipped:
			failed++
		}
	}
	if total == 0 {
		return nil
	}
	nonFailed := total - failed
	terminalCount := completed + failed

	if policy == domain.FailAll && failed >= 1 {
		return nil
	}

	var proceed bool
	switch spec.JoinMode {
	case domain.JoinAll:
		proceed = nonFailed > 0 && completed == nonFailed
	case domain.JoinAny:
		if policy == domain.ContinueOthers {
			proceed = terminalCount >= 1
		} else {
			proceed = completed >= 1
		}
	case domain.JoinMajority:
		if policy == domain.ContinueOthers {
			proceed = terminalCount > total/2
		} else {
			proceed = completed > nonFailed/2
		}
	}
	if !proceed {
		return nil
	}

	now := s.clock.Now()
	cp := *step
	cp.State = domain.StepCompleted
	cp.CompletedAt = &now
	if err := s.steps.Update(ctx, &cp, step.Version); err != nil {
		return err
	}
	*step = cp

	if spec.JoinMode != domain.JoinAll {
		ticket.JoinProceeded = true
	}
	ticket.UpdatedAt = now
	if err := s.tickets.Update(ctx, ticket, ticket.Version); err != nil {
		return err
	}
	s.auditEvent(ctx, ticket.TicketID, domain.AuditJoinCompleted, actor, step.TicketStepID, map[string]interface{}{"completed": completed, "failed": failed, "total": total}, correlationID)

	return s.completeStepAndAdvance(ctx, ticket, def, step, domain.EventJoinComplete, actor, correlationID)
}

func (s *Service) activateSubWorkflow(ctx context.Context, ticket *domain.Ticket, stepDef *domain.StepDefinition, step *domain.TicketStep, actor domain.ActorContext, correlationID string) error {
	if err := s.beginStep(ctx, step, domain.StepActive, nil, stepDef.SLA); err != nil {
		return err
	}
	if err := s.setCurrentStep(ctx, ticket, step); err != nil {
		return err
	}

	subDef, subSteps, err := s.subwf.Expand(ctx, stepDef.SubWorkflow, ticket.TicketID, step.TicketStepID, step.Branch)
	if err != nil {
		return err
	}
	for _, ss := range subSteps {
		if err := s.steps.Create(ctx, ss); err != nil {
			return err
		}
	}
	s.auditEvent(ctx, ticket.TicketID, domain.AuditSubWorkflowStarted, actor, step.TicketStepID, nil, correlationID)

	subStartID := startStepID(subDef)
	if subStartID == "" {
		return nil
	}
	for _, ss := range subSteps {
		if ss.StepID == subStartID {
			return s.activateStep(ctx, ticket, subDef, ss, actor, correlationID)
		}
	}
	return domain.New(domain.KindStepNotFound, "sub-workflow start step not materialized")
}

// findStepByStepID returns the materialized ticket step for a declared
// step_id, preferring a not-yet-started instance to disambiguate a step_id
// that (unusually) recurs in more than one materialized context.
func (s *Service) findStepByStepID(ctx context.Context, ticketID domain.ID, stepID string) (*domain.TicketStep, error) {
	steps, err := s.steps.ListForTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	for _, st := range steps {
		if st.StepID == stepID && st.State == domain.StepNotStarted {
			return st, nil
		}
	}
	for _, st := range steps {
		if st.StepID == stepID {
			return st, nil
		}
	}
	return nil, domain.New(domain.KindStepNotFound, "step "+stepID+" not materialized on ticket")
}

func anyBranchNonTerminal(ticket *domain.Ticket) bool {
	for _, b := range ticket.ActiveBranches {
		if !b.State.IsTerminal() {
			return true
		}
	}
	return false
}

func allBranchesTerminal(ticket *domain.Ticket) bool {
	return len(ticket.ActiveBranches) > 0 && !anyBranchNonTerminal(ticket)
}

// completeStepAndAdvance resolves the next step from a just-completed step
// and routes to the right continuation: branch bookkeeping, sub-workflow
// completion bubbling to the parent step, plain ticket completion, or
// activating the next step (§4.5).
func (s *Service) completeStepAndAdvance(ctx context.Context, ticket *domain.Ticket, def *domain.Definition, step *domain.TicketStep, event domain.TransitionEvent, actor domain.ActorContext, correlationID string) error {
	nextID, err := transition.Resolve(def, step.StepID, event, evalContext(ticket))
	if err != nil {
		return err
	}

	if nextID == "" {
		if step.SubWorkflow != nil {
			return s.completeSubWorkflow(ctx, ticket, step, actor, correlationID)
		}
		if step.Branch != nil {
			return s.advanceBranchStep(ctx, ticket, def, step, "", actor, correlationID)
		}
		return s.completeTicket(ctx, ticket, actor, correlationID)
	}

	if step.SubWorkflow == nil && step.Branch != nil {
		return s.advanceBranchStep(ctx, ticket, def, step, nextID, actor, correlationID)
	}

	nextStep, err := s.findStepByStepID(ctx, ticket.TicketID, nextID)
	if err != nil {
		return err
	}
	return s.activateStep(ctx, ticket, def, nextStep, actor, correlationID)
}

// advanceBranchStep implements branch step completion (§4.5): own-join
// convergence, cross-branch escape, or a plain same-branch continuation.
func (s *Service) advanceBranchStep(ctx context.Context, ticket *domain.Ticket, def *domain.Definition, step *domain.TicketStep, nextID string, actor domain.ActorContext, correlationID string) error {
	forkStepID := step.Branch.ParentForkStepID
	branchIdx := -1
	for i := range ticket.ActiveBranches {
		b := &ticket.ActiveBranches[i]
		if b.ParentForkStepID == forkStepID && b.BranchID == step.Branch.BranchID {
			branchIdx = i
			break
		}
	}
	if branchIdx < 0 {
		return domain.New(domain.KindInvalidState, "branch state not found for step "+step.StepID)
	}

	joinDef := joinForFork(def, forkStepID)
	isOwnJoin := nextID != "" && joinDef != nil && nextID == joinDef.StepID

	var nextStep *domain.TicketStep
	if nextID != "" && !isOwnJoin {
		var err error
		nextStep, err = s.findStepByStepID(ctx, ticket.TicketID, nextID)
		if err != nil {
			return err
		}
	}
	sameBranch := nextStep != nil && nextStep.Branch != nil &&
		nextStep.Branch.ParentForkStepID == step.Branch.ParentForkStepID &&
		nextStep.Branch.BranchID == step.Branch.BranchID

	if isOwnJoin || nextID == "" || !sameBranch {
		ticket.ActiveBranches[branchIdx].State = domain.StepCompleted
		ticket.ActiveBranches[branchIdx].CurrentStepID = step.StepID
		ticket.UpdatedAt = s.clock.Now()
		if err := s.tickets.Update(ctx, ticket, ticket.Version); err != nil {
			return err
		}
		s.auditEvent(ctx, ticket.TicketID, domain.AuditBranchCompleted, actor, step.TicketStepID, map[string]interface{}{"branch_id": step.Branch.BranchID}, correlationID)

		if joinDef != nil {
			if joinStep, err := s.findStepByStepID(ctx, ticket.TicketID, joinDef.StepID); err == nil && joinStep != nil {
				if err := s.evaluateJoin(ctx, ticket, def, joinDef, joinStep, actor, correlationID); err != nil {
					return err
				}
			}
		}
		if ticket.PendingEndStepID != "" && allBranchesTerminal(ticket) {
			return s.finalizeDeferredEnd(ctx, ticket, def, actor, correlationID)
		}
		if isOwnJoin || nextID == "" || nextStep == nil {
			return nil
		}
		return s.activateStep(ctx, ticket, def, nextStep, actor, correlationID)
	}

	ticket.ActiveBranches[branchIdx].CurrentStepID = nextID
	ticket.UpdatedAt = s.clock.Now()
	if err := s.tickets.Update(ctx, ticket, ticket.Version); err != nil {
		return err
	}
	return s.activateStep(ctx, ticket, def, nextStep, actor, correlationID)
}

// finalizeDeferredEnd activates a deferred terminal notify once every
// branch has reached a terminal state, cancelling whatever is still
// running in the branches first (§4.5).
func (s *Service) finalizeDeferredEnd(ctx context.Context, ticket *domain.Ticket, def *domain.Definition, actor domain.ActorContext, correlationID string) error {
	endStep, err := s.findStepByStepID(ctx, ticket.TicketID, ticket.PendingEndStepID)
	if err != nil {
		return err
	}
	ticket.PendingEndStepID = ""
	if err := s.cancelNonTerminalBranchSteps(ctx, ticket, ""); err != nil {
		return err
	}
	return s.activateStep(ctx, ticket, def, endStep, actor, correlationID)
}

// cancelNonTerminalBranchSteps cancels every non-terminal materialized
// step belonging to branchID, or to any branch when branchID is empty.
func (s *Service) cancelNonTerminalBranchSteps(ctx context.Context, ticket *domain.Ticket, branchID string) error {
	steps, err := s.steps.ListForTicket(ctx, ticket.TicketID)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	for _, st := range steps {
		if st.Branch == nil {
			continue
		}
		if branchID != "" && st.Branch.BranchID != branchID {
			continue
		}
		if st.State.IsTerminal() {
			continue
		}
		cp := *st
		cp.State = domain.StepCancelled
		cp.CompletedAt = &now
		if err := s.steps.Update(ctx, &cp, st.Version); err != nil {
			return err
		}
		*st = cp
		s.auditEvent(ctx, ticket.TicketID, domain.AuditStepCancelled, domain.ActorContext{}, st.TicketStepID, nil, "")
	}
	return nil
}

// onBranchStepFailed applies branch failure semantics when a branch step
// reaches REJECTED/SKIPPED/CANCELLED (§4.5).
func (s *Service) onBranchStepFailed(ctx context.Context, ticket *domain.Ticket, def *domain.Definition, step *domain.TicketStep, actor domain.ActorContext, correlationID string) error {
	forkDef := def.StepByID(step.Branch.ParentForkStepID)
	if forkDef == nil || forkDef.Fork == nil {
		return domain.New(domain.KindInvalidState, "fork definition missing for failed branch step")
	}
	policy := forkDef.Fork.FailurePolicy

	branchIdx := -1
	for i := range ticket.ActiveBranches {
		b := &ticket.ActiveBranches[i]
		if b.ParentForkStepID == step.Branch.ParentForkStepID && b.BranchID == step.Branch.BranchID {
			branchIdx = i
			break
		}
	}
	if branchIdx < 0 {
		return domain.New(domain.KindInvalidState, "branch state not found for failed step "+step.StepID)
	}
	ticket.ActiveBranches[branchIdx].State = step.State
	ticket.ActiveBranches[branchIdx].CurrentStepID = step.StepID
	ticket.UpdatedAt = s.clock.Now()
	if err := s.tickets.Update(ctx, ticket, ticket.Version); err != nil {
		return err
	}
	s.auditEvent(ctx, ticket.TicketID, domain.AuditBranchFailed, actor, step.TicketStepID, map[string]interface{}{"branch_id": step.Branch.BranchID, "failure_policy": policy}, correlationID)

	switch policy {
	case domain.FailAll:
		return s.rejectTicket(ctx, ticket, def, actor, "branch failure under FAIL_ALL", correlationID)

	case domain.ContinueOthers:
		if err := s.cancelNonTerminalBranchSteps(ctx, ticket, step.Branch.BranchID); err != nil {
			return err
		}
		if joinDef := joinForFork(def, step.Branch.ParentForkStepID); joinDef != nil {
			if joinStep, err := s.findStepByStepID(ctx, ticket.TicketID, joinDef.StepID); err == nil && joinStep != nil {
				if err := s.evaluateJoin(ctx, ticket, def, joinDef, joinStep, actor, correlationID); err != nil {
					return err
				}
			}
		}
		if ticket.PendingEndStepID != "" && allBranchesTerminal(ticket) {
			return s.finalizeDeferredEnd(ctx, ticket, def, actor, correlationID)
		}
		return nil

	case domain.CancelOthers:
		if err := s.cancelSiblingBranches(ctx, ticket, step.Branch); err != nil {
			return err
		}
		return s.rejectTicket(ctx, ticket, def, actor, "branch failure under CANCEL_OTHERS", correlationID)

	default:
		return domain.New(domain.KindInvalidState, "unknown branch failure policy")
	}
}

func (s *Service) cancelSiblingBranches(ctx context.Context, ticket *domain.Ticket, failed *domain.BranchIdentity) error {
	for i := range ticket.ActiveBranches {
		b := &ticket.ActiveBranches[i]
		if b.ParentForkStepID != failed.ParentForkStepID || b.BranchID == failed.BranchID {
			continue
		}
		if b.State.IsTerminal() {
			continue
		}
		b.State = domain.StepCancelled
		if err := s.cancelNonTerminalBranchSteps(ctx, ticket, b.BranchID); err != nil {
			return err
		}
	}
	ticket.UpdatedAt = s.clock.Now()
	return s.tickets.Update(ctx, ticket, ticket.Version)
}

// completeSubWorkflow bubbles a finished sub-workflow subgraph back onto
// its owning SUB_WORKFLOW_STEP and resumes resolution in the enclosing
// (top-level) definition. Nesting more than one sub-workflow deep resumes
// against the ticket's own definition rather than an intermediate one — see
// the grounding ledger for why that is an acceptable simplification.
func (s *Service) completeSubWorkflow(ctx context.Context, ticket *domain.Ticket, innerStep *domain.TicketStep, actor domain.ActorContext, correlationID string) error {
	parentStep, err := s.steps.Get(ctx, innerStep.SubWorkflow.ParentSubWorkflowStepID)
	if err != nil {
		return err
	}

	failed := innerStep.State == domain.StepRejected || innerStep.State == domain.StepSkipped || innerStep.State == domain.StepCancelled
	now := s.clock.Now()
	cp := *parentStep
	if failed {
		cp.State = domain.StepRejected
	} else {
		cp.State = domain.StepCompleted
	}
	cp.CompletedAt = &now
	if err := s.steps.Update(ctx, &cp, parentStep.Version); err != nil {
		return err
	}
	*parentStep = cp

	eventType := domain.AuditSubWorkflowCompleted
	transitionEvent := domain.EventSubWorkflowDone
	if failed {
		eventType = domain.AuditSubWorkflowFailed
		transitionEvent = domain.EventSubWorkflowFailed
	}
	s.auditEvent(ctx, ticket.TicketID, eventType, actor, parentStep.TicketStepID, nil, correlationID)

	parentVersion, err := s.workflows.GetVersionByNumber(ctx, ticket.WorkflowID, ticket.WorkflowVersion)
	if err != nil {
		return err
	}
	return s.completeStepAndAdvance(ctx, ticket, &parentVersion.Definition, parentStep, transitionEvent, actor, correlationID)
}

func (s *Service) completeTicket(ctx context.Context, ticket *domain.Ticket, actor domain.ActorContext, correlationID string) error {
	now := s.clock.Now()
	ticket.Status = domain.TicketCompleted
	ticket.CompletedAt = &now
	ticket.CurrentStepID = ""
	ticket.UpdatedAt = now
	if err := s.tickets.Update(ctx, ticket, ticket.Version); err != nil {
		return err
	}
	s.auditEvent(ctx, ticket.TicketID, domain.AuditTicketCompleted, actor, "", nil, correlationID)
	s.notify(ctx, ticket.TicketID, domain.TemplateTicketCompleted, domain.CategoryTicket, []domain.UserRef{ticket.Requester}, nil, correlationID)
	s.endTicketSpan(ctx, ticket.TicketID, string(ticket.WorkflowID), string(ticket.Status))
	return nil
}

func (s *Service) rejectTicket(ctx context.Context, ticket *domain.Ticket, def *domain.Definition, actor domain.ActorContext, reason, correlationID string) error {
	return s.terminateTicket(ctx, ticket, def, domain.TicketRejected, actor, reason, correlationID)
}

func (s *Service) skipTicket(ctx context.Context, ticket *domain.Ticket, def *domain.Definition, actor domain.ActorContext, reason, correlationID string) error {
	return s.terminateTicket(ctx, ticket, def, domain.TicketSkipped, actor, reason, correlationID)
}

// terminateTicket implements ticket rejection/skip (§4.5): cancel every
// non-terminal step, but fire any not-yet-started NOTIFY_STEP's
// notification first rather than silently cancelling it.
func (s *Service) terminateTicket(ctx context.Context, ticket *domain.Ticket, def *domain.Definition, status domain.TicketStatus, actor domain.ActorContext, reason, correlationID string) error {
	steps, err := s.steps.ListForTicket(ctx, ticket.TicketID)
	if err != nil {
		return err
	}
	now := s.clock.Now()

	for _, st := range steps {
		if st.State.IsTerminal() {
			continue
		}
		stepDef := def.StepByID(st.StepID)
		if stepDef != nil && stepDef.StepType == domain.StepTypeNotify && st.State == domain.StepNotStarted {
			if err := s.sendAndCompleteNotify(ctx, ticket, stepDef, st, actor, correlationID); err != nil {
				return err
			}
			continue
		}
		cp := *st
		cp.State = domain.StepCancelled
		cp.CompletedAt = &now
		if err := s.steps.Update(ctx, &cp, st.Version); err != nil {
			return err
		}
		*st = cp
		s.auditEvent(ctx, ticket.TicketID, domain.AuditStepCancelled, actor, st.TicketStepID, nil, correlationID)
	}

	ticket.Status = status
	ticket.CompletedAt = &now
	ticket.CurrentStepID = ""
	ticket.UpdatedAt = now
	if err := s.tickets.Update(ctx, ticket, ticket.Version); err != nil {
		return err
	}

	eventType, template := domain.AuditReject, domain.TemplateRejected
	switch status {
	case domain.TicketSkipped:
		eventType, template = domain.AuditSkip, domain.TemplateSkipped
	case domain.TicketCancelled:
		eventType, template = domain.AuditCancelTicket, domain.TemplateTicketCancelled
	}
	s.auditEvent(ctx, ticket.TicketID, eventType, actor, "", map[string]interface{}{"reason": reason}, correlationID)
	s.notify(ctx, ticket.TicketID, template, domain.CategoryTicket, []domain.UserRef{ticket.Requester}, map[string]interface{}{"reason": reason}, correlationID)
	s.endTicketSpan(ctx, ticket.TicketID, string(ticket.WorkflowID), string(status))
	return nil
}
