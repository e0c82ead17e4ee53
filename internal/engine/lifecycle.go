package engine

import (
	"context"
	"sort"

	"github.com/novaflow/ticketflow/internal/domain"
)

// RequestInfo opens a side-thread question on a step, moving it to
// WAITING_FOR_REQUESTER (when aimed at the requester) or WAITING_FOR_AGENT
// (any other recipient), preserving the current state to restore on
// response (§4.9). At most one OPEN request may exist per step.
func (s *Service) RequestInfo(ctx context.Context, ticketID, ticketStepID domain.ID, requestedFrom domain.UserRef, subject, question string, actor domain.ActorContext, correlationID string) (*domain.InfoRequest, error) {
	ticket, step, _, err := s.loadTicketAndStep(ctx, ticketID, ticketStepID)
	if err != nil {
		return nil, err
	}
	if !step.State.IsTerminal() {
		if existing, err := s.infoRequests.FindOpenForStep(ctx, step.TicketStepID); err != nil {
			return nil, err
		} else if existing != nil {
			return nil, domain.ErrInfoRequestOpen
		}
	} else {
		return nil, domain.New(domain.KindInvalidState, "step already resolved")
	}

	waitState := domain.StepWaitingForAgent
	waitStatus := domain.TicketWaitingForAgent
	if domain.SameUser(&ticket.Requester, &requestedFrom) {
		waitState = domain.StepWaitingForRequester
		waitStatus = domain.TicketWaitingForRequester
	}

	prev := step.State
	cp := *step
	cp.PreviousState = &prev
	cp.State = waitState
	if err := s.steps.Update(ctx, &cp, step.Version); err != nil {
		return nil, err
	}
	*step = cp

	ticket.PreviousStatus = ticket.Status
	ticket.Status = waitStatus
	ticket.UpdatedAt = s.clock.Now()
	if err := s.tickets.Update(ctx, ticket, ticket.Version); err != nil {
		return nil, err
	}

	req := &domain.InfoRequest{
		InfoRequestID:     s.ids.New(domain.PrefixInfoRequest),
		TicketStepID:      step.TicketStepID,
		TicketID:          ticket.TicketID,
		RequestedBy:       actor.Ref(),
		RequestedFrom:     requestedFrom,
		RecipientStepType: step.StepType,
		Subject:           subject,
		Question:          question,
		Status:            domain.InfoRequestOpen,
		CreatedAt:         s.clock.Now(),
	}
	if err := s.infoRequests.Create(ctx, req); err != nil {
		return nil, err
	}

	s.auditEvent(ctx, ticket.TicketID, domain.AuditRequestInfo, actor, step.TicketStepID, map[string]interface{}{"requested_from": requestedFrom.Email, "subject": subject}, correlationID)
	s.notify(ctx, ticket.TicketID, domain.TemplateInfoRequested, domain.CategoryInfoRequest, []domain.UserRef{requestedFrom}, map[string]interface{}{"subject": subject, "question": question}, correlationID)
	return req, nil
}

// RespondInfo answers an open request and restores the step's previous
// state and the ticket's previous status (§4.9).
func (s *Service) RespondInfo(ctx context.Context, ticketID, ticketStepID, infoRequestID domain.ID, response string, attachments []string, actor domain.ActorContext, correlationID string) error {
	ticket, step, _, err := s.loadTicketAndStep(ctx, ticketID, ticketStepID)
	if err != nil {
		return err
	}
	req, err := s.infoRequests.FindOpenForStep(ctx, step.TicketStepID)
	if err != nil {
		return err
	}
	if req == nil || req.InfoRequestID != infoRequestID {
		return domain.New(domain.KindNotFound, "no open info request with that id on this step")
	}

	now := s.clock.Now()
	cpReq := *req
	cpReq.Status = domain.InfoRequestResponded
	cpReq.Response = response
	cpReq.ResponseAttachments = attachments
	cpReq.RespondedAt = &now
	if err := s.infoRequests.Update(ctx, &cpReq, req.Version); err != nil {
		return err
	}

	if step.PreviousState != nil {
		cp := *step
		cp.State = *cp.PreviousState
		cp.PreviousState = nil
		if err := s.steps.Update(ctx, &cp, step.Version); err != nil {
			return err
		}
		*step = cp
	}

	ticket.Status = domain.TicketInProgress
	if ticket.PreviousStatus != "" {
		ticket.Status = ticket.PreviousStatus
	}
	ticket.PreviousStatus = ""
	ticket.UpdatedAt = now
	if err := s.tickets.Update(ctx, ticket, ticket.Version); err != nil {
		return err
	}

	s.auditEvent(ctx, ticket.TicketID, domain.AuditRespondInfo, actor, step.TicketStepID, map[string]interface{}{"response_length": len(response)}, correlationID)
	s.notify(ctx, ticket.TicketID, domain.TemplateInfoResponded, domain.CategoryInfoRequest, []domain.UserRef{req.RequestedBy}, map[string]interface{}{"response": response}, correlationID)
	return nil
}

// Hold puts an ACTIVE or WAITING_FOR_APPROVAL step ON_HOLD; assignee-only
// (§4.9).
func (s *Service) Hold(ctx context.Context, ticketID, ticketStepID domain.ID, reason string, actor domain.ActorContext, correlationID string) error {
	ticket, step, _, err := s.loadTicketAndStep(ctx, ticketID, ticketStepID)
	if err != nil {
		return err
	}
	if step.State != domain.StepActive && step.State != domain.StepWaitingForApproval {
		return domain.New(domain.KindInvalidState, "step is not active or awaiting approval")
	}
	actorRef := actor.Ref()
	if step.AssignedTo == nil || !domain.SameUser(step.AssignedTo, &actorRef) {
		return domain.New(domain.KindPermissionDenied, "only the assignee may place this step on hold")
	}

	prev := step.State
	cp := *step
	cp.PreviousState = &prev
	cp.State = domain.StepOnHold
	cp.HoldReason = reason
	if err := s.steps.Update(ctx, &cp, step.Version); err != nil {
		return err
	}
	*step = cp

	ticket.PreviousStatus = ticket.Status
	ticket.Status = domain.TicketOnHold
	ticket.UpdatedAt = s.clock.Now()
	if err := s.tickets.Update(ctx, ticket, ticket.Version); err != nil {
		return err
	}

	s.auditEvent(ctx, ticket.TicketID, domain.AuditPutOnHold, actor, step.TicketStepID, map[string]interface{}{"reason": reason}, correlationID)
	return nil
}

// Resume restores an ON_HOLD step to its previous state; the assignee or
// the requester's manager may call it (§4.9).
func (s *Service) Resume(ctx context.Context, ticketID, ticketStepID domain.ID, actor domain.ActorContext, correlationID string) error {
	ticket, step, _, err := s.loadTicketAndStep(ctx, ticketID, ticketStepID)
	if err != nil {
		return err
	}
	if step.State != domain.StepOnHold {
		return domain.New(domain.KindInvalidState, "step is not on hold")
	}
	actorRef := actor.Ref()
	isAssignee := step.AssignedTo != nil && domain.SameUser(step.AssignedTo, &actorRef)
	isManager := ticket.ManagerSnapshot != nil && domain.SameUser(ticket.ManagerSnapshot, &actorRef)
	if !isAssignee && !isManager {
		return domain.New(domain.KindPermissionDenied, "only the assignee or manager may resume this step")
	}

	cp := *step
	if cp.PreviousState != nil {
		cp.State = *cp.PreviousState
	} else {
		cp.State = domain.StepActive
	}
	cp.PreviousState = nil
	cp.HoldReason = ""
	if err := s.steps.Update(ctx, &cp, step.Version); err != nil {
		return err
	}
	*step = cp

	ticket.Status = domain.TicketInProgress
	if ticket.PreviousStatus != "" {
		ticket.Status = ticket.PreviousStatus
	}
	ticket.PreviousStatus = ""
	ticket.UpdatedAt = s.clock.Now()
	if err := s.tickets.Update(ctx, ticket, ticket.Version); err != nil {
		return err
	}

	s.auditEvent(ctx, ticket.TicketID, domain.AuditResumed, actor, step.TicketStepID, nil, correlationID)
	return nil
}

// RequestHandover records the current assignee's request to hand off a
// task step; at most one PENDING request may exist per step (§4.9).
func (s *Service) RequestHandover(ctx context.Context, ticketID, ticketStepID domain.ID, reason string, actor domain.ActorContext, correlationID string) (*domain.HandoverRequest, error) {
	ticket, step, _, err := s.loadTicketAndStep(ctx, ticketID, ticketStepID)
	if err != nil {
		return nil, err
	}
	if step.StepType != domain.StepTypeTask {
		return nil, domain.New(domain.KindInvalidState, "step is not a task step")
	}
	actorRef := actor.Ref()
	if step.AssignedTo == nil || !domain.SameUser(step.AssignedTo, &actorRef) {
		return nil, domain.New(domain.KindPermissionDenied, "only the current assignee may request a handover")
	}
	if existing, err := s.handovers.FindPendingForStep(ctx, step.TicketStepID); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, domain.New(domain.KindInvalidState, "a handover request is already pending on this step")
	}

	req := &domain.HandoverRequest{
		HandoverRequestID: s.ids.New(domain.PrefixHandoverRequest),
		TicketStepID:      step.TicketStepID,
		RequestedBy:       actorRef,
		Reason:            reason,
		Status:            domain.HandoverPending,
		CreatedAt:         s.clock.Now(),
	}
	if err := s.handovers.Create(ctx, req); err != nil {
		return nil, err
	}
	s.auditEvent(ctx, ticket.TicketID, domain.AuditHandoverRequested, actor, step.TicketStepID, map[string]interface{}{"reason": reason}, correlationID)
	return req, nil
}

// decideHandoverAuthority mirrors the change-request decision-maker
// resolution: the ticket's manager, or the assignee of the earliest
// started COMPLETED approval step, may decide a handover (§4.9, §4.8).
func (s *Service) decideHandoverAuthority(ctx context.Context, ticket *domain.Ticket, principal domain.UserRef) (bool, error) {
	if ticket.ManagerSnapshot != nil && domain.SameUser(ticket.ManagerSnapshot, &principal) {
		return true, nil
	}
	steps, err := s.steps.ListForTicket(ctx, ticket.TicketID)
	if err != nil {
		return false, err
	}
	var candidates []*domain.TicketStep
	for _, st := range steps {
		if st.StepType == domain.StepTypeApproval && st.State == domain.StepCompleted && st.AssignedTo != nil {
			candidates = append(candidates, st)
		}
	}
	if len(candidates) == 0 {
		return false, nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		ti, tj := candidates[i].StartedAt, candidates[j].StartedAt
		if ti == nil || tj == nil {
			return false
		}
		return ti.Before(*tj)
	})
	return domain.SameUser(candidates[0].AssignedTo, &principal), nil
}

// DecideHandover approves or rejects a pending handover. Approval creates
// a new Assignment for newAssignee; rejection just closes the request
// (§4.9).
func (s *Service) DecideHandover(ctx context.Context, ticketID, ticketStepID, handoverRequestID domain.ID, approve bool, newAssignee *domain.UserRef, actor domain.ActorContext, correlationID string) error {
	ticket, step, _, err := s.loadTicketAndStep(ctx, ticketID, ticketStepID)
	if err != nil {
		return err
	}
	req, err := s.handovers.FindPendingForStep(ctx, step.TicketStepID)
	if err != nil {
		return err
	}
	if req == nil || req.HandoverRequestID != handoverRequestID {
		return domain.New(domain.KindNotFound, "no pending handover request with that id on this step")
	}
	actorRef := actor.Ref()
	authorized, err := s.decideHandoverAuthority(ctx, ticket, actorRef)
	if err != nil {
		return err
	}
	if !authorized {
		return domain.New(domain.KindPermissionDenied, "only the manager or first approver may decide a handover")
	}

	now := s.clock.Now()
	cpReq := *req
	cpReq.DecidedBy = &actorRef
	cpReq.DecidedAt = &now
	if !approve {
		cpReq.Status = domain.HandoverRejected
		if err := s.handovers.Update(ctx, &cpReq, req.Version); err != nil {
			return err
		}
		s.auditEvent(ctx, ticket.TicketID, domain.AuditHandoverRejected, actor, step.TicketStepID, nil, correlationID)
		return nil
	}
	if newAssignee == nil {
		return domain.New(domain.KindValidation, "approving a handover requires a new assignee")
	}
	cpReq.Status = domain.HandoverApproved
	cpReq.NewAssignee = newAssignee
	if err := s.handovers.Update(ctx, &cpReq, req.Version); err != nil {
		return err
	}

	if err := s.assignAgent(ctx, ticketID, ticketStepID, *newAssignee, "handover: "+req.Reason, actor, correlationID, true); err != nil {
		return err
	}
	s.auditEvent(ctx, ticket.TicketID, domain.AuditHandoverApproved, actor, step.TicketStepID, map[string]interface{}{"new_assignee": newAssignee.Email}, correlationID)
	return nil
}

// CancelHandover lets the requester withdraw their own still-pending
// handover request.
func (s *Service) CancelHandover(ctx context.Context, ticketID, ticketStepID, handoverRequestID domain.ID, actor domain.ActorContext, correlationID string) error {
	ticket, step, _, err := s.loadTicketAndStep(ctx, ticketID, ticketStepID)
	if err != nil {
		return err
	}
	req, err := s.handovers.FindPendingForStep(ctx, step.TicketStepID)
	if err != nil {
		return err
	}
	if req == nil || req.HandoverRequestID != handoverRequestID {
		return domain.New(domain.KindNotFound, "no pending handover request with that id on this step")
	}
	actorRef := actor.Ref()
	if !domain.SameUser(&req.RequestedBy, &actorRef) {
		return domain.New(domain.KindPermissionDenied, "only the requester may cancel their own handover request")
	}

	now := s.clock.Now()
	cp := *req
	cp.Status = domain.HandoverCancelled
	cp.DecidedAt = &now
	if err := s.handovers.Update(ctx, &cp, req.Version); err != nil {
		return err
	}
	s.auditEvent(ctx, ticket.TicketID, domain.AuditHandoverCancelled, actor, step.TicketStepID, nil, correlationID)
	return nil
}

// AcknowledgeSLA lets the assignee mark a breached due date acknowledged
// (§4.9). It does not change step state — it only records an
// SLA-acknowledged audit event.
func (s *Service) AcknowledgeSLA(ctx context.Context, ticketID, ticketStepID domain.ID, actor domain.ActorContext, correlationID string) error {
	ticket, step, _, err := s.loadTicketAndStep(ctx, ticketID, ticketStepID)
	if err != nil {
		return err
	}
	actorRef := actor.Ref()
	if step.AssignedTo == nil || !domain.SameUser(step.AssignedTo, &actorRef) {
		return domain.New(domain.KindPermissionDenied, "only the assignee may acknowledge this step's SLA")
	}
	if step.DueAt == nil || step.DueAt.After(s.clock.Now()) {
		return domain.New(domain.KindInvalidState, "step is not past its due date")
	}
	s.auditEvent(ctx, ticket.TicketID, domain.AuditSLAAcknowledged, actor, step.TicketStepID, nil, correlationID)
	return nil
}
