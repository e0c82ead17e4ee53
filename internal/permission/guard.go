// Package permission enforces who may perform which action on a ticket
// step: requesters act only on their own tickets, approvers only on
// approval tasks assigned to them, agents only on tasks assigned to them,
// managers can assign/reassign, and targeted recipients can answer info
// requests (§4.9).
package permission

import (
	"context"
	"strings"

	"github.com/novaflow/ticketflow/internal/domain"
)

// Action names are plain strings rather than a closed enum: the guard is
// consulted from several call sites with ad-hoc action names, mirroring
// the action-name dispatch the engine itself uses (§6).
const (
	ActionSubmitForm   = "submit_form"
	ActionApprove      = "approve"
	ActionReject       = "reject"
	ActionRequestInfo  = "request_info"
	ActionRespondInfo  = "respond_info"
	ActionAddNote      = "add_note"
	ActionCompleteTask = "complete_task"
	ActionAssign       = "assign"
	ActionReassign     = "reassign"
)

// InfoRequestLookup resolves the open info request targeted at a step, so
// the guard can check whether the acting user is its addressee. It is
// satisfied by store.InfoRequestRepository's FindOpenForStep.
type InfoRequestLookup interface {
	FindOpenForStep(ctx context.Context, ticketStepID domain.ID) (*domain.InfoRequest, error)
}

// ApprovalTaskLookup resolves the approval tasks recorded for a step, used
// as a fallback when matching a parallel approver by directory id.
type ApprovalTaskLookup interface {
	ListForStep(ctx context.Context, ticketStepID domain.ID) ([]*domain.ApprovalTask, error)
}

// Guard evaluates can-act decisions. Both lookups are optional: a nil
// lookup simply disables the fallback path it backs (respond_info
// targeting, AAD-id parallel-approver matching).
type Guard struct {
	InfoRequests  InfoRequestLookup
	ApprovalTasks ApprovalTaskLookup
}

func New(infoRequests InfoRequestLookup, approvalTasks ApprovalTaskLookup) *Guard {
	return &Guard{InfoRequests: infoRequests, ApprovalTasks: approvalTasks}
}

// CanViewTicket reports whether actor may view ticket. It returns true for
// every actor: no participant or per-step check is made.
func (g *Guard) CanViewTicket(ctx context.Context, actor domain.ActorContext, ticket *domain.Ticket) bool {
	return true
}

// CanActOnStep is the single entry point for every action check (§4.9).
func (g *Guard) CanActOnStep(ctx context.Context, actor domain.ActorContext, ticket *domain.Ticket, step *domain.TicketStep, action string, allSteps []*domain.TicketStep) bool {
	if ticket.Status.IsTerminal() {
		return false
	}

	if ticket.Status == domain.TicketWaitingForCR || step.State == domain.StepWaitingForCR {
		if action != ActionAddNote {
			return false
		}
		return g.canAddNoteDuringCRWait(ctx, actor, ticket, step)
	}

	if step.State.IsTerminal() {
		return false
	}

	switch step.StepType {
	case domain.StepTypeForm:
		return g.canActFormStep(actor, ticket, step, action)
	case domain.StepTypeApproval:
		return g.canActApprovalStep(ctx, actor, ticket, step, action)
	case domain.StepTypeTask:
		return g.canActTaskStep(ctx, actor, ticket, step, action, allSteps)
	default:
		return false
	}
}

func (g *Guard) canAddNoteDuringCRWait(ctx context.Context, actor domain.ActorContext, ticket *domain.Ticket, step *domain.TicketStep) bool {
	actorRef := actor.Ref()
	if domain.SameUser(&actorRef, &ticket.Requester) {
		return true
	}
	if ticket.ManagerSnapshot != nil && domain.SameUser(&actorRef, ticket.ManagerSnapshot) {
		return true
	}
	if step.AssignedTo != nil && domain.SameUser(&actorRef, step.AssignedTo) {
		return true
	}
	if step.StepType == domain.StepTypeApproval && isParallelPendingApprover(actor, step) {
		return true
	}
	return false
}

func (g *Guard) canActFormStep(actor domain.ActorContext, ticket *domain.Ticket, step *domain.TicketStep, action string) bool {
	if action != ActionSubmitForm {
		return false
	}
	actorRef := actor.Ref()
	return domain.SameUser(&actorRef, &ticket.Requester) && step.State == domain.StepActive
}

func isParallelPendingApprover(actor domain.ActorContext, step *domain.TicketStep) bool {
	actorEmail := strings.ToLower(actor.Email)
	for _, email := range step.Data.ParallelPendingApprovers {
		if strings.ToLower(email) == actorEmail {
			return true
		}
	}
	return false
}

func (g *Guard) isParallelApprover(ctx context.Context, actor domain.ActorContext, step *domain.TicketStep) bool {
	pending := step.Data.ParallelPendingApprovers
	if len(pending) == 0 {
		return false
	}
	if isParallelPendingApprover(actor, step) {
		return true
	}

	if actor.DirectoryID != "" {
		for _, info := range step.Data.ParallelApproversInfo {
			if info.DirectoryID != "" && info.DirectoryID == actor.DirectoryID {
				return true
			}
		}
	}

	// Fallback for steps materialized before parallel_approvers_info was
	// stored: resolve by directory id through the recorded approval tasks.
	if actor.DirectoryID != "" && g.ApprovalTasks != nil {
		tasks, err := g.ApprovalTasks.ListForStep(ctx, step.TicketStepID)
		if err == nil {
			pendingLower := make(map[string]bool, len(pending))
			for _, e := range pending {
				pendingLower[strings.ToLower(e)] = true
			}
			for _, task := range tasks {
				if task.Approver.DirectoryID == actor.DirectoryID && pendingLower[strings.ToLower(task.Approver.Email)] {
					return true
				}
			}
		}
	}

	return false
}

func (g *Guard) canActApprovalStep(ctx context.Context, actor domain.ActorContext, ticket *domain.Ticket, step *domain.TicketStep, action string) bool {
	actorRef := actor.Ref()
	isAssignedApprover := step.AssignedTo != nil && domain.SameUser(&actorRef, step.AssignedTo)
	isParallelApprover := false
	if action == ActionApprove || action == ActionReject || action == ActionRequestInfo || action == ActionAddNote {
		isParallelApprover = g.isParallelApprover(ctx, actor, step)
	}

	if isAssignedApprover || isParallelApprover {
		switch action {
		case ActionApprove, ActionReject:
			switch step.State {
			case domain.StepWaitingForApproval, domain.StepWaitingForRequester, domain.StepWaitingForAgent:
				return true
			}
			return false
		case ActionRequestInfo:
			return step.State == domain.StepWaitingForApproval
		case ActionAddNote:
			switch step.State {
			case domain.StepWaitingForApproval, domain.StepWaitingForRequester, domain.StepWaitingForAgent, domain.StepWaitingForCR:
				return true
			}
			return false
		}
	}

	if action == ActionAddNote {
		switch step.State {
		case domain.StepWaitingForApproval, domain.StepWaitingForRequester, domain.StepWaitingForAgent, domain.StepWaitingForCR:
			if ticket.ManagerSnapshot != nil && domain.SameUser(&actorRef, ticket.ManagerSnapshot) {
				return true
			}
		}
	}

	if action == ActionRespondInfo {
		return g.canRespondInfo(ctx, actor, ticket, step)
	}

	return false
}

func (g *Guard) canRespondInfo(ctx context.Context, actor domain.ActorContext, ticket *domain.Ticket, step *domain.TicketStep) bool {
	if step.State != domain.StepWaitingForRequester && step.State != domain.StepWaitingForAgent {
		return false
	}
	if g.isInfoRequestTarget(ctx, actor, step.TicketStepID) {
		return true
	}
	actorRef := actor.Ref()
	if step.State == domain.StepWaitingForRequester && domain.SameUser(&actorRef, &ticket.Requester) {
		return true
	}
	return false
}

func (g *Guard) isInfoRequestTarget(ctx context.Context, actor domain.ActorContext, ticketStepID domain.ID) bool {
	if g.InfoRequests == nil {
		return false
	}
	req, err := g.InfoRequests.FindOpenForStep(ctx, ticketStepID)
	if err != nil || req == nil {
		return false
	}
	actorRef := actor.Ref()
	return domain.SameUser(&actorRef, &req.RequestedFrom)
}

func (g *Guard) canActTaskStep(ctx context.Context, actor domain.ActorContext, ticket *domain.Ticket, step *domain.TicketStep, action string, allSteps []*domain.TicketStep) bool {
	actorRef := actor.Ref()

	if action == ActionAssign || action == ActionReassign {
		switch step.State {
		case domain.StepActive, domain.StepWaitingForApproval:
		default:
			return false
		}
		if ticket.ManagerSnapshot != nil && domain.SameUser(&actorRef, ticket.ManagerSnapshot) {
			return true
		}
		return g.isPrimaryApproverOfPrecedingStep(ctx, actor, allSteps)
	}

	if step.AssignedTo != nil && domain.SameUser(&actorRef, step.AssignedTo) {
		switch action {
		case ActionCompleteTask:
			return step.State == domain.StepActive
		case ActionAddNote:
			switch step.State {
			case domain.StepActive, domain.StepOnHold, domain.StepWaitingForRequester, domain.StepWaitingForAgent, domain.StepWaitingForCR:
				return true
			}
			return false
		case ActionRequestInfo:
			return step.State == domain.StepActive
		}
	}

	if action == ActionAddNote {
		switch step.State {
		case domain.StepActive, domain.StepOnHold, domain.StepWaitingForRequester, domain.StepWaitingForAgent, domain.StepWaitingForCR:
		default:
			return false
		}
		if ticket.ManagerSnapshot != nil && domain.SameUser(&actorRef, ticket.ManagerSnapshot) {
			return true
		}
		for _, prev := range allSteps {
			if prev.StepType == domain.StepTypeApproval && prev.State == domain.StepCompleted {
				if prev.AssignedTo != nil && domain.SameUser(&actorRef, prev.AssignedTo) {
					return true
				}
			}
		}
	}

	if action == ActionRespondInfo {
		return g.canRespondInfo(ctx, actor, ticket, step)
	}

	return false
}

// isPrimaryApproverOfPrecedingStep implements the rule that for a
// parallel-approval predecessor, only the recorded primary approver (not
// every participant) may assign the task it feeds; a single-approver
// predecessor lets its lone assignee assign.
func (g *Guard) isPrimaryApproverOfPrecedingStep(ctx context.Context, actor domain.ActorContext, allSteps []*domain.TicketStep) bool {
	actorRef := actor.Ref()
	actorEmail := strings.ToLower(actor.Email)
	for _, prev := range allSteps {
		if prev.StepType != domain.StepTypeApproval || prev.State != domain.StepCompleted {
			continue
		}
		if prev.Data.PrimaryApproverEmail != "" {
			if strings.ToLower(prev.Data.PrimaryApproverEmail) == actorEmail {
				return true
			}
			if actor.DirectoryID != "" {
				for _, info := range prev.Data.ParallelApproversInfo {
					if strings.ToLower(info.Email) == strings.ToLower(prev.Data.PrimaryApproverEmail) && info.DirectoryID == actor.DirectoryID {
						return true
					}
				}
			}
			continue
		}
		if prev.AssignedTo != nil && domain.SameUser(&actorRef, prev.AssignedTo) {
			return true
		}
	}
	return false
}

// CanCancelTicket reports whether actor (the requester) may cancel ticket.
func (g *Guard) CanCancelTicket(ctx context.Context, actor domain.ActorContext, ticket *domain.Ticket) bool {
	actorRef := actor.Ref()
	if !domain.SameUser(&actorRef, &ticket.Requester) {
		return false
	}
	switch ticket.Status {
	case domain.TicketCompleted, domain.TicketRejected, domain.TicketCancelled:
		return false
	}
	return true
}

// GetAvailableActions lists every action actor may currently perform on step.
func (g *Guard) GetAvailableActions(ctx context.Context, actor domain.ActorContext, ticket *domain.Ticket, step *domain.TicketStep, allSteps []*domain.TicketStep) []string {
	var actions []string

	switch step.StepType {
	case domain.StepTypeForm:
		if g.CanActOnStep(ctx, actor, ticket, step, ActionSubmitForm, allSteps) {
			actions = append(actions, ActionSubmitForm)
		}
	case domain.StepTypeApproval:
		if g.CanActOnStep(ctx, actor, ticket, step, ActionApprove, allSteps) {
			actions = append(actions, ActionApprove, ActionReject)
		}
		if g.CanActOnStep(ctx, actor, ticket, step, ActionRequestInfo, allSteps) {
			actions = append(actions, ActionRequestInfo)
		}
		if g.CanActOnStep(ctx, actor, ticket, step, ActionRespondInfo, allSteps) {
			actions = append(actions, ActionRespondInfo)
		}
	case domain.StepTypeTask:
		if g.CanActOnStep(ctx, actor, ticket, step, ActionCompleteTask, allSteps) {
			actions = append(actions, ActionCompleteTask)
		}
		if g.CanActOnStep(ctx, actor, ticket, step, ActionRequestInfo, allSteps) {
			actions = append(actions, ActionRequestInfo)
		}
		if g.CanActOnStep(ctx, actor, ticket, step, ActionRespondInfo, allSteps) {
			actions = append(actions, ActionRespondInfo)
		}
		if g.CanActOnStep(ctx, actor, ticket, step, ActionAssign, allSteps) {
			actions = append(actions, ActionAssign)
		}
		if g.CanActOnStep(ctx, actor, ticket, step, ActionReassign, allSteps) {
			actions = append(actions, ActionReassign)
		}
	}

	return actions
}
