package permission

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/novaflow/ticketflow/internal/domain"
)

func baseTicket(requester domain.UserRef) *domain.Ticket {
	return &domain.Ticket{
		TicketID:  "ticket-1",
		Status:    domain.TicketInProgress,
		Requester: requester,
	}
}

func TestCanActOnStep_TerminalTicketBlocksEverything(t *testing.T) {
	g := New(nil, nil)
	requester := domain.UserRef{Email: "req@example.com"}
	ticket := baseTicket(requester)
	ticket.Status = domain.TicketCompleted

	step := &domain.TicketStep{StepType: domain.StepTypeForm, State: domain.StepActive}
	actor := domain.ActorContext{Email: "req@example.com"}

	assert.False(t, g.CanActOnStep(context.Background(), actor, ticket, step, ActionSubmitForm, nil))
}

func TestCanActOnStep_FormStep_OnlyRequesterCanSubmit(t *testing.T) {
	g := New(nil, nil)
	requester := domain.UserRef{Email: "req@example.com"}
	ticket := baseTicket(requester)
	step := &domain.TicketStep{StepType: domain.StepTypeForm, State: domain.StepActive}

	requesterActor := domain.ActorContext{Email: "req@example.com"}
	otherActor := domain.ActorContext{Email: "someone-else@example.com"}

	assert.True(t, g.CanActOnStep(context.Background(), requesterActor, ticket, step, ActionSubmitForm, nil))
	assert.False(t, g.CanActOnStep(context.Background(), otherActor, ticket, step, ActionSubmitForm, nil))
}

func TestCanActOnStep_WaitingForCR_OnlyAddNoteByParticipant(t *testing.T) {
	g := New(nil, nil)
	requester := domain.UserRef{Email: "req@example.com"}
	ticket := baseTicket(requester)
	ticket.Status = domain.TicketWaitingForCR
	step := &domain.TicketStep{StepType: domain.StepTypeForm, State: domain.StepWaitingForCR}

	requesterActor := domain.ActorContext{Email: "req@example.com"}
	strangerActor := domain.ActorContext{Email: "stranger@example.com"}

	assert.True(t, g.CanActOnStep(context.Background(), requesterActor, ticket, step, ActionAddNote, nil))
	assert.False(t, g.CanActOnStep(context.Background(), strangerActor, ticket, step, ActionAddNote, nil))
	assert.False(t, g.CanActOnStep(context.Background(), requesterActor, ticket, step, ActionSubmitForm, nil))
}

func TestCanActOnStep_ApprovalStep_AssignedApproverCanDecide(t *testing.T) {
	g := New(nil, nil)
	requester := domain.UserRef{Email: "req@example.com"}
	ticket := baseTicket(requester)
	approver := domain.UserRef{Email: "approver@example.com"}
	step := &domain.TicketStep{StepType: domain.StepTypeApproval, State: domain.StepWaitingForApproval, AssignedTo: &approver}

	approverActor := domain.ActorContext{Email: "APPROVER@example.com"}
	assert.True(t, g.CanActOnStep(context.Background(), approverActor, ticket, step, ActionApprove, nil))

	notApprover := domain.ActorContext{Email: "nope@example.com"}
	assert.False(t, g.CanActOnStep(context.Background(), notApprover, ticket, step, ActionApprove, nil))
}

func TestCanActOnStep_ApprovalStep_ParallelPendingApproverCanDecide(t *testing.T) {
	g := New(nil, nil)
	requester := domain.UserRef{Email: "req@example.com"}
	ticket := baseTicket(requester)
	step := &domain.TicketStep{
		StepType: domain.StepTypeApproval,
		State:    domain.StepWaitingForApproval,
		Data: domain.StepData{
			ParallelPendingApprovers: []string{"approver-a@example.com", "approver-b@example.com"},
		},
	}

	actor := domain.ActorContext{Email: "Approver-B@example.com"}
	assert.True(t, g.CanActOnStep(context.Background(), actor, ticket, step, ActionApprove, nil))
}

func TestCanActOnStep_TaskStep_AssignedAgentCanComplete(t *testing.T) {
	g := New(nil, nil)
	requester := domain.UserRef{Email: "req@example.com"}
	ticket := baseTicket(requester)
	agent := domain.UserRef{Email: "agent@example.com"}
	step := &domain.TicketStep{StepType: domain.StepTypeTask, State: domain.StepActive, AssignedTo: &agent}

	agentActor := domain.ActorContext{Email: "agent@example.com"}
	assert.True(t, g.CanActOnStep(context.Background(), agentActor, ticket, step, ActionCompleteTask, nil))

	otherActor := domain.ActorContext{Email: "other@example.com"}
	assert.False(t, g.CanActOnStep(context.Background(), otherActor, ticket, step, ActionCompleteTask, nil))
}

func TestCanActOnStep_TaskStep_ManagerCanAssign(t *testing.T) {
	g := New(nil, nil)
	requester := domain.UserRef{Email: "req@example.com"}
	manager := domain.UserRef{Email: "mgr@example.com"}
	ticket := baseTicket(requester)
	ticket.ManagerSnapshot = &manager
	step := &domain.TicketStep{StepType: domain.StepTypeTask, State: domain.StepActive}

	managerActor := domain.ActorContext{Email: "mgr@example.com"}
	assert.True(t, g.CanActOnStep(context.Background(), managerActor, ticket, step, ActionAssign, nil))
}

func TestCanCancelTicket(t *testing.T) {
	g := New(nil, nil)
	requester := domain.UserRef{Email: "req@example.com"}
	ticket := baseTicket(requester)

	requesterActor := domain.ActorContext{Email: "req@example.com"}
	otherActor := domain.ActorContext{Email: "other@example.com"}

	assert.True(t, g.CanCancelTicket(context.Background(), requesterActor, ticket))
	assert.False(t, g.CanCancelTicket(context.Background(), otherActor, ticket))

	ticket.Status = domain.TicketCompleted
	assert.False(t, g.CanCancelTicket(context.Background(), requesterActor, ticket))
}

func TestGetAvailableActions_TaskStep(t *testing.T) {
	g := New(nil, nil)
	requester := domain.UserRef{Email: "req@example.com"}
	ticket := baseTicket(requester)
	agent := domain.UserRef{Email: "agent@example.com"}
	step := &domain.TicketStep{StepType: domain.StepTypeTask, State: domain.StepActive, AssignedTo: &agent}

	agentActor := domain.ActorContext{Email: "agent@example.com"}
	actions := g.GetAvailableActions(context.Background(), agentActor, ticket, step, nil)
	assert.Contains(t, actions, ActionCompleteTask)
}
