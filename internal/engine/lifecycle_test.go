package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novaflow/ticketflow/internal/domain"
)

func newLifecycleHarness(t *testing.T) (*Service, *fakeTickets, *fakeSteps, *fakeInfoRequests, *fakeHandovers) {
	t.Helper()
	tickets := newFakeTickets()
	steps := newFakeSteps()
	approvals := newFakeApprovals()
	assignments := newFakeAssignments()
	infoRequests := newFakeInfoRequests()
	handovers := newFakeHandovers()
	workflows := newFakeWorkflows(domain.Definition{})
	clock := domain.NewFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	svc := newTestService(tickets, steps, approvals, assignments, infoRequests, handovers, workflows, clock)
	return svc, tickets, steps, infoRequests, handovers
}

func seedActiveTaskTicket(tickets *fakeTickets, steps *fakeSteps, assignee domain.UserRef) (*domain.Ticket, *domain.TicketStep) {
	ticket := &domain.Ticket{TicketID: "t-1", WorkflowID: "wft-1", WorkflowVersion: 1, Status: domain.TicketInProgress, Requester: domain.UserRef{Email: "requester@example.com"}}
	tickets.seed(ticket)
	step := &domain.TicketStep{TicketStepID: "ts-1", TicketID: "t-1", StepID: "review", StepType: domain.StepTypeTask, State: domain.StepActive, AssignedTo: &assignee}
	steps.seed(step)
	return ticket, step
}

var (
	assignee = domain.UserRef{DirectoryID: "u-agent", Email: "agent@example.com"}
	manager  = domain.UserRef{DirectoryID: "u-manager", Email: "manager@example.com"}
	stranger = domain.ActorContext{DirectoryID: "u-stranger", Email: "stranger@example.com"}
)

func TestHold_ThenResume_RoundTrips(t *testing.T) {
	svc, tickets, steps, _, _ := newLifecycleHarness(t)
	ticket, step := seedActiveTaskTicket(tickets, steps, assignee)
	actor := domain.ActorContext{DirectoryID: assignee.DirectoryID, Email: assignee.Email}

	require.NoError(t, svc.Hold(context.Background(), ticket.TicketID, step.TicketStepID, "waiting on vendor", actor, "corr-1"))

	held, err := steps.Get(context.Background(), step.TicketStepID)
	require.NoError(t, err)
	assert.Equal(t, domain.StepOnHold, held.State)
	assert.Equal(t, "waiting on vendor", held.HoldReason)

	heldTicket, err := tickets.Get(context.Background(), ticket.TicketID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketOnHold, heldTicket.Status)

	require.NoError(t, svc.Resume(context.Background(), ticket.TicketID, step.TicketStepID, actor, "corr-2"))

	resumed, err := steps.Get(context.Background(), step.TicketStepID)
	require.NoError(t, err)
	assert.Equal(t, domain.StepActive, resumed.State)
	assert.Empty(t, resumed.HoldReason)

	resumedTicket, err := tickets.Get(context.Background(), ticket.TicketID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketInProgress, resumedTicket.Status)
}

func TestHold_RejectsNonAssignee(t *testing.T) {
	svc, tickets, steps, _, _ := newLifecycleHarness(t)
	ticket, step := seedActiveTaskTicket(tickets, steps, assignee)

	err := svc.Hold(context.Background(), ticket.TicketID, step.TicketStepID, "nope", stranger, "corr-1")
	require.Error(t, err)
	assert.Equal(t, domain.KindPermissionDenied, err.(*domain.Error).Kind)
}

func TestResume_AllowsManagerOfTicket(t *testing.T) {
	svc, tickets, steps, _, _ := newLifecycleHarness(t)
	ticket, step := seedActiveTaskTicket(tickets, steps, assignee)
	ticket.ManagerSnapshot = &manager
	require.NoError(t, tickets.Update(context.Background(), ticket, ticket.Version))

	holdActor := domain.ActorContext{DirectoryID: assignee.DirectoryID, Email: assignee.Email}
	require.NoError(t, svc.Hold(context.Background(), ticket.TicketID, step.TicketStepID, "blocked", holdActor, "corr-1"))

	managerActor := domain.ActorContext{DirectoryID: manager.DirectoryID, Email: manager.Email}
	require.NoError(t, svc.Resume(context.Background(), ticket.TicketID, step.TicketStepID, managerActor, "corr-2"))

	resumed, err := steps.Get(context.Background(), step.TicketStepID)
	require.NoError(t, err)
	assert.Equal(t, domain.StepActive, resumed.State)
}

func TestRequestInfo_ThenRespond_RestoresPriorState(t *testing.T) {
	svc, tickets, steps, infoRequests, _ := newLifecycleHarness(t)
	ticket, step := seedActiveTaskTicket(tickets, steps, assignee)
	requester := ticket.Requester
	actor := domain.ActorContext{DirectoryID: assignee.DirectoryID, Email: assignee.Email}

	req, err := svc.RequestInfo(context.Background(), ticket.TicketID, step.TicketStepID, requester, "need receipts", "can you attach the receipts?", actor, "corr-1")
	require.NoError(t, err)
	assert.Equal(t, domain.InfoRequestOpen, req.Status)

	waiting, err := steps.Get(context.Background(), step.TicketStepID)
	require.NoError(t, err)
	assert.Equal(t, domain.StepWaitingForRequester, waiting.State)

	waitingTicket, err := tickets.Get(context.Background(), ticket.TicketID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketWaitingForRequester, waitingTicket.Status)

	_, err = svc.RequestInfo(context.Background(), ticket.TicketID, step.TicketStepID, requester, "again", "more?", actor, "corr-2")
	require.Error(t, err)

	requesterActor := domain.ActorContext{DirectoryID: requester.DirectoryID, Email: requester.Email}
	require.NoError(t, svc.RespondInfo(context.Background(), ticket.TicketID, step.TicketStepID, req.InfoRequestID, "attached", nil, requesterActor, "corr-3"))

	restored, err := steps.Get(context.Background(), step.TicketStepID)
	require.NoError(t, err)
	assert.Equal(t, domain.StepActive, restored.State)
	assert.Nil(t, restored.PreviousState)

	restoredTicket, err := tickets.Get(context.Background(), ticket.TicketID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketInProgress, restoredTicket.Status)
	assert.Empty(t, restoredTicket.PreviousStatus)

	respondedReq, err := infoRequests.FindOpenForStep(context.Background(), step.TicketStepID)
	require.NoError(t, err)
	assert.Nil(t, respondedReq)
}

func TestRequestHandover_DecideApprove_ReassignsStep(t *testing.T) {
	svc, tickets, steps, _, handovers := newLifecycleHarness(t)
	ticket, step := seedActiveTaskTicket(tickets, steps, assignee)
	ticket.ManagerSnapshot = &manager
	require.NoError(t, tickets.Update(context.Background(), ticket, ticket.Version))

	agentActor := domain.ActorContext{DirectoryID: assignee.DirectoryID, Email: assignee.Email}
	req, err := svc.RequestHandover(context.Background(), ticket.TicketID, step.TicketStepID, "going on leave", agentActor, "corr-1")
	require.NoError(t, err)
	assert.Equal(t, domain.HandoverPending, req.Status)

	_, err = svc.RequestHandover(context.Background(), ticket.TicketID, step.TicketStepID, "again", agentActor, "corr-2")
	require.Error(t, err)

	newAssignee := domain.UserRef{DirectoryID: "u-other", Email: "other@example.com"}
	managerActor := domain.ActorContext{DirectoryID: manager.DirectoryID, Email: manager.Email}
	require.NoError(t, svc.DecideHandover(context.Background(), ticket.TicketID, step.TicketStepID, req.HandoverRequestID, true, &newAssignee, managerActor, "corr-3"))

	pending, err := handovers.FindPendingForStep(context.Background(), step.TicketStepID)
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestDecideHandover_RejectsUnauthorizedDecider(t *testing.T) {
	svc, tickets, steps, _, _ := newLifecycleHarness(t)
	ticket, step := seedActiveTaskTicket(tickets, steps, assignee)
	agentActor := domain.ActorContext{DirectoryID: assignee.DirectoryID, Email: assignee.Email}

	req, err := svc.RequestHandover(context.Background(), ticket.TicketID, step.TicketStepID, "leave", agentActor, "corr-1")
	require.NoError(t, err)

	newAssignee := domain.UserRef{DirectoryID: "u-other", Email: "other@example.com"}
	err = svc.DecideHandover(context.Background(), ticket.TicketID, step.TicketStepID, req.HandoverRequestID, true, &newAssignee, stranger, "corr-2")
	require.Error(t, err)
	assert.Equal(t, domain.KindPermissionDenied, err.(*domain.Error).Kind)
}

func TestCancelHandover_OnlyRequesterCanWithdraw(t *testing.T) {
	svc, tickets, steps, _, handovers := newLifecycleHarness(t)
	ticket, step := seedActiveTaskTicket(tickets, steps, assignee)
	agentActor := domain.ActorContext{DirectoryID: assignee.DirectoryID, Email: assignee.Email}

	req, err := svc.RequestHandover(context.Background(), ticket.TicketID, step.TicketStepID, "leave", agentActor, "corr-1")
	require.NoError(t, err)

	err = svc.CancelHandover(context.Background(), ticket.TicketID, step.TicketStepID, req.HandoverRequestID, stranger, "corr-2")
	require.Error(t, err)

	require.NoError(t, svc.CancelHandover(context.Background(), ticket.TicketID, step.TicketStepID, req.HandoverRequestID, agentActor, "corr-3"))
	pending, err := handovers.FindPendingForStep(context.Background(), step.TicketStepID)
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestAcknowledgeSLA_RequiresPastDueAssignee(t *testing.T) {
	svc, tickets, steps, _, _ := newLifecycleHarness(t)
	ticket, step := seedActiveTaskTicket(tickets, steps, assignee)
	agentActor := domain.ActorContext{DirectoryID: assignee.DirectoryID, Email: assignee.Email}

	err := svc.AcknowledgeSLA(context.Background(), ticket.TicketID, step.TicketStepID, agentActor, "corr-1")
	require.Error(t, err)
	assert.Equal(t, domain.KindInvalidState, err.(*domain.Error).Kind)

	past := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	current, err := steps.Get(context.Background(), step.TicketStepID)
	require.NoError(t, err)
	current.DueAt = &past
	require.NoError(t, steps.Update(context.Background(), current, current.Version))

	require.NoError(t, svc.AcknowledgeSLA(context.Background(), ticket.TicketID, step.TicketStepID, agentActor, "corr-2"))

	err = svc.AcknowledgeSLA(context.Background(), ticket.TicketID, step.TicketStepID, stranger, "corr-3")
	require.Error(t, err)
	assert.Equal(t, domain.KindPermissionDenied, err.(*domain.Error).Kind)
}
