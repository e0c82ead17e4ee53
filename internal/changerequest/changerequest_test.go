package changerequest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novaflow/ticketflow/internal/audit"
	"github.com/novaflow/ticketflow/internal/domain"
)

type fakeTickets struct {
	rows map[domain.ID]*domain.Ticket
}

func newFakeTickets() *fakeTickets { return &fakeTickets{rows: map[domain.ID]*domain.Ticket{}} }

func (f *fakeTickets) Get(ctx context.Context, id domain.ID) (*domain.Ticket, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *row
	return &cp, nil
}

func (f *fakeTickets) Update(ctx context.Context, t *domain.Ticket, expectedVersion int) error {
	row, ok := f.rows[t.TicketID]
	if !ok || row.Version != expectedVersion {
		return errors.New("concurrency conflict")
	}
	cp := *t
	cp.Version = expectedVersion + 1
	f.rows[t.TicketID] = &cp
	*t = cp
	return nil
}

type fakeSteps struct {
	rows     map[domain.ID]*domain.TicketStep
	byTicket map[domain.ID][]domain.ID
}

func newFakeSteps() *fakeSteps {
	return &fakeSteps{rows: map[domain.ID]*domain.TicketStep{}, byTicket: map[domain.ID][]domain.ID{}}
}

func (f *fakeSteps) seed(s *domain.TicketStep) {
	s.Version = 1
	cp := *s
	f.rows[s.TicketStepID] = &cp
	f.byTicket[s.TicketID] = append(f.byTicket[s.TicketID], s.TicketStepID)
}

func (f *fakeSteps) Update(ctx context.Context, s *domain.TicketStep, expectedVersion int) error {
	row, ok := f.rows[s.TicketStepID]
	if !ok || row.Version != expectedVersion {
		return errors.New("concurrency conflict")
	}
	cp := *s
	cp.Version = expectedVersion + 1
	f.rows[s.TicketStepID] = &cp
	*s = cp
	return nil
}

func (f *fakeSteps) ListForTicket(ctx context.Context, ticketID domain.ID) ([]*domain.TicketStep, error) {
	var out []*domain.TicketStep
	for _, id := range f.byTicket[ticketID] {
		row := f.rows[id]
		cp := *row
		out = append(out, &cp)
	}
	return out, nil
}

type fakeCRs struct {
	rows map[domain.ID]*domain.ChangeRequest
}

func newFakeCRs() *fakeCRs { return &fakeCRs{rows: map[domain.ID]*domain.ChangeRequest{}} }

func (f *fakeCRs) Create(ctx context.Context, cr *domain.ChangeRequest) error {
	cr.Version = 1
	cp := *cr
	f.rows[cr.ChangeRequestID] = &cp
	return nil
}

func (f *fakeCRs) Get(ctx context.Context, id domain.ID) (*domain.ChangeRequest, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, errors.New("not found")
	}
	cp := *row
	return &cp, nil
}

func (f *fakeCRs) Update(ctx context.Context, cr *domain.ChangeRequest, expectedVersion int) error {
	row, ok := f.rows[cr.ChangeRequestID]
	if !ok || row.Version != expectedVersion {
		return errors.New("concurrency conflict")
	}
	cp := *cr
	cp.Version = expectedVersion + 1
	f.rows[cr.ChangeRequestID] = &cp
	*cr = cp
	return nil
}

func (f *fakeCRs) FindPendingForTicket(ctx context.Context, ticketID domain.ID) (*domain.ChangeRequest, error) {
	for _, row := range f.rows {
		if row.TicketID == ticketID && row.Status == domain.CRPending {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

type fakeAuditRepo struct {
	events []*domain.AuditEvent
}

func (f *fakeAuditRepo) Append(ctx context.Context, e *domain.AuditEvent) error {
	f.events = append(f.events, e)
	return nil
}

func seedTicket(ft *fakeTickets, requester domain.UserRef) *domain.Ticket {
	t := &domain.Ticket{
		TicketID:   "ticket-1",
		Status:     domain.TicketInProgress,
		Requester:  requester,
		FormValues: map[string]interface{}{"step-1": map[string]interface{}{"amount": 100.0}},
		FormVersion: 1,
		Version:    1,
	}
	ft.rows[t.TicketID] = t
	return t
}

func newService(t *testing.T, ft *fakeTickets, fs *fakeSteps, fcr *fakeCRs) (*Service, *fakeAuditRepo) {
	clock := domain.NewFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	auditRepo := &fakeAuditRepo{}
	w := audit.New(auditRepo, domain.NewUUIDGen(), clock)
	return New(ft, fs, fcr, nil, nil, w, domain.NewUUIDGen(), clock), auditRepo
}

func TestCreate_RequiresCompletedApproval(t *testing.T) {
	ft := newFakeTickets()
	requester := domain.UserRef{Email: "req@example.com"}
	seedTicket(ft, requester)
	fs := newFakeSteps()
	fcr := newFakeCRs()
	s, _ := newService(t, ft, fs, fcr)

	_, err := s.Create(context.Background(), "ticket-1", domain.ActorContext{Email: "req@example.com"}, map[string]interface{}{}, nil, "reason", "corr-1")
	assert.Error(t, err)
}

func TestCreate_OnlyRequesterCanCreate(t *testing.T) {
	ft := newFakeTickets()
	requester := domain.UserRef{Email: "req@example.com"}
	seedTicket(ft, requester)
	fs := newFakeSteps()
	approver := domain.UserRef{Email: "approver@example.com"}
	started := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	fs.seed(&domain.TicketStep{TicketStepID: "ts-1", TicketID: "ticket-1", StepType: domain.StepTypeApproval, State: domain.StepCompleted, AssignedTo: &approver, StartedAt: &started})
	fcr := newFakeCRs()
	s, _ := newService(t, ft, fs, fcr)

	_, err := s.Create(context.Background(), "ticket-1", domain.ActorContext{Email: "someone-else@example.com"}, map[string]interface{}{"step-1": map[string]interface{}{"amount": 200.0}}, nil, "reason", "corr-1")
	assert.Error(t, err)
}

func TestCreate_Succeeds(t *testing.T) {
	ft := newFakeTickets()
	requester := domain.UserRef{Email: "req@example.com"}
	seedTicket(ft, requester)
	fs := newFakeSteps()
	approver := domain.UserRef{Email: "approver@example.com"}
	started := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	fs.seed(&domain.TicketStep{TicketStepID: "ts-1", TicketID: "ticket-1", StepType: domain.StepTypeApproval, State: domain.StepCompleted, AssignedTo: &approver, StartedAt: &started})
	fcr := newFakeCRs()
	s, auditRepo := newService(t, ft, fs, fcr)

	cr, err := s.Create(context.Background(), "ticket-1", domain.ActorContext{Email: "req@example.com"}, map[string]interface{}{"step-1": map[string]interface{}{"amount": 200.0}}, nil, "reason", "corr-1")
	require.NoError(t, err)
	assert.Equal(t, domain.CRPending, cr.Status)
	assert.Equal(t, "approver@example.com", cr.Approver.Email)
	require.Len(t, cr.FieldChanges, 1)
	assert.Equal(t, "amount", cr.FieldChanges[0].FieldKey)

	updatedTicket := ft.rows["ticket-1"]
	assert.Equal(t, cr.ChangeRequestID, updatedTicket.PendingChangeRequestID)
	assert.Nil(t, updatedTicket.CRLock())

	foundAudit := false
	for _, e := range auditRepo.events {
		if e.EventType == domain.AuditChangeRequestCreated {
			foundAudit = true
		}
	}
	assert.True(t, foundAudit)
}

func TestCreate_RejectsWhenPendingCRExists(t *testing.T) {
	ft := newFakeTickets()
	requester := domain.UserRef{Email: "req@example.com"}
	ticket := seedTicket(ft, requester)
	ticket.PendingChangeRequestID = "CR-existing"
	fs := newFakeSteps()
	approver := domain.UserRef{Email: "approver@example.com"}
	started := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	fs.seed(&domain.TicketStep{TicketStepID: "ts-1", TicketID: "ticket-1", StepType: domain.StepTypeApproval, State: domain.StepCompleted, AssignedTo: &approver, StartedAt: &started})
	fcr := newFakeCRs()
	fcr.rows["CR-existing"] = &domain.ChangeRequest{ChangeRequestID: "CR-existing", TicketID: "ticket-1", Status: domain.CRPending, Version: 1}
	s, _ := newService(t, ft, fs, fcr)

	_, err := s.Create(context.Background(), "ticket-1", domain.ActorContext{Email: "req@example.com"}, map[string]interface{}{"step-1": map[string]interface{}{"amount": 200.0}}, nil, "reason", "corr-1")
	assert.Error(t, err)
}

func TestApprove_BumpsFormVersionAndResumesSteps(t *testing.T) {
	ft := newFakeTickets()
	requester := domain.UserRef{Email: "req@example.com"}
	ticket := seedTicket(ft, requester)
	fs := newFakeSteps()
	approver := domain.UserRef{Email: "approver@example.com"}
	fs.seed(&domain.TicketStep{TicketStepID: "ts-2", TicketID: "ticket-1", StepType: domain.StepTypeTask, State: domain.StepWaitingForCR, PreviousState: statePtr(domain.StepActive)})
	fcr := newFakeCRs()
	fcr.rows["CR-1"] = &domain.ChangeRequest{
		ChangeRequestID: "CR-1",
		TicketID:        "ticket-1",
		Status:          domain.CRPending,
		Approver:        approver,
		OriginalData:    ticket.FormValues,
		ProposedData:    map[string]interface{}{"step-1": map[string]interface{}{"amount": 300.0}},
		Version:         1,
	}
	ticket.Status = domain.TicketWaitingForCR
	ticket.PreviousStatus = domain.TicketInProgress

	s, auditRepo := newService(t, ft, fs, fcr)
	cr, err := s.Approve(context.Background(), "CR-1", domain.ActorContext{Email: "approver@example.com"}, "looks good", "corr-2")
	require.NoError(t, err)
	assert.Equal(t, domain.CRApproved, cr.Status)
	assert.Equal(t, 2, cr.ToVersion)

	updatedTicket := ft.rows["ticket-1"]
	assert.Equal(t, domain.TicketInProgress, updatedTicket.Status)
	assert.Equal(t, 2, updatedTicket.FormVersion)
	assert.Equal(t, 300.0, updatedTicket.FormValues["step-1"].(map[string]interface{})["amount"])
	assert.Empty(t, updatedTicket.PendingChangeRequestID)

	restoredStep := fs.rows["ts-2"]
	assert.Equal(t, domain.StepActive, restoredStep.State)
	assert.Nil(t, restoredStep.PreviousState)

	foundResumed := false
	for _, e := range auditRepo.events {
		if e.EventType == domain.AuditChangeRequestWorkflowResumed {
			foundResumed = true
		}
	}
	assert.True(t, foundResumed)
}

func TestReject_LeavesFormValuesUnchanged(t *testing.T) {
	ft := newFakeTickets()
	requester := domain.UserRef{Email: "req@example.com"}
	ticket := seedTicket(ft, requester)
	original := ticket.FormValues
	fs := newFakeSteps()
	approver := domain.UserRef{Email: "approver@example.com"}
	fcr := newFakeCRs()
	fcr.rows["CR-1"] = &domain.ChangeRequest{
		ChangeRequestID: "CR-1",
		TicketID:        "ticket-1",
		Status:          domain.CRPending,
		Approver:        approver,
		ProposedData:    map[string]interface{}{"step-1": map[string]interface{}{"amount": 999.0}},
		Version:         1,
	}

	s, _ := newService(t, ft, fs, fcr)
	cr, err := s.Reject(context.Background(), "CR-1", domain.ActorContext{Email: "approver@example.com"}, "nope", "corr-3")
	require.NoError(t, err)
	assert.Equal(t, domain.CRRejected, cr.Status)

	updatedTicket := ft.rows["ticket-1"]
	assert.Equal(t, original, updatedTicket.FormValues)
	assert.Empty(t, updatedTicket.PendingChangeRequestID)
}

func TestCancel_OnlyRequesterCanCancel(t *testing.T) {
	ft := newFakeTickets()
	requester := domain.UserRef{Email: "req@example.com"}
	seedTicket(ft, requester)
	fs := newFakeSteps()
	fcr := newFakeCRs()
	fcr.rows["CR-1"] = &domain.ChangeRequest{ChangeRequestID: "CR-1", TicketID: "ticket-1", Status: domain.CRPending, Version: 1}

	s, _ := newService(t, ft, fs, fcr)
	_, err := s.Cancel(context.Background(), "CR-1", domain.ActorContext{Email: "stranger@example.com"}, "corr-4")
	assert.Error(t, err)

	cr, err := s.Cancel(context.Background(), "CR-1", domain.ActorContext{Email: "req@example.com"}, "corr-4")
	require.NoError(t, err)
	assert.Equal(t, domain.CRCancelled, cr.Status)
}

func statePtr(s domain.StepState) *domain.StepState { return &s }
