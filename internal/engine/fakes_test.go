package engine

import (
	"context"
	"errors"

	"github.com/novaflow/ticketflow/internal/domain"
)

type fakeTickets struct {
	rows map[domain.ID]*domain.Ticket
}

func newFakeTickets() *fakeTickets { return &fakeTickets{rows: map[domain.ID]*domain.Ticket{}} }

func (f *fakeTickets) seed(t *domain.Ticket) {
	t.Version = 1
	cp := *t
	f.rows[t.TicketID] = &cp
}

func (f *fakeTickets) Create(ctx context.Context, t *domain.Ticket) error {
	t.Version = 1
	cp := *t
	f.rows[t.TicketID] = &cp
	return nil
}

func (f *fakeTickets) Get(ctx context.Context, id domain.ID) (*domain.Ticket, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, errors.New("ticket not found")
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

func (f *fakeSteps) Create(ctx context.Context, s *domain.TicketStep) error {
	f.seed(s)
	return nil
}

func (f *fakeSteps) Get(ctx context.Context, id domain.ID) (*domain.TicketStep, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, errors.New("step not found")
	}
	cp := *row
	return &cp, nil
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

// fakeWorkflows always resolves to the one definition it was built with,
// whatever template id or version number is asked for.
type fakeWorkflows struct {
	version *domain.WorkflowVersion
}

func newFakeWorkflows(def domain.Definition) *fakeWorkflows {
	return &fakeWorkflows{version: &domain.WorkflowVersion{VersionID: "v-1", TemplateID: "wft-1", Number: 1, Definition: def, Status: domain.WorkflowPublished}}
}

func (f *fakeWorkflows) GetTemplate(ctx context.Context, id domain.ID) (*domain.WorkflowTemplate, error) {
	return &domain.WorkflowTemplate{TemplateID: id, Name: "test workflow", Status: domain.WorkflowPublished}, nil
}

func (f *fakeWorkflows) GetVersion(ctx context.Context, id domain.ID) (*domain.WorkflowVersion, error) {
	return f.version, nil
}

func (f *fakeWorkflows) LatestPublished(ctx context.Context, templateID domain.ID) (*domain.WorkflowVersion, error) {
	return f.version, nil
}

func (f *fakeWorkflows) GetVersionByNumber(ctx context.Context, templateID domain.ID, number int) (*domain.WorkflowVersion, error) {
	return f.version, nil
}

type fakeApprovals struct {
	rows     map[domain.ID]*domain.ApprovalTask
	byStep   map[domain.ID][]domain.ID
}

func newFakeApprovals() *fakeApprovals {
	return &fakeApprovals{rows: map[domain.ID]*domain.ApprovalTask{}, byStep: map[domain.ID][]domain.ID{}}
}

func (f *fakeApprovals) seed(a *domain.ApprovalTask) {
	a.Version = 1
	cp := *a
	f.rows[a.ApprovalTaskID] = &cp
	f.byStep[a.TicketStepID] = append(f.byStep[a.TicketStepID], a.ApprovalTaskID)
}

func (f *fakeApprovals) Create(ctx context.Context, a *domain.ApprovalTask) error {
	f.seed(a)
	return nil
}

func (f *fakeApprovals) Get(ctx context.Context, id domain.ID) (*domain.ApprovalTask, error) {
	row, ok := f.rows[id]
	if !ok {
		return nil, errors.New("approval task not found")
	}
	cp := *row
	return &cp, nil
}

func (f *fakeApprovals) Update(ctx context.Context, a *domain.ApprovalTask, expectedVersion int) error {
	row, ok := f.rows[a.ApprovalTaskID]
	if !ok || row.Version != expectedVersion {
		return errors.New("concurrency conflict")
	}
	cp := *a
	cp.Version = expectedVersion + 1
	f.rows[a.ApprovalTaskID] = &cp
	*a = cp
	return nil
}

func (f *fakeApprovals) ListForStep(ctx context.Context, ticketStepID domain.ID) ([]*domain.ApprovalTask, error) {
	var out []*domain.ApprovalTask
	for _, id := range f.byStep[ticketStepID] {
		row := f.rows[id]
		cp := *row
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeApprovals) ListPendingForPrincipal(ctx context.Context, actor domain.UserRef) ([]*domain.ApprovalTask, error) {
	var out []*domain.ApprovalTask
	for _, row := range f.rows {
		if row.Decision == domain.DecisionPending && domain.SameUser(&row.Approver, &actor) {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeAssignments struct {
	rows   map[domain.ID]*domain.Assignment
	byStep map[domain.ID][]domain.ID
}

func newFakeAssignments() *fakeAssignments {
	return &fakeAssignments{rows: map[domain.ID]*domain.Assignment{}, byStep: map[domain.ID][]domain.ID{}}
}

func (f *fakeAssignments) Create(ctx context.Context, a *domain.Assignment) error {
	a.Version = 1
	cp := *a
	f.rows[a.AssignmentID] = &cp
	f.byStep[a.TicketStepID] = append(f.byStep[a.TicketStepID], a.AssignmentID)
	return nil
}

func (f *fakeAssignments) Update(ctx context.Context, a *domain.Assignment, expectedVersion int) error {
	row, ok := f.rows[a.AssignmentID]
	if !ok || row.Version != expectedVersion {
		return errors.New("concurrency conflict")
	}
	cp := *a
	cp.Version = expectedVersion + 1
	f.rows[a.AssignmentID] = &cp
	*a = cp
	return nil
}

func (f *fakeAssignments) FindActiveForStep(ctx context.Context, ticketStepID domain.ID) (*domain.Assignment, error) {
	for _, id := range f.byStep[ticketStepID] {
		row := f.rows[id]
		if row.Status == domain.AssignmentActive {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeAssignments) ListForStep(ctx context.Context, ticketStepID domain.ID) ([]*domain.Assignment, error) {
	var out []*domain.Assignment
	for _, id := range f.byStep[ticketStepID] {
		row := f.rows[id]
		cp := *row
		out = append(out, &cp)
	}
	return out, nil
}

type fakeInfoRequests struct {
	rows   map[domain.ID]*domain.InfoRequest
	byStep map[domain.ID][]domain.ID
}

func newFakeInfoRequests() *fakeInfoRequests {
	return &fakeInfoRequests{rows: map[domain.ID]*domain.InfoRequest{}, byStep: map[domain.ID][]domain.ID{}}
}

func (f *fakeInfoRequests) Create(ctx context.Context, r *domain.InfoRequest) error {
	r.Version = 1
	cp := *r
	f.rows[r.InfoRequestID] = &cp
	f.byStep[r.TicketStepID] = append(f.byStep[r.TicketStepID], r.InfoRequestID)
	return nil
}

func (f *fakeInfoRequests) Update(ctx context.Context, r *domain.InfoRequest, expectedVersion int) error {
	row, ok := f.rows[r.InfoRequestID]
	if !ok || row.Version != expectedVersion {
		return errors.New("concurrency conflict")
	}
	cp := *r
	cp.Version = expectedVersion + 1
	f.rows[r.InfoRequestID] = &cp
	*r = cp
	return nil
}

func (f *fakeInfoRequests) FindOpenForStep(ctx context.Context, ticketStepID domain.ID) (*domain.InfoRequest, error) {
	for _, id := range f.byStep[ticketStepID] {
		row := f.rows[id]
		if row.Status == domain.InfoRequestOpen {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

type fakeHandovers struct {
	rows   map[domain.ID]*domain.HandoverRequest
	byStep map[domain.ID][]domain.ID
}

func newFakeHandovers() *fakeHandovers {
	return &fakeHandovers{rows: map[domain.ID]*domain.HandoverRequest{}, byStep: map[domain.ID][]domain.ID{}}
}

func (f *fakeHandovers) Create(ctx context.Context, r *domain.HandoverRequest) error {
	r.Version = 1
	cp := *r
	f.rows[r.HandoverRequestID] = &cp
	f.byStep[r.TicketStepID] = append(f.byStep[r.TicketStepID], r.HandoverRequestID)
	return nil
}

func (f *fakeHandovers) Update(ctx context.Context, r *domain.HandoverRequest, expectedVersion int) error {
	row, ok := f.rows[r.HandoverRequestID]
	if !ok || row.Version != expectedVersion {
		return errors.New("concurrency conflict")
	}
	cp := *r
	cp.Version = expectedVersion + 1
	f.rows[r.HandoverRequestID] = &cp
	*r = cp
	return nil
}

func (f *fakeHandovers) FindPendingForStep(ctx context.Context, ticketStepID domain.ID) (*domain.HandoverRequest, error) {
	for _, id := range f.byStep[ticketStepID] {
		row := f.rows[id]
		if row.Status == domain.HandoverPending {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

func newTestService(tickets *fakeTickets, steps *fakeSteps, approvals *fakeApprovals, assignments *fakeAssignments, infoRequests *fakeInfoRequests, handovers *fakeHandovers, workflows *fakeWorkflows, clock domain.Clock) *Service {
	return New(Deps{
		Tickets: tickets, Steps: steps, Approvals: approvals, Assignments: assignments,
		InfoRequests: infoRequests, Handovers: handovers, Workflows: workflows,
		IDs: domain.NewUUIDGen(), Clock: clock,
	})
}
