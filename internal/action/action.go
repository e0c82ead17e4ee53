// Package action is the thin Action API a transport collaborator (an
// HTTP handler, a CLI command) calls into: one Go method per action
// row, each taking the acting principal and a correlation id, checking
// permission before delegating to the workflow engine or the
// change-request service (§6).
package action

import (
	"context"

	"github.com/novaflow/ticketflow/internal/changerequest"
	"github.com/novaflow/ticketflow/internal/domain"
	"github.com/novaflow/ticketflow/internal/engine"
	"github.com/novaflow/ticketflow/internal/permission"
)

// Tickets is the subset of store.TicketRepository the action layer needs
// to load a ticket for permission checks and attachment bookkeeping.
type Tickets interface {
	Get(ctx context.Context, id domain.ID) (*domain.Ticket, error)
	Update(ctx context.Context, t *domain.Ticket, expectedVersion int) error
}

// TicketSteps is the subset of store.TicketStepRepository the action
// layer needs to load a step and its siblings for permission checks.
type TicketSteps interface {
	Get(ctx context.Context, id domain.ID) (*domain.TicketStep, error)
	ListForTicket(ctx context.Context, ticketID domain.ID) ([]*domain.TicketStep, error)
}

// Service wraps engine.Service and changerequest.Service behind a
// permission.Guard check, returning their *domain.Error values verbatim
// so a caller maps domain.Kind onto a transport-specific status (§7).
type Service struct {
	engine *engine.Service
	cr     *changerequest.Service
	guard  *permission.Guard

	tickets Tickets
	steps   TicketSteps
}

func New(eng *engine.Service, cr *changerequest.Service, guard *permission.Guard, tickets Tickets, steps TicketSteps) *Service {
	return &Service{engine: eng, cr: cr, guard: guard, tickets: tickets, steps: steps}
}

// authorize loads ticket, step and its siblings and consults the guard.
// Every method below that acts on an existing step calls this first,
// except the handover, hold, resume, skip-step and SLA-acknowledge
// wrappers, which call the engine directly.
func (s *Service) authorize(ctx context.Context, actor domain.ActorContext, ticketID, ticketStepID domain.ID, act string) (*domain.Ticket, *domain.TicketStep, error) {
	ticket, err := s.tickets.Get(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	step, err := s.steps.Get(ctx, ticketStepID)
	if err != nil {
		return nil, nil, err
	}
	allSteps, err := s.steps.ListForTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	if !s.guard.CanActOnStep(ctx, actor, ticket, step, act, allSteps) {
		return nil, nil, domain.New(domain.KindPermissionDenied, "actor may not perform "+act+" on this step")
	}
	return ticket, step, nil
}

// appendAttachments merges newIDs onto the ticket's top-level attachment
// list, used by actions whose payload carries attachment ids that the
// engine method itself doesn't record anywhere more specific.
func (s *Service) appendAttachments(ctx context.Context, ticket *domain.Ticket, newIDs []string) error {
	if len(newIDs) == 0 {
		return nil
	}
	current, err := s.tickets.Get(ctx, ticket.TicketID)
	if err != nil {
		return err
	}
	cp := *current
	cp.AttachmentIDs = append(append([]string{}, cp.AttachmentIDs...), newIDs...)
	return s.tickets.Update(ctx, &cp, current.Version)
}

// CreateTicket starts a new ticket instance (§6 action "create ticket").
// Any requester may create a ticket against a published workflow; there
// is no existing step to authorize against yet.
func (s *Service) CreateTicket(ctx context.Context, templateID domain.ID, requester domain.UserRef, title, description string, attachmentIDs []string, initialForms []engine.InitialFormStep, actor domain.ActorContext, correlationID string) (*domain.Ticket, error) {
	ticket, err := s.engine.CreateTicket(ctx, templateID, requester, title, description, initialForms, actor, correlationID)
	if err != nil {
		return nil, err
	}
	if len(attachmentIDs) > 0 {
		if err := s.appendAttachments(ctx, ticket, attachmentIDs); err != nil {
			return nil, err
		}
	}
	return ticket, nil
}

// SubmitForm records a form step's values (§6 action "submit form").
func (s *Service) SubmitForm(ctx context.Context, ticketID, ticketStepID domain.ID, values map[string]interface{}, attachmentIDs []string, actor domain.ActorContext, correlationID string) error {
	ticket, _, err := s.authorize(ctx, actor, ticketID, ticketStepID, permission.ActionSubmitForm)
	if err != nil {
		return err
	}
	if err := s.engine.SubmitForm(ctx, ticketID, ticketStepID, values, actor, correlationID); err != nil {
		return err
	}
	return s.appendAttachments(ctx, ticket, attachmentIDs)
}

// Approve, Reject and SkipApproval record one approver's decision (§6
// action "approve / reject / skip").
func (s *Service) Approve(ctx context.Context, ticketID, ticketStepID domain.ID, comment string, actor domain.ActorContext, correlationID string) error {
	if _, _, err := s.authorize(ctx, actor, ticketID, ticketStepID, permission.ActionApprove); err != nil {
		return err
	}
	return s.engine.Approve(ctx, ticketID, ticketStepID, actor.Ref(), comment, actor, correlationID)
}

func (s *Service) Reject(ctx context.Context, ticketID, ticketStepID domain.ID, comment string, actor domain.ActorContext, correlationID string) error {
	if _, _, err := s.authorize(ctx, actor, ticketID, ticketStepID, permission.ActionReject); err != nil {
		return err
	}
	return s.engine.Reject(ctx, ticketID, ticketStepID, actor.Ref(), comment, actor, correlationID)
}

func (s *Service) SkipApproval(ctx context.Context, ticketID, ticketStepID domain.ID, comment string, actor domain.ActorContext, correlationID string) error {
	// Skip shares approve/reject's authorization shape: any current
	// approver of the step may record it.
	if _, _, err := s.authorize(ctx, actor, ticketID, ticketStepID, permission.ActionApprove); err != nil {
		return err
	}
	return s.engine.SkipApproval(ctx, ticketID, ticketStepID, actor.Ref(), comment, actor, correlationID)
}

// ReassignApproval retargets a pending approval task (§6 action "reassign approval").
func (s *Service) ReassignApproval(ctx context.Context, ticketID, ticketStepID domain.ID, previousApprover, newApprover domain.UserRef, reason string, actor domain.ActorContext, correlationID string) error {
	if _, _, err := s.authorize(ctx, actor, ticketID, ticketStepID, permission.ActionReassign); err != nil {
		return err
	}
	return s.engine.ReassignApproval(ctx, ticketID, ticketStepID, previousApprover, newApprover, reason, actor, correlationID)
}

// CompleteTask fills in a task step's output (§6 action "complete task").
func (s *Service) CompleteTask(ctx context.Context, ticketID, ticketStepID domain.ID, outputValues map[string]interface{}, notes string, attachmentIDs []string, actor domain.ActorContext, correlationID string) error {
	ticket, _, err := s.authorize(ctx, actor, ticketID, ticketStepID, permission.ActionCompleteTask)
	if err != nil {
		return err
	}
	if err := s.engine.CompleteTask(ctx, ticketID, ticketStepID, outputValues, notes, actor, correlationID); err != nil {
		return err
	}
	return s.appendAttachments(ctx, ticket, attachmentIDs)
}

// SaveDraft persists in-progress form values without advancing the
// workflow (§6 action "save draft"). It shares submit form's
// authorization shape since only the requester may touch their own
// not-yet-submitted step.
func (s *Service) SaveDraft(ctx context.Context, ticketID, ticketStepID domain.ID, draftValues map[string]interface{}, notes string, actor domain.ActorContext, correlationID string) error {
	if _, _, err := s.authorize(ctx, actor, ticketID, ticketStepID, permission.ActionSubmitForm); err != nil {
		return err
	}
	return s.engine.SaveDraft(ctx, ticketID, ticketStepID, draftValues, notes, actor, correlationID)
}

// AddNote and AddRequesterNote append a free-form activity-log entry to
// a step (§6 action "add note / requester note").
func (s *Service) AddNote(ctx context.Context, ticketID, ticketStepID domain.ID, content string, attachmentIDs []string, actor domain.ActorContext, correlationID string) error {
	if _, _, err := s.authorize(ctx, actor, ticketID, ticketStepID, permission.ActionAddNote); err != nil {
		return err
	}
	return s.engine.AddNote(ctx, ticketID, ticketStepID, content, attachmentIDs, actor, correlationID)
}

func (s *Service) AddRequesterNote(ctx context.Context, ticketID, ticketStepID domain.ID, content string, attachmentIDs []string, actor domain.ActorContext, correlationID string) error {
	if _, _, err := s.authorize(ctx, actor, ticketID, ticketStepID, permission.ActionAddNote); err != nil {
		return err
	}
	return s.engine.AddRequesterNote(ctx, ticketID, ticketStepID, content, attachmentIDs, actor, correlationID)
}

// RequestInfo and RespondInfo drive the info-request round trip (§6
// action "request info / respond info").
func (s *Service) RequestInfo(ctx context.Context, ticketID, ticketStepID domain.ID, requestedFrom domain.UserRef, subject, question string, actor domain.ActorContext, correlationID string) (*domain.InfoRequest, error) {
	if _, _, err := s.authorize(ctx, actor, ticketID, ticketStepID, permission.ActionRequestInfo); err != nil {
		return nil, err
	}
	return s.engine.RequestInfo(ctx, ticketID, ticketStepID, requestedFrom, subject, question, actor, correlationID)
}

func (s *Service) RespondInfo(ctx context.Context, ticketID, ticketStepID, infoRequestID domain.ID, response string, attachmentIDs []string, actor domain.ActorContext, correlationID string) error {
	if _, _, err := s.authorize(ctx, actor, ticketID, ticketStepID, permission.ActionRespondInfo); err != nil {
		return err
	}
	return s.engine.RespondInfo(ctx, ticketID, ticketStepID, infoRequestID, response, attachmentIDs, actor, correlationID)
}

// AssignAgent and ReassignAgent put an agent on a task step (§6 action
// "assign / reassign agent").
func (s *Service) AssignAgent(ctx context.Context, ticketID, ticketStepID domain.ID, agent domain.UserRef, reason string, actor domain.ActorContext, correlationID string) error {
	if _, _, err := s.authorize(ctx, actor, ticketID, ticketStepID, permission.ActionAssign); err != nil {
		return err
	}
	return s.engine.AssignAgent(ctx, ticketID, ticketStepID, agent, reason, actor, correlationID)
}

func (s *Service) ReassignAgent(ctx context.Context, ticketID, ticketStepID domain.ID, agent domain.UserRef, reason string, actor domain.ActorContext, correlationID string) error {
	if _, _, err := s.authorize(ctx, actor, ticketID, ticketStepID, permission.ActionReassign); err != nil {
		return err
	}
	return s.engine.ReassignAgent(ctx, ticketID, ticketStepID, agent, reason, actor, correlationID)
}

// RequestHandover, DecideHandover and CancelHandover cover the handover
// workflow (§6 action "handover request / decision / cancel"). The
// engine itself enforces who may request/decide/cancel (current
// assignee, manager, or prior approver) since that authority isn't
// expressible through permission.Guard's step-type rules; the action
// layer passes these calls straight to the engine without a guard check.
func (s *Service) RequestHandover(ctx context.Context, ticketID, ticketStepID domain.ID, reason string, actor domain.ActorContext, correlationID string) (*domain.HandoverRequest, error) {
	return s.engine.RequestHandover(ctx, ticketID, ticketStepID, reason, actor, correlationID)
}

func (s *Service) DecideHandover(ctx context.Context, ticketID, ticketStepID, handoverRequestID domain.ID, approve bool, newAssignee *domain.UserRef, actor domain.ActorContext, correlationID string) error {
	return s.engine.DecideHandover(ctx, ticketID, ticketStepID, handoverRequestID, approve, newAssignee, actor, correlationID)
}

func (s *Service) CancelHandover(ctx context.Context, ticketID, ticketStepID, handoverRequestID domain.ID, actor domain.ActorContext, correlationID string) error {
	return s.engine.CancelHandover(ctx, ticketID, ticketStepID, handoverRequestID, actor, correlationID)
}

// Hold, Resume, SkipStep and AcknowledgeSLA cover the remaining
// per-step lifecycle actions (§6 action "hold / resume / skip step /
// ack SLA"). Like handovers, assignee/manager authority for Hold, Resume
// and AcknowledgeSLA is enforced by the engine methods themselves;
// engine.SkipStep makes no authority check, so any actor may skip a
// non-terminal step.
func (s *Service) Hold(ctx context.Context, ticketID, ticketStepID domain.ID, reason string, actor domain.ActorContext, correlationID string) error {
	return s.engine.Hold(ctx, ticketID, ticketStepID, reason, actor, correlationID)
}

func (s *Service) Resume(ctx context.Context, ticketID, ticketStepID domain.ID, actor domain.ActorContext, correlationID string) error {
	return s.engine.Resume(ctx, ticketID, ticketStepID, actor, correlationID)
}

func (s *Service) SkipStep(ctx context.Context, ticketID, ticketStepID domain.ID, reason string, actor domain.ActorContext, correlationID string) error {
	return s.engine.SkipStep(ctx, ticketID, ticketStepID, reason, actor, correlationID)
}

func (s *Service) AcknowledgeSLA(ctx context.Context, ticketID, ticketStepID domain.ID, actor domain.ActorContext, correlationID string) error {
	return s.engine.AcknowledgeSLA(ctx, ticketID, ticketStepID, actor, correlationID)
}

// CancelTicket cancels the whole ticket (§6 action "cancel ticket").
func (s *Service) CancelTicket(ctx context.Context, ticketID domain.ID, reason string, actor domain.ActorContext, correlationID string) error {
	ticket, err := s.tickets.Get(ctx, ticketID)
	if err != nil {
		return err
	}
	if !s.guard.CanCancelTicket(ctx, actor, ticket) {
		return domain.New(domain.KindPermissionDenied, "actor may not cancel this ticket")
	}
	return s.engine.CancelTicket(ctx, ticketID, reason, actor, correlationID)
}

// CreateChangeRequest, ApproveChangeRequest, RejectChangeRequest and
// CancelChangeRequest wrap the change-request service as-is (§6 action
// "CR create / approve / reject / cancel"); its own preconditions
// (pending-CR uniqueness, approver resolution, CR lock) are the full
// authorization story for this family of actions (§4.8).
func (s *Service) CreateChangeRequest(ctx context.Context, ticketID domain.ID, proposedFormValues map[string]interface{}, proposedAttachmentIDs []string, reason, correlationID string, actor domain.ActorContext) (*domain.ChangeRequest, error) {
	return s.cr.Create(ctx, ticketID, actor, proposedFormValues, proposedAttachmentIDs, reason, correlationID)
}

func (s *Service) ApproveChangeRequest(ctx context.Context, crID domain.ID, notes, correlationID string, actor domain.ActorContext) (*domain.ChangeRequest, error) {
	return s.cr.Approve(ctx, crID, actor, notes, correlationID)
}

func (s *Service) RejectChangeRequest(ctx context.Context, crID domain.ID, notes, correlationID string, actor domain.ActorContext) (*domain.ChangeRequest, error) {
	return s.cr.Reject(ctx, crID, actor, notes, correlationID)
}

func (s *Service) CancelChangeRequest(ctx context.Context, crID domain.ID, correlationID string, actor domain.ActorContext) (*domain.ChangeRequest, error) {
	return s.cr.Cancel(ctx, crID, actor, correlationID)
}
