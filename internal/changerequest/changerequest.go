// Package changerequest lets a ticket's requester propose a mutation of its
// form values and attachments after the first approval has completed,
// pausing the running workflow until an approver decides (§4.8).
package changerequest

import (
	"context"
	"fmt"

	"github.com/novaflow/ticketflow/internal/audit"
	"github.com/novaflow/ticketflow/internal/domain"
	"github.com/novaflow/ticketflow/internal/outbox"
)

// Tickets is the subset of store.TicketRepository the service needs.
type Tickets interface {
	Get(ctx context.Context, id domain.ID) (*domain.Ticket, error)
	Update(ctx context.Context, t *domain.Ticket, expectedVersion int) error
}

// TicketSteps is the subset of store.TicketStepRepository the service needs.
type TicketSteps interface {
	Update(ctx context.Context, s *domain.TicketStep, expectedVersion int) error
	ListForTicket(ctx context.Context, ticketID domain.ID) ([]*domain.TicketStep, error)
}

// ChangeRequests is the subset of store.ChangeRequestRepository the
// service needs.
type ChangeRequests interface {
	Create(ctx context.Context, cr *domain.ChangeRequest) error
	Get(ctx context.Context, id domain.ID) (*domain.ChangeRequest, error)
	Update(ctx context.Context, cr *domain.ChangeRequest, expectedVersion int) error
	FindPendingForTicket(ctx context.Context, ticketID domain.ID) (*domain.ChangeRequest, error)
}

// Workflows is the subset of store.WorkflowRepository the service needs to
// resolve field labels and the fallback first approver.
type Workflows interface {
	GetVersionByNumber(ctx context.Context, templateID domain.ID, number int) (*domain.WorkflowVersion, error)
}

// Service implements ticket change requests (§4.8).
type Service struct {
	tickets     Tickets
	steps       TicketSteps
	crs         ChangeRequests
	workflows   Workflows
	outbox      *outbox.Outbox
	audit       *audit.Writer
	ids         domain.IDGen
	clock       domain.Clock
}

func New(tickets Tickets, steps TicketSteps, crs ChangeRequests, workflows Workflows, ob *outbox.Outbox, auditWriter *audit.Writer, ids domain.IDGen, clock domain.Clock) *Service {
	return &Service{tickets: tickets, steps: steps, crs: crs, workflows: workflows, outbox: ob, audit: auditWriter, ids: ids, clock: clock}
}

// Create proposes new form values/attachments for ticket (§4.8).
func (s *Service) Create(ctx context.Context, ticketID domain.ID, actor domain.ActorContext, proposedFormValues map[string]interface{}, proposedAttachmentIDs []string, reason, correlationID string) (*domain.ChangeRequest, error) {
	ticket, err := s.tickets.Get(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if ticket.Status != domain.TicketInProgress {
		return nil, domain.New(domain.KindInvalidState, fmt.Sprintf("change request can only be created for IN_PROGRESS tickets, current status %s", ticket.Status))
	}
	if !domain.SameUserEmail(&ticket.Requester, actor.Email) {
		return nil, domain.New(domain.KindPermissionDenied, "only the ticket requester can create a change request")
	}

	steps, err := s.steps.ListForTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	if !hasCompletedApproval(steps) {
		return nil, domain.New(domain.KindInvalidState, "change request can only be created after the first approval step is completed")
	}

	if err := s.acquireCRLock(ctx, ticket); err != nil {
		if existing, lookupErr := s.crs.FindPendingForTicket(ctx, ticketID); lookupErr == nil && existing != nil {
			return nil, domain.New(domain.KindInvalidState, fmt.Sprintf("a change request is already pending for this ticket (%s)", existing.ChangeRequestID))
		}
		return nil, domain.New(domain.KindInvalidState, "unable to create change request, try again")
	}
	// The CR lock must be released on every exit path below, success or
	// error; the success path folds the release into the same update that
	// sets pending_change_request_id (mirroring the original's single
	// atomic write), so this deferred release only fires on early returns.
	defer func() {
		if ticket.CRLock() != nil {
			_ = s.releaseCRLock(ctx, ticketID)
		}
	}()

	labels, stepNames := s.fieldLabels(ctx, ticket)
	fieldChanges := computeFieldChanges(ticket.FormValues, proposedFormValues, labels, stepNames)
	attachmentChanges := computeAttachmentChanges(ticket.AttachmentIDs, proposedAttachmentIDs)
	if len(fieldChanges) == 0 && len(attachmentChanges) == 0 {
		return nil, domain.New(domain.KindValidation, "no changes detected, modify at least one field")
	}

	approver, err := s.resolveApprover(ctx, ticket, steps)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	cr := &domain.ChangeRequest{
		ChangeRequestID:       s.ids.New(domain.PrefixChangeRequest),
		TicketID:              ticketID,
		OriginalData:          ticket.FormValues,
		ProposedData:          proposedFormValues,
		OriginalAttachmentIDs: ticket.AttachmentIDs,
		ProposedAttachmentIDs: proposedAttachmentIDs,
		FieldChanges:          fieldChanges,
		AttachmentChanges:     attachmentChanges,
		FromVersion:           ticket.FormVersion,
		Approver:              *approver,
		Reason:                reason,
		Status:                domain.CRPending,
		CreatedAt:             now,
		Version:               0,
	}
	if err := s.crs.Create(ctx, cr); err != nil {
		return nil, err
	}

	ticket.PendingChangeRequestID = cr.ChangeRequestID
	ticket.SetCRLock(nil)
	ticket.UpdatedAt = now
	if err := s.tickets.Update(ctx, ticket, ticket.Version); err != nil {
		_ = s.releaseCRLock(ctx, ticketID)
		return nil, err
	}

	if s.audit != nil {
		_, _ = s.audit.WriteEvent(ctx, ticketID, domain.AuditChangeRequestCreated, actor, "", map[string]interface{}{
			"change_request_id":      cr.ChangeRequestID,
			"reason":                 reason,
			"field_changes_count":    len(fieldChanges),
			"attachment_changes_count": len(attachmentChanges),
			"assigned_to":             approver.Email,
		}, correlationID)
	}
	s.notify(ctx, ticket, domain.TemplateChangeRequestSubmitted, []domain.UserRef{*approver}, map[string]interface{}{"change_request_id": cr.ChangeRequestID}, correlationID)

	// Pausing the workflow is best-effort: a failure here must not unwind
	// the already-created CR (mirrors the original service's try/except).
	if pauseErr := s.pauseWorkflow(ctx, ticket, cr.ChangeRequestID, actor, correlationID); pauseErr != nil && s.audit != nil {
		_, _ = s.audit.WriteEvent(ctx, ticketID, domain.AuditEngineError, actor, "", map[string]interface{}{"error": pauseErr.Error(), "during": "pause_workflow_for_cr"}, correlationID)
	}

	return cr, nil
}

// Approve accepts the proposed changes, bumps the ticket's form version, and
// resumes the workflow (§4.8).
func (s *Service) Approve(ctx context.Context, crID domain.ID, actor domain.ActorContext, notes, correlationID string) (*domain.ChangeRequest, error) {
	cr, ticket, err := s.loadPendingForDecision(ctx, crID, actor)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	currentVersion := ticket.FormVersion
	if currentVersion == 0 {
		currentVersion = 1
	}
	newVersion := currentVersion + 1

	versions := ticket.FormVersions
	if len(versions) == 0 {
		versions = append(versions, domain.FormVersion{
			Version:       1,
			Source:        domain.FormVersionInitial,
			FormValues:    cr.OriginalData,
			AttachmentIDs: cr.OriginalAttachmentIDs,
			CapturedBy:    &ticket.Requester,
			CapturedAt:    ticket.CreatedAt,
		})
	}
	approverRef := actor.Ref()
	versions = append(versions, domain.FormVersion{
		Version:       newVersion,
		Source:        domain.FormVersionChangeRequest,
		FormValues:    cr.ProposedData,
		AttachmentIDs: cr.ProposedAttachmentIDs,
		CapturedBy:    &approverRef,
		CapturedAt:    now,
	})

	ticket.FormValues = cr.ProposedData
	ticket.AttachmentIDs = cr.ProposedAttachmentIDs
	ticket.FormVersion = newVersion
	ticket.FormVersions = versions
	ticket.PendingChangeRequestID = ""
	ticket.UpdatedAt = now
	if err := s.tickets.Update(ctx, ticket, ticket.Version); err != nil {
		return nil, err
	}

	decidedAt := now
	cr.Status = domain.CRApproved
	cr.ToVersion = newVersion
	cr.Notes = notes
	cr.DecidedAt = &decidedAt
	if err := s.crs.Update(ctx, cr, cr.Version); err != nil {
		return nil, err
	}

	if s.audit != nil {
		_, _ = s.audit.WriteEvent(ctx, ticket.TicketID, domain.AuditChangeRequestApproved, actor, "", map[string]interface{}{
			"change_request_id": cr.ChangeRequestID,
			"from_version":       currentVersion,
			"to_version":         newVersion,
			"review_notes":       notes,
		}, correlationID)
	}
	s.notify(ctx, ticket, domain.TemplateChangeRequestApproved, []domain.UserRef{ticket.Requester}, map[string]interface{}{"change_request_id": cr.ChangeRequestID}, correlationID)

	if err := s.resumeWorkflow(ctx, ticket, cr.ChangeRequestID, actor, "APPROVED", correlationID); err != nil {
		return nil, err
	}
	return cr, nil
}

// Reject leaves form_values unchanged and resumes the workflow (§4.8).
func (s *Service) Reject(ctx context.Context, crID domain.ID, actor domain.ActorContext, notes, correlationID string) (*domain.ChangeRequest, error) {
	return s.rejectOrCancel(ctx, crID, actor, domain.CRRejected, domain.AuditChangeRequestRejected, domain.TemplateChangeRequestRejected, notes, "REJECTED", correlationID)
}

// Cancel lets the requester withdraw their own pending change request (§4.8).
func (s *Service) Cancel(ctx context.Context, crID domain.ID, actor domain.ActorContext, correlationID string) (*domain.ChangeRequest, error) {
	cr, err := s.crs.Get(ctx, crID)
	if err != nil {
		return nil, err
	}
	if cr.Status != domain.CRPending {
		return nil, domain.New(domain.KindInvalidState, fmt.Sprintf("change request is not pending, current status %s", cr.Status))
	}

	ticket, err := s.tickets.Get(ctx, cr.TicketID)
	if err != nil {
		return nil, err
	}
	// A change request is only ever created by the ticket's own requester
	// (enforced in Create), so cancellation authority is checked against
	// the ticket, not a separately-tracked requester snapshot on the CR.
	if !domain.SameUserEmail(&ticket.Requester, actor.Email) {
		return nil, domain.New(domain.KindPermissionDenied, "only the requester can cancel their change request")
	}

	ticket.PendingChangeRequestID = ""
	ticket.UpdatedAt = s.clock.Now()
	if err := s.tickets.Update(ctx, ticket, ticket.Version); err != nil {
		return nil, err
	}

	decidedAt := s.clock.Now()
	cr.Status = domain.CRCancelled
	cr.DecidedAt = &decidedAt
	if err := s.crs.Update(ctx, cr, cr.Version); err != nil {
		return nil, err
	}

	if s.audit != nil {
		_, _ = s.audit.WriteEvent(ctx, ticket.TicketID, domain.AuditChangeRequestCancelled, actor, "", map[string]interface{}{"change_request_id": cr.ChangeRequestID}, correlationID)
	}
	s.notify(ctx, ticket, domain.TemplateChangeRequestCancelled, []domain.UserRef{cr.Approver}, map[string]interface{}{"change_request_id": cr.ChangeRequestID}, correlationID)

	if err := s.resumeWorkflow(ctx, ticket, cr.ChangeRequestID, actor, "CANCELLED", correlationID); err != nil {
		return nil, err
	}
	return cr, nil
}

func (s *Service) rejectOrCancel(ctx context.Context, crID domain.ID, actor domain.ActorContext, status domain.ChangeRequestStatus, eventType domain.AuditEventType, template domain.TemplateKey, notes, resolution, correlationID string) (*domain.ChangeRequest, error) {
	cr, ticket, err := s.loadPendingForDecision(ctx, crID, actor)
	if err != nil {
		return nil, err
	}

	ticket.PendingChangeRequestID = ""
	ticket.UpdatedAt = s.clock.Now()
	if err := s.tickets.Update(ctx, ticket, ticket.Version); err != nil {
		return nil, err
	}

	decidedAt := s.clock.Now()
	cr.Status = status
	cr.Notes = notes
	cr.DecidedAt = &decidedAt
	if err := s.crs.Update(ctx, cr, cr.Version); err != nil {
		return nil, err
	}

	if s.audit != nil {
		_, _ = s.audit.WriteEvent(ctx, ticket.TicketID, eventType, actor, "", map[string]interface{}{"change_request_id": cr.ChangeRequestID, "review_notes": notes}, correlationID)
	}
	s.notify(ctx, ticket, template, []domain.UserRef{ticket.Requester}, map[string]interface{}{"change_request_id": cr.ChangeRequestID}, correlationID)

	if err := s.resumeWorkflow(ctx, ticket, cr.ChangeRequestID, actor, resolution, correlationID); err != nil {
		return nil, err
	}
	return cr, nil
}

// loadPendingForDecision fetches a pending CR, validates the decision-maker
// matches its assigned approver, and returns the owning ticket.
func (s *Service) loadPendingForDecision(ctx context.Context, crID domain.ID, actor domain.ActorContext) (*domain.ChangeRequest, *domain.Ticket, error) {
	cr, err := s.crs.Get(ctx, crID)
	if err != nil {
		return nil, nil, err
	}
	if cr.Status != domain.CRPending {
		return nil, nil, domain.New(domain.KindInvalidState, fmt.Sprintf("change request is not pending, current status %s", cr.Status))
	}
	actorRef := actor.Ref()
	if !domain.SameUser(&cr.Approver, &actorRef) {
		return nil, nil, domain.New(domain.KindPermissionDenied, "you are not authorized to decide this change request")
	}
	ticket, err := s.tickets.Get(ctx, cr.TicketID)
	if err != nil {
		return nil, nil, err
	}
	if ticket.Status != domain.TicketInProgress && ticket.Status != domain.TicketWaitingForCR {
		return nil, nil, domain.New(domain.KindInvalidState, fmt.Sprintf("cannot decide change request, ticket status is %s", ticket.Status))
	}
	return cr, ticket, nil
}

// acquireCRLock performs the conditional update that both checks
// pending_change_request_id is empty and _cr_lock is unset, and sets
// _cr_lock to now, all in one version-CAS write (§4.8).
func (s *Service) acquireCRLock(ctx context.Context, ticket *domain.Ticket) error {
	if ticket.PendingChangeRequestID != "" || ticket.CRLock() != nil {
		return domain.New(domain.KindInvalidState, "change request lock unavailable")
	}
	now := s.clock.Now()
	ticket.SetCRLock(&now)
	if err := s.tickets.Update(ctx, ticket, ticket.Version); err != nil {
		ticket.SetCRLock(nil)
		return err
	}
	return nil
}

func (s *Service) releaseCRLock(ctx context.Context, ticketID domain.ID) error {
	ticket, err := s.tickets.Get(ctx, ticketID)
	if err != nil {
		return err
	}
	if ticket.CRLock() == nil {
		return nil
	}
	ticket.SetCRLock(nil)
	return s.tickets.Update(ctx, ticket, ticket.Version)
}

func hasCompletedApproval(steps []*domain.TicketStep) bool {
	for _, st := range steps {
		if st.StepType == domain.StepTypeApproval && st.State == domain.StepCompleted {
			return true
		}
	}
	return false
}

// notify is a no-op when no outbox is wired (tests commonly exercise the CR
// service without a delivery layer).
func (s *Service) notify(ctx context.Context, ticket *domain.Ticket, template domain.TemplateKey, recipients []domain.UserRef, payload map[string]interface{}, correlationID string) {
	if s.outbox == nil {
		return
	}
	_, _ = s.outbox.Enqueue(ctx, template, domain.CategoryTicket, recipients, payload, ticket.TicketID, correlationID)
}
