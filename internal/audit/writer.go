// Package audit writes the append-only activity log every state change and
// significant action produces (§4.10).
package audit

import (
	"context"

	"github.com/novaflow/ticketflow/internal/domain"
)

// Repository is the append-only collection writer needs; satisfied by
// store.AuditRepository.
type Repository interface {
	Append(ctx context.Context, e *domain.AuditEvent) error
}

// Writer writes audit events on behalf of the engine and its subsystems.
type Writer struct {
	repo  Repository
	ids   domain.IDGen
	clock domain.Clock
}

func New(repo Repository, ids domain.IDGen, clock domain.Clock) *Writer {
	return &Writer{repo: repo, ids: ids, clock: clock}
}

// WriteEvent writes a single audit event; ticketStepID is empty for
// ticket-scoped events.
func (w *Writer) WriteEvent(ctx context.Context, ticketID domain.ID, eventType domain.AuditEventType, actor domain.ActorContext, ticketStepID domain.ID, details map[string]interface{}, correlationID string) (*domain.AuditEvent, error) {
	if details == nil {
		details = map[string]interface{}{}
	}
	event := &domain.AuditEvent{
		AuditEventID:  w.ids.NewAuditEventID(),
		TicketID:      ticketID,
		TicketStepID:  ticketStepID,
		EventType:     eventType,
		Actor:         actor.Ref(),
		Details:       details,
		Timestamp:     w.clock.Now(),
		CorrelationID: correlationID,
	}
	if err := w.repo.Append(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}

func (w *Writer) WriteCreateTicket(ctx context.Context, ticketID domain.ID, actor domain.ActorContext, workflowName, correlationID string) (*domain.AuditEvent, error) {
	return w.WriteEvent(ctx, ticketID, domain.AuditCreateTicket, actor, "", map[string]interface{}{"workflow_name": workflowName}, correlationID)
}

func (w *Writer) WriteSubmitForm(ctx context.Context, ticketID, ticketStepID domain.ID, actor domain.ActorContext, formValues map[string]interface{}, correlationID string) (*domain.AuditEvent, error) {
	return w.WriteEvent(ctx, ticketID, domain.AuditSubmitForm, actor, ticketStepID, map[string]interface{}{"field_count": len(formValues)}, correlationID)
}

func (w *Writer) WriteApprove(ctx context.Context, ticketID, ticketStepID domain.ID, actor domain.ActorContext, comment, correlationID string) (*domain.AuditEvent, error) {
	return w.WriteEvent(ctx, ticketID, domain.AuditApprove, actor, ticketStepID, map[string]interface{}{"comment": comment}, correlationID)
}

func (w *Writer) WriteReject(ctx context.Context, ticketID, ticketStepID domain.ID, actor domain.ActorContext, comment, correlationID string) (*domain.AuditEvent, error) {
	return w.WriteEvent(ctx, ticketID, domain.AuditReject, actor, ticketStepID, map[string]interface{}{"comment": comment}, correlationID)
}

func (w *Writer) WriteCompleteTask(ctx context.Context, ticketID, ticketStepID domain.ID, actor domain.ActorContext, correlationID string) (*domain.AuditEvent, error) {
	return w.WriteEvent(ctx, ticketID, domain.AuditCompleteTask, actor, ticketStepID, nil, correlationID)
}

func (w *Writer) WriteCancelTicket(ctx context.Context, ticketID domain.ID, actor domain.ActorContext, reason, correlationID string) (*domain.AuditEvent, error) {
	return w.WriteEvent(ctx, ticketID, domain.AuditCancelTicket, actor, "", map[string]interface{}{"reason": reason}, correlationID)
}

// WriteUserOnboarded records the trigger that caused a principal to be
// auto-registered or granted a new persona (§4.7).
func (w *Writer) WriteUserOnboarded(ctx context.Context, ticketID domain.ID, actor domain.ActorContext, onboarded domain.UserRef, trigger domain.OnboardTrigger, personas []domain.Persona, correlationID string) (*domain.AuditEvent, error) {
	return w.WriteEvent(ctx, ticketID, domain.AuditUserOnboarded, actor, "", map[string]interface{}{
		"onboarded_email": onboarded.Email,
		"trigger":         trigger,
		"personas":        personas,
	}, correlationID)
}
