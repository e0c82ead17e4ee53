// Package engine implements the workflow engine: ticket creation, step
// activation dispatch, the transition/event model, fork/join completion,
// and the lifecycle actions (hold/resume, info requests, handovers, SLA
// acknowledgment) that drive a ticket from creation to a terminal status
// (§4.4-§4.9).
package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/novaflow/ticketflow/internal/audit"
	"github.com/novaflow/ticketflow/internal/domain"
	"github.com/novaflow/ticketflow/internal/identity"
	"github.com/novaflow/ticketflow/internal/outbox"
	"github.com/novaflow/ticketflow/internal/subworkflow"
	"github.com/novaflow/ticketflow/internal/telemetry"
)

// Tickets is the subset of store.TicketRepository the engine needs.
type Tickets interface {
	Create(ctx context.Context, t *domain.Ticket) error
	Get(ctx context.Context, id domain.ID) (*domain.Ticket, error)
	Update(ctx context.Context, t *domain.Ticket, expectedVersion int) error
}

// TicketSteps is the subset of store.TicketStepRepository the engine needs.
type TicketSteps interface {
	Create(ctx context.Context, s *domain.TicketStep) error
	Get(ctx context.Context, id domain.ID) (*domain.TicketStep, error)
	Update(ctx context.Context, s *domain.TicketStep, expectedVersion int) error
	ListForTicket(ctx context.Context, ticketID domain.ID) ([]*domain.TicketStep, error)
}

// ApprovalTasks is the subset of store.ApprovalTaskRepository the engine needs.
type ApprovalTasks interface {
	Create(ctx context.Context, a *domain.ApprovalTask) error
	Get(ctx context.Context, id domain.ID) (*domain.ApprovalTask, error)
	Update(ctx context.Context, a *domain.ApprovalTask, expectedVersion int) error
	ListForStep(ctx context.Context, ticketStepID domain.ID) ([]*domain.ApprovalTask, error)
	ListPendingForPrincipal(ctx context.Context, actor domain.UserRef) ([]*domain.ApprovalTask, error)
}

// Assignments is the subset of store.AssignmentRepository the engine needs.
type Assignments interface {
	Create(ctx context.Context, a *domain.Assignment) error
	Update(ctx context.Context, a *domain.Assignment, expectedVersion int) error
	FindActiveForStep(ctx context.Context, ticketStepID domain.ID) (*domain.Assignment, error)
	ListForStep(ctx context.Context, ticketStepID domain.ID) ([]*domain.Assignment, error)
}

// InfoRequests is the subset of store.InfoRequestRepository the engine needs.
type InfoRequests interface {
	Create(ctx context.Context, r *domain.InfoRequest) error
	Update(ctx context.Context, r *domain.InfoRequest, expectedVersion int) error
	FindOpenForStep(ctx context.Context, ticketStepID domain.ID) (*domain.InfoRequest, error)
}

// HandoverRequests is the subset of store.HandoverRequestRepository the
// engine needs.
type HandoverRequests interface {
	Create(ctx context.Context, r *domain.HandoverRequest) error
	Update(ctx context.Context, r *domain.HandoverRequest, expectedVersion int) error
	FindPendingForStep(ctx context.Context, ticketStepID domain.ID) (*domain.HandoverRequest, error)
}

// Workflows is the subset of store.WorkflowRepository the engine needs.
type Workflows interface {
	GetTemplate(ctx context.Context, id domain.ID) (*domain.WorkflowTemplate, error)
	GetVersion(ctx context.Context, id domain.ID) (*domain.WorkflowVersion, error)
	LatestPublished(ctx context.Context, templateID domain.ID) (*domain.WorkflowVersion, error)
	GetVersionByNumber(ctx context.Context, templateID domain.ID, number int) (*domain.WorkflowVersion, error)
}

// Directory resolves a principal's manager, the one directory lookup the
// engine depends on (§4.4 "resolve the requester's manager"). Wiring a real
// directory/HR collaborator is out of scope (§1); callers supply a stub or
// a thin client of their own.
type Directory interface {
	ManagerOf(ctx context.Context, principal domain.UserRef) (*domain.UserRef, error)
}

// Service implements the workflow engine (§4.4-§4.9).
type Service struct {
	tickets      Tickets
	steps        TicketSteps
	approvals    ApprovalTasks
	assignments  Assignments
	infoRequests InfoRequests
	handovers    HandoverRequests
	workflows    Workflows
	directory    Directory

	onboard   *identity.Onboarder
	subwf     *subworkflow.Expander
	outbox    *outbox.Outbox
	audit     *audit.Writer
	telemetry *telemetry.Telemetry

	ids   domain.IDGen
	clock domain.Clock
}

// Deps bundles Service's collaborators; passed as one struct since the
// engine has more dependencies than comfortably fit a positional
// constructor.
type Deps struct {
	Tickets      Tickets
	Steps        TicketSteps
	Approvals    ApprovalTasks
	Assignments  Assignments
	InfoRequests InfoRequests
	Handovers    HandoverRequests
	Workflows    Workflows
	Directory    Directory
	Onboard      *identity.Onboarder
	SubWorkflows *subworkflow.Expander
	Outbox       *outbox.Outbox
	Audit        *audit.Writer
	Telemetry    *telemetry.Telemetry
	IDs          domain.IDGen
	Clock        domain.Clock
}

func New(d Deps) *Service {
	return &Service{
		tickets: d.Tickets, steps: d.Steps, approvals: d.Approvals,
		assignments: d.Assignments, infoRequests: d.InfoRequests, handovers: d.Handovers,
		workflows: d.Workflows, directory: d.Directory,
		onboard: d.Onboard, subwf: d.SubWorkflows, outbox: d.Outbox, audit: d.Audit,
		telemetry: d.Telemetry,
		ids:       d.IDs, clock: d.Clock,
	}
}

func (s *Service) notify(ctx context.Context, ticketID domain.ID, template domain.TemplateKey, category domain.NotificationCategory, recipients []domain.UserRef, payload map[string]interface{}, correlationID string) {
	if s.outbox == nil || len(recipients) == 0 {
		return
	}
	_, _ = s.outbox.Enqueue(ctx, template, category, dedupeUsers(recipients), payload, ticketID, correlationID)
}

func (s *Service) auditEvent(ctx context.Context, ticketID domain.ID, eventType domain.AuditEventType, actor domain.ActorContext, ticketStepID domain.ID, details map[string]interface{}, correlationID string) {
	if s.audit == nil {
		return
	}
	_, _ = s.audit.WriteEvent(ctx, ticketID, eventType, actor, ticketStepID, details, correlationID)
}

func dedupeUsers(users []domain.UserRef) []domain.UserRef {
	seen := map[string]bool{}
	var out []domain.UserRef
	for _, u := range users {
		key := u.Email
		if key == "" {
			continue
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, u)
	}
	return out
}

// onboardTrigger auto-onboards a principal assuming responsibility for a
// step and records the triggering reason (§4.7). A nil onboarder (engines
// built without an access store wired) makes this a no-op.
func (s *Service) onboardTrigger(ctx context.Context, principal domain.UserRef, persona domain.Persona, trigger domain.OnboardTrigger, actor domain.ActorContext, ticketID domain.ID, correlationID string) {
	if s.onboard == nil || principal.Email == "" {
		return
	}
	_, _ = s.onboard.Ensure(ctx, principal, persona, trigger, actor, ticketID, correlationID)
}

// startTicketSpan opens the run span covering a ticket's whole lifetime. A
// nil telemetry collaborator makes this a no-op, the same pattern notify
// and auditEvent follow for their own optional collaborators.
func (s *Service) startTicketSpan(ctx context.Context, ticketID domain.ID, workflowName, correlationID string) context.Context {
	if s.telemetry == nil {
		return ctx
	}
	return s.telemetry.StartTicketSpan(ctx, ticketID, workflowName, correlationID)
}

func (s *Service) endTicketSpan(ctx context.Context, ticketID domain.ID, workflowName, status string) {
	if s.telemetry == nil {
		return
	}
	s.telemetry.EndTicketSpan(ctx, ticketID, workflowName, status)
}

// startStepSpan opens the span around one step's activation dispatch. The
// returned span/started values must flow to a matching endStepSpan call
// even when telemetry is nil, in which case span is nil and endStepSpan
// no-ops on it.
func (s *Service) startStepSpan(ctx context.Context, ticketID domain.ID, stepID string, stepType domain.StepType, correlationID string) (context.Context, trace.Span, time.Time) {
	if s.telemetry == nil {
		return ctx, nil, time.Time{}
	}
	return s.telemetry.StartStepSpan(ctx, ticketID, stepID, stepType, correlationID)
}

func (s *Service) endStepSpan(span trace.Span, started time.Time, stepType domain.StepType, err error) {
	if s.telemetry == nil || span == nil {
		return
	}
	s.telemetry.EndStepSpan(span, started, stepType, err)
}
