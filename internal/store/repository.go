// Package store defines the document-store contract every entity in the
// data model (§3) is persisted through. Only the interfaces are defined
// here, per spec §1: the persistence driver implementation is an external
// collaborator. Package memstore ships one reference implementation
// (in-memory, version-CAS) used by tests and the CLI demo.
package store

import (
	"context"
	"time"

	"github.com/novaflow/ticketflow/internal/domain"
)

// Ticket, TicketStep, ApprovalTask, Assignment, InfoRequest,
// HandoverRequest, ChangeRequest, and NotificationOutbox documents are all
// conditionally updated on an integer version field (§4.1): "update
// document where id = X and version = V, setting version = V+1". A
// mismatch returns *domain.Error{Kind: KindConcurrency}.

// TicketRepository is the Ticket document collection (§3, §4.1).
type TicketRepository interface {
	Create(ctx context.Context, t *domain.Ticket) error
	Get(ctx context.Context, id domain.ID) (*domain.Ticket, error)
	// Update performs a conditional write on expectedVersion and bumps
	// Version on success.
	Update(ctx context.Context, t *domain.Ticket, expectedVersion int) error
	List(ctx context.Context) ([]*domain.Ticket, error)
}

// TicketStepRepository is the TicketStep document collection (§3, §4.1).
type TicketStepRepository interface {
	Create(ctx context.Context, s *domain.TicketStep) error
	Get(ctx context.Context, id domain.ID) (*domain.TicketStep, error)
	Update(ctx context.Context, s *domain.TicketStep, expectedVersion int) error
	// ListForTicket returns every step materialized for a ticket, in
	// creation order (the engine reconstructs display/execution order
	// from the workflow definition, §4.1).
	ListForTicket(ctx context.Context, ticketID domain.ID) ([]*domain.TicketStep, error)
}

// ApprovalTaskRepository is the ApprovalTask document collection (§3, §4.1).
type ApprovalTaskRepository interface {
	Create(ctx context.Context, a *domain.ApprovalTask) error
	Get(ctx context.Context, id domain.ID) (*domain.ApprovalTask, error)
	Update(ctx context.Context, a *domain.ApprovalTask, expectedVersion int) error
	ListForStep(ctx context.Context, ticketStepID domain.ID) ([]*domain.ApprovalTask, error)
	// ListPendingForPrincipal finds pending approval tasks assigned to a
	// principal, matching by directory id first, email second (§4.1).
	ListPendingForPrincipal(ctx context.Context, actor domain.UserRef) ([]*domain.ApprovalTask, error)
}

// AssignmentRepository is the Assignment document collection (§3, §4.1).
type AssignmentRepository interface {
	Create(ctx context.Context, a *domain.Assignment) error
	Update(ctx context.Context, a *domain.Assignment, expectedVersion int) error
	// FindActiveForStep finds the active Assignment for a step (§4.1).
	FindActiveForStep(ctx context.Context, ticketStepID domain.ID) (*domain.Assignment, error)
	ListForStep(ctx context.Context, ticketStepID domain.ID) ([]*domain.Assignment, error)
}

// InfoRequestRepository is the InfoRequest document collection (§3, §4.1).
type InfoRequestRepository interface {
	Create(ctx context.Context, r *domain.InfoRequest) error
	Update(ctx context.Context, r *domain.InfoRequest, expectedVersion int) error
	// FindOpenForStep finds the open InfoRequest for a step; the
	// uniqueness invariant is enforced by the caller, not the store
	// (§4.1, §8 invariant 5).
	FindOpenForStep(ctx context.Context, ticketStepID domain.ID) (*domain.InfoRequest, error)
}

// HandoverRequestRepository is the HandoverRequest document collection (§3, §4.1).
type HandoverRequestRepository interface {
	Create(ctx context.Context, r *domain.HandoverRequest) error
	Update(ctx context.Context, r *domain.HandoverRequest, expectedVersion int) error
	FindPendingForStep(ctx context.Context, ticketStepID domain.ID) (*domain.HandoverRequest, error)
}

// ChangeRequestRepository is the ChangeRequest document collection (§3, §4.1).
type ChangeRequestRepository interface {
	Create(ctx context.Context, cr *domain.ChangeRequest) error
	Get(ctx context.Context, id domain.ID) (*domain.ChangeRequest, error)
	Update(ctx context.Context, cr *domain.ChangeRequest, expectedVersion int) error
	FindPendingForTicket(ctx context.Context, ticketID domain.ID) (*domain.ChangeRequest, error)
}

// AuditRepository is the append-only AuditEvent collection (§3, §4.10).
type AuditRepository interface {
	Append(ctx context.Context, e *domain.AuditEvent) error
	ListForTicket(ctx context.Context, ticketID domain.ID) ([]*domain.AuditEvent, error)
}

// NotificationRepository is the NotificationOutbox collection (§3, §4.10).
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.NotificationOutbox) error
	Update(ctx context.Context, n *domain.NotificationOutbox, expectedVersion int) error
	// ListDue returns PENDING/retryable notifications whose NextAttempt
	// has elapsed, for the scheduler to claim.
	ListDue(ctx context.Context, before time.Time) ([]*domain.NotificationOutbox, error)
}

// AccessRepository is the UserAccess document collection (§3, §4.7).
type AccessRepository interface {
	Create(ctx context.Context, a *domain.UserAccess) error
	Update(ctx context.Context, a *domain.UserAccess, expectedVersion int) error
	// FindByEmail looks a principal up by email, the primary key auto-onboarding
	// dedups on (§4.7). Returns nil, nil when absent.
	FindByEmail(ctx context.Context, email string) (*domain.UserAccess, error)
	FindByDirectoryID(ctx context.Context, directoryID string) (*domain.UserAccess, error)
}

// WorkflowRepository is the WorkflowTemplate/WorkflowVersion collection
// (§3). Any published version remains loadable even after a newer one
// publishes (§3); only the most recent published version is used to
// instantiate new tickets.
type WorkflowRepository interface {
	GetTemplate(ctx context.Context, id domain.ID) (*domain.WorkflowTemplate, error)
	GetVersion(ctx context.Context, id domain.ID) (*domain.WorkflowVersion, error)
	// LatestPublished returns the highest-numbered PUBLISHED version of a
	// template.
	LatestPublished(ctx context.Context, templateID domain.ID) (*domain.WorkflowVersion, error)
	GetVersionByNumber(ctx context.Context, templateID domain.ID, number int) (*domain.WorkflowVersion, error)
}
