package memstore

import (
	"github.com/novaflow/ticketflow/internal/store"
)

// Store bundles one in-memory collection per document type, the way
// station's repositories.Repositories bundles its sqlite-backed repos
// behind a single handle. New returns a Store with every collection ready;
// there is no shared database connection to thread through.
type Store struct {
	Tickets          *TicketRepo
	TicketSteps      *TicketStepRepo
	ApprovalTasks    *ApprovalTaskRepo
	Assignments      *AssignmentRepo
	InfoRequests     *InfoRequestRepo
	HandoverRequests *HandoverRequestRepo
	ChangeRequests   *ChangeRequestRepo
	Audit            *AuditRepo
	Notifications    *NotificationRepo
	Workflows        *WorkflowRepo
	Access           *AccessRepo
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		Tickets:          NewTicketRepo(),
		TicketSteps:      NewTicketStepRepo(),
		ApprovalTasks:    NewApprovalTaskRepo(),
		Assignments:      NewAssignmentRepo(),
		InfoRequests:     NewInfoRequestRepo(),
		HandoverRequests: NewHandoverRequestRepo(),
		ChangeRequests:   NewChangeRequestRepo(),
		Audit:            NewAuditRepo(),
		Notifications:    NewNotificationRepo(),
		Workflows:        NewWorkflowRepo(),
		Access:           NewAccessRepo(),
	}
}

var (
	_ store.TicketRepository          = (*TicketRepo)(nil)
	_ store.TicketStepRepository       = (*TicketStepRepo)(nil)
	_ store.ApprovalTaskRepository     = (*ApprovalTaskRepo)(nil)
	_ store.AssignmentRepository       = (*AssignmentRepo)(nil)
	_ store.InfoRequestRepository      = (*InfoRequestRepo)(nil)
	_ store.HandoverRequestRepository  = (*HandoverRequestRepo)(nil)
	_ store.ChangeRequestRepository    = (*ChangeRequestRepo)(nil)
	_ store.AuditRepository            = (*AuditRepo)(nil)
	_ store.NotificationRepository     = (*NotificationRepo)(nil)
	_ store.WorkflowRepository         = (*WorkflowRepo)(nil)
	_ store.AccessRepository           = (*AccessRepo)(nil)
)
