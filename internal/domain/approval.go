package domain

import "time"

// ApprovalTask is one per approver on an APPROVAL_STEP (§3).
type ApprovalTask struct {
	ApprovalTaskID ID
	TicketStepID   ID
	Approver       UserRef
	Decision       ApprovalDecision
	Comment        string
	DecidedAt      *time.Time
	Version        int
}

// Assignment is the history of task-step assignments; a new one is
// created on each assign/reassign and the previous active one is closed
// out (§3).
type Assignment struct {
	AssignmentID ID
	TicketStepID ID
	Assignee     UserRef
	AssignedBy   UserRef
	Status       AssignmentStatus
	Reason       string
	StartedAt    time.Time
	EndedAt      *time.Time
	Version      int
}

// InfoRequest is an open-response side thread on a step (§3). At most one
// OPEN request may exist per step at a time.
type InfoRequest struct {
	InfoRequestID       ID
	TicketStepID        ID
	TicketID            ID
	RequestedBy         UserRef
	RequestedFrom       UserRef
	RecipientStepType   StepType
	Subject             string
	Question            string
	Status              InfoRequestStatus
	Response            string
	ResponseAttachments []string
	CreatedAt           time.Time
	RespondedAt         *time.Time
	Version             int
}

// HandoverRequest is a task assignee's request to hand off (§3). At most
// one PENDING request may exist per step at a time.
type HandoverRequest struct {
	HandoverRequestID ID
	TicketStepID      ID
	RequestedBy       UserRef
	Reason            string
	Status            HandoverRequestStatus
	DecidedBy         *UserRef
	NewAssignee       *UserRef
	CreatedAt         time.Time
	DecidedAt         *time.Time
	Version           int
}
