package domain

import "time"

// Ticket is the running workflow instance (§3).
type Ticket struct {
	TicketID ID

	WorkflowID      ID
	WorkflowVersion int

	Title       string
	Description string
	Status      TicketStatus

	// Exactly one of CurrentStepID / ActiveBranches is authoritative while
	// IN_PROGRESS (invariant 1, §3).
	CurrentStepID  string
	ActiveBranches []BranchState

	Requester       UserRef
	ManagerSnapshot *UserRef

	FormValues   map[string]interface{}
	FormVersions []FormVersion
	FormVersion  int

	AttachmentIDs []string

	JoinProceeded     bool
	PendingEndStepID  string

	PendingChangeRequestID ID
	crLock                 *time.Time // internal: CAS lock window for CR creation (§4.8)

	PreviousStatus TicketStatus

	Version int

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// CRLock returns the change-request creation lock timestamp, if held.
func (t *Ticket) CRLock() *time.Time { return t.crLock }

// SetCRLock sets or clears the CR creation lock.
func (t *Ticket) SetCRLock(at *time.Time) { t.crLock = at }

// BranchState tracks one parallel branch's progress between a fork and
// its join (§3).
type BranchState struct {
	ParentForkStepID string
	BranchID         string
	BranchName       string
	CurrentStepID    string
	State            StepState // ACTIVE, COMPLETED, REJECTED, CANCELLED, SKIPPED
}

// FormVersion is a dense, monotonic snapshot of form values/attachments (§3, §4.8).
type FormVersion struct {
	Version       int
	Source        FormVersionSource
	FormValues    map[string]interface{}
	AttachmentIDs []string
	CapturedBy    *UserRef
	CapturedAt    time.Time
}

// BranchIdentity is the (branch_id, branch_name, parent_fork_step_id)
// triple a ticket step carries when it lives inside a fork's branch (§3).
type BranchIdentity struct {
	BranchID         string
	BranchName       string
	ParentForkStepID string
}

// SubWorkflowIdentity is the identity a ticket step carries when it was
// materialized by expanding a sub-workflow into the parent ticket (§3).
// Version pins the exact workflow version that was expanded, so the step's
// own definition can be re-resolved independently of whatever version the
// enclosing ticket itself runs.
type SubWorkflowIdentity struct {
	ParentSubWorkflowStepID ID
	FromSubWorkflowID       ID
	FromSubWorkflowName     string
	Version                 int
}

// TicketStep is a materialized per-ticket instance of a step definition (§3).
type TicketStep struct {
	TicketStepID ID
	TicketID     ID
	StepID       string
	StepName     string
	StepType     StepType

	State      StepState
	AssignedTo *UserRef

	Data StepData

	StartedAt   *time.Time
	DueAt       *time.Time
	CompletedAt *time.Time

	PreviousState *StepState

	Branch      *BranchIdentity
	SubWorkflow *SubWorkflowIdentity

	HoldReason string

	Version int
}

// StepData embeds the per-step runtime payload: form values, outputs,
// instructions, notes, draft values, linked rows, and parallel-approval
// tracking lists (§3).
type StepData struct {
	FormValues   map[string]interface{}
	OutputValues map[string]interface{}
	Instructions string
	Notes        []Note
	DraftValues  map[string]interface{}
	LinkedRows   []LinkedRow

	ParallelPendingApprovers   []string // emails still pending
	ParallelCompletedApprovers []string // emails that have decided
	ParallelApproversInfo      []UserRef
	PrimaryApproverEmail       string
}

// Note is one free-form activity-log entry attached to a step.
type Note struct {
	Author        UserRef
	Content       string
	AttachmentIDs []string
	CreatedAt     time.Time
}

// LinkedRow is one pre-populated task row sourced from an earlier form
// step's repeating section (§4.4).
type LinkedRow struct {
	SourceRowIndex int
	Context        map[string]LinkedCell
}

// LinkedCell is one {value,label} pair of a LinkedRow's context.
type LinkedCell struct {
	Value interface{}
	Label string
}
