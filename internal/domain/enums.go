package domain

// TicketStatus is the ticket's global lifecycle status (§3).
type TicketStatus string

const (
	TicketOpen                 TicketStatus = "OPEN"
	TicketInProgress           TicketStatus = "IN_PROGRESS"
	TicketWaitingForRequester  TicketStatus = "WAITING_FOR_REQUESTER"
	TicketWaitingForAgent      TicketStatus = "WAITING_FOR_AGENT"
	TicketWaitingForCR         TicketStatus = "WAITING_FOR_CR"
	TicketOnHold               TicketStatus = "ON_HOLD"
	TicketCompleted            TicketStatus = "COMPLETED"
	TicketRejected             TicketStatus = "REJECTED"
	TicketSkipped              TicketStatus = "SKIPPED"
	TicketCancelled            TicketStatus = "CANCELLED"
)

// IsTerminal reports whether the ticket status absorbs (invariant 2, §3).
func (s TicketStatus) IsTerminal() bool {
	switch s {
	case TicketCompleted, TicketRejected, TicketSkipped, TicketCancelled:
		return true
	}
	return false
}

// StepState is the per-ticket-step runtime state (§3).
type StepState string

const (
	StepNotStarted         StepState = "NOT_STARTED"
	StepActive             StepState = "ACTIVE"
	StepWaitingForApproval StepState = "WAITING_FOR_APPROVAL"
	StepWaitingForRequester StepState = "WAITING_FOR_REQUESTER"
	StepWaitingForAgent    StepState = "WAITING_FOR_AGENT"
	StepWaitingForBranches StepState = "WAITING_FOR_BRANCHES"
	StepWaitingForCR       StepState = "WAITING_FOR_CR"
	StepCompleted          StepState = "COMPLETED"
	StepRejected           StepState = "REJECTED"
	StepSkipped            StepState = "SKIPPED"
	StepCancelled          StepState = "CANCELLED"
	StepOnHold             StepState = "ON_HOLD"
)

// IsTerminal reports whether the step state absorbs (invariant 2, §3).
func (s StepState) IsTerminal() bool {
	switch s {
	case StepCompleted, StepRejected, StepSkipped, StepCancelled:
		return true
	}
	return false
}

// Pausable reports whether a step in this state is moved to
// WAITING_FOR_CR when a change request pauses the ticket (§4.8).
func (s StepState) Pausable() bool {
	switch s {
	case StepActive, StepWaitingForApproval, StepWaitingForRequester, StepWaitingForAgent, StepWaitingForBranches:
		return true
	}
	return false
}

// StepType is the tagged-variant discriminator for step definitions (§3).
type StepType string

const (
	StepTypeForm        StepType = "FORM_STEP"
	StepTypeApproval    StepType = "APPROVAL_STEP"
	StepTypeTask        StepType = "TASK_STEP"
	StepTypeNotify      StepType = "NOTIFY_STEP"
	StepTypeFork        StepType = "FORK_STEP"
	StepTypeJoin        StepType = "JOIN_STEP"
	StepTypeSubWorkflow StepType = "SUB_WORKFLOW_STEP"
)

// ForkJoinMode controls how a JOIN_STEP decides completion (§4.5).
type ForkJoinMode string

const (
	JoinAll      ForkJoinMode = "ALL"
	JoinAny      ForkJoinMode = "ANY"
	JoinMajority ForkJoinMode = "MAJORITY"
)

// BranchFailurePolicy controls what a FORK_STEP does when a branch fails (§4.5).
type BranchFailurePolicy string

const (
	FailAll         BranchFailurePolicy = "FAIL_ALL"
	ContinueOthers  BranchFailurePolicy = "CONTINUE_OTHERS"
	CancelOthers    BranchFailurePolicy = "CANCEL_OTHERS"
)

// ApprovalDecision is one approver's outcome on an ApprovalTask (§3).
type ApprovalDecision string

const (
	DecisionPending   ApprovalDecision = "PENDING"
	DecisionApproved  ApprovalDecision = "APPROVED"
	DecisionRejected  ApprovalDecision = "REJECTED"
	DecisionSkipped   ApprovalDecision = "SKIPPED"
	DecisionCancelled ApprovalDecision = "CANCELLED"
)

// ApproverResolution is the strategy an APPROVAL_STEP uses to find its
// approver(s) (§4.6).
type ApproverResolution string

const (
	ResolveRequesterManager ApproverResolution = "REQUESTER_MANAGER"
	ResolveSpecificEmail    ApproverResolution = "SPECIFIC_EMAIL"
	ResolveSpocEmail        ApproverResolution = "SPOC_EMAIL"
	ResolveConditional      ApproverResolution = "CONDITIONAL"
	ResolveStepAssignee     ApproverResolution = "STEP_ASSIGNEE"
	ResolveFromLookup       ApproverResolution = "FROM_LOOKUP"
)

// ParallelApprovalRule controls join semantics among parallel approvers on
// one APPROVAL_STEP (§3).
type ParallelApprovalRule string

const (
	ParallelAll ParallelApprovalRule = "ALL"
	ParallelAny ParallelApprovalRule = "ANY"
)

// AssignmentStatus tracks a TASK_STEP's assignment history (§3).
type AssignmentStatus string

const (
	AssignmentActive     AssignmentStatus = "ACTIVE"
	AssignmentReassigned AssignmentStatus = "REASSIGNED"
	AssignmentCompleted  AssignmentStatus = "COMPLETED"
)

// InfoRequestStatus tracks an open-response side thread on a step (§3).
type InfoRequestStatus string

const (
	InfoRequestOpen      InfoRequestStatus = "OPEN"
	InfoRequestResponded InfoRequestStatus = "RESPONDED"
	InfoRequestClosed    InfoRequestStatus = "CLOSED"
	InfoRequestCancelled InfoRequestStatus = "CANCELLED"
)

// HandoverRequestStatus tracks a task assignee's handoff request (§3).
type HandoverRequestStatus string

const (
	HandoverPending   HandoverRequestStatus = "PENDING"
	HandoverApproved  HandoverRequestStatus = "APPROVED"
	HandoverRejected  HandoverRequestStatus = "REJECTED"
	HandoverCancelled HandoverRequestStatus = "CANCELLED"
)

// ChangeRequestStatus tracks a CR's lifecycle (§3, §4.8).
type ChangeRequestStatus string

const (
	CRPending   ChangeRequestStatus = "PENDING"
	CRApproved  ChangeRequestStatus = "APPROVED"
	CRRejected  ChangeRequestStatus = "REJECTED"
	CRCancelled ChangeRequestStatus = "CANCELLED"
)

// AttachmentChangeKind classifies one attachment diff entry (§4.8).
type AttachmentChangeKind string

const (
	AttachmentAdded   AttachmentChangeKind = "ADDED"
	AttachmentRemoved AttachmentChangeKind = "REMOVED"
)

// FormVersionSource records why a FormVersion snapshot was taken.
type FormVersionSource string

const (
	FormVersionInitial        FormVersionSource = "INITIAL"
	FormVersionChangeRequest  FormVersionSource = "CHANGE_REQUEST"
)

// WorkflowStatus is a template version's publication state.
type WorkflowStatus string

const (
	WorkflowDraft    WorkflowStatus = "DRAFT"
	WorkflowPublished WorkflowStatus = "PUBLISHED"
	WorkflowArchived  WorkflowStatus = "ARCHIVED"
)

// NotificationStatus is the outbox delivery state (§3, §4.10).
type NotificationStatus string

const (
	NotificationPending NotificationStatus = "PENDING"
	NotificationSent    NotificationStatus = "SENT"
	// NotificationFailed is retryable: ListDue re-selects it until
	// RetryCount reaches MaxAttempts.
	NotificationFailed NotificationStatus = "FAILED"
	// NotificationExhausted is terminal: the retry cap was hit and the
	// row is parked for an operator/dead-letter concern, never re-selected.
	NotificationExhausted NotificationStatus = "EXHAUSTED"
)

// NotificationCategory is the closed in-app category set (§6).
type NotificationCategory string

const (
	CategoryTicket      NotificationCategory = "TICKET"
	CategoryApproval    NotificationCategory = "APPROVAL"
	CategoryTask        NotificationCategory = "TASK"
	CategoryInfoRequest NotificationCategory = "INFO_REQUEST"
	CategorySystem      NotificationCategory = "SYSTEM"
)

// TemplateKey is the closed notification template enum (§6).
type TemplateKey string

const (
	TemplateTicketCreated              TemplateKey = "TICKET_CREATED"
	TemplateApprovalPending            TemplateKey = "APPROVAL_PENDING"
	TemplateApprovalReassigned         TemplateKey = "APPROVAL_REASSIGNED"
	TemplateApproved                   TemplateKey = "APPROVED"
	TemplateRejected                   TemplateKey = "REJECTED"
	TemplateSkipped                    TemplateKey = "SKIPPED"
	TemplateInfoRequested              TemplateKey = "INFO_REQUESTED"
	TemplateInfoResponded              TemplateKey = "INFO_RESPONDED"
	TemplateFormPending                TemplateKey = "FORM_PENDING"
	TemplateTaskAssigned               TemplateKey = "TASK_ASSIGNED"
	TemplateTaskReassigned             TemplateKey = "TASK_REASSIGNED"
	TemplateTaskCompleted              TemplateKey = "TASK_COMPLETED"
	TemplateNoteAdded                  TemplateKey = "NOTE_ADDED"
	TemplateRequesterNoteAdded         TemplateKey = "REQUESTER_NOTE_ADDED"
	TemplateSLAReminder                TemplateKey = "SLA_REMINDER"
	TemplateSLAEscalation              TemplateKey = "SLA_ESCALATION"
	TemplateTicketCancelled            TemplateKey = "TICKET_CANCELLED"
	TemplateTicketCompleted            TemplateKey = "TICKET_COMPLETED"
	TemplateLookupUserAssigned         TemplateKey = "LOOKUP_USER_ASSIGNED"
	TemplateChangeRequestPending       TemplateKey = "CHANGE_REQUEST_PENDING"
	TemplateChangeRequestSubmitted     TemplateKey = "CHANGE_REQUEST_SUBMITTED"
	TemplateChangeRequestApproved      TemplateKey = "CHANGE_REQUEST_APPROVED"
	TemplateChangeRequestRejected      TemplateKey = "CHANGE_REQUEST_REJECTED"
	TemplateChangeRequestCancelled     TemplateKey = "CHANGE_REQUEST_CANCELLED"
	TemplateChangeRequestWorkflowPaused  TemplateKey = "CHANGE_REQUEST_WORKFLOW_PAUSED"
	TemplateChangeRequestWorkflowResumed TemplateKey = "CHANGE_REQUEST_WORKFLOW_RESUMED"
)

// TransitionEvent is the closed set of events the engine resolves
// transitions on (§4.5).
type TransitionEvent string

const (
	EventSubmitForm         TransitionEvent = "SUBMIT_FORM"
	EventApprove            TransitionEvent = "APPROVE"
	EventReject             TransitionEvent = "REJECT"
	EventSkip               TransitionEvent = "SKIP"
	EventCompleteTask       TransitionEvent = "COMPLETE_TASK"
	EventRequestInfo        TransitionEvent = "REQUEST_INFO"
	EventRespondInfo        TransitionEvent = "RESPOND_INFO"
	EventAssignAgent        TransitionEvent = "ASSIGN_AGENT"
	EventReassignAgent      TransitionEvent = "REASSIGN_AGENT"
	EventCancel             TransitionEvent = "CANCEL"
	EventOnHold             TransitionEvent = "ON_HOLD"
	EventResume             TransitionEvent = "RESUME"
	EventSkipStep           TransitionEvent = "SKIP_STEP"
	EventHandoverRequest    TransitionEvent = "HANDOVER_REQUEST"
	EventAcknowledgeSLA     TransitionEvent = "ACKNOWLEDGE_SLA"
	EventForkActivated      TransitionEvent = "FORK_ACTIVATED"
	EventBranchCompleted    TransitionEvent = "BRANCH_COMPLETED"
	EventJoinComplete       TransitionEvent = "JOIN_COMPLETE"
	EventSubWorkflowStart   TransitionEvent = "SUB_WORKFLOW_START"
	EventSubWorkflowDone    TransitionEvent = "SUB_WORKFLOW_COMPLETED"
	EventSubWorkflowFailed  TransitionEvent = "SUB_WORKFLOW_FAILED"
	// EventNotifyComplete is the outgoing event a NOTIFY_STEP's own
	// transition fires on once its notifications are enqueued, the same
	// way JOIN_COMPLETE and FORK_ACTIVATED drive the other non-interactive
	// step types onward.
	EventNotifyComplete TransitionEvent = "NOTIFY_COMPLETE"
)

// AuditEventType is the closed set of audit log entry kinds (§4.10).
type AuditEventType string

const (
	AuditCreateTicket               AuditEventType = "CREATE_TICKET"
	AuditSubmitForm                 AuditEventType = "SUBMIT_FORM"
	AuditApprove                    AuditEventType = "APPROVE"
	AuditReject                     AuditEventType = "REJECT"
	AuditSkip                       AuditEventType = "SKIP"
	AuditRequestInfo                AuditEventType = "REQUEST_INFO"
	AuditRespondInfo                AuditEventType = "RESPOND_INFO"
	AuditAssignAgent                AuditEventType = "ASSIGN_AGENT"
	AuditReassignAgent              AuditEventType = "REASSIGN_AGENT"
	AuditReassignApproval           AuditEventType = "REASSIGN_APPROVAL"
	AuditCompleteTask               AuditEventType = "COMPLETE_TASK"
	AuditNoteAdded                  AuditEventType = "NOTE_ADDED"
	AuditRequesterNoteAdded         AuditEventType = "REQUESTER_NOTE_ADDED"
	AuditCancelTicket               AuditEventType = "CANCEL_TICKET"
	AuditTicketCompleted            AuditEventType = "TICKET_COMPLETED"
	AuditSLAReminder                AuditEventType = "SLA_REMINDER"
	AuditSLAEscalation              AuditEventType = "SLA_ESCALATION"
	AuditSLAAcknowledged            AuditEventType = "SLA_ACKNOWLEDGED"
	AuditEngineError                AuditEventType = "ENGINE_ERROR"
	AuditStepActivated              AuditEventType = "STEP_ACTIVATED"
	AuditStepCompleted              AuditEventType = "STEP_COMPLETED"
	AuditStepSkipped                AuditEventType = "STEP_SKIPPED"
	AuditStepCancelled              AuditEventType = "STEP_CANCELLED"
	AuditPutOnHold                  AuditEventType = "PUT_ON_HOLD"
	AuditResumed                    AuditEventType = "RESUMED"
	AuditHandoverRequested          AuditEventType = "HANDOVER_REQUESTED"
	AuditHandoverApproved           AuditEventType = "HANDOVER_APPROVED"
	AuditHandoverRejected           AuditEventType = "HANDOVER_REJECTED"
	AuditHandoverCancelled          AuditEventType = "HANDOVER_CANCELLED"
	AuditForkActivated              AuditEventType = "FORK_ACTIVATED"
	AuditBranchStarted              AuditEventType = "BRANCH_STARTED"
	AuditBranchCompleted            AuditEventType = "BRANCH_COMPLETED"
	AuditBranchFailed               AuditEventType = "BRANCH_FAILED"
	AuditJoinWaiting                AuditEventType = "JOIN_WAITING"
	AuditJoinCompleted              AuditEventType = "JOIN_COMPLETED"
	AuditSubWorkflowStarted         AuditEventType = "SUB_WORKFLOW_STARTED"
	AuditSubWorkflowCompleted       AuditEventType = "SUB_WORKFLOW_COMPLETED"
	AuditSubWorkflowFailed          AuditEventType = "SUB_WORKFLOW_FAILED"
	AuditNotifySent                 AuditEventType = "NOTIFY_SENT"
	AuditChangeRequestCreated       AuditEventType = "CHANGE_REQUEST_CREATED"
	AuditChangeRequestApproved      AuditEventType = "CHANGE_REQUEST_APPROVED"
	AuditChangeRequestRejected      AuditEventType = "CHANGE_REQUEST_REJECTED"
	AuditChangeRequestCancelled     AuditEventType = "CHANGE_REQUEST_CANCELLED"
	AuditChangeRequestWorkflowPaused  AuditEventType = "CHANGE_REQUEST_WORKFLOW_PAUSED"
	AuditChangeRequestWorkflowResumed AuditEventType = "CHANGE_REQUEST_WORKFLOW_RESUMED"
	AuditUserOnboarded                AuditEventType = "USER_ONBOARDED"
)

// FormFieldType is the supported set of form field input kinds (§3, §4.11).
type FormFieldType string

const (
	FieldText             FormFieldType = "TEXT"
	FieldTextarea         FormFieldType = "TEXTAREA"
	FieldNumber           FormFieldType = "NUMBER"
	FieldDate             FormFieldType = "DATE"
	FieldSelect           FormFieldType = "SELECT"
	FieldMultiSelect      FormFieldType = "MULTISELECT"
	FieldCheckbox         FormFieldType = "CHECKBOX"
	FieldFile             FormFieldType = "FILE"
	FieldUserSelect       FormFieldType = "USER_SELECT"
	FieldLookupUserSelect FormFieldType = "LOOKUP_USER_SELECT"
)

// ConditionOperator is the closed operator set for the Condition Evaluator
// DSL (§4.2).
type ConditionOperator string

const (
	OpEquals             ConditionOperator = "EQUALS"
	OpNotEquals          ConditionOperator = "NOT_EQUALS"
	OpGreaterThan        ConditionOperator = "GREATER_THAN"
	OpLessThan           ConditionOperator = "LESS_THAN"
	OpGreaterThanOrEqual ConditionOperator = "GREATER_THAN_OR_EQUALS"
	OpLessThanOrEqual    ConditionOperator = "LESS_THAN_OR_EQUALS"
	OpContains           ConditionOperator = "CONTAINS"
	OpNotContains        ConditionOperator = "NOT_CONTAINS"
	OpIn                 ConditionOperator = "IN"
	OpNotIn              ConditionOperator = "NOT_IN"
	OpIsEmpty            ConditionOperator = "IS_EMPTY"
	OpIsNotEmpty         ConditionOperator = "IS_NOT_EMPTY"
)

// ConditionLogic joins sibling conditions within a group (§3).
type ConditionLogic string

const (
	LogicAnd ConditionLogic = "AND"
	LogicOr  ConditionLogic = "OR"
)
