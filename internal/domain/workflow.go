package domain

import "time"

// WorkflowTemplate is a named, categorized workflow (§3).
type WorkflowTemplate struct {
	TemplateID  ID
	Name        string
	Category    string
	Status      WorkflowStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// WorkflowVersion is an immutable published snapshot of a template's
// definition (§3). Number is monotonically increasing per template.
type WorkflowVersion struct {
	VersionID  ID
	TemplateID ID
	Number     int
	Definition Definition
	Status     WorkflowStatus
	PublishedAt *time.Time
	CreatedAt  time.Time
}

// Definition is a directed graph: an ordered collection of step
// definitions and an ordered collection of transitions (§3).
type Definition struct {
	Steps       []StepDefinition
	Transitions []Transition
	Lookups     []LookupTable
}

// StepByID finds a step definition by its declared step_id.
func (d *Definition) StepByID(stepID string) *StepDefinition {
	for i := range d.Steps {
		if d.Steps[i].StepID == stepID {
			return &d.Steps[i]
		}
	}
	return nil
}

// SLA declares an optional due-by window for a step (§3).
type SLA struct {
	DueMinutes int
}

// StepDefinition carries the fields common to every step kind plus one
// populated kind-specific payload (§3). Modelled as a tagged variant:
// exactly one of the *Spec fields is non-nil for a given StepType.
type StepDefinition struct {
	StepID     string
	StepName   string
	StepType   StepType
	IsTerminal bool
	SLA        *SLA

	Form        *FormStepSpec
	Approval    *ApprovalStepSpec
	Task        *TaskStepSpec
	Notify      *NotifyStepSpec
	Fork        *ForkStepSpec
	Join        *JoinStepSpec
	SubWorkflow *SubWorkflowStepSpec
}

// FormStepSpec is the FORM_STEP payload (§3).
type FormStepSpec struct {
	Sections []FormSection
	Fields   []FormFieldDefinition
}

// FormSection groups fields for display purposes only.
type FormSection struct {
	SectionID string
	Title     string
	Repeating bool
}

// FormFieldDefinition describes one field's type and validation (§3, §4.11).
type FormFieldDefinition struct {
	FieldKey    string
	Label       string
	FieldType   FormFieldType
	SectionID   string
	Required    bool
	MinLength   *int
	MaxLength   *int
	Pattern     string
	Min         *float64
	Max         *float64
	MinDate     *time.Time
	MaxDate     *time.Time
	LookupTable string // bound lookup table name, for LOOKUP_USER_SELECT
	LookupKeyField string // sibling field whose value keys the lookup

	// ConditionalRequired marks the field required only when this group is
	// satisfied against the in-progress form values (§3).
	ConditionalRequired *ConditionGroup
}

// ApprovalStepSpec is the APPROVAL_STEP payload (§3, §4.6).
type ApprovalStepSpec struct {
	Resolution ApproverResolution

	// REQUESTER_MANAGER
	SpocEmail string

	// SPECIFIC_EMAIL
	SpecificEmail string

	// CONDITIONAL
	Rules           []ConditionalApproverRule
	FallbackEmail   string

	// STEP_ASSIGNEE
	SourceStepID string

	// FROM_LOOKUP
	LookupTable   string
	LookupKeyField string

	// Parallel approval
	Parallel         bool
	ParallelRule     ParallelApprovalRule
	PrimaryApprover  string // explicit primary email, optional
	FallbackChain    []string
}

// ConditionalApproverRule is one ordered rule of a CONDITIONAL approval (§4.6).
type ConditionalApproverRule struct {
	When     *ConditionGroup
	Approver string
}

// TaskStepSpec is the TASK_STEP payload (§3).
type TaskStepSpec struct {
	OutputFields       []FormFieldDefinition
	LinkedSectionID    string // repeating section on an earlier form step
	LinkedSourceStepID string
}

// NotifyStepSpec is the NOTIFY_STEP payload (§3).
type NotifyStepSpec struct {
	Recipients  []NotifyRecipient
	TemplateKey TemplateKey
}

// NotifyRecipient is one of the closed recipient roles a NOTIFY_STEP can
// target (§3).
type NotifyRecipient string

const (
	RecipientRequester     NotifyRecipient = "requester"
	RecipientAssignedAgent NotifyRecipient = "assigned_agent"
	RecipientApprovers     NotifyRecipient = "approvers"
)

// ForkStepSpec is the FORK_STEP payload (§3).
type ForkStepSpec struct {
	Branches       []BranchDefinition
	FailurePolicy  BranchFailurePolicy
}

// BranchDefinition is one parallel branch of a FORK_STEP (§3).
type BranchDefinition struct {
	BranchID    string
	BranchName  string
	StartStepID string
}

// JoinStepSpec is the JOIN_STEP payload (§3).
type JoinStepSpec struct {
	SourceForkStepID string
	JoinMode         ForkJoinMode
}

// SubWorkflowStepSpec is the SUB_WORKFLOW_STEP payload (§3).
type SubWorkflowStepSpec struct {
	WorkflowID ID
	Version    int
}

// Transition is (from_step_id, on_event, to_step_id, condition, priority) (§3).
type Transition struct {
	FromStepID string
	OnEvent    TransitionEvent
	ToStepID   string
	Condition  *ConditionGroup
	Priority   int
	// Order is the transition's declaration order within the definition,
	// used to break priority ties deterministically (§3).
	Order int
}

// ConditionGroup is a tree of comparisons joined by AND/OR (§3, §4.2).
type ConditionGroup struct {
	Logic      ConditionLogic // defaults to AND when empty
	Conditions []Condition
	Groups     []ConditionGroup // nested sub-groups, combined with Logic
}

// Condition is a single field comparison (§4.2).
type Condition struct {
	Field    string
	Operator ConditionOperator
	Value    interface{}
}

// LookupTable backs FROM_LOOKUP approver resolution and
// LOOKUP_USER_SELECT fields (§4.12).
type LookupTable struct {
	Name string
	Rows []LookupRow
}

// LookupRow is one keyed entry of a LookupTable.
type LookupRow struct {
	Key             string
	PrimaryUser     UserRef
	SecondaryUsers  []UserRef
}
