package domain

import "time"

// FieldChange is one (step_id, field_key) diff entry between a CR's
// original and proposed form values, decorated with display labels (§3).
type FieldChange struct {
	StepID   string
	StepName string
	FieldKey string
	Label    string
	OldValue interface{}
	NewValue interface{}
}

// AttachmentChange is one ADDED/REMOVED attachment diff entry (§3).
type AttachmentChange struct {
	Kind           AttachmentChangeKind
	AttachmentID   string
	OriginalName   string
}

// ChangeRequest is a requester's proposed mutation of form_values and
// attachment_ids on an IN_PROGRESS ticket (§3, §4.8).
type ChangeRequest struct {
	ChangeRequestID ID
	TicketID        ID

	OriginalData map[string]interface{}
	ProposedData map[string]interface{}

	OriginalAttachmentIDs []string
	ProposedAttachmentIDs []string

	FieldChanges      []FieldChange
	AttachmentChanges []AttachmentChange

	FromVersion int
	ToVersion   int

	Approver UserRef
	Reason   string
	Notes    string

	Status ChangeRequestStatus

	CreatedAt  time.Time
	DecidedAt  *time.Time
	Version    int
}
