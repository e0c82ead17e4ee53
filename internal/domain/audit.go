package domain

import "time"

// AuditEvent is one append-only entry in the ticket's activity log (§3, §4.10).
type AuditEvent struct {
	AuditEventID  ID
	TicketID      ID
	TicketStepID  ID // empty when the event is ticket-scoped
	EventType     AuditEventType
	Actor         UserRef
	Details       map[string]interface{}
	Timestamp     time.Time
	CorrelationID string
}
