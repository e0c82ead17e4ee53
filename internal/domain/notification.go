package domain

import "time"

// NotificationOutbox is a durable, at-least-once delivery record (§3, §4.10).
type NotificationOutbox struct {
	NotificationID ID
	TemplateKey    TemplateKey
	Category       NotificationCategory
	Recipients     []UserRef
	Payload        map[string]interface{}

	Status      NotificationStatus
	RetryCount  int
	NextAttempt time.Time

	// LockedBy/LockedAt implement the per-row advisory lock a scheduler
	// worker holds for the duration of one send attempt (§5).
	LockedBy string
	LockedAt *time.Time

	CorrelationID string
	TicketID      ID

	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int
}
