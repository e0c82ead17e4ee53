package memstore

import (
	"context"
	"time"

	"github.com/novaflow/ticketflow/internal/domain"
	"github.com/novaflow/ticketflow/internal/store"
)

// NotificationRepo is the in-memory store.NotificationRepository.
type NotificationRepo struct {
	c *collection[domain.NotificationOutbox]
}

func NewNotificationRepo() *NotificationRepo {
	return &NotificationRepo{c: newCollection[domain.NotificationOutbox]()}
}

func (r *NotificationRepo) Create(ctx context.Context, n *domain.NotificationOutbox) error {
	defer r.c.lock()()
	n.Version = 1
	cp := *n
	r.c.rows[n.NotificationID] = &cp
	return nil
}

func (r *NotificationRepo) Update(ctx context.Context, n *domain.NotificationOutbox, expectedVersion int) error {
	defer r.c.lock()()
	row, ok := r.c.rows[n.NotificationID]
	if !ok {
		return store.NotFoundError(domain.KindNotFound, "notification", n.NotificationID)
	}
	if row.Version != expectedVersion {
		return store.ConcurrencyError("notification", n.NotificationID, expectedVersion, row.Version)
	}
	cp := *n
	cp.Version = expectedVersion + 1
	r.c.rows[n.NotificationID] = &cp
	*n = cp
	return nil
}

// ListDue returns PENDING/retryable notifications whose NextAttempt has
// elapsed and are not currently held by a scheduler worker's advisory lock.
func (r *NotificationRepo) ListDue(ctx context.Context, before time.Time) ([]*domain.NotificationOutbox, error) {
	var out []*domain.NotificationOutbox
	for _, row := range r.c.all() {
		// FAILED rows remain due for retry; EXHAUSTED (retry cap hit) and
		// SENT rows are terminal and never reselected.
		if row.Status != domain.NotificationPending && row.Status != domain.NotificationFailed {
			continue
		}
		if row.LockedBy != "" {
			continue
		}
		if row.NextAttempt.After(before) {
			continue
		}
		cp := *row
		out = append(out, &cp)
	}
	return out, nil
}

var _ store.NotificationRepository = (*NotificationRepo)(nil)
