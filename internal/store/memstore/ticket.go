package memstore

import (
	"context"

	"github.com/novaflow/ticketflow/internal/domain"
	"github.com/novaflow/ticketflow/internal/store"
)

// TicketRepo is the in-memory store.TicketRepository.
type TicketRepo struct {
	c *collection[domain.Ticket]
}

func NewTicketRepo() *TicketRepo { return &TicketRepo{c: newCollection[domain.Ticket]()} }

func (r *TicketRepo) Create(ctx context.Context, t *domain.Ticket) error {
	defer r.c.lock()()
	t.Version = 1
	cp := *t
	r.c.rows[t.TicketID] = &cp
	return nil
}

func (r *TicketRepo) Get(ctx context.Context, id domain.ID) (*domain.Ticket, error) {
	row, ok := r.c.get(id)
	if !ok {
		return nil, store.NotFoundError(domain.KindTicketNotFound, "ticket", id)
	}
	cp := *row
	return &cp, nil
}

func (r *TicketRepo) Update(ctx context.Context, t *domain.Ticket, expectedVersion int) error {
	defer r.c.lock()()
	row, ok := r.c.rows[t.TicketID]
	if !ok {
		return store.NotFoundError(domain.KindTicketNotFound, "ticket", t.TicketID)
	}
	if row.Version != expectedVersion {
		return store.ConcurrencyError("ticket", t.TicketID, expectedVersion, row.Version)
	}
	cp := *t
	cp.Version = expectedVersion + 1
	r.c.rows[t.TicketID] = &cp
	*t = cp
	return nil
}

func (r *TicketRepo) List(ctx context.Context) ([]*domain.Ticket, error) {
	return r.c.all(), nil
}

var _ store.TicketRepository = (*TicketRepo)(nil)
