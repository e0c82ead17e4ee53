package memstore

import (
	"context"
	"sync"

	"github.com/novaflow/ticketflow/internal/domain"
	"github.com/novaflow/ticketflow/internal/store"
)

// TicketStepRepo is the in-memory store.TicketStepRepository.
type TicketStepRepo struct {
	c *collection[domain.TicketStep]
	// order preserves creation order per ticket so ListForTicket returns
	// a stable sequence without depending on map iteration order.
	order map[domain.ID][]domain.ID
	mu    sync.Mutex
}

func NewTicketStepRepo() *TicketStepRepo {
	return &TicketStepRepo{c: newCollection[domain.TicketStep](), order: make(map[domain.ID][]domain.ID)}
}

func (r *TicketStepRepo) Create(ctx context.Context, s *domain.TicketStep) error {
	defer r.c.lock()()
	s.Version = 1
	cp := *s
	r.c.rows[s.TicketStepID] = &cp
	r.mu.Lock()
	r.order[s.TicketID] = append(r.order[s.TicketID], s.TicketStepID)
	r.mu.Unlock()
	return nil
}

func (r *TicketStepRepo) Get(ctx context.Context, id domain.ID) (*domain.TicketStep, error) {
	row, ok := r.c.get(id)
	if !ok {
		return nil, store.NotFoundError(domain.KindStepNotFound, "ticket step", id)
	}
	cp := *row
	return &cp, nil
}

func (r *TicketStepRepo) Update(ctx context.Context, s *domain.TicketStep, expectedVersion int) error {
	defer r.c.lock()()
	row, ok := r.c.rows[s.TicketStepID]
	if !ok {
		return store.NotFoundError(domain.KindStepNotFound, "ticket step", s.TicketStepID)
	}
	if row.Version != expectedVersion {
		return store.ConcurrencyError("ticket step", s.TicketStepID, expectedVersion, row.Version)
	}
	cp := *s
	cp.Version = expectedVersion + 1
	r.c.rows[s.TicketStepID] = &cp
	*s = cp
	return nil
}

func (r *TicketStepRepo) ListForTicket(ctx context.Context, ticketID domain.ID) ([]*domain.TicketStep, error) {
	r.mu.Lock()
	ids := append([]domain.ID(nil), r.order[ticketID]...)
	r.mu.Unlock()

	out := make([]*domain.TicketStep, 0, len(ids))
	for _, id := range ids {
		if row, ok := r.c.get(id); ok {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

var _ store.TicketStepRepository = (*TicketStepRepo)(nil)
