package memstore

import (
	"context"
	"sync"

	"github.com/novaflow/ticketflow/internal/domain"
	"github.com/novaflow/ticketflow/internal/store"
)

// ChangeRequestRepo is the in-memory store.ChangeRequestRepository.
type ChangeRequestRepo struct {
	c        *collection[domain.ChangeRequest]
	byTicket map[domain.ID][]domain.ID
	mu       sync.Mutex
}

func NewChangeRequestRepo() *ChangeRequestRepo {
	return &ChangeRequestRepo{c: newCollection[domain.ChangeRequest](), byTicket: make(map[domain.ID][]domain.ID)}
}

func (r *ChangeRequestRepo) Create(ctx context.Context, cr *domain.ChangeRequest) error {
	defer r.c.lock()()
	cr.Version = 1
	cp := *cr
	r.c.rows[cr.ChangeRequestID] = &cp
	r.mu.Lock()
	r.byTicket[cr.TicketID] = append(r.byTicket[cr.TicketID], cr.ChangeRequestID)
	r.mu.Unlock()
	return nil
}

func (r *ChangeRequestRepo) Get(ctx context.Context, id domain.ID) (*domain.ChangeRequest, error) {
	row, ok := r.c.get(id)
	if !ok {
		return nil, store.NotFoundError(domain.KindNotFound, "change request", id)
	}
	cp := *row
	return &cp, nil
}

func (r *ChangeRequestRepo) Update(ctx context.Context, cr *domain.ChangeRequest, expectedVersion int) error {
	defer r.c.lock()()
	row, ok := r.c.rows[cr.ChangeRequestID]
	if !ok {
		return store.NotFoundError(domain.KindNotFound, "change request", cr.ChangeRequestID)
	}
	if row.Version != expectedVersion {
		return store.ConcurrencyError("change request", cr.ChangeRequestID, expectedVersion, row.Version)
	}
	cp := *cr
	cp.Version = expectedVersion + 1
	r.c.rows[cr.ChangeRequestID] = &cp
	*cr = cp
	return nil
}

func (r *ChangeRequestRepo) FindPendingForTicket(ctx context.Context, ticketID domain.ID) (*domain.ChangeRequest, error) {
	r.mu.Lock()
	ids := append([]domain.ID(nil), r.byTicket[ticketID]...)
	r.mu.Unlock()

	for _, id := range ids {
		row, ok := r.c.get(id)
		if ok && row.Status == domain.CRPending {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

var _ store.ChangeRequestRepository = (*ChangeRequestRepo)(nil)
