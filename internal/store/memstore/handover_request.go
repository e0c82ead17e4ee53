package memstore

import (
	"context"
	"sync"

	"github.com/novaflow/ticketflow/internal/domain"
	"github.com/novaflow/ticketflow/internal/store"
)

// HandoverRequestRepo is the in-memory store.HandoverRequestRepository.
type HandoverRequestRepo struct {
	c      *collection[domain.HandoverRequest]
	byStep map[domain.ID][]domain.ID
	mu     sync.Mutex
}

func NewHandoverRequestRepo() *HandoverRequestRepo {
	return &HandoverRequestRepo{c: newCollection[domain.HandoverRequest](), byStep: make(map[domain.ID][]domain.ID)}
}

func (r *HandoverRequestRepo) Create(ctx context.Context, req *domain.HandoverRequest) error {
	defer r.c.lock()()
	req.Version = 1
	cp := *req
	r.c.rows[req.HandoverRequestID] = &cp
	r.mu.Lock()
	r.byStep[req.TicketStepID] = append(r.byStep[req.TicketStepID], req.HandoverRequestID)
	r.mu.Unlock()
	return nil
}

func (r *HandoverRequestRepo) Update(ctx context.Context, req *domain.HandoverRequest, expectedVersion int) error {
	defer r.c.lock()()
	row, ok := r.c.rows[req.HandoverRequestID]
	if !ok {
		return store.NotFoundError(domain.KindNotFound, "handover request", req.HandoverRequestID)
	}
	if row.Version != expectedVersion {
		return store.ConcurrencyError("handover request", req.HandoverRequestID, expectedVersion, row.Version)
	}
	cp := *req
	cp.Version = expectedVersion + 1
	r.c.rows[req.HandoverRequestID] = &cp
	*req = cp
	return nil
}

func (r *HandoverRequestRepo) FindPendingForStep(ctx context.Context, ticketStepID domain.ID) (*domain.HandoverRequest, error) {
	r.mu.Lock()
	ids := append([]domain.ID(nil), r.byStep[ticketStepID]...)
	r.mu.Unlock()

	for _, id := range ids {
		row, ok := r.c.get(id)
		if ok && row.Status == domain.HandoverPending {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

var _ store.HandoverRequestRepository = (*HandoverRequestRepo)(nil)
