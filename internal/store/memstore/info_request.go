package memstore

import (
	"context"
	"sync"

	"github.com/novaflow/ticketflow/internal/domain"
	"github.com/novaflow/ticketflow/internal/store"
)

// InfoRequestRepo is the in-memory store.InfoRequestRepository.
type InfoRequestRepo struct {
	c      *collection[domain.InfoRequest]
	byStep map[domain.ID][]domain.ID
	mu     sync.Mutex
}

func NewInfoRequestRepo() *InfoRequestRepo {
	return &InfoRequestRepo{c: newCollection[domain.InfoRequest](), byStep: make(map[domain.ID][]domain.ID)}
}

func (r *InfoRequestRepo) Create(ctx context.Context, req *domain.InfoRequest) error {
	defer r.c.lock()()
	req.Version = 1
	cp := *req
	r.c.rows[req.InfoRequestID] = &cp
	r.mu.Lock()
	r.byStep[req.TicketStepID] = append(r.byStep[req.TicketStepID], req.InfoRequestID)
	r.mu.Unlock()
	return nil
}

func (r *InfoRequestRepo) Update(ctx context.Context, req *domain.InfoRequest, expectedVersion int) error {
	defer r.c.lock()()
	row, ok := r.c.rows[req.InfoRequestID]
	if !ok {
		return store.NotFoundError(domain.KindNotFound, "info request", req.InfoRequestID)
	}
	if row.Version != expectedVersion {
		return store.ConcurrencyError("info request", req.InfoRequestID, expectedVersion, row.Version)
	}
	cp := *req
	cp.Version = expectedVersion + 1
	r.c.rows[req.InfoRequestID] = &cp
	*req = cp
	return nil
}

// FindOpenForStep implements the §8 invariant 5 uniqueness lookup: at most
// one OPEN info request may exist per step, so the first match suffices.
func (r *InfoRequestRepo) FindOpenForStep(ctx context.Context, ticketStepID domain.ID) (*domain.InfoRequest, error) {
	r.mu.Lock()
	ids := append([]domain.ID(nil), r.byStep[ticketStepID]...)
	r.mu.Unlock()

	for _, id := range ids {
		row, ok := r.c.get(id)
		if ok && row.Status == domain.InfoRequestOpen {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

var _ store.InfoRequestRepository = (*InfoRequestRepo)(nil)
