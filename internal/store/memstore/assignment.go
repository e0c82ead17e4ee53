package memstore

import (
	"context"
	"sync"

	"github.com/novaflow/ticketflow/internal/domain"
	"github.com/novaflow/ticketflow/internal/store"
)

// AssignmentRepo is the in-memory store.AssignmentRepository.
type AssignmentRepo struct {
	c      *collection[domain.Assignment]
	byStep map[domain.ID][]domain.ID
	mu     sync.Mutex
}

func NewAssignmentRepo() *AssignmentRepo {
	return &AssignmentRepo{c: newCollection[domain.Assignment](), byStep: make(map[domain.ID][]domain.ID)}
}

func (r *AssignmentRepo) Create(ctx context.Context, a *domain.Assignment) error {
	defer r.c.lock()()
	a.Version = 1
	cp := *a
	r.c.rows[a.AssignmentID] = &cp
	r.mu.Lock()
	r.byStep[a.TicketStepID] = append(r.byStep[a.TicketStepID], a.AssignmentID)
	r.mu.Unlock()
	return nil
}

func (r *AssignmentRepo) Update(ctx context.Context, a *domain.Assignment, expectedVersion int) error {
	defer r.c.lock()()
	row, ok := r.c.rows[a.AssignmentID]
	if !ok {
		return store.NotFoundError(domain.KindNotFound, "assignment", a.AssignmentID)
	}
	if row.Version != expectedVersion {
		return store.ConcurrencyError("assignment", a.AssignmentID, expectedVersion, row.Version)
	}
	cp := *a
	cp.Version = expectedVersion + 1
	r.c.rows[a.AssignmentID] = &cp
	*a = cp
	return nil
}

func (r *AssignmentRepo) FindActiveForStep(ctx context.Context, ticketStepID domain.ID) (*domain.Assignment, error) {
	rows, err := r.ListForStep(ctx, ticketStepID)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.Status == domain.AssignmentActive {
			return row, nil
		}
	}
	return nil, nil
}

func (r *AssignmentRepo) ListForStep(ctx context.Context, ticketStepID domain.ID) ([]*domain.Assignment, error) {
	r.mu.Lock()
	ids := append([]domain.ID(nil), r.byStep[ticketStepID]...)
	r.mu.Unlock()

	out := make([]*domain.Assignment, 0, len(ids))
	for _, id := range ids {
		if row, ok := r.c.get(id); ok {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

var _ store.AssignmentRepository = (*AssignmentRepo)(nil)
