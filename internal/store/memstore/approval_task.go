package memstore

import (
	"context"
	"sync"

	"github.com/novaflow/ticketflow/internal/domain"
	"github.com/novaflow/ticketflow/internal/store"
)

// ApprovalTaskRepo is the in-memory store.ApprovalTaskRepository.
type ApprovalTaskRepo struct {
	c      *collection[domain.ApprovalTask]
	byStep map[domain.ID][]domain.ID
	mu     sync.Mutex
}

func NewApprovalTaskRepo() *ApprovalTaskRepo {
	return &ApprovalTaskRepo{c: newCollection[domain.ApprovalTask](), byStep: make(map[domain.ID][]domain.ID)}
}

func (r *ApprovalTaskRepo) Create(ctx context.Context, a *domain.ApprovalTask) error {
	defer r.c.lock()()
	a.Version = 1
	cp := *a
	r.c.rows[a.ApprovalTaskID] = &cp
	r.mu.Lock()
	r.byStep[a.TicketStepID] = append(r.byStep[a.TicketStepID], a.ApprovalTaskID)
	r.mu.Unlock()
	return nil
}

func (r *ApprovalTaskRepo) Get(ctx context.Context, id domain.ID) (*domain.ApprovalTask, error) {
	row, ok := r.c.get(id)
	if !ok {
		return nil, store.NotFoundError(domain.KindNotFound, "approval task", id)
	}
	cp := *row
	return &cp, nil
}

func (r *ApprovalTaskRepo) Update(ctx context.Context, a *domain.ApprovalTask, expectedVersion int) error {
	defer r.c.lock()()
	row, ok := r.c.rows[a.ApprovalTaskID]
	if !ok {
		return store.NotFoundError(domain.KindNotFound, "approval task", a.ApprovalTaskID)
	}
	if row.Version != expectedVersion {
		return store.ConcurrencyError("approval task", a.ApprovalTaskID, expectedVersion, row.Version)
	}
	cp := *a
	cp.Version = expectedVersion + 1
	r.c.rows[a.ApprovalTaskID] = &cp
	*a = cp
	return nil
}

func (r *ApprovalTaskRepo) ListForStep(ctx context.Context, ticketStepID domain.ID) ([]*domain.ApprovalTask, error) {
	r.mu.Lock()
	ids := append([]domain.ID(nil), r.byStep[ticketStepID]...)
	r.mu.Unlock()

	out := make([]*domain.ApprovalTask, 0, len(ids))
	for _, id := range ids {
		if row, ok := r.c.get(id); ok {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *ApprovalTaskRepo) ListPendingForPrincipal(ctx context.Context, actor domain.UserRef) ([]*domain.ApprovalTask, error) {
	var out []*domain.ApprovalTask
	for _, row := range r.c.all() {
		if row.Decision != domain.DecisionPending {
			continue
		}
		if domain.SameUser(&row.Approver, &actor) {
			cp := *row
			out = append(out, &cp)
		}
	}
	return out, nil
}

var _ store.ApprovalTaskRepository = (*ApprovalTaskRepo)(nil)
