package memstore

import (
	"context"
	"sync"

	"github.com/novaflow/ticketflow/internal/domain"
	"github.com/novaflow/ticketflow/internal/store"
)

// AuditRepo is the in-memory store.AuditRepository. Append-only: events are
// never updated or deleted once written (§4.10).
type AuditRepo struct {
	mu       sync.Mutex
	events   []*domain.AuditEvent
	byTicket map[domain.ID][]int
}

func NewAuditRepo() *AuditRepo {
	return &AuditRepo{byTicket: make(map[domain.ID][]int)}
}

func (r *AuditRepo) Append(ctx context.Context, e *domain.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	r.events = append(r.events, &cp)
	r.byTicket[e.TicketID] = append(r.byTicket[e.TicketID], len(r.events)-1)
	return nil
}

func (r *AuditRepo) ListForTicket(ctx context.Context, ticketID domain.ID) ([]*domain.AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idxs := r.byTicket[ticketID]
	out := make([]*domain.AuditEvent, 0, len(idxs))
	for _, i := range idxs {
		cp := *r.events[i]
		out = append(out, &cp)
	}
	return out, nil
}

var _ store.AuditRepository = (*AuditRepo)(nil)
