package memstore

import (
	"context"
	"strings"

	"github.com/novaflow/ticketflow/internal/domain"
	"github.com/novaflow/ticketflow/internal/store"
)

// AccessRepo is the in-memory store.AccessRepository.
type AccessRepo struct {
	c *collection[domain.UserAccess]
}

func NewAccessRepo() *AccessRepo {
	return &AccessRepo{c: newCollection[domain.UserAccess]()}
}

func (r *AccessRepo) Create(ctx context.Context, a *domain.UserAccess) error {
	defer r.c.lock()()
	a.Version = 1
	cp := *a
	r.c.rows[a.UserAccessID] = &cp
	return nil
}

func (r *AccessRepo) Update(ctx context.Context, a *domain.UserAccess, expectedVersion int) error {
	defer r.c.lock()()
	row, ok := r.c.rows[a.UserAccessID]
	if !ok {
		return store.NotFoundError(domain.KindNotFound, "user access", a.UserAccessID)
	}
	if row.Version != expectedVersion {
		return store.ConcurrencyError("user access", a.UserAccessID, expectedVersion, row.Version)
	}
	cp := *a
	cp.Version = expectedVersion + 1
	r.c.rows[a.UserAccessID] = &cp
	*a = cp
	return nil
}

func (r *AccessRepo) FindByEmail(ctx context.Context, email string) (*domain.UserAccess, error) {
	for _, row := range r.c.all() {
		if strings.EqualFold(row.Email, email) {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *AccessRepo) FindByDirectoryID(ctx context.Context, directoryID string) (*domain.UserAccess, error) {
	if directoryID == "" {
		return nil, nil
	}
	for _, row := range r.c.all() {
		if row.DirectoryID == directoryID {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

var _ store.AccessRepository = (*AccessRepo)(nil)
