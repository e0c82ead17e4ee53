package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novaflow/ticketflow/internal/audit"
	"github.com/novaflow/ticketflow/internal/domain"
)

type fakeAccessRepo struct {
	byID          map[domain.ID]*domain.UserAccess
	pendingReveal *domain.UserAccess // inserted by a "concurrent" writer, revealed once Create conflicts
}

func newFakeAccessRepo() *fakeAccessRepo {
	return &fakeAccessRepo{byID: make(map[domain.ID]*domain.UserAccess)}
}

func (r *fakeAccessRepo) Create(ctx context.Context, a *domain.UserAccess) error {
	if r.pendingReveal != nil {
		cp := *r.pendingReveal
		r.byID[cp.UserAccessID] = &cp
		r.pendingReveal = nil
		return errors.New("duplicate key")
	}
	a.Version = 1
	cp := *a
	r.byID[a.UserAccessID] = &cp
	return nil
}

func (r *fakeAccessRepo) Update(ctx context.Context, a *domain.UserAccess, expectedVersion int) error {
	row, ok := r.byID[a.UserAccessID]
	if !ok || row.Version != expectedVersion {
		return errors.New("concurrency conflict")
	}
	cp := *a
	cp.Version = expectedVersion + 1
	r.byID[a.UserAccessID] = &cp
	*a = cp
	return nil
}

func (r *fakeAccessRepo) FindByEmail(ctx context.Context, email string) (*domain.UserAccess, error) {
	for _, row := range r.byID {
		if row.Email == email {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeAccessRepo) FindByDirectoryID(ctx context.Context, directoryID string) (*domain.UserAccess, error) {
	if directoryID == "" {
		return nil, nil
	}
	for _, row := range r.byID {
		if row.DirectoryID == directoryID {
			cp := *row
			return &cp, nil
		}
	}
	return nil, nil
}

type fakeAuditRepo struct {
	events []*domain.AuditEvent
}

func (f *fakeAuditRepo) Append(ctx context.Context, e *domain.AuditEvent) error {
	f.events = append(f.events, e)
	return nil
}

func TestEnsure_NewPrincipalCreatesRecord(t *testing.T) {
	repo := newFakeAccessRepo()
	auditRepo := &fakeAuditRepo{}
	clock := domain.NewFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	o := New(repo, domain.NewUUIDGen(), clock, audit.New(auditRepo, domain.NewUUIDGen(), clock))

	principal := domain.UserRef{Email: "approver@example.com", DisplayName: "Approver"}
	actor := domain.ActorContext{Email: "requester@example.com"}

	access, err := o.Ensure(context.Background(), principal, domain.PersonaManager, domain.TriggerApprovalAssignment, actor, "ticket-1", "corr-1")
	require.NoError(t, err)
	assert.True(t, access.HasPersona(domain.PersonaManager))
	require.Len(t, auditRepo.events, 1)
	assert.Equal(t, domain.AuditUserOnboarded, auditRepo.events[0].EventType)
}

func TestEnsure_ExistingPrincipalGainsNewPersona(t *testing.T) {
	repo := newFakeAccessRepo()
	clock := domain.NewFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	o := New(repo, domain.NewUUIDGen(), clock, nil)

	principal := domain.UserRef{Email: "agent@example.com"}
	actor := domain.ActorContext{Email: "manager@example.com"}

	first, err := o.Ensure(context.Background(), principal, domain.PersonaAgent, domain.TriggerTaskAssignment, actor, "", "")
	require.NoError(t, err)
	assert.True(t, first.HasPersona(domain.PersonaAgent))
	assert.False(t, first.HasPersona(domain.PersonaManager))

	second, err := o.Ensure(context.Background(), principal, domain.PersonaManager, domain.TriggerApprovalAssignment, actor, "", "")
	require.NoError(t, err)
	assert.True(t, second.HasPersona(domain.PersonaAgent))
	assert.True(t, second.HasPersona(domain.PersonaManager))
}

func TestEnsure_AlreadyHeldPersonaIsNoop(t *testing.T) {
	repo := newFakeAccessRepo()
	clock := domain.NewFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	o := New(repo, domain.NewUUIDGen(), clock, nil)

	principal := domain.UserRef{Email: "agent@example.com"}
	actor := domain.ActorContext{Email: "manager@example.com"}

	first, err := o.Ensure(context.Background(), principal, domain.PersonaAgent, domain.TriggerTaskAssignment, actor, "", "")
	require.NoError(t, err)

	second, err := o.Ensure(context.Background(), principal, domain.PersonaAgent, domain.TriggerTaskAssignment, actor, "", "")
	require.NoError(t, err)
	assert.Equal(t, first.Version, second.Version)
}

func TestEnsure_DuplicateKeyRaceFallsBackToExisting(t *testing.T) {
	repo := newFakeAccessRepo()
	clock := domain.NewFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	o := New(repo, domain.NewUUIDGen(), clock, nil)

	principal := domain.UserRef{Email: "agent@example.com"}
	actor := domain.ActorContext{Email: "manager@example.com"}

	// Simulate a concurrent creator winning the race: the initial Lookup
	// finds nothing, Create conflicts because another writer inserted the
	// record first, and the fallback re-lookup must find it.
	repo.pendingReveal = &domain.UserAccess{
		UserAccessID: "UA-seed",
		Email:        principal.Email,
		Personas:     map[domain.Persona]bool{domain.PersonaAgent: true},
		Version:      1,
	}

	access, err := o.Ensure(context.Background(), principal, domain.PersonaManager, domain.TriggerApprovalAssignment, actor, "", "")
	require.NoError(t, err)
	assert.True(t, access.HasPersona(domain.PersonaAgent))
	assert.True(t, access.HasPersona(domain.PersonaManager))
}
