// Package identity auto-onboards previously-unknown principals the moment
// they become responsible for a step — an approval assignment, a task
// assignment, a reassignment, or a handover decision (§4.7).
package identity

import (
	"context"

	"github.com/novaflow/ticketflow/internal/audit"
	"github.com/novaflow/ticketflow/internal/domain"
)

// Repository is the access-store collaborator onboarding needs; satisfied
// directly by store.AccessRepository.
type Repository interface {
	Create(ctx context.Context, a *domain.UserAccess) error
	Update(ctx context.Context, a *domain.UserAccess, expectedVersion int) error
	FindByEmail(ctx context.Context, email string) (*domain.UserAccess, error)
	FindByDirectoryID(ctx context.Context, directoryID string) (*domain.UserAccess, error)
}

// Onboarder registers principals and grants them personas the first time
// they're needed, tolerating races against concurrent registration.
type Onboarder struct {
	repo  Repository
	ids   domain.IDGen
	clock domain.Clock
	audit *audit.Writer
}

func New(repo Repository, ids domain.IDGen, clock domain.Clock, auditWriter *audit.Writer) *Onboarder {
	return &Onboarder{repo: repo, ids: ids, clock: clock, audit: auditWriter}
}

// Ensure registers principal with persona if not already held, auditing the
// trigger that caused it. It is idempotent: an existing holder of persona is
// left untouched. ticketID is the ticket that triggered onboarding, threaded
// onto the audit entry; it may be empty for out-of-band registration.
func (o *Onboarder) Ensure(ctx context.Context, principal domain.UserRef, persona domain.Persona, trigger domain.OnboardTrigger, triggeredBy domain.ActorContext, ticketID domain.ID, correlationID string) (*domain.UserAccess, error) {
	existing, err := o.lookup(ctx, principal)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		if existing.HasPersona(persona) {
			return existing, nil
		}
		return o.grant(ctx, existing, persona, trigger, triggeredBy, ticketID, correlationID)
	}

	now := o.clock.Now()
	created := &domain.UserAccess{
		UserAccessID: o.ids.New(domain.PrefixUserAccess),
		Email:        principal.Email,
		DirectoryID:  principal.DirectoryID,
		DisplayName:  principal.DisplayName,
		Personas:     map[domain.Persona]bool{persona: true},
		GrantedBy:    triggeredBy.Email,
		GrantedAt:    now,
		UpdatedAt:    now,
	}
	if err := o.repo.Create(ctx, created); err != nil {
		// A concurrent caller may have created the same record first
		// (duplicate-key race, §4.7); re-read and grant the persona onto it
		// instead of failing the triggering action.
		existing, lookupErr := o.lookup(ctx, principal)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if existing == nil {
			return nil, err
		}
		if existing.HasPersona(persona) {
			return existing, nil
		}
		return o.grant(ctx, existing, persona, trigger, triggeredBy, ticketID, correlationID)
	}

	if o.audit != nil {
		_, _ = o.audit.WriteUserOnboarded(ctx, ticketID, triggeredBy, principal, trigger, []domain.Persona{persona}, correlationID)
	}
	return created, nil
}

func (o *Onboarder) grant(ctx context.Context, existing *domain.UserAccess, persona domain.Persona, trigger domain.OnboardTrigger, triggeredBy domain.ActorContext, ticketID domain.ID, correlationID string) (*domain.UserAccess, error) {
	updated := *existing
	if updated.Personas == nil {
		updated.Personas = map[domain.Persona]bool{}
	} else {
		personas := make(map[domain.Persona]bool, len(existing.Personas))
		for k, v := range existing.Personas {
			personas[k] = v
		}
		updated.Personas = personas
	}
	updated.Personas[persona] = true
	updated.UpdatedAt = o.clock.Now()

	if err := o.repo.Update(ctx, &updated, existing.Version); err != nil {
		return nil, err
	}
	if o.audit != nil {
		_, _ = o.audit.WriteUserOnboarded(ctx, ticketID, triggeredBy, domain.UserRef{Email: existing.Email, DirectoryID: existing.DirectoryID, DisplayName: existing.DisplayName}, trigger, []domain.Persona{persona}, correlationID)
	}
	return &updated, nil
}

func (o *Onboarder) lookup(ctx context.Context, principal domain.UserRef) (*domain.UserAccess, error) {
	if principal.DirectoryID != "" {
		if found, err := o.repo.FindByDirectoryID(ctx, principal.DirectoryID); err != nil {
			return nil, err
		} else if found != nil {
			return found, nil
		}
	}
	return o.repo.FindByEmail(ctx, principal.Email)
}

// TriggerForRole maps the role a principal is being registered for to the
// persona and default onboarding trigger (§4.7): approvals grant MANAGER,
// task assignment grants AGENT.
func TriggerForRole(persona domain.Persona) domain.OnboardTrigger {
	switch persona {
	case domain.PersonaManager:
		return domain.TriggerApprovalAssignment
	case domain.PersonaAgent:
		return domain.TriggerTaskAssignment
	default:
		return domain.TriggerManual
	}
}
