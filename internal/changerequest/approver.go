package changerequest

import (
	"context"
	"sort"
	"strings"

	"github.com/novaflow/ticketflow/internal/domain"
)

// resolveApprover picks the change-request decision-maker: the assignee of
// the earliest-started COMPLETED approval step for this ticket, falling
// back through the workflow definition's first approval step (specific
// email → SPOC → requester's manager) (§4.8).
func (s *Service) resolveApprover(ctx context.Context, ticket *domain.Ticket, steps []*domain.TicketStep) (*domain.UserRef, error) {
	if approver := earliestCompletedApprover(steps); approver != nil {
		return approver, nil
	}

	if s.workflows != nil {
		version, err := s.workflows.GetVersionByNumber(ctx, ticket.WorkflowID, ticket.WorkflowVersion)
		if err == nil && version != nil {
			for _, step := range version.Definition.Steps {
				if step.StepType != domain.StepTypeApproval || step.Approval == nil {
					continue
				}
				if step.Approval.SpecificEmail != "" {
					return &domain.UserRef{Email: step.Approval.SpecificEmail, DisplayName: localPart(step.Approval.SpecificEmail)}, nil
				}
				if step.Approval.SpocEmail != "" {
					return &domain.UserRef{Email: step.Approval.SpocEmail, DisplayName: localPart(step.Approval.SpocEmail)}, nil
				}
				if ticket.ManagerSnapshot != nil {
					return ticket.ManagerSnapshot, nil
				}
			}
		}
	}

	if ticket.ManagerSnapshot != nil {
		return ticket.ManagerSnapshot, nil
	}
	return nil, domain.New(domain.KindApproverResolution, "could not determine first approver for change request")
}

func earliestCompletedApprover(steps []*domain.TicketStep) *domain.UserRef {
	var candidates []*domain.TicketStep
	for _, st := range steps {
		if st.StepType == domain.StepTypeApproval && st.State == domain.StepCompleted && st.AssignedTo != nil {
			candidates = append(candidates, st)
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		ti, tj := candidates[i].StartedAt, candidates[j].StartedAt
		if ti == nil || tj == nil {
			return false
		}
		return ti.Before(*tj)
	})
	return candidates[0].AssignedTo
}

func localPart(email string) string {
	if i := strings.IndexByte(email, '@'); i >= 0 {
		return email[:i]
	}
	return email
}
