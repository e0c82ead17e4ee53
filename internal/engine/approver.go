package engine

import (
	"strings"

	"github.com/novaflow/ticketflow/internal/condition"
	"github.com/novaflow/ticketflow/internal/domain"
)

// resolvedApprover is a resolution strategy's result: one primary
// decision-maker plus, for FROM_LOOKUP, every secondary to notify
// alongside them (§4.6).
type resolvedApprover struct {
	Primary     domain.UserRef
	Secondaries []domain.UserRef
}

// resolveApprover implements the six approver-resolution strategies in
// §4.6. steps is the ticket's materialized steps, used by STEP_ASSIGNEE.
func resolveApprover(spec *domain.ApprovalStepSpec, def *domain.Definition, ticket *domain.Ticket, steps []*domain.TicketStep) (*resolvedApprover, error) {
	switch spec.Resolution {
	case domain.ResolveRequesterManager:
		if ticket.ManagerSnapshot != nil {
			return &resolvedApprover{Primary: *ticket.ManagerSnapshot}, nil
		}
		if spec.SpocEmail != "" {
			return &resolvedApprover{Primary: emailRef(spec.SpocEmail)}, nil
		}
		return nil, approverResolutionError()

	case domain.ResolveSpecificEmail:
		if spec.SpecificEmail == "" {
			return nil, approverResolutionError()
		}
		return &resolvedApprover{Primary: emailRef(spec.SpecificEmail)}, nil

	case domain.ResolveSpocEmail:
		if spec.SpocEmail == "" {
			return nil, approverResolutionError()
		}
		return &resolvedApprover{Primary: emailRef(spec.SpocEmail)}, nil

	case domain.ResolveConditional:
		context := map[string]interface{}{"form_values": ticket.FormValues}
		for _, rule := range spec.Rules {
			if condition.Evaluate(rule.When, context) && rule.Approver != "" {
				return &resolvedApprover{Primary: emailRef(rule.Approver)}, nil
			}
		}
		if spec.FallbackEmail != "" {
			return &resolvedApprover{Primary: emailRef(spec.FallbackEmail)}, nil
		}
		if spec.SpocEmail != "" {
			return &resolvedApprover{Primary: emailRef(spec.SpocEmail)}, nil
		}
		if ticket.ManagerSnapshot != nil {
			return &resolvedApprover{Primary: *ticket.ManagerSnapshot}, nil
		}
		return nil, approverResolutionError()

	case domain.ResolveStepAssignee:
		if assignee := assigneeOfStep(steps, spec.SourceStepID); assignee != nil {
			return &resolvedApprover{Primary: *assignee}, nil
		}
		if spec.SpocEmail != "" {
			return &resolvedApprover{Primary: emailRef(spec.SpocEmail)}, nil
		}
		if ticket.ManagerSnapshot != nil {
			return &resolvedApprover{Primary: *ticket.ManagerSnapshot}, nil
		}
		return nil, approverResolutionError()

	case domain.ResolveFromLookup:
		primary, secondaries, ok := resolveFromLookup(spec, def, ticket)
		if ok {
			return &resolvedApprover{Primary: primary, Secondaries: secondaries}, nil
		}
		if spec.SpocEmail != "" {
			return &resolvedApprover{Primary: emailRef(spec.SpocEmail)}, nil
		}
		if ticket.ManagerSnapshot != nil {
			return &resolvedApprover{Primary: *ticket.ManagerSnapshot}, nil
		}
		return nil, approverResolutionError()

	default:
		return nil, approverResolutionError()
	}
}

func resolveFromLookup(spec *domain.ApprovalStepSpec, def *domain.Definition, ticket *domain.Ticket) (domain.UserRef, []domain.UserRef, bool) {
	key := lookupKeyValue(ticket.FormValues, spec.LookupKeyField)
	if key == "" {
		return domain.UserRef{}, nil, false
	}
	for _, table := range def.Lookups {
		if table.Name != spec.LookupTable {
			continue
		}
		for _, row := range table.Rows {
			if row.Key == key {
				return row.PrimaryUser, row.SecondaryUsers, true
			}
		}
	}
	return domain.UserRef{}, nil, false
}

// lookupKeyValue reads a dotted field path ("step_id.field_key") out of
// form_values, the same addressing the condition evaluator uses.
func lookupKeyValue(formValues map[string]interface{}, path string) string {
	parts := strings.SplitN(path, ".", 2)
	if len(parts) != 2 {
		return ""
	}
	stepValues, ok := formValues[parts[0]].(map[string]interface{})
	if !ok {
		return ""
	}
	v, _ := stepValues[parts[1]].(string)
	return v
}

func assigneeOfStep(steps []*domain.TicketStep, stepID string) *domain.UserRef {
	for _, s := range steps {
		if s.StepID == stepID {
			return s.AssignedTo
		}
	}
	return nil
}

func emailRef(email string) domain.UserRef {
	return domain.UserRef{Email: email, DisplayName: localPart(email)}
}

func localPart(email string) string {
	if i := strings.IndexByte(email, '@'); i >= 0 {
		return email[:i]
	}
	return email
}

func approverResolutionError() *domain.Error {
	return domain.New(domain.KindApproverResolution, "could not resolve an approver for this approval step")
}

// buildParallelApprovers assembles the approver set for a parallel
// approval step: the single specific approver if configured, plus the
// chain of configured fallback emails, choosing a primary explicitly or
// defaulting to the first (§4.4).
func buildParallelApprovers(spec *domain.ApprovalStepSpec) []domain.UserRef {
	var emails []string
	if spec.PrimaryApprover != "" {
		emails = append(emails, spec.PrimaryApprover)
	}
	emails = append(emails, spec.FallbackChain...)

	seen := map[string]bool{}
	var out []domain.UserRef
	for _, e := range emails {
		key := strings.ToLower(e)
		if e == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, emailRef(e))
	}
	return out
}
