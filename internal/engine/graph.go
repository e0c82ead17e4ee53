package engine

import "github.com/novaflow/ticketflow/internal/domain"

// startStepID returns the definition's entry point: the one step never
// targeted by any transition's ToStepID. Declaration order breaks ties if
// the definition is malformed with more than one candidate.
func startStepID(def *domain.Definition) string {
	targeted := make(map[string]bool, len(def.Transitions))
	for _, t := range def.Transitions {
		targeted[t.ToStepID] = true
	}
	for _, step := range def.Steps {
		if !targeted[step.StepID] {
			return step.StepID
		}
	}
	if len(def.Steps) > 0 {
		return def.Steps[0].StepID
	}
	return ""
}

// branchStepIDs walks forward from a branch's start step along
// unconditional/declared transitions, collecting every step reached up to
// but not including the step that is the branch's own JOIN_STEP (§4.4).
// It stops at any JOIN_STEP (not just the fork's own) to avoid wandering
// into a sibling fork's join on malformed definitions, and stops
// revisiting steps to tolerate cycles.
func branchStepIDs(def *domain.Definition, startStepID string) []string {
	var out []string
	seen := map[string]bool{}
	queue := []string{startStepID}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true

		step := def.StepByID(id)
		if step == nil {
			continue
		}
		if step.StepType == domain.StepTypeJoin {
			continue
		}
		out = append(out, id)

		for _, t := range def.Transitions {
			if t.FromStepID == id && !seen[t.ToStepID] {
				queue = append(queue, t.ToStepID)
			}
		}
	}
	return out
}

// precomputeBranchIdentities returns, for every step reachable inside any
// FORK_STEP's branches (up to but not including each branch's JOIN), the
// BranchIdentity it should carry when materialized (§4.4).
func precomputeBranchIdentities(def *domain.Definition) map[string]*domain.BranchIdentity {
	out := map[string]*domain.BranchIdentity{}
	for _, step := range def.Steps {
		if step.StepType != domain.StepTypeFork || step.Fork == nil {
			continue
		}
		for _, branch := range step.Fork.Branches {
			identity := &domain.BranchIdentity{
				BranchID:         branch.BranchID,
				BranchName:       branch.BranchName,
				ParentForkStepID: step.StepID,
			}
			for _, stepID := range branchStepIDs(def, branch.StartStepID) {
				out[stepID] = identity
			}
		}
	}
	return out
}

// joinForFork finds the JOIN_STEP whose source fork is forkStepID.
func joinForFork(def *domain.Definition, forkStepID string) *domain.StepDefinition {
	for i := range def.Steps {
		step := &def.Steps[i]
		if step.StepType == domain.StepTypeJoin && step.Join != nil && step.Join.SourceForkStepID == forkStepID {
			return step
		}
	}
	return nil
}
