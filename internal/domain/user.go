package domain

import "strings"

// UserRef is a snapshot of a directory principal as known at the time it
// was captured (§3). DirectoryID is the stable identifier (e.g. an Azure
// AD object id); Email is compared case-insensitively everywhere.
type UserRef struct {
	DirectoryID string `json:"directory_id,omitempty"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
}

// SameUser is the single identity-matching predicate used by every
// component (permission guard, approver resolution, info-request
// targeting, onboarding dedup). Two UserRefs denote the same person when
// their directory ids match; when either id is missing, case-insensitive
// email equality is authoritative. This is deliberately the ONLY place
// aliasing rules live (§9 design notes).
func SameUser(a, b *UserRef) bool {
	if a == nil || b == nil {
		return false
	}
	if a.DirectoryID != "" && b.DirectoryID != "" {
		return a.DirectoryID == b.DirectoryID
	}
	return strings.EqualFold(a.Email, b.Email)
}

// SameUserEmail compares a UserRef against a bare email, case-insensitively.
func SameUserEmail(a *UserRef, email string) bool {
	if a == nil {
		return false
	}
	return strings.EqualFold(a.Email, email)
}

// ActorContext describes the authenticated principal initiating an action
// (§6, GLOSSARY).
type ActorContext struct {
	DirectoryID string
	Email       string
	DisplayName string
	Roles       []string
}

// Ref converts the actor into a UserRef snapshot for audit/assignment use.
func (a ActorContext) Ref() UserRef {
	return UserRef{DirectoryID: a.DirectoryID, Email: a.Email, DisplayName: a.DisplayName}
}

// HasRole reports whether the actor carries the named role.
func (a ActorContext) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}
