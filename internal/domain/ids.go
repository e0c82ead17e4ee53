package domain

import (
	"strings"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// ID is an opaque, prefixed entity identifier (e.g. "T-3f9c...").
type ID string

// String implements fmt.Stringer.
func (id ID) String() string { return string(id) }

// HasPrefix reports whether id carries the given type prefix.
func (id ID) HasPrefix(prefix string) bool {
	return strings.HasPrefix(string(id), prefix)
}

// Prefixes for every opaque ID kind in the data model (§3).
const (
	PrefixTicket           = "T-"
	PrefixTicketStep       = "TS-"
	PrefixChangeRequest    = "CR-"
	PrefixApprovalTask     = "AT-"
	PrefixAssignment       = "AS-"
	PrefixInfoRequest      = "IR-"
	PrefixHandoverRequest  = "HR-"
	PrefixAuditEvent       = "AE-"
	PrefixNotification     = "NO-"
	PrefixWorkflowTemplate = "WF-"
	PrefixWorkflowVersion  = "WV-"
	PrefixUserAccess       = "UA-"
)

// IDGen generates opaque, type-prefixed identifiers.
//
// Audit event ids are generated as ULIDs so the append-only log is
// lexicographically time-ordered without relying on a sequence column;
// every other entity id is a prefixed UUIDv4.
type IDGen interface {
	New(prefix string) ID
	NewAuditEventID() ID
}

// UUIDGen is the default IDGen, backed by google/uuid and oklog/ulid.
// ulid.Make uses a process-wide monotonic entropy source, so audit event
// ids generated within the same millisecond still sort in call order.
type UUIDGen struct{}

// NewUUIDGen builds the default generator.
func NewUUIDGen() *UUIDGen {
	return &UUIDGen{}
}

func (g *UUIDGen) New(prefix string) ID {
	return ID(prefix + uuid.NewString())
}

func (g *UUIDGen) NewAuditEventID() ID {
	return ID(PrefixAuditEvent + ulid.Make().String())
}
