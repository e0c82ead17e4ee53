package store

import (
	"fmt"

	"github.com/novaflow/ticketflow/internal/domain"
)

// ConcurrencyError builds the *domain.Error a conditional update raises on
// a version mismatch (§4.1, §7). No caller in this module retries on it;
// the engine and action layers return it to their own caller unchanged.
func ConcurrencyError(entity string, id domain.ID, expected, actual int) *domain.Error {
	return domain.New(domain.KindConcurrency,
		fmt.Sprintf("%s %s: expected version %d, found %d", entity, id, expected, actual))
}

// NotFoundError builds the *domain.Error a missing-document lookup raises.
func NotFoundError(kind domain.Kind, entity string, id domain.ID) *domain.Error {
	return domain.New(kind, fmt.Sprintf("%s %s not found", entity, id))
}
