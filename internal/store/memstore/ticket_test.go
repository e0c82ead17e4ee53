package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novaflow/ticketflow/internal/domain"
)

func TestTicketRepo_CreateGetUpdateRoundTrip(t *testing.T) {
	repo := NewTicketRepo()
	ctx := context.Background()

	ticket := &domain.Ticket{TicketID: "t-1", Title: "Conference travel", Status: domain.TicketInProgress}
	require.NoError(t, repo.Create(ctx, ticket))
	assert.Equal(t, 1, ticket.Version)

	fetched, err := repo.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "Conference travel", fetched.Title)

	fetched.Title = "Updated title"
	require.NoError(t, repo.Update(ctx, fetched, 1))
	assert.Equal(t, 2, fetched.Version)

	again, err := repo.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "Updated title", again.Title)
}

func TestTicketRepo_Get_NotFound(t *testing.T) {
	repo := NewTicketRepo()
	_, err := repo.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, domain.KindTicketNotFound, err.(*domain.Error).Kind)
}

func TestTicketRepo_Update_VersionMismatchIsConcurrencyError(t *testing.T) {
	repo := NewTicketRepo()
	ctx := context.Background()
	ticket := &domain.Ticket{TicketID: "t-1", Status: domain.TicketInProgress}
	require.NoError(t, repo.Create(ctx, ticket))

	stale := &domain.Ticket{TicketID: "t-1", Status: domain.TicketCompleted}
	err := repo.Update(ctx, stale, 99)
	require.Error(t, err)
	assert.Equal(t, domain.KindConcurrency, err.(*domain.Error).Kind)
}

func TestTicketRepo_List_ReturnsAllCreated(t *testing.T) {
	repo := NewTicketRepo()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &domain.Ticket{TicketID: "t-1"}))
	require.NoError(t, repo.Create(ctx, &domain.Ticket{TicketID: "t-2"}))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestTicketRepo_Update_DoesNotMutateStoredCopyThroughCallerPointer(t *testing.T) {
	repo := NewTicketRepo()
	ctx := context.Background()
	ticket := &domain.Ticket{TicketID: "t-1", Title: "original"}
	require.NoError(t, repo.Create(ctx, ticket))

	fetched, err := repo.Get(ctx, "t-1")
	require.NoError(t, err)
	fetched.Title = "mutated after fetch"

	reFetched, err := repo.Get(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, "original", reFetched.Title)
}
