package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novaflow/ticketflow/internal/domain"
)

type fakeRepo struct {
	events []*domain.AuditEvent
}

func (f *fakeRepo) Append(ctx context.Context, e *domain.AuditEvent) error {
	f.events = append(f.events, e)
	return nil
}

func TestWriteEvent_SetsIDTimestampAndActor(t *testing.T) {
	repo := &fakeRepo{}
	clock := domain.NewFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	w := New(repo, domain.NewUUIDGen(), clock)

	actor := domain.ActorContext{DirectoryID: "aad-1", Email: "req@example.com", DisplayName: "Req"}
	event, err := w.WriteCreateTicket(context.Background(), "ticket-1", actor, "Expense Approval", "corr-1")
	require.NoError(t, err)

	require.Len(t, repo.events, 1)
	assert.Equal(t, domain.AuditCreateTicket, event.EventType)
	assert.Equal(t, domain.ID("ticket-1"), event.TicketID)
	assert.Equal(t, "corr-1", event.CorrelationID)
	assert.Equal(t, "req@example.com", event.Actor.Email)
	assert.Equal(t, clock.Now(), event.Timestamp)
	assert.NotEmpty(t, event.AuditEventID)
	assert.Equal(t, "Expense Approval", event.Details["workflow_name"])
}
