package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/novaflow/ticketflow/internal/domain"
)

type fakeRepo struct {
	rows map[domain.ID]*domain.NotificationOutbox
}

func newFakeRepo() *fakeRepo { return &fakeRepo{rows: make(map[domain.ID]*domain.NotificationOutbox)} }

func (r *fakeRepo) Create(ctx context.Context, n *domain.NotificationOutbox) error {
	n.Version = 1
	cp := *n
	r.rows[n.NotificationID] = &cp
	return nil
}

func (r *fakeRepo) Update(ctx context.Context, n *domain.NotificationOutbox, expectedVersion int) error {
	row, ok := r.rows[n.NotificationID]
	if !ok || row.Version != expectedVersion {
		return errors.New("concurrency conflict")
	}
	cp := *n
	cp.Version = expectedVersion + 1
	r.rows[n.NotificationID] = &cp
	*n = cp
	return nil
}

func (r *fakeRepo) ListDue(ctx context.Context, before time.Time) ([]*domain.NotificationOutbox, error) {
	var out []*domain.NotificationOutbox
	for _, row := range r.rows {
		if row.LockedBy != "" {
			continue
		}
		if row.Status != domain.NotificationPending && row.Status != domain.NotificationFailed {
			continue
		}
		if row.NextAttempt.After(before) {
			continue
		}
		cp := *row
		out = append(out, &cp)
	}
	return out, nil
}

type fakeTransport struct {
	err error
	got []*domain.NotificationOutbox
}

func (t *fakeTransport) Send(ctx context.Context, n *domain.NotificationOutbox) error {
	t.got = append(t.got, n)
	return t.err
}

func TestEnqueue_StartsPendingAndDueNow(t *testing.T) {
	repo := newFakeRepo()
	clock := domain.NewFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	ob := New(repo, &fakeTransport{}, domain.NewUUIDGen(), clock, "worker-1")

	n, err := ob.Enqueue(context.Background(), domain.TemplateTicketCreated, domain.CategoryInfoRequest, nil, nil, "ticket-1", "corr-1")
	require.NoError(t, err)
	assert.Equal(t, domain.NotificationPending, n.Status)
	assert.False(t, n.NextAttempt.After(clock.Now()))
}

func TestRunOnce_SuccessMarksSent(t *testing.T) {
	repo := newFakeRepo()
	clock := domain.NewFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	transport := &fakeTransport{}
	ob := New(repo, transport, domain.NewUUIDGen(), clock, "worker-1")

	n, err := ob.Enqueue(context.Background(), domain.TemplateTicketCreated, domain.CategoryInfoRequest, nil, nil, "ticket-1", "corr-1")
	require.NoError(t, err)

	require.NoError(t, ob.RunOnce(context.Background()))

	row := repo.rows[n.NotificationID]
	assert.Equal(t, domain.NotificationSent, row.Status)
	assert.Empty(t, row.LockedBy)
	assert.Len(t, transport.got, 1)
}

func TestRunOnce_FailureReschedulesWithBackoff(t *testing.T) {
	repo := newFakeRepo()
	clock := domain.NewFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	transport := &fakeTransport{err: errors.New("smtp down")}
	ob := New(repo, transport, domain.NewUUIDGen(), clock, "worker-1")

	n, err := ob.Enqueue(context.Background(), domain.TemplateTicketCreated, domain.CategoryInfoRequest, nil, nil, "ticket-1", "corr-1")
	require.NoError(t, err)

	require.NoError(t, ob.RunOnce(context.Background()))

	row := repo.rows[n.NotificationID]
	assert.Equal(t, domain.NotificationFailed, row.Status)
	assert.Equal(t, 1, row.RetryCount)
	assert.True(t, row.NextAttempt.After(clock.Now()))
}

func TestRunOnce_DoesNotRedeliverBeforeNextAttempt(t *testing.T) {
	repo := newFakeRepo()
	clock := domain.NewFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	transport := &fakeTransport{err: errors.New("smtp down")}
	ob := New(repo, transport, domain.NewUUIDGen(), clock, "worker-1")

	_, err := ob.Enqueue(context.Background(), domain.TemplateTicketCreated, domain.CategoryInfoRequest, nil, nil, "ticket-1", "corr-1")
	require.NoError(t, err)

	require.NoError(t, ob.RunOnce(context.Background()))
	require.NoError(t, ob.RunOnce(context.Background()))

	assert.Len(t, transport.got, 1)
}

func TestRunOnce_HaltsAfterMaxAttemptsInsteadOfRetryingForever(t *testing.T) {
	repo := newFakeRepo()
	clock := domain.NewFixedClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	transport := &fakeTransport{err: errors.New("smtp down")}
	ob := New(repo, transport, domain.NewUUIDGen(), clock, "worker-1")

	n, err := ob.Enqueue(context.Background(), domain.TemplateTicketCreated, domain.CategoryInfoRequest, nil, nil, "ticket-1", "corr-1")
	require.NoError(t, err)

	for i := 0; i < MaxAttempts; i++ {
		require.NoError(t, ob.RunOnce(context.Background()))
		clock.Advance(time.Hour)
	}

	row := repo.rows[n.NotificationID]
	assert.Equal(t, domain.NotificationExhausted, row.Status)
	assert.Equal(t, MaxAttempts, row.RetryCount)
	assert.Len(t, transport.got, MaxAttempts)

	// A capped row is terminal: further ticks must not reselect or resend it.
	require.NoError(t, ob.RunOnce(context.Background()))
	assert.Len(t, transport.got, MaxAttempts)
}
