// Package outbox delivers NotificationOutbox rows durably and
// at-least-once: enqueue is a plain document insert, delivery happens on a
// scheduler tick that claims due rows under a per-row advisory lock, sends
// them through an external transport, and reschedules failures with
// exponential backoff up to a bounded retry count (§4.10).
package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/novaflow/ticketflow/internal/domain"
)

const (
	// MaxAttempts bounds how many delivery attempts a notification gets.
	// The failure that reaches it parks the row as EXHAUSTED for good (an
	// operator / dead-letter concern, not silently dropped); below the cap
	// a failed row is FAILED and stays due for retry.
	MaxAttempts = 5
)

// Repository is the subset of store.NotificationRepository the outbox
// scheduler and enqueuer need.
type Repository interface {
	Create(ctx context.Context, n *domain.NotificationOutbox) error
	Update(ctx context.Context, n *domain.NotificationOutbox, expectedVersion int) error
	ListDue(ctx context.Context, before time.Time) ([]*domain.NotificationOutbox, error)
}

// Transport is the external mail-sending collaborator; wiring a concrete
// SMTP/Graph-API client is out of scope for this engine (§1, §6) — the
// scheduler only owns retry/backoff/locking around whatever Transport does.
type Transport interface {
	Send(ctx context.Context, n *domain.NotificationOutbox) error
}

// Outbox enqueues notifications and runs the delivery scheduler tick.
type Outbox struct {
	repo      Repository
	transport Transport
	ids       domain.IDGen
	clock     domain.Clock
	workerID  string
}

func New(repo Repository, transport Transport, ids domain.IDGen, clock domain.Clock, workerID string) *Outbox {
	return &Outbox{repo: repo, transport: transport, ids: ids, clock: clock, workerID: workerID}
}

// Enqueue durably records a notification for asynchronous delivery.
func (o *Outbox) Enqueue(ctx context.Context, templateKey domain.TemplateKey, category domain.NotificationCategory, recipients []domain.UserRef, payload map[string]interface{}, ticketID domain.ID, correlationID string) (*domain.NotificationOutbox, error) {
	now := o.clock.Now()
	n := &domain.NotificationOutbox{
		NotificationID: o.ids.New(domain.PrefixNotification),
		TemplateKey:    templateKey,
		Category:       category,
		Recipients:     recipients,
		Payload:        payload,
		Status:         domain.NotificationPending,
		NextAttempt:    now,
		CorrelationID:  correlationID,
		TicketID:       ticketID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := o.repo.Create(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// RunOnce claims every due notification and attempts delivery once each,
// the unit of work a scheduler tick performs.
func (o *Outbox) RunOnce(ctx context.Context) error {
	due, err := o.repo.ListDue(ctx, o.clock.Now())
	if err != nil {
		return err
	}
	for _, n := range due {
		o.attempt(ctx, n)
	}
	return nil
}

func (o *Outbox) attempt(ctx context.Context, n *domain.NotificationOutbox) {
	locked := *n
	now := o.clock.Now()
	locked.LockedBy = o.workerID
	locked.LockedAt = &now
	if err := o.repo.Update(ctx, &locked, n.Version); err != nil {
		// Another worker claimed it first; skip.
		return
	}

	sendErr := o.transport.Send(ctx, &locked)

	result := locked
	result.UpdatedAt = o.clock.Now()
	result.LockedBy = ""
	result.LockedAt = nil

	if sendErr == nil {
		result.Status = domain.NotificationSent
		_ = o.repo.Update(ctx, &result, locked.Version)
		return
	}

	result.RetryCount++
	if result.RetryCount >= MaxAttempts {
		// Cap hit: park it terminally so ListDue stops reselecting it.
		result.Status = domain.NotificationExhausted
	} else {
		result.Status = domain.NotificationFailed
		result.NextAttempt = o.clock.Now().Add(backoff(result.RetryCount))
	}
	_ = o.repo.Update(ctx, &result, locked.Version)
}

// backoff doubles the delay with each attempt: 2s after the first
// failure, 4s after the second, and so on.
func backoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt)) * time.Second
}

// Scheduler drives RunOnce on a recurring cron schedule.
type Scheduler struct {
	outbox *Outbox
	cron   *cron.Cron
}

// NewScheduler builds a scheduler that ticks on spec (standard 5-field cron).
func NewScheduler(outbox *Outbox, spec string, logf func(error)) (*Scheduler, error) {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if err := outbox.RunOnce(context.Background()); err != nil && logf != nil {
			logf(fmt.Errorf("outbox tick: %w", err))
		}
	})
	if err != nil {
		return nil, err
	}
	return &Scheduler{outbox: outbox, cron: c}, nil
}

func (s *Scheduler) Start() { s.cron.Start() }
func (s *Scheduler) Stop()  { <-s.cron.Stop().Done() }
