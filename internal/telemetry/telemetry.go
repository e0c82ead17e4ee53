// Package telemetry instruments ticket and step lifecycle events with
// OpenTelemetry spans and counters, the same run/step span pairing
// station's workflow runtime uses for its own execution engine.
package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/novaflow/ticketflow/internal/domain"
)

const (
	tracerName = "ticketflow.engine"
	meterName  = "ticketflow.engine"
)

// Telemetry carries the tracer/meter instruments the engine reports
// against. A nil *Telemetry is never constructed directly by callers that
// don't want tracing; engine.Service treats a nil collaborator as a no-op,
// the same pattern it already uses for audit/outbox.
type Telemetry struct {
	tracer trace.Tracer
	meter  metric.Meter

	ticketCounter  metric.Int64Counter
	ticketDuration metric.Float64Histogram
	activeTickets  metric.Int64UpDownCounter
	stepCounter    metric.Int64Counter
	stepDuration   metric.Float64Histogram
	failureCounter metric.Int64Counter

	mu          sync.Mutex
	ticketSpans map[domain.ID]ticketSpan
}

type ticketSpan struct {
	span    trace.Span
	started time.Time
}

// New builds a Telemetry instance against whatever tracer/meter provider
// is globally registered (otel.SetTracerProvider/SetMeterProvider); with
// none configured, the OpenTelemetry API itself falls back to no-op
// implementations, so New is always safe to call.
func New() (*Telemetry, error) {
	t := &Telemetry{
		tracer:      otel.Tracer(tracerName),
		meter:       otel.Meter(meterName),
		ticketSpans: make(map[domain.ID]ticketSpan),
	}

	var err error
	if t.ticketCounter, err = t.meter.Int64Counter(
		"ticketflow_tickets_created_total",
		metric.WithDescription("Total number of tickets created"),
		metric.WithUnit("{ticket}"),
	); err != nil {
		return nil, fmt.Errorf("telemetry: ticket counter: %w", err)
	}
	if t.ticketDuration, err = t.meter.Float64Histogram(
		"ticketflow_ticket_duration_seconds",
		metric.WithDescription("Duration of a ticket from creation to a terminal status"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("telemetry: ticket duration histogram: %w", err)
	}
	if t.activeTickets, err = t.meter.Int64UpDownCounter(
		"ticketflow_tickets_active",
		metric.WithDescription("Number of tickets currently in progress"),
		metric.WithUnit("{ticket}"),
	); err != nil {
		return nil, fmt.Errorf("telemetry: active tickets counter: %w", err)
	}
	if t.stepCounter, err = t.meter.Int64Counter(
		"ticketflow_steps_activated_total",
		metric.WithDescription("Total number of ticket steps activated"),
		metric.WithUnit("{step}"),
	); err != nil {
		return nil, fmt.Errorf("telemetry: step counter: %w", err)
	}
	if t.stepDuration, err = t.meter.Float64Histogram(
		"ticketflow_step_duration_seconds",
		metric.WithDescription("Duration of one step activation dispatch"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("telemetry: step duration histogram: %w", err)
	}
	if t.failureCounter, err = t.meter.Int64Counter(
		"ticketflow_failures_total",
		metric.WithDescription("Total number of ticket/step failures"),
		metric.WithUnit("{failure}"),
	); err != nil {
		return nil, fmt.Errorf("telemetry: failure counter: %w", err)
	}
	return t, nil
}

// StartTicketSpan opens the span covering a ticket's whole lifetime, from
// CreateTicket through whatever terminal status it eventually reaches.
func (t *Telemetry) StartTicketSpan(ctx context.Context, ticketID domain.ID, workflowName, correlationID string) context.Context {
	ctx, span := t.tracer.Start(ctx, fmt.Sprintf("ticket.run.%s", workflowName),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("ticket.id", string(ticketID)),
			attribute.String("ticket.workflow_name", workflowName),
			attribute.String("correlation.id", correlationID),
		),
	)

	t.mu.Lock()
	t.ticketSpans[ticketID] = ticketSpan{span: span, started: time.Now()}
	t.mu.Unlock()

	t.ticketCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("ticket.workflow_name", workflowName)))
	t.activeTickets.Add(ctx, 1, metric.WithAttributes(attribute.String("ticket.workflow_name", workflowName)))
	return ctx
}

// EndTicketSpan closes a ticket's run span at whatever terminal status it
// reached (completed/rejected/skipped/cancelled).
func (t *Telemetry) EndTicketSpan(ctx context.Context, ticketID domain.ID, workflowName, status string) {
	t.mu.Lock()
	entry, ok := t.ticketSpans[ticketID]
	if ok {
		delete(t.ticketSpans, ticketID)
	}
	t.mu.Unlock()
	if !ok {
		return
	}

	duration := time.Since(entry.started)
	entry.span.SetAttributes(
		attribute.String("ticket.status", status),
		attribute.Float64("ticket.duration_seconds", duration.Seconds()),
	)
	if status == "REJECTED" || status == "CANCELLED" {
		entry.span.SetStatus(codes.Error, status)
		t.failureCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("ticket.workflow_name", workflowName),
			attribute.String("failure.type", "ticket"),
		))
	} else {
		entry.span.SetStatus(codes.Ok, status)
	}
	entry.span.End()

	t.ticketDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("ticket.workflow_name", workflowName),
		attribute.String("ticket.status", status),
	))
	t.activeTickets.Add(ctx, -1, metric.WithAttributes(attribute.String("ticket.workflow_name", workflowName)))
}

// StartStepSpan opens the span around one step's activation dispatch;
// callers must End the returned span (and record StepEnd) once the
// synchronous activation routine returns.
func (t *Telemetry) StartStepSpan(ctx context.Context, ticketID domain.ID, stepID string, stepType domain.StepType, correlationID string) (context.Context, trace.Span, time.Time) {
	ctx, span := t.tracer.Start(ctx, fmt.Sprintf("step.activate.%s", stepID),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("ticket.id", string(ticketID)),
			attribute.String("step.id", stepID),
			attribute.String("step.type", string(stepType)),
			attribute.String("correlation.id", correlationID),
		),
	)
	t.stepCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("step.type", string(stepType))))
	return ctx, span, time.Now()
}

// EndStepSpan closes a step activation span, recording failure metrics
// when activation returned an error.
func (t *Telemetry) EndStepSpan(span trace.Span, started time.Time, stepType domain.StepType, err error) {
	if span == nil {
		return
	}
	duration := time.Since(started)
	span.SetAttributes(attribute.Float64("step.duration_seconds", duration.Seconds()))
	ctx := context.Background()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		t.failureCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("step.type", string(stepType)),
			attribute.String("failure.type", "step"),
		))
	} else {
		span.SetStatus(codes.Ok, "activated")
	}
	span.End()
	t.stepDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("step.type", string(stepType))))
}
