package main

import (
	"context"
	"fmt"

	"github.com/novaflow/ticketflow/internal/action"
	"github.com/novaflow/ticketflow/internal/audit"
	"github.com/novaflow/ticketflow/internal/changerequest"
	"github.com/novaflow/ticketflow/internal/config"
	"github.com/novaflow/ticketflow/internal/domain"
	"github.com/novaflow/ticketflow/internal/engine"
	"github.com/novaflow/ticketflow/internal/identity"
	"github.com/novaflow/ticketflow/internal/logging"
	"github.com/novaflow/ticketflow/internal/outbox"
	"github.com/novaflow/ticketflow/internal/permission"
	"github.com/novaflow/ticketflow/internal/store/memstore"
	"github.com/novaflow/ticketflow/internal/subworkflow"
	"github.com/novaflow/ticketflow/internal/telemetry"
)

// app bundles one wired instance of the engine for a single CLI
// invocation. ticketflowctl has no persistent store of its own — every
// run starts from an empty memstore.Store, matching its role as an
// exercise harness rather than a long-lived service (§6).
type app struct {
	store  *memstore.Store
	action *action.Service
}

// logTransport logs notifications instead of sending them; wiring a
// real SMTP/Graph-API client is out of scope (§1, §6).
type logTransport struct{}

func (logTransport) Send(ctx context.Context, n *domain.NotificationOutbox) error {
	var emails []string
	for _, r := range n.Recipients {
		emails = append(emails, r.Email)
	}
	logging.Info("notify template=%s category=%s recipients=%v", n.TemplateKey, n.Category, emails)
	return nil
}

func newApp(cfg *config.Config) *app {
	st := memstore.New()

	ids := domain.NewUUIDGen()
	clock := domain.SystemClock{}

	auditWriter := audit.New(st.Audit, ids, clock)
	ob := outbox.New(st.Notifications, logTransport{}, ids, clock, "ticketflowctl")
	onboarder := identity.New(st.Access, ids, clock, auditWriter)
	subwf := subworkflow.New(st.Workflows, ids, clock)

	// Reports against whatever tracer/meter provider the process has
	// registered globally; wiring a concrete OTLP exporter is out of scope
	// (§1, §6), so this harness runs against the otel no-op providers.
	tel, err := telemetry.New()
	if err != nil {
		logging.Info("telemetry disabled: %v", err)
		tel = nil
	}

	eng := engine.New(engine.Deps{
		Tickets:      st.Tickets,
		Steps:        st.TicketSteps,
		Approvals:    st.ApprovalTasks,
		Assignments:  st.Assignments,
		InfoRequests: st.InfoRequests,
		Handovers:    st.HandoverRequests,
		Workflows:    st.Workflows,
		Directory:    noDirectory{},
		Onboard:      onboarder,
		SubWorkflows: subwf,
		Outbox:       ob,
		Audit:        auditWriter,
		Telemetry:    tel,
		IDs:          ids,
		Clock:        clock,
	})

	cr := changerequest.New(st.Tickets, st.TicketSteps, st.ChangeRequests, st.Workflows, ob, auditWriter, ids, clock)
	guard := permission.New(st.InfoRequests, st.ApprovalTasks)
	act := action.New(eng, cr, guard, st.Tickets, st.TicketSteps)

	logging.Info("ticketflowctl ready: %s", cfg.String())
	return &app{store: st, action: act}
}

// noDirectory reports no manager for anyone; wiring a real directory/HR
// collaborator is out of scope (§1), so REQUESTER_MANAGER approval
// resolution falls back to its SPOC email in this harness.
type noDirectory struct{}

func (noDirectory) ManagerOf(ctx context.Context, principal domain.UserRef) (*domain.UserRef, error) {
	return nil, fmt.Errorf("no directory service configured")
}
