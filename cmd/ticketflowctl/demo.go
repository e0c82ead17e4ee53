package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/novaflow/ticketflow/internal/config"
	"github.com/novaflow/ticketflow/internal/domain"
	"github.com/novaflow/ticketflow/internal/engine"
	"github.com/novaflow/ticketflow/internal/logging"
	"github.com/novaflow/ticketflow/internal/store/memstore"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a single expense-approval ticket end to end against an in-memory store",
	RunE:  runDemo,
}

func runDemo(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a := newApp(cfg)
	ctx := context.Background()

	templateID := domain.ID("WFT-EXPENSE")
	seedExpenseWorkflow(a.store.Workflows, templateID)

	requester := domain.UserRef{DirectoryID: "u-requester", Email: "requester@example.com", DisplayName: "Ramona Requester"}
	approver := domain.UserRef{DirectoryID: "u-approver", Email: "approver@example.com", DisplayName: "Amir Approver"}
	agent := domain.UserRef{DirectoryID: "u-agent", Email: "agent@example.com", DisplayName: "Ashley Agent"}
	actor := domain.ActorContext{DirectoryID: requester.DirectoryID, Email: requester.Email, DisplayName: requester.DisplayName}
	correlationID := "demo-run"

	ticket, err := a.action.CreateTicket(ctx, templateID, requester, "Conference travel", "Flights and hotel for the Go conference", nil, []engine.InitialFormStep{
		{StepID: "details", FormValues: map[string]interface{}{"amount": 450.0, "justification": "Conference travel"}},
	}, actor, correlationID)
	if err != nil {
		return fmt.Errorf("create ticket: %w", err)
	}
	logging.Info("created ticket %s status=%s", ticket.TicketID, ticket.Status)

	steps, err := a.store.TicketSteps.ListForTicket(ctx, ticket.TicketID)
	if err != nil {
		return err
	}
	stepByStepID := make(map[string]*domain.TicketStep, len(steps))
	for _, s := range steps {
		stepByStepID[s.StepID] = s
	}

	approvalStep := stepByStepID["approval"]
	if approvalStep == nil {
		return fmt.Errorf("approval step not materialized")
	}
	approverActor := domain.ActorContext{DirectoryID: approver.DirectoryID, Email: approver.Email, DisplayName: approver.DisplayName}
	if err := a.action.Approve(ctx, ticket.TicketID, approvalStep.TicketStepID, "looks reasonable", approverActor, correlationID); err != nil {
		return fmt.Errorf("approve: %w", err)
	}
	logging.Info("approved step %s", approvalStep.TicketStepID)

	taskStep := stepByStepID["reimburse"]
	if taskStep == nil {
		return fmt.Errorf("task step not materialized")
	}
	agentActor := domain.ActorContext{DirectoryID: agent.DirectoryID, Email: agent.Email, DisplayName: agent.DisplayName}
	if err := a.action.AssignAgent(ctx, ticket.TicketID, taskStep.TicketStepID, agent, "finance queue", approverActor, correlationID); err != nil {
		return fmt.Errorf("assign agent: %w", err)
	}
	if err := a.action.CompleteTask(ctx, ticket.TicketID, taskStep.TicketStepID, map[string]interface{}{"paid": true}, "reimbursed via payroll", nil, agentActor, correlationID); err != nil {
		return fmt.Errorf("complete task: %w", err)
	}

	final, err := a.store.Tickets.Get(ctx, ticket.TicketID)
	if err != nil {
		return err
	}
	logging.Info("ticket %s finished with status=%s", final.TicketID, final.Status)
	return nil
}

// seedExpenseWorkflow seeds a minimal three-step linear definition
// (form -> approval -> task) directly into the store, standing in for
// the workflow-authoring surface that this engine deliberately leaves
// out of scope (§1): form details -> approval by a fixed approver email ->
// reimbursement task.
func seedExpenseWorkflow(st *memstore.WorkflowRepo, templateID domain.ID) {
	st.SeedTemplate(&domain.WorkflowTemplate{
		TemplateID: templateID,
		Name:       "Expense Reimbursement",
		Category:   "finance",
		Status:     domain.WorkflowPublished,
	})

	def := domain.Definition{
		Steps: []domain.StepDefinition{
			{
				StepID: "details", StepName: "Expense details", StepType: domain.StepTypeForm,
				Form: &domain.FormStepSpec{Fields: []domain.FormFieldDefinition{
					{FieldKey: "amount", Label: "Amount", FieldType: domain.FieldNumber, Required: true},
					{FieldKey: "justification", Label: "Justification", FieldType: domain.FieldTextarea, Required: true, MinLength: intPtr(5)},
				}},
			},
			{
				StepID: "approval", StepName: "Manager approval", StepType: domain.StepTypeApproval,
				Approval: &domain.ApprovalStepSpec{Resolution: domain.ResolveSpecificEmail, SpecificEmail: "approver@example.com"},
			},
			{
				StepID: "reimburse", StepName: "Process reimbursement", StepType: domain.StepTypeTask, IsTerminal: true,
				Task: &domain.TaskStepSpec{},
			},
		},
		Transitions: []domain.Transition{
			{FromStepID: "details", OnEvent: domain.EventSubmitForm, ToStepID: "approval", Order: 0},
			{FromStepID: "approval", OnEvent: domain.EventApprove, ToStepID: "reimburse", Order: 0},
		},
	}

	st.SeedVersion(&domain.WorkflowVersion{
		VersionID:  domain.ID("WFV-EXPENSE-1"),
		TemplateID: templateID,
		Number:     1,
		Definition: def,
		Status:     domain.WorkflowPublished,
	})
}

func intPtr(v int) *int { return &v }
