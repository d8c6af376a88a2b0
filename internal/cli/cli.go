package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/MasumNishat/signing-sub000/internal/log"
	internal_storage "github.com/MasumNishat/signing-sub000/internal/storage"
	"github.com/MasumNishat/signing-sub000/pkg/models"
	"github.com/MasumNishat/signing-sub000/pkg/service"
	"github.com/spf13/cobra"
)

func SetupCLI(rootCmd *cobra.Command) {
	createEnvelopeCmd := &cobra.Command{
		Use:   "create-envelope [name]",
		Short: "Create a draft envelope",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			accountID, store := commonFlags(cmd)
			defer store.Close()
			svc := service.NewEnvelopeService(store, log.GetLogger())
			e, err := svc.CreateEnvelope(accountID, args[0], nil)
			if err != nil {
				fail("create envelope", err)
			}
			fmt.Fprintf(os.Stdout, "Created envelope '%s' with ID %s\n", e.Name, e.ID)
		},
	}

	addRecipientCmd := &cobra.Command{
		Use:   "add-recipient [envelope-id]",
		Short: "Add a recipient to an envelope",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			accountID, store := commonFlags(cmd)
			defer store.Close()
			name, _ := cmd.Flags().GetString("name")
			email, _ := cmd.Flags().GetString("email")
			rType, _ := cmd.Flags().GetString("type")
			order, _ := cmd.Flags().GetInt("routing-order")
			svc := service.NewEnvelopeService(store, log.GetLogger())
			r, err := svc.AddRecipient(accountID, args[0], service.RecipientInput{
				Type:         models.RecipientType(rType),
				Name:         name,
				Email:        email,
				RoutingOrder: order,
			})
			if err != nil {
				fail("add recipient", err)
			}
			fmt.Fprintf(os.Stdout, "Added recipient '%s' with ID %s at routing order %d\n", r.Name, r.ID, r.RoutingOrder)
		},
	}
	addRecipientCmd.Flags().String("name", "", "Recipient name")
	addRecipientCmd.Flags().String("email", "", "Recipient email")
	addRecipientCmd.Flags().String("type", "signer", "Recipient type")
	addRecipientCmd.Flags().Int("routing-order", 1, "Routing order (tier)")

	startCmd := &cobra.Command{
		Use:   "start [envelope-id]",
		Short: "Start (or schedule) an envelope's workflow",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			accountID, store := commonFlags(cmd)
			defer store.Close()
			svc := service.NewWorkflowService(store, log.GetLogger())
			var scheduledAt *time.Time
			if at, _ := cmd.Flags().GetString("at"); at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					fail("parse --at", err)
				}
				scheduledAt = &t
			}
			ws, err := svc.StartWorkflow(accountID, args[0], "", scheduledAt)
			if err != nil {
				fail("start workflow", err)
			}
			printState(ws)
		},
	}
	startCmd.Flags().String("at", "", "Schedule the start for a future RFC3339 time")

	pauseCmd := &cobra.Command{
		Use:   "pause [envelope-id]",
		Short: "Pause a running workflow",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			accountID, store := commonFlags(cmd)
			defer store.Close()
			reason, _ := cmd.Flags().GetString("reason")
			svc := service.NewWorkflowService(store, log.GetLogger())
			ws, err := svc.PauseWorkflow(accountID, args[0], reason, nil)
			if err != nil {
				fail("pause workflow", err)
			}
			printState(ws)
		},
	}
	pauseCmd.Flags().String("reason", "", "Why the workflow is paused")

	resumeCmd := &cobra.Command{
		Use:   "resume [envelope-id]",
		Short: "Resume a paused workflow",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			accountID, store := commonFlags(cmd)
			defer store.Close()
			svc := service.NewWorkflowService(store, log.GetLogger())
			ws, err := svc.ResumeWorkflow(accountID, args[0])
			if err != nil {
				fail("resume workflow", err)
			}
			printState(ws)
		},
	}

	cancelCmd := &cobra.Command{
		Use:   "cancel [envelope-id]",
		Short: "Cancel a workflow permanently",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			accountID, store := commonFlags(cmd)
			defer store.Close()
			reason, _ := cmd.Flags().GetString("reason")
			if reason == "" {
				reason = "Canceled from CLI"
			}
			svc := service.NewWorkflowService(store, log.GetLogger())
			ws, err := svc.CancelWorkflow(accountID, args[0], reason)
			if err != nil {
				fail("cancel workflow", err)
			}
			printState(ws)
		},
	}
	cancelCmd.Flags().String("reason", "", "Why the workflow is cancelled")

	statusCmd := &cobra.Command{
		Use:   "status [envelope-id]",
		Short: "Show an envelope's workflow state",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			accountID, store := commonFlags(cmd)
			defer store.Close()
			svc := service.NewWorkflowService(store, log.GetLogger())
			ws, err := svc.GetWorkflowStatus(accountID, args[0])
			if err != nil {
				fail("get workflow status", err)
			}
			printState(ws)
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the account's envelopes",
		Run: func(cmd *cobra.Command, args []string) {
			accountID, store := commonFlags(cmd)
			defer store.Close()
			svc := service.NewEnvelopeService(store, log.GetLogger())
			envelopes, err := svc.ListEnvelopes(accountID)
			if err != nil {
				fail("list envelopes", err)
			}
			if len(envelopes) == 0 {
				fmt.Fprintf(os.Stdout, "No envelopes found.\n")
				return
			}
			for _, e := range envelopes {
				fmt.Fprintf(os.Stdout, "- ID: %s, Name: %s, Status: %s, Created: %s\n",
					e.ID, e.Name, e.Status, e.CreatedAt.Format(time.RFC3339))
			}
		},
	}

	for _, cmd := range []*cobra.Command{createEnvelopeCmd, addRecipientCmd, startCmd, pauseCmd, resumeCmd, cancelCmd, statusCmd, listCmd} {
		cmd.Flags().String("db", "", "Database connection string")
		cmd.Flags().String("account", "", "Acting account ID")
		rootCmd.AddCommand(cmd)
	}
}

func commonFlags(cmd *cobra.Command) (string, *internal_storage.PostgresStore) {
	dbConnStr, err := cmd.Flags().GetString("db")
	if err != nil {
		fail("read db flag", err)
	}
	accountID, err := cmd.Flags().GetString("account")
	if err != nil {
		fail("read account flag", err)
	}
	if accountID == "" {
		fmt.Fprintln(os.Stderr, "Error: --account is required")
		os.Exit(1)
	}
	store, err := internal_storage.InitStore(dbConnStr)
	if err != nil {
		fail("initialize store", err)
	}
	return accountID, store
}

func fail(action string, err error) {
	log.GetLogger().Errorf("Failed to %s: %v", action, err)
	fmt.Fprintf(os.Stderr, "Error: failed to %s: %v\n", action, err)
	os.Exit(1)
}

func printState(ws models.WorkflowState) {
	out, err := json.MarshalIndent(ws, "", "  ")
	if err != nil {
		fail("render workflow state", err)
	}
	fmt.Fprintln(os.Stdout, string(out))
}
