package main

import (
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"

	"hostpilot/internal/models"

	"github.com/spf13/cobra"
)

var (
	flagID          string
	flagName        string
	flagTrigger     string
	flagCron        string
	flagResource    string
	flagThreshold   float64
	flagPath        string
	flagAction      string
	flagURL         string
	flagMessage     string
	flagDescription string
	flagDisabled    bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all automations",
	RunE: func(cmd *cobra.Command, args []string) error {
		var rules []models.AutomationRule
		if err := newAPIClient().do(http.MethodGet, "/automations", nil, &rules); err != nil {
			return err
		}
		if len(rules) == 0 {
			fmt.Println("No automations configured")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tTRIGGER\tACTION\tENABLED")
		for _, r := range rules {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", r.ID, r.Name, describeTrigger(r), r.ActionType, r.Enabled)
		}
		return w.Flush()
	},
}

func describeTrigger(r models.AutomationRule) string {
	switch r.TriggerType {
	case models.TriggerTime:
		return fmt.Sprintf("time(%s)", r.TriggerConfig.Cron)
	case models.TriggerUsage:
		return fmt.Sprintf("usage(%s >= %.0f%%)", r.TriggerConfig.Resource, r.TriggerConfig.Threshold)
	default:
		return string(r.TriggerType)
	}
}

func ruleFromFlags() *models.AutomationRule {
	return &models.AutomationRule{
		ID:          flagID,
		Name:        flagName,
		TriggerType: models.TriggerKind(flagTrigger),
		TriggerConfig: models.TriggerConfig{
			Cron:      flagCron,
			Resource:  models.ResourceKind(flagResource),
			Threshold: flagThreshold,
			Path:      flagPath,
		},
		ActionType: models.ActionKind(flagAction),
		ActionConfig: models.ActionConfig{
			URL:         flagURL,
			Message:     flagMessage,
			Description: flagDescription,
		},
		Enabled: !flagDisabled,
	}
}

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new automation",
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Message string `json:"message"`
			Data    struct {
				ID string `json:"id"`
			} `json:"data"`
		}
		if err := newAPIClient().do(http.MethodPost, "/automations", ruleFromFlags(), &resp); err != nil {
			return err
		}
		fmt.Printf("%s (id: %s)\n", resp.Message, resp.Data.ID)
		return nil
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Replace an automation definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Message string `json:"message"`
		}
		if err := newAPIClient().do(http.MethodPut, "/automations/"+args[0], ruleFromFlags(), &resp); err != nil {
			return err
		}
		fmt.Println(resp.Message)
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an automation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Message string `json:"message"`
		}
		if err := newAPIClient().do(http.MethodDelete, "/automations/"+args[0], nil, &resp); err != nil {
			return err
		}
		fmt.Println(resp.Message)
		return nil
	},
}

var executeCmd = &cobra.Command{
	Use:   "execute <id>",
	Short: "Execute an automation immediately",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var resp struct {
			Message string `json:"message"`
		}
		if err := newAPIClient().do(http.MethodPost, "/automations/"+args[0]+"/execute", nil, &resp); err != nil {
			return err
		}
		fmt.Println(resp.Message)
		return nil
	},
}

func init() {
	for _, cmd := range []*cobra.Command{createCmd, updateCmd} {
		cmd.Flags().StringVar(&flagID, "id", "", "automation id (generated when empty)")
		cmd.Flags().StringVar(&flagName, "name", "", "display name")
		cmd.Flags().StringVar(&flagTrigger, "trigger", "", "trigger type: time or usage")
		cmd.Flags().StringVar(&flagCron, "cron", "", "cron expression for time trigger, e.g. '0 2 * * *'")
		cmd.Flags().StringVar(&flagResource, "resource", "", "resource for usage trigger: cpu, memory or disk")
		cmd.Flags().Float64Var(&flagThreshold, "threshold", 0, "usage threshold percentage (0-100)")
		cmd.Flags().StringVar(&flagPath, "path", "", "disk path for disk trigger (default /)")
		cmd.Flags().StringVar(&flagAction, "action", "", "action type: http_post, discord_webhook, restart, shutdown or backup")
		cmd.Flags().StringVar(&flagURL, "url", "", "target URL for http_post / discord_webhook")
		cmd.Flags().StringVar(&flagMessage, "message", "", "message for discord_webhook")
		cmd.Flags().StringVar(&flagDescription, "description", "", "description for backup")
		cmd.Flags().BoolVar(&flagDisabled, "disabled", false, "create the automation disabled")
	}
	rootCmd.AddCommand(listCmd, createCmd, updateCmd, deleteCmd, executeCmd)
}
