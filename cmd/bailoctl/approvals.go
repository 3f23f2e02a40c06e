package main

import (
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

const apiBase = "/api/v1"

var (
	categoryFlag string
	archivedFlag bool
	commentFlag  string
)

var approvalsCmd = &cobra.Command{
	Use:   "approvals",
	Short: "Manage approval requests",
}

var approvalsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List approvals awaiting review",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()

		q := url.Values{}
		q.Set("approvalCategory", categoryFlag)
		if archivedFlag {
			q.Set("archived", "true")
		}
		if userFlag != "" {
			q.Set("filter", "user")
		}

		var result struct {
			Approvals []struct {
				ID      string `json:"id"`
				Subject struct {
					Kind string `json:"kind"`
					ID   string `json:"id"`
					Name string `json:"name"`
				} `json:"subject"`
				Approvers []string `json:"approvers"`
				Type      string   `json:"approvalType"`
				Status    string   `json:"status"`
				Requester string   `json:"requester"`
				CreatedAt string   `json:"createdAt"`
			} `json:"approvals"`
			TotalSize int `json:"totalSize"`
		}
		if err := client.getJSON(apiBase+"/approvals?"+q.Encode(), &result); err != nil {
			return fmt.Errorf("failed to list approvals: %w", err)
		}

		if outputFmt == "json" {
			return printOutput(result)
		}

		headers := []string{"ID", "Subject", "Type", "Status", "Requester", "Created"}
		rows := make([][]string, 0, len(result.Approvals))
		for _, a := range result.Approvals {
			subject := fmt.Sprintf("%s/%s", a.Subject.Kind, a.Subject.ID)
			rows = append(rows, []string{
				truncate(a.ID, 12),
				subject,
				a.Type,
				a.Status,
				a.Requester,
				a.CreatedAt,
			})
		}
		printTable(headers, rows)
		fmt.Printf("Total: %d\n", result.TotalSize)
		return nil
	},
}

var approvalsGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Get approval details",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := newClient()

		var result map[string]any
		if err := client.getJSON(fmt.Sprintf("%s/approvals/%s", apiBase, args[0]), &result); err != nil {
			return fmt.Errorf("failed to get approval: %w", err)
		}
		return printOutput(result)
	},
}

var approvalsRespondCmd = &cobra.Command{
	Use:   "respond <id> <Accepted|Declined>",
	Short: "Submit a reviewer decision",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if userFlag == "" {
			return fmt.Errorf("--user is required to respond to an approval")
		}
		client := newClient()

		body := map[string]string{
			"decision": args[1],
			"comment":  commentFlag,
		}
		var result map[string]any
		if err := client.postJSON(fmt.Sprintf("%s/approvals/%s/respond", apiBase, args[0]), body, &result); err != nil {
			return fmt.Errorf("failed to respond to approval: %w", err)
		}
		return printOutput(result)
	},
}

var approvalsCountCmd = &cobra.Command{
	Use:   "count",
	Short: "Count approvals awaiting your review",
	RunE: func(cmd *cobra.Command, args []string) error {
		if userFlag == "" {
			return fmt.Errorf("--user is required to count pending approvals")
		}
		client := newClient()

		var result struct {
			Count int64 `json:"count"`
		}
		if err := client.getJSON(apiBase+"/approvals/count", &result); err != nil {
			return fmt.Errorf("failed to count approvals: %w", err)
		}
		fmt.Println(result.Count)
		return nil
	},
}

func init() {
	approvalsListCmd.Flags().StringVar(&categoryFlag, "category", "Upload", "Approval category: Upload or Deployment")
	approvalsListCmd.Flags().BoolVar(&archivedFlag, "archived", false, "List resolved approvals instead of pending ones")
	approvalsRespondCmd.Flags().StringVar(&commentFlag, "comment", "", "Optional reviewer comment")

	approvalsCmd.AddCommand(approvalsListCmd)
	approvalsCmd.AddCommand(approvalsGetCmd)
	approvalsCmd.AddCommand(approvalsRespondCmd)
	approvalsCmd.AddCommand(approvalsCountCmd)
}
