package client

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// NewPublishCommand constructs the `publish` command.
func NewPublishCommand(baseURL BaseURLFunc) *cobra.Command {
	publishCmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish an event to a session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, _ := cmd.Flags().GetString("session")
			eventType, _ := cmd.Flags().GetString("type")
			message, _ := cmd.Flags().GetString("message")
			visibility, _ := cmd.Flags().GetString("visibility")
			dataJSON, _ := cmd.Flags().GetString("data")
			if session == "" {
				return fmt.Errorf("--session is required")
			}
			body := map[string]any{
				"sessionId": session,
				"type":      eventType,
				"message":   message,
			}
			if visibility != "" {
				body["visibility"] = visibility
			}
			if dataJSON != "" {
				var data map[string]any
				if err := json.Unmarshal([]byte(dataJSON), &data); err != nil {
					return fmt.Errorf("invalid --data: %w", err)
				}
				body["data"] = data
			}
			return postJSON(cmd, baseURL()+"/v1/publish", body)
		},
	}
	publishCmd.Flags().StringP("session", "s", "", "Session ID")
	publishCmd.Flags().String("type", "agent_message", "Event type")
	publishCmd.Flags().StringP("message", "m", "", "Human-readable message")
	publishCmd.Flags().String("visibility", "", "Visibility: user_facing|model_only|live_ui_only|internal_only")
	publishCmd.Flags().String("data", "", "Structured payload as JSON")
	return publishCmd
}
