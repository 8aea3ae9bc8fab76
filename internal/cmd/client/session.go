package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// NewSessionCommand constructs the `session` command group.
func NewSessionCommand(baseURL BaseURLFunc) *cobra.Command {
	sessionCmd := &cobra.Command{Use: "session", Short: "Session operations"}
	sessionCmd.AddCommand(
		newSessionRegisterCommand(baseURL),
		newSessionCloseCommand(baseURL),
		newSessionStatsCommand(baseURL),
	)
	return sessionCmd
}

func newSessionRegisterCommand(baseURL BaseURLFunc) *cobra.Command {
	registerCmd := &cobra.Command{
		Use:   "register",
		Short: "Register a session (creates one with a generated ID when --id is omitted)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetString("id")
			request, _ := cmd.Flags().GetString("request")
			body := map[string]any{"sessionId": id, "userRequest": request}
			return postJSON(cmd, baseURL()+"/v1/sessions/register", body)
		},
	}
	registerCmd.Flags().String("id", "", "Session ID (generated when empty)")
	registerCmd.Flags().String("request", "", "The user request this session serves")
	return registerCmd
}

func newSessionCloseCommand(baseURL BaseURLFunc) *cobra.Command {
	closeCmd := &cobra.Command{
		Use:   "close",
		Short: "Close a session, ending all attached streams",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetString("id")
			reason, _ := cmd.Flags().GetString("reason")
			if id == "" {
				return fmt.Errorf("--id is required")
			}
			body := map[string]any{"sessionId": id, "reason": reason}
			return postJSON(cmd, baseURL()+"/v1/sessions/close", body)
		},
	}
	closeCmd.Flags().String("id", "", "Session ID")
	closeCmd.Flags().String("reason", "", "Close reason delivered to clients")
	return closeCmd
}

func newSessionStatsCommand(baseURL BaseURLFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show per-session delivery stats",
		RunE: func(cmd *cobra.Command, _ []string) error {
			resp, err := http.Get(baseURL() + "/v1/sessions/stats")
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			_, err = io.Copy(cmd.OutOrStdout(), resp.Body)
			return err
		},
	}
}

func postJSON(cmd *cobra.Command, url string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	out, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s: %s", resp.Status, bytes.TrimSpace(out))
	}
	fmt.Fprintln(cmd.OutOrStdout(), "status:", resp.Status)
	if len(bytes.TrimSpace(out)) > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
	}
	return nil
}
