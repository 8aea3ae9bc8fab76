package client

import (
	"bufio"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
)

// NewTailCommand constructs the `tail` command: it attaches to a
// session's SSE stream and prints each event's data frame as a JSON
// line.
func NewTailCommand(baseURL BaseURLFunc) *cobra.Command {
	tailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail a session's event stream over SSE",
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, _ := cmd.Flags().GetString("session")
			lastEventID, _ := cmd.Flags().GetString("last-event-id")
			filter, _ := cmd.Flags().GetString("filter")
			visibility, _ := cmd.Flags().GetString("visibility")
			if session == "" {
				return fmt.Errorf("--session is required")
			}

			q := url.Values{}
			q.Set("session", session)
			if lastEventID != "" {
				q.Set("last_event_id", lastEventID)
			}
			if filter != "" {
				q.Set("filter", filter)
			}
			if visibility != "" {
				q.Set("visibility", visibility)
			}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet,
				baseURL()+"/v1/stream?"+q.Encode(), nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("stream request failed: %s", resp.Status)
			}

			out := cmd.OutOrStdout()
			scanner := bufio.NewScanner(resp.Body)
			scanner.Buffer(make([]byte, 64*1024), 1024*1024)
			for scanner.Scan() {
				line := scanner.Text()
				if data, ok := strings.CutPrefix(line, "data: "); ok {
					fmt.Fprintln(out, data)
				}
			}
			return scanner.Err()
		},
	}
	tailCmd.Flags().StringP("session", "s", "", "Session ID")
	tailCmd.Flags().String("last-event-id", "", "Resume cursor (event ID)")
	tailCmd.Flags().String("filter", "", "CEL filter (server-side)")
	tailCmd.Flags().String("visibility", "", "Comma-separated visibility levels")
	return tailCmd
}
