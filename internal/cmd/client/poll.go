package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
)

// NewPollCommand constructs the `poll` subcommand: one stateless fetch.
func NewPollCommand(baseURL BaseURLFunc) *cobra.Command {
	pollCmd := &cobra.Command{
		Use:   "poll",
		Short: "Fetch one page of events since a timestamp",
		RunE: func(cmd *cobra.Command, _ []string) error {
			channelKey, _ := cmd.Flags().GetString("channel")
			since, _ := cmd.Flags().GetString("since")
			limit, _ := cmd.Flags().GetInt("limit")
			token, _ := cmd.Flags().GetString("token")

			if channelKey == "" {
				return fmt.Errorf("--channel is required")
			}

			q := url.Values{}
			q.Set("channelKey", channelKey)
			if since != "" {
				q.Set("since", since)
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet,
				baseURL()+"/v1/events/poll?"+q.Encode(), nil)
			if err != nil {
				return err
			}
			if token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer func() { _ = resp.Body.Close() }()
			if resp.StatusCode != http.StatusOK {
				_, _ = io.Copy(io.Discard, resp.Body)
				return fmt.Errorf("poll failed: %s", resp.Status)
			}
			var out map[string]any
			if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	pollCmd.Flags().StringP("channel", "c", "", "Channel key")
	pollCmd.Flags().String("since", "0", "Unix ms or RFC3339 lower bound (exclusive)")
	pollCmd.Flags().Int("limit", 0, "Max events (server caps this)")
	pollCmd.Flags().String("token", "", "Bearer token")
	return pollCmd
}
