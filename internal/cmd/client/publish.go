package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"
)

// NewPublishCommand constructs the `publish` subcommand.
func NewPublishCommand(baseURL BaseURLFunc) *cobra.Command {
	publishCmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish one event to a channel",
		RunE: func(cmd *cobra.Command, _ []string) error {
			channelKey, _ := cmd.Flags().GetString("channel")
			eventType, _ := cmd.Flags().GetString("type")
			data, _ := cmd.Flags().GetString("data")
			producer, _ := cmd.Flags().GetString("producer")
			token, _ := cmd.Flags().GetString("token")

			if channelKey == "" || eventType == "" {
				return fmt.Errorf("--channel and --type are required")
			}
			payload := json.RawMessage(data)
			if data != "" && !json.Valid(payload) {
				return fmt.Errorf("--data must be valid JSON")
			}

			body, _ := json.Marshal(map[string]any{
				"channelKey": channelKey,
				"type":       eventType,
				"payload":    payload,
				"producerId": producer,
			})
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost,
				baseURL()+"/v1/events", bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			if token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer func() { _ = resp.Body.Close() }()
			if resp.StatusCode != http.StatusAccepted {
				b, _ := io.ReadAll(resp.Body)
				return fmt.Errorf("publish failed: %s %s", resp.Status, bytes.TrimSpace(b))
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
	publishCmd.Flags().StringP("channel", "c", "", "Channel key")
	publishCmd.Flags().StringP("type", "t", "", "Event type")
	publishCmd.Flags().StringP("data", "d", "", "JSON payload")
	publishCmd.Flags().String("producer", "", "Producer id")
	publishCmd.Flags().String("token", "", "Bearer token")
	return publishCmd
}
