package client

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/beamhq/beam/internal/channel"
	connpkg "github.com/beamhq/beam/internal/conn"
	logpkg "github.com/beamhq/beam/pkg/log"
)

// NewTailCommand constructs the `tail` subcommand: a tiered live
// subscription that prints each event as one JSON line.
func NewTailCommand(baseURL BaseURLFunc) *cobra.Command {
	tailCmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow a channel live, demoting duplex->stream->poll as needed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			channelKey, _ := cmd.Flags().GetString("channel")
			lastID, _ := cmd.Flags().GetString("last-event-id")
			filter, _ := cmd.Flags().GetString("filter")
			token, _ := cmd.Flags().GetString("token")
			start, _ := cmd.Flags().GetString("transport")
			baseMs, _ := cmd.Flags().GetInt("reconnect-base-ms")
			maxMs, _ := cmd.Flags().GetInt("reconnect-max-ms")
			attempts, _ := cmd.Flags().GetUint("reconnect-attempts")
			noDemote, _ := cmd.Flags().GetBool("no-demote")

			if channelKey == "" {
				return fmt.Errorf("--channel is required")
			}
			tier, err := parseTier(start)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			r := NewRunner(RunnerOptions{
				BaseURL:     baseURL(),
				ChannelKey:  channelKey,
				LastEventID: lastID,
				Filter:      filter,
				Token:       token,
				Start:       tier,
				Policy: connpkg.Policy{
					BaseDelay:      time.Duration(baseMs) * time.Millisecond,
					MaxDelay:       time.Duration(maxMs) * time.Millisecond,
					MaxAttempts:    attempts,
					Demote:         !noDemote,
					PollRetryDelay: 5 * time.Second,
				},
				Logger: cliLogger(),
				OnEvent: func(ev channel.Event) error {
					return enc.Encode(ev)
				},
			})
			return r.Run(cmd.Context())
		},
	}
	tailCmd.Flags().StringP("channel", "c", "", "Channel key")
	tailCmd.Flags().String("last-event-id", "", "Resume after this event id")
	tailCmd.Flags().String("filter", "", "CEL filter expression")
	tailCmd.Flags().String("token", "", "Bearer token")
	tailCmd.Flags().String("transport", "duplex", "Starting tier: duplex|stream|poll")
	tailCmd.Flags().Int("reconnect-base-ms", 1000, "First retry delay")
	tailCmd.Flags().Int("reconnect-max-ms", 30000, "Retry delay cap")
	tailCmd.Flags().Uint("reconnect-attempts", 5, "Retry budget per tier")
	tailCmd.Flags().Bool("no-demote", false, "Fail instead of falling back to a lower tier")
	return tailCmd
}

func parseTier(s string) (connpkg.Transport, error) {
	switch s {
	case "duplex", "":
		return connpkg.TransportDuplex, nil
	case "stream":
		return connpkg.TransportStream, nil
	case "poll":
		return connpkg.TransportPoll, nil
	default:
		return connpkg.TransportNone, fmt.Errorf("invalid --transport %q; use duplex|stream|poll", s)
	}
}

func cliLogger() logpkg.Logger {
	level := os.Getenv("BEAM_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.WarnLevel
	}
	return logpkg.NewLogger(logpkg.WithLevel(parsed), logpkg.WithWriter(os.Stderr))
}
