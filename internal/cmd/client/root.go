package client

import (
	"github.com/spf13/cobra"
)

// BaseURLFunc provides the base HTTP API URL (e.g., from env or flag).
type BaseURLFunc func() string

// NewRoot constructs a root Cobra command carrying the client command
// group, for embedding in the beam binary.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "beam",
		Short: "Beam client commands",
	}
	root.AddCommand(NewTailCommand(baseURL))
	root.AddCommand(NewPublishCommand(baseURL))
	root.AddCommand(NewPollCommand(baseURL))
	return root
}
