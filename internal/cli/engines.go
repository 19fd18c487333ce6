package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

// NewEnginesCommand creates the engines command.
func NewEnginesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "engines",
		Short: "List the available engine adapters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names := NewRegistry(false, rootOpts.Logger()).Names()
			formatter := rootOpts.formatter(cmd.OutOrStdout())
			if rootOpts.Format == "json" {
				return formatter.Success(names)
			}
			return formatter.Success(strings.Join(names, "\n"))
		},
	}
}
