package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfga/fgabatch/pkg/client"
)

// NewCheckCommand evaluates a single permission through the coalescing read path.
func NewCheckCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <user> <relation> <object>",
		Short: "Check whether a user has a relation with an object",
		Args:  cobra.ExactArgs(3),
		RunE:  runCheck,
	}

	bindConnectionFlags(cmd)

	return cmd
}

func runCheck(cmd *cobra.Command, args []string) error {
	pipeline, cleanup, err := buildClient(client.DefaultConfig())
	if err != nil {
		return err
	}
	defer cleanup()

	allowed, err := pipeline.Check(cmd.Context(), args[0], args[1], args[2])
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "allowed: %t\n", allowed)

	return nil
}
