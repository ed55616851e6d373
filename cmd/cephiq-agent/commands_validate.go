package main

import (
	"github.com/spf13/cobra"
)

// =============================================================================
// Validate Command
// =============================================================================

// buildValidateCmd creates the "validate" command, which checks a single
// envelope read from stdin against the envelope JSON schema. Intended for
// CI pipelines that want to lint hand-authored or recorded envelopes.
func buildValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate an envelope JSON document read from stdin",
		Long: `Reads one envelope JSON document from stdin and checks it against the
envelope schema, printing any validation errors and exiting non-zero if the
document is invalid.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd)
		},
	}
	return cmd
}
