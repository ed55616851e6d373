package main

import (
	"github.com/spf13/cobra"
)

// =============================================================================
// Run Command
// =============================================================================

// buildRunCmd creates the "run" command, which launches the interactive
// decision loop REPL described in the spec's CLI surface.
func buildRunCmd() *cobra.Command {
	var (
		configPath  string
		autoApprove bool
	)
	cmd := &cobra.Command{
		Use:   "run [goal]",
		Short: "Launch the decision loop REPL",
		Long: `Launch an interactive session that feeds goals through the envelope
decision loop. If a goal is given as an argument, it runs once and exits;
otherwise the REPL reads goals and meta-commands from stdin.

Meta-commands: /help /plan /stats /approve /deny /quit /clear /auto on|off`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var goal string
			if len(args) > 0 {
				goal = args[0]
			}
			return runRepl(cmd, configPath, goal, autoApprove)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to YAML configuration file")
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "Auto-approve confirm-state envelopes without prompting")
	return cmd
}
