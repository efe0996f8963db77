// Command push is a local coding agent that drives a remote sandbox
// workspace through a fixed tool set, the way the teacher's nexus CLI
// (cmd/nexus/main.go) drives its multi-channel gateway: a cobra root
// command wires flags into a loaded config, builds the runtime
// collaborators, then either serves an interactive loop or runs one
// headless turn.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	root := buildRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var flags globalFlags
	var sessionID string

	root := &cobra.Command{
		Use:   "push",
		Short: "push — a coding agent over a remote sandbox workspace",
		Long: `push drives a fixed set of sandbox tools (exec, read, write, edit,
patchset, diff, prepare_commit, ...) through an LLM-backed agent loop,
with a File Awareness Ledger guarding writes and an Auditor gate reviewing
staged diffs before commit.

Running push with no subcommand starts an interactive session; push run
drives one headless turn and exits.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive(cmd, flags, sessionID)
		},
	}

	root.PersistentFlags().StringVar(&flags.provider, "provider", "", "LLM provider (anthropic, ollama, mistral, openrouter, ...)")
	root.PersistentFlags().StringVar(&flags.model, "model", "", "model id")
	root.PersistentFlags().StringVar(&flags.cwd, "cwd", "", "sandbox workspace directory")
	root.PersistentFlags().IntVar(&flags.maxRounds, "max-rounds", 0, "max agent-loop rounds per turn, clamped to [1, 30]")
	root.PersistentFlags().BoolVar(&flags.jsonOut, "json", false, "emit JSON output (headless mode)")
	root.PersistentFlags().StringVar(&flags.configPath, "config", "", "path to push.yaml")
	root.Flags().StringVar(&sessionID, "session", "", "resume an existing session id")

	root.AddCommand(buildRunCmd(&flags), buildSessionsCmd(&flags))
	return root
}
