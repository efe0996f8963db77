package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func buildRunCmd(flags *globalFlags) *cobra.Command {
	var task string
	cmd := &cobra.Command{
		Use:   "run [task]",
		Short: "run one headless turn and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			t := task
			if t == "" && len(args) > 0 {
				t = args[0]
			}
			if t == "" {
				return fmt.Errorf("push run: a task is required, either as an argument or via --task")
			}
			return runHeadless(cmd, *flags, t)
		},
	}
	cmd.Flags().StringVar(&task, "task", "", "task instruction for the one-shot turn")
	return cmd
}

func buildSessionsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "list persisted sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listSessions(cmd, *flags)
		},
	}
}
