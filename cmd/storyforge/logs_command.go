package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"storyforge/internal/logging"
	"storyforge/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines   int
		follow  bool
		session string
		grep    string
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the storyforge log file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if lines < 0 {
				return fmt.Errorf("--lines must not be negative")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := logging.FilePath(cfg)
			if path == "" {
				return fmt.Errorf("no log directory configured")
			}

			match := logs.Containing(session, grep)
			recent, offset, err := logs.Last(path, lines, match)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, line := range recent {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}
			return logs.Follow(commandScope(cmd), path, offset, logs.DefaultPoll, match, func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to print")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	cmd.Flags().StringVar(&session, "session", "", "Only lines mentioning this session id")
	cmd.Flags().StringVar(&grep, "grep", "", "Only lines containing this text")
	return cmd
}
