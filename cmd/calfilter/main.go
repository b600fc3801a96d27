package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"calfilter/internal/ics"
	appLog "calfilter/internal/log"
)

// Set via -ldflags at build time.
var version = "0.1.0-dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	root := newRootCommand()
	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		if errors.Is(err, ics.ErrUnterminatedEvent) {
			appLog.Error("calendar is malformed", err)
		} else {
			appLog.Error("command failed", err)
		}
		return 1
	}
	return 0
}

func newRootCommand() *cobra.Command {
	var debug bool

	root := &cobra.Command{
		Use:   "calfilter",
		Short: "Strip lecture and blocked-slot events from an iCalendar feed",
		Long: `calfilter fetches a remote iCalendar file, drops the VEVENT blocks that
match a set of markers, and returns the rest of the calendar untouched.

Run "calfilter serve" for the HTTP proxy or "calfilter filter" to process a
local file.`,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if debug {
				appLog.SetLevel(appLog.LevelDebug)
			}
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(newServeCommand())
	root.AddCommand(newFilterCommand())
	root.AddCommand(newVersionCommand())

	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Println("calfilter " + version)
		},
	}
}
