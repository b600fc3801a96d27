package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"calfilter/internal/config"
	"calfilter/internal/ics"
	appLog "calfilter/internal/log"
)

func newFilterCommand() *cobra.Command {
	var (
		input   string
		output  string
		markers []string
		match   string
	)

	cmd := &cobra.Command{
		Use:   "filter",
		Short: "Filter a local calendar file (stdin to stdout by default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("marker") {
				markers = config.DefaultConfig().Filter.Markers
			}
			pred, err := ics.NewPredicate(match, markers)
			if err != nil {
				return err
			}

			in := cmd.InOrStdin()
			if input != "" && input != "-" {
				f, err := os.Open(input)
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			data, err := io.ReadAll(in)
			if err != nil {
				return err
			}

			out, stats, err := ics.FilterWithStats(string(data), pred)
			if err != nil {
				return err
			}
			appLog.Debug("calendar filtered", "kept", stats.Kept, "dropped", stats.Dropped)

			if output == "" || output == "-" {
				_, err = io.WriteString(cmd.OutOrStdout(), out)
				return err
			}
			return os.WriteFile(output, []byte(out), 0o644)
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "input .ics file (default stdin)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringArrayVarP(&markers, "marker", "m", nil, "drop events containing this text (repeatable)")
	cmd.Flags().StringVar(&match, "match", config.MatchText, "where markers are matched: text or summary")

	return cmd
}
