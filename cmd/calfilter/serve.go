package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"calfilter/internal/config"
	appLog "calfilter/internal/log"
	"calfilter/internal/web"
)

func newServeCommand() *cobra.Command {
	var (
		configPath string
		envPath    string
		listen     string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP filtering proxy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(envPath); err != nil {
				return err
			}

			conf, err := config.Load(configPath)
			if err != nil {
				return err
			}
			// CLI --listen overrides config file and PORT.
			if listen != "" {
				conf.Listen = listen
			}
			if err := conf.Validate(); err != nil {
				return err
			}

			if !cmd.Flags().Changed("debug") {
				level, err := appLog.ParseLevel(conf.Log.Level)
				if err != nil {
					return err
				}
				appLog.SetLevel(level)
			}
			if conf.Log.File != "" {
				closer, err := appLog.OpenFile(conf.Log.File)
				if err != nil {
					return err
				}
				defer closer.Close()
			}

			appLog.Info("effective config",
				"listen", conf.Listen,
				"origin", conf.Origin,
				"allowed_source", conf.AllowedSource,
				"match", conf.Filter.Match,
				"markers", conf.Filter.Markers,
				"fetch_timeout_seconds", conf.Fetch.TimeoutSeconds,
			)

			// Root context with cancellation on SIGINT/SIGTERM.
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := web.StartServer(ctx, conf); err != nil {
				return err
			}
			appLog.Info("calfilter exiting")
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to YAML config file (created with defaults if missing)")
	cmd.Flags().StringVar(&envPath, "env-file", ".env", "path to a .env file; ignored if absent")
	cmd.Flags().StringVar(&listen, "listen", "", "HTTP listen address (overrides config and PORT)")

	return cmd
}
