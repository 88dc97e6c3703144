package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ImpactRank/internal/di"
	"ImpactRank/pkg/config"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var (
		configPath string
		checkOnly  bool
	)
	cmd := &cobra.Command{
		Use:           "impactrank",
		Short:         "Serve ticker impact rankings over HTTP, websocket and Kafka",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadWithEnv(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if checkOnly {
				fmt.Fprintf(cmd.OutOrStdout(), "config %s ok\n", configPath)
				return nil
			}

			app, err := di.InitializeApp(cfg)
			if err != nil {
				return fmt.Errorf("initialize: %w", err)
			}
			return app.Run()
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", envOr("IMPACTRANK_CONFIG", "config/config.yaml"), "config file path")
	cmd.Flags().BoolVar(&checkOnly, "check", false, "validate the config and exit")
	return cmd
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
