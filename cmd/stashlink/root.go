package main

import (
	"context"
	"errors"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sydlexius/stashlink/internal/version"
)

// execute runs the command tree with args and always releases what the
// command opened, whether or not it failed.
func execute(ctx context.Context, args []string, configure func(*cobra.Command)) error {
	rootCmd, cc := newRootCommand()
	if args != nil {
		rootCmd.SetArgs(args)
	}
	if configure != nil {
		configure(rootCmd)
	}
	err := rootCmd.ExecuteContext(ctx)
	return errors.Join(err, cc.finish())
}

func newRootCommand() (*cobra.Command, *commandContext) {
	var configFlag string
	var logLevelFlag string
	var metricsFlag string

	ctx := newCommandContext(&configFlag, &logLevelFlag, &metricsFlag)

	rootCmd := &cobra.Command{
		Use:           "stashlink",
		Short:         "Link local studios, performers and tags to stash-box registries",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "stashlink.yaml", "Configuration file path")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Override the configured log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&metricsFlag, "metrics-textfile", "", "Write Prometheus metrics to this file on exit")

	rootCmd.AddCommand(newSourcesCommand(ctx))
	rootCmd.AddCommand(newCatalogCommand(ctx))
	rootCmd.AddCommand(newMatchCommand(ctx))
	rootCmd.AddCommand(newApplyCommand(ctx))
	rootCmd.AddCommand(newSkipCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))

	return rootCmd, ctx
}

// kindFlag registers the required --kind flag on cmd.
func kindFlag(cmd *cobra.Command, dst *string) {
	cmd.Flags().StringVarP(dst, "kind", "k", "", "Entity kind: studio, performer or tag")
	_ = cmd.MarkFlagRequired("kind")
}
