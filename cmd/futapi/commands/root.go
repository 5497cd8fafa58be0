package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"futapi"
	"futapi/internal/config"
	"futapi/internal/observability"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	envFile  string
	platform string

	cfg    config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:           "futapi",
	Short:         "futapi signs in to the FUT web app and manages the account's transfer piles.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var files []string
		if envFile != "" {
			files = append(files, envFile)
		}

		var err error
		cfg, err = config.Load(files...)
		if err != nil {
			return err
		}
		if platform != "" {
			cfg.Platform = platform
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		logger, err = observability.NewLogger(cfg.Log)
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "read settings from this file instead of .env")
	rootCmd.PersistentFlags().StringVar(&platform, "platform", "", fmt.Sprintf("override FUT_PLATFORM %v", futapi.PlatformNames()))
}

// ExecuteContext runs the CLI. Errors are printed to the command's error
// output and returned so the caller can pick the exit code.
func ExecuteContext(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if logger != nil {
		_ = logger.Sync()
	}
	if err == nil {
		return nil
	}
	if futapi.IsFatalError(err) {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "FATAL:", err)
	} else {
		fmt.Fprintln(rootCmd.ErrOrStderr(), err)
	}
	return err
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
