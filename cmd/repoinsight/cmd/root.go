// Package cmd provides the CLI commands for RepoInsight.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/repoinsight/repoinsight/internal/config"
	"github.com/repoinsight/repoinsight/internal/logging"
	"github.com/repoinsight/repoinsight/pkg/version"
)

var (
	configPath string
	envFile    string
)

// NewRootCmd creates the root command for the repoinsight CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "repoinsight",
		Short: "Repository indexing and question answering service",
		Long: `RepoInsight indexes GitHub repositories into per-repository vector
collections and answers natural-language questions about them using
hybrid (semantic + BM25) retrieval.

Run 'repoinsight serve' for the HTTP API and 'repoinsight worker' for
the task consumer.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("repoinsight version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment variables from file")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newWorkerCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the CLI.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// loadEnvironment applies the env file (explicit flag first, then a
// local .env if present) and builds the runtime configuration.
func loadEnvironment() (*config.Config, *slog.Logger, func(), error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, nil, nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, err
	}

	logger, cleanup, err := logging.Setup(logging.Config{
		Level:    cfg.Log.Level,
		FilePath: cfg.Log.File,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, logger, cleanup, nil
}
