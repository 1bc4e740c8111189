// Package commands defines all Cobra CLI commands for the knowligo binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/knowligo/knowligo-go/internal/audit"
	"github.com/knowligo/knowligo-go/internal/config"
	"github.com/knowligo/knowligo-go/internal/logging"
)

// configPath is the --config flag value, overriding the default YAML path.
var configPath string

// loadedConfigPath is the config file that was actually read, for the audit log.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command all subcommands hang off.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "knowligo",
		Short: "KnowLigo — Spanish-language IT support assistant over your knowledge base",
		Long: `KnowLigo answers customer IT-support questions in Spanish, grounded on a
markdown knowledge base you ingest once and serve from memory.

Queries run through hybrid retrieval (dense vectors fused with BM25),
optional cross-encoder reranking, and an LLM that writes the final answer
citing its sources. Answers are cached semantically, per-user quotas are
enforced, and every query is logged to SQLite.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.knowligo/config.yaml).
See 'knowligo --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// YAML fills in what the environment leaves unset, never the
			// other way around.
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			audit.LogCommandStart(cmd.Context(), log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.knowligo/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewServeCmd(),
		NewIngestCmd(),
		NewStatsCmd(),
		NewVersionCmd(),
	)

	return root
}
