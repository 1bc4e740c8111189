package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudwego/eino/callbacks"
	"github.com/spf13/cobra"

	"github.com/knowligo/knowligo-go/internal/logging"
	"github.com/knowligo/knowligo-go/internal/server"
	"github.com/knowligo/knowligo-go/internal/tracing"
	"github.com/knowligo/knowligo-go/internal/version"
)

// NewServeCmd constructs the `knowligo serve` command, which starts the HTTP
// API server that chat frontends (e.g. a WhatsApp webhook) call per message.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the KnowLigo HTTP API server",
		Long: `Start the KnowLigo HTTP API server on localhost.

The server answers customer IT-support questions in Spanish over the
ingested knowledge base via POST /api/query, and exposes stats, health,
readiness and Prometheus metrics endpoints alongside it.

Run 'knowligo ingest' first to build the knowledge snapshot.

Examples:
  knowligo serve
  knowligo serve --port 9090
  KNOWLIGO_API_KEY=secret knowligo serve
  MODEL_PROVIDER=ollama knowligo serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			// Explicit flags win; otherwise the env (including values the YAML
			// config file applied) picks the bind address.
			if !cmd.Flags().Changed("host") {
				if v := os.Getenv("KNOWLIGO_HOST"); v != "" {
					host = v
				}
			}
			if !cmd.Flags().Changed("port") {
				if v := getEnvInt("KNOWLIGO_PORT", 0); v > 0 {
					port = v
				}
			}

			log.Info("serve starting",
				slog.String("version", version.String()),
				slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			// Langfuse tracing is opt-in via its key pair.
			if handler, flush, ok := tracing.Setup(); ok {
				callbacks.AppendGlobalHandlers(handler)
				defer flush()
				log.Info("langfuse tracing enabled")
			} else {
				log.Info("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY not set"))
			}

			eng, err := buildEngine(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer eng.close()

			srv, err := server.New(eng.pipeline, &server.Config{
				Host:     host,
				Port:     port,
				Logger:   log,
				Pingers:  eng.pingers,
				APIKey:   os.Getenv("KNOWLIGO_API_KEY"),
				Cache:    eng.cache,
				QueryLog: eng.queryLog,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
