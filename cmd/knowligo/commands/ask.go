package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/knowligo/knowligo-go/internal/logging"
	"github.com/knowligo/knowligo-go/internal/pipeline"
)

// NewAskCmd constructs the `knowligo ask` command, which runs a single
// question through the full query pipeline and prints the answer to stdout.
func NewAskCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "ask [pregunta]",
		Short: "Ask the IT support assistant a single question",
		Long: `Ask a single question against the ingested knowledge base.

The question goes through the same pipeline as the HTTP API: rate limit,
semantic cache, validation, hybrid retrieval, reranking and answer
generation. The answer is printed with its supporting sources.

Run 'knowligo ingest' first to build the knowledge snapshot.

Examples:
  knowligo ask "¿qué planes de soporte tienen?"
  knowligo ask "¿cuál es el SLA del plan premium?"
  knowligo ask --user +5215512345678 "¿cómo escalo un ticket?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			eng, err := buildEngine(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer eng.close()

			res := eng.pipeline.Process(ctx, pipeline.Request{
				UserID: userID,
				Query:  strings.Join(args, " "),
			})

			fmt.Println(res.Response)

			if len(res.Sources) > 0 {
				fmt.Println("\nFuentes:")
				for _, src := range res.Sources {
					fmt.Printf("  - %s (%s)\n", src.File, src.Section)
				}
			}

			if res.Cached {
				fmt.Printf("\n(respuesta en caché, similitud %.3f)\n", res.CacheScore)
			}

			if !res.Success {
				return fmt.Errorf("ask: query failed (%s)", res.ErrorCode)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "cli", "User ID recorded in the query log and rate limit")

	return cmd
}
