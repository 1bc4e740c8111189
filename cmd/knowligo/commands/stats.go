package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/knowligo/knowligo-go/internal/store"
)

// NewStatsCmd constructs the `knowligo stats` command, which aggregates the
// query log without needing a running server.
func NewStatsCmd() *cobra.Command {
	var recent int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show query log statistics",
		Long: `Aggregate the persistent query log: totals, success rate, unique users and
the intent distribution. Reads the same SQLite database the server writes,
so it works offline against KNOWLIGO_DB (default: ~/.knowligo/knowligo.db).

Examples:
  knowligo stats
  knowligo stats --recent 10
  knowligo stats --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			dbPath := os.Getenv("KNOWLIGO_DB")
			if dbPath == "" {
				var err error
				dbPath, err = store.DefaultDBPath()
				if err != nil {
					return fmt.Errorf("stats: %w", err)
				}
			}

			s, err := store.Open(dbPath)
			if err != nil {
				return fmt.Errorf("stats: failed to open query log %s: %w", dbPath, err)
			}
			defer s.Close()

			st, err := s.Stats(ctx)
			if err != nil {
				return fmt.Errorf("stats: %w", err)
			}

			var recs []store.Record
			if recent > 0 {
				recs, err = s.Recent(ctx, recent)
				if err != nil {
					return fmt.Errorf("stats: %w", err)
				}
			}

			if asJSON {
				out := struct {
					store.Stats
					Recent []store.Record `json:"recent,omitempty"`
				}{Stats: st, Recent: recs}
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(out); err != nil {
					return fmt.Errorf("stats: %w", err)
				}
				return nil
			}

			fmt.Printf("Total queries:   %d\n", st.TotalQueries)
			fmt.Printf("Successful:      %d (%.1f%%)\n", st.SuccessfulQueries, st.SuccessRate)
			fmt.Printf("Unique users:    %d\n", st.UniqueUsers)

			if len(st.IntentDistribution) > 0 {
				fmt.Println("Intents:")
				intents := make([]string, 0, len(st.IntentDistribution))
				for name := range st.IntentDistribution {
					intents = append(intents, name)
				}
				sort.Slice(intents, func(i, j int) bool {
					a, b := st.IntentDistribution[intents[i]], st.IntentDistribution[intents[j]]
					if a != b {
						return a > b
					}
					return intents[i] < intents[j]
				})
				for _, name := range intents {
					fmt.Printf("  %-20s %d\n", name, st.IntentDistribution[name])
				}
			}

			if len(recs) > 0 {
				fmt.Printf("\nLast %d queries:\n", len(recs))
				for _, r := range recs {
					status := "ok"
					if !r.Success {
						status = "error"
					}
					fmt.Printf("  %s  %-14s %-6s %s\n",
						r.CreatedAt.Format("2006-01-02 15:04"), r.Intent, status, truncate(r.Query, 60))
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&recent, "recent", "n", 0, "Also show the N most recent queries")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output as JSON")

	return cmd
}

// truncate shortens s to at most n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
