/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/valpere/mythmaker/internal/markdown"
	"github.com/valpere/mythmaker/internal/postprocess"
	"github.com/valpere/mythmaker/internal/store"
)

var (
	historyLocation string
	historyFuzzy    float64
	historyLimit    int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse the session archive",
	Long:  `List, show, delete and clear sessions archived with --db.`,
}

// withStore opens the configured archive for the duration of fn.
func withStore(fn func(ctx context.Context, db *store.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openStore(cfg.DB)
	if err != nil {
		return err
	}
	defer db.Close()
	return fn(context.Background(), db)
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List archived sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, db *store.Store) error {
			entries, err := db.ListSessions(ctx, store.ListOptions{
				Location: historyLocation,
				Fuzzy:    historyFuzzy,
				Limit:    historyLimit,
			})
			if err != nil {
				return fmt.Errorf("failed to list sessions: %w", err)
			}

			if len(entries) == 0 {
				fmt.Println("No sessions in the archive.")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTARTED\tLOCATION\tSTOP\tITER\tSCORE\tMYTH")
			for _, e := range entries {
				score := "-"
				if e.FinalScore.Valid {
					score = fmt.Sprintf("%g", e.FinalScore.Float64)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
					e.ID, e.StartedAt.Local().Format("2006-01-02 15:04"), e.Location,
					e.StopReason, e.Iterations, score, postprocess.Preview(e.FinalMyth, 37))
			}
			return w.Flush()
		})
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print the report of an archived session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := markdown.ParseFormat(reportFormat)
		if err != nil {
			return err
		}
		return withStore(func(ctx context.Context, db *store.Store) error {
			mem, err := db.GetSession(ctx, args[0])
			if err != nil {
				return err
			}
			report, err := markdown.Render(mem, format)
			if err != nil {
				return err
			}
			fmt.Print(report)
			return nil
		})
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete an archived session by ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, db *store.Store) error {
			if err := db.DeleteSession(ctx, args[0]); err != nil {
				return fmt.Errorf("failed to delete session: %w", err)
			}
			fmt.Printf("Deleted session: %s\n", args[0])
			return nil
		})
	},
}

var historyClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all sessions from the archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, db *store.Store) error {
			n, err := db.ClearSessions(ctx)
			if err != nil {
				return fmt.Errorf("failed to clear archive: %w", err)
			}
			fmt.Printf("Cleared %d sessions from the archive.\n", n)
			return nil
		})
	},
}

var historyStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show archive statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withStore(func(ctx context.Context, db *store.Store) error {
			stats, err := db.Stats(ctx)
			if err != nil {
				return fmt.Errorf("failed to get stats: %w", err)
			}

			fmt.Printf("Total sessions:    %d\n", stats.TotalSessions)
			fmt.Printf("Locations:         %d\n", stats.Locations)
			fmt.Printf("Accepted:          %d\n", stats.Accepted)
			fmt.Printf("Iteration capped:  %d\n", stats.IterationCapped)
			fmt.Printf("Parse failures:    %d\n", stats.ParseFailures)
			fmt.Printf("Avg iterations:    %.2f\n", stats.AvgIterations)
			fmt.Printf("Avg final score:   %.2f\n", stats.AvgFinalScore)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyListCmd.Flags().StringVarP(&historyLocation, "location", "l", "", "Only sessions for this location")
	historyListCmd.Flags().Float64Var(&historyFuzzy, "fuzzy", 0, "Also match locations at least this similar (0-1)")
	historyListCmd.Flags().IntVarP(&historyLimit, "limit", "n", 0, "Show at most this many sessions")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	historyCmd.AddCommand(historyClearCmd)
	historyCmd.AddCommand(historyStatsCmd)
}
