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
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/valpere/mythmaker/internal"
	"github.com/valpere/mythmaker/internal/markdown"
)

var (
	imageFile  string
	location   string
	mimeType   string
	outputFile string
)

var summonCmd = &cobra.Command{
	Use:   "summon",
	Short: "Summon the agents to write the myth of a place",
	Long: `Summon the agents on a photo and a location.

The visionary and the investigator work in parallel; their findings are
compacted into one context package for the bard, whose drafts the critic
grades until one scores high enough or the iteration cap is reached.

Examples:
  mythmaker summon -i tower.jpg -l "Tower of London"
  mythmaker summon -i crypt.png -l "Edinburgh Vaults" --format html -o myth.html
  mythmaker summon -i abbey.jpg -l "Whitby Abbey" --db ./data/mythmaker.db`,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := markdown.ParseFormat(reportFormat)
		if err != nil {
			return err
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		image, err := os.ReadFile(imageFile)
		if err != nil {
			return fmt.Errorf("failed to read image: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		orch, err := buildOrchestrator(ctx, cfg)
		if err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "Agents are communing...\n")
		mem, err := orch.Run(ctx, internal.Trigger{
			Image:    image,
			MIMEType: mimeType,
			Location: location,
		})
		if err != nil {
			return fmt.Errorf("session failed: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Myth manifested (%s after %d iteration(s))\n", mem.StopReason, len(mem.Drafts))

		if cfg.DB != "" {
			archive(ctx, cfg.DB, mem)
		}

		report, err := markdown.Render(mem, format)
		if err != nil {
			return err
		}
		return writeOutput(outputFile, report)
	},
}

// archive stores the session; a failure is logged and does not fail the run.
func archive(ctx context.Context, path string, mem *internal.SessionMemory) {
	db, err := openStore(path)
	if err != nil {
		slog.WarnContext(ctx, "session not archived", "error", err)
		return
	}
	defer db.Close()

	if err := db.SaveSession(ctx, mem); err != nil {
		slog.WarnContext(ctx, "session not archived", "session", mem.ID, "error", err)
		return
	}
	slog.InfoContext(ctx, "session archived", "session", mem.ID, "db", path)
}

func init() {
	rootCmd.AddCommand(summonCmd)

	summonCmd.Flags().StringVarP(&imageFile, "image", "i", "", "Photo of the place (jpg or png, required)")
	summonCmd.Flags().StringVarP(&location, "location", "l", "Tower of London", "Name of the place")
	summonCmd.Flags().StringVar(&mimeType, "mime", "", "Image MIME type (detected from the file when empty)")
	summonCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Write the report to a file instead of stdout")

	summonCmd.MarkFlagRequired("image")
}
