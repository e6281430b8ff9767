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
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/valpere/mythmaker/internal/config"
	"github.com/valpere/mythmaker/internal/gateway"
	"github.com/valpere/mythmaker/internal/markdown"
	"github.com/valpere/mythmaker/internal/refiner"
)

var version = "0.1.0"

var (
	cfgFile string
	envFile string
	verbose bool

	reportFormat string

	settings = viper.New()
)

var rootCmd = &cobra.Command{
	Use:   "mythmaker",
	Short: "Turn a photo and a place into a local ghost story",
	Long: `Mythmaker looks at a photo of a place, researches the dark history of the
location with live web search, and has a bard write a short myth that a critic
grades and sends back for refinement until it is good enough.

Agents:
  - Visionary     describes the atmosphere of the photo
  - Investigator  finds verified history and ghost stories for the location
  - Bard          writes and refines the micro-myth
  - Critic        scores each draft and gives feedback

Use "mythmaker summon --help" to run a session.`,
	Version:      version,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(verbose)
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// loadConfig resolves flags, environment, .env and the config file.
func loadConfig() (*config.Config, error) {
	return config.Load(settings, cfgFile, envFile)
}

func init() {
	pf := rootCmd.PersistentFlags()

	pf.StringVar(&cfgFile, "config", "", "Config file (default $HOME/"+config.DefaultConfigName+")")
	pf.StringVar(&envFile, "env-file", ".env", "Dotenv file with API keys")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	pf.String("base-url", "", "Gemini API endpoint (default public endpoint)")
	pf.String("model", gateway.DefaultModel, "Gemini model identifier")
	pf.Float32("temperature", gateway.DefaultTemperature, "Sampling temperature")
	pf.Duration("call-timeout", gateway.DefaultCallTimeout, "Deadline for each model call")
	pf.Int("max-iterations", refiner.DefaultMaxIterations, "Maximum draft/critique passes")
	pf.Int("accept-score", refiner.DefaultAcceptScore, "Critic score that accepts a draft (1-10)")
	pf.String("parse-failure", refiner.ParseFailureStop.String(), "What an unreadable critique does: stop, continue or error")
	pf.Int("rpm", 0, "Client-side limit on model requests per minute (0 = unlimited)")
	pf.Bool("compress-images", false, "Re-encode images as JPEG before upload")
	pf.Int("jpeg-quality", gateway.DefaultJPEGQuality, "JPEG quality used with --compress-images")
	pf.String("roles", "", "YAML file overriding role names and instructions")
	pf.String("db", "", "SQLite session archive (disabled when empty)")
	pf.StringVar(&reportFormat, "format", string(markdown.FormatText), "Report format: text, markdown or html")

	for key, flag := range map[string]string{
		config.KeyBaseURL:           "base-url",
		config.KeyModel:             "model",
		config.KeyTemperature:       "temperature",
		config.KeyCallTimeout:       "call-timeout",
		config.KeyMaxIterations:     "max-iterations",
		config.KeyAcceptScore:       "accept-score",
		config.KeyParseFailure:      "parse-failure",
		config.KeyRequestsPerMinute: "rpm",
		config.KeyCompressImages:    "compress-images",
		config.KeyJPEGQuality:       "jpeg-quality",
		config.KeyRolesFile:         "roles",
		config.KeyDB:                "db",
	} {
		if err := settings.BindPFlag(key, pf.Lookup(flag)); err != nil {
			panic(err)
		}
	}
}
