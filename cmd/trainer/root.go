package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/noah-isme/gema-recommender/internal/bootstrap"
	"github.com/noah-isme/gema-recommender/internal/config"
)

type rootOptions struct {
	databaseURL string
	modelPath   string
	seedFile    string
	verbose     bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "gema-trainer",
		Short: "Offline training and inspection for the GEMA recommender",
		Long: `gema-trainer trains the recommender models against the configured
database and prints recommendations without starting the HTTP server.

Configuration is read from GEMA_* environment variables and .env, the
flags below override the matching values.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.databaseURL, "database", "", "Database DSN (overrides GEMA_DATABASE_URL; prefix sqlite: for SQLite)")
	cmd.PersistentFlags().StringVar(&opts.modelPath, "model-path", "", "Collaborative model file (overrides GEMA_RECOMMENDER_MODEL_PATH)")
	cmd.PersistentFlags().StringVar(&opts.seedFile, "seed", "", "YAML seed file imported before the command runs")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log progress to stderr")

	cmd.AddCommand(newTrainCmd(opts))
	cmd.AddCommand(newRecommendCmd(opts))
	cmd.AddCommand(newSyncCmd(opts))

	return cmd
}

// open loads configuration, applies flag overrides and builds the recommender.
func (o *rootOptions) open(ctx context.Context, stderr io.Writer) (*bootstrap.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if o.databaseURL != "" {
		cfg.DatabaseURL = o.databaseURL
	}
	if o.modelPath != "" {
		cfg.Recommender.ModelPath = o.modelPath
	}

	logger := zerolog.Nop()
	if o.verbose {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: stderr}).With().Timestamp().Logger()
	}

	app, err := bootstrap.Build(ctx, cfg, bootstrap.Options{SkipNATS: true}, logger)
	if err != nil {
		return nil, err
	}

	if o.seedFile != "" {
		if _, err := app.Seed.SeedFile(ctx, o.seedFile); err != nil {
			app.Close()
			return nil, err
		}
	}
	return app, nil
}

func writeJSON(w io.Writer, value interface{}) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func readJSONFile(path string, target interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}
