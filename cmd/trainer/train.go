package main

import (
	"github.com/spf13/cobra"

	"github.com/noah-isme/gema-recommender/internal/service"
)

func newTrainCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "train",
		Short: "Fit the content index and train the collaborative model",
		Long: `Fit the content index over the course catalog and train the
collaborative model on stored interactions. The model is written to the
configured model path so the API can warm start from it.

Example:
  gema-trainer train --database sqlite:gema.db --model-path model.gob`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()

			run, err := app.Training.Retrain(cmd.Context(), service.TriggerCLI)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), run)
		},
	}
}
