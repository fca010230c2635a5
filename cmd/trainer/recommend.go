package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noah-isme/gema-recommender/internal/dto"
	"github.com/noah-isme/gema-recommender/internal/service"
)

type recommendOptions struct {
	userID     string
	courseID   string
	gradesFile string
	topN       int
	warm       bool
}

func newRecommendCmd(opts *rootOptions) *cobra.Command {
	local := &recommendOptions{}

	cmd := &cobra.Command{
		Use:   "recommend",
		Short: "Print recommendations for one student",
		Long: `Produce recommendations for a student. Grades are read from a JSON
file holding a list of {item_name, raw_score, max_score} records, or from
Moodle when no file is given.

Example:
  gema-trainer recommend --user U1 --grades grades.json --top-n 5`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if local.userID == "" {
				return fmt.Errorf("--user is required")
			}

			req := dto.RecommendationRequest{
				UserID:   local.userID,
				CourseID: local.courseID,
				TopN:     local.topN,
			}
			if local.gradesFile != "" {
				req.Grades = []dto.GradeRecordRequest{}
				if err := readJSONFile(local.gradesFile, &req.Grades); err != nil {
					return err
				}
			}

			app, err := opts.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()

			if local.warm {
				if err := app.Training.WarmStart(cmd.Context()); err != nil {
					return err
				}
			} else if _, err := app.Training.Retrain(cmd.Context(), service.TriggerCLI); err != nil {
				return err
			}

			resp, err := app.Recommendations.Recommend(cmd.Context(), req)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), resp)
		},
	}

	cmd.Flags().StringVar(&local.userID, "user", "", "Student user id")
	cmd.Flags().StringVar(&local.courseID, "course-id", "", "Moodle course whose gradebook is read")
	cmd.Flags().StringVar(&local.gradesFile, "grades", "", "JSON file with grade records")
	cmd.Flags().IntVar(&local.topN, "top-n", 0, "Number of courses to return")
	cmd.Flags().BoolVar(&local.warm, "warm", false, "Load the saved model instead of training first")

	return cmd
}
