package main

import (
	"github.com/spf13/cobra"

	"github.com/noah-isme/gema-recommender/internal/dto"
)

func newSyncCmd(opts *rootOptions) *cobra.Command {
	var courseID int
	var grades bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Import the Moodle catalog and gradebook",
		Long: `Copy the Moodle course catalog into the database. With --grades the
gradebook of every enrolled student is imported as interactions.

Example:
  gema-trainer sync --grades --course-id 2`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open(cmd.Context(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer app.Close()

			courses, err := app.Sync.SyncCourses(cmd.Context())
			if err != nil {
				return err
			}
			result := struct {
				Courses dto.SyncResponse  `json:"courses"`
				Grades  *dto.SyncResponse `json:"grades,omitempty"`
			}{Courses: courses}

			if grades {
				gradeResult, err := app.Sync.SyncGrades(cmd.Context(), courseID)
				if err != nil {
					return err
				}
				result.Grades = &gradeResult
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().IntVar(&courseID, "course-id", 0, "Moodle course to read grades from (default GEMA_MOODLE_COURSE_ID)")
	cmd.Flags().BoolVar(&grades, "grades", false, "Also import grades as interactions")

	return cmd
}
