package dto

import "time"

// TrainingRunResponse summarises a completed training run.
type TrainingRunResponse struct {
	Trigger          string        `json:"trigger"`
	Courses          int           `json:"courses"`
	Interactions     int           `json:"interactions"`
	Users            int           `json:"users"`
	Items            int           `json:"items"`
	ContentGen       uint64        `json:"content_generation"`
	CollaborativeGen uint64        `json:"collaborative_generation"`
	CollaborativeOK  bool          `json:"collaborative_trained"`
	Duration         time.Duration `json:"duration_ns"`
	FinishedAt       time.Time     `json:"finished_at"`
}

// TrainingStatusResponse describes the readiness of the recommender models.
type TrainingStatusResponse struct {
	Running             bool                 `json:"running"`
	ContentFitted       bool                 `json:"content_fitted"`
	CollaborativeReady  bool                 `json:"collaborative_trained"`
	Models              ModelGenerations     `json:"model_generation"`
	Users               int                  `json:"users"`
	Items               int                  `json:"items"`
	Interactions        int                  `json:"interactions"`
	CollaborativeAt     *time.Time           `json:"collaborative_trained_at,omitempty"`
	LastRun             *TrainingRunResponse `json:"last_run,omitempty"`
	LastError           string               `json:"last_error,omitempty"`
	LastErrorOccurredAt *time.Time           `json:"last_error_at,omitempty"`
}

// SyncGradesRequest selects the Moodle course whose gradebook is synced.
type SyncGradesRequest struct {
	CourseID int `json:"course_id" validate:"omitempty,gt=1"`
}

// SyncResponse reports the outcome of a Moodle sync.
type SyncResponse struct {
	Fetched  int   `json:"fetched"`
	Affected int64 `json:"affected"`
	Skipped  int   `json:"skipped"`
}

// InteractionEvent is an engagement published on the interaction subject.
type InteractionEvent struct {
	UserID     string    `json:"user_id" validate:"required,max=64"`
	CourseID   string    `json:"course_id" validate:"required,max=64"`
	Weight     float64   `json:"weight" validate:"gte=0,lte=1000"`
	OccurredAt time.Time `json:"occurred_at"`
}

// SeedResponse reports how many rows a seed run touched.
type SeedResponse struct {
	Courses      int64 `json:"courses"`
	Interactions int64 `json:"interactions"`
	Students     int64 `json:"students"`
}
