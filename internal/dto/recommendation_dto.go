package dto

import "time"

// Recommendation statuses.
const (
	RecommendationStatusOK   = "ok"
	RecommendationStatusNone = "no_recommendations"
)

// Recommendation types describe which models produced the ranking.
const (
	RecommendationTypeHybrid        = "hybrid"
	RecommendationTypeCollaborative = "collaborative"
	RecommendationTypeContent       = "content_based"
	RecommendationTypeNone          = "none"
)

// GradeRecordRequest is one assessment attempt submitted by the caller.
type GradeRecordRequest struct {
	ItemName string   `json:"item_name" validate:"max=255"`
	RawScore *float64 `json:"raw_score" validate:"omitempty,gte=0"`
	MaxScore *float64 `json:"max_score" validate:"omitempty,gte=0"`
	Tags     []string `json:"tags" validate:"omitempty,max=50,dive,max=100"`
}

// RecommendationRequest asks for course recommendations. When Grades is nil
// the grades are read from Moodle for CourseID.
type RecommendationRequest struct {
	UserID   string               `json:"user_id" validate:"required,max=64"`
	CourseID string               `json:"course_id" validate:"omitempty,numeric,max=19"`
	Grades   []GradeRecordRequest `json:"grades" validate:"omitempty,max=500,dive"`
	TopN     int                  `json:"top_n" validate:"omitempty,gte=1,lte=100"`
}

// RecommendedCourse is a hydrated course with its merged score.
type RecommendedCourse struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Platform    string   `json:"platform"`
	Difficulty  string   `json:"difficulty"`
	Topics      []string `json:"topics"`
	Score       float64  `json:"score"`
}

// ModelGenerations identifies the engine states that produced a response.
type ModelGenerations struct {
	Content       uint64 `json:"content"`
	Collaborative uint64 `json:"collaborative"`
}

// RecommendationResponse is returned by the recommendation endpoints.
type RecommendationResponse struct {
	UserID             string              `json:"user_id"`
	Status             string              `json:"status"`
	RecommendationType string              `json:"recommendation_type"`
	RecommendedCourses []RecommendedCourse `json:"recommended_courses"`
	Explanation        string              `json:"explanation"`
	ConfidenceScore    float64             `json:"confidence_score"`
	WeakTopics         []string            `json:"weak_topics"`
	StrongTopics       []string            `json:"strong_topics"`
	Degraded           []string            `json:"degraded,omitempty"`
	Models             ModelGenerations    `json:"model_generation"`
	GeneratedAt        time.Time           `json:"generated_at"`
}
