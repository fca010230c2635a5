// Package recommender implements the hybrid course recommendation engine:
// grade signal extraction, embedding-based content similarity, a latent
// factor collaborative model and the weighted merge of both rankings.
//
// The engines own their trained state exclusively. Fit and Train build a new
// state and publish it atomically, so concurrent Recommend calls observe
// either the previous or the next model, never a partial one.
package recommender

import "sort"

// Course is a catalog entry that can be recommended.
type Course struct {
	ID          string   `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description" yaml:"description"`
	Topics      []string `json:"topics" yaml:"topics"`
	Platform    string   `json:"platform" yaml:"platform"`
	Difficulty  string   `json:"difficulty" yaml:"difficulty"`
}

// GradeRecord is one normalized assessment attempt.
type GradeRecord struct {
	ItemName string   `json:"item_name" validate:"max=255"`
	RawScore *float64 `json:"raw_score"`
	MaxScore *float64 `json:"max_score"`
	Tags     []string `json:"tags"`
}

// TopicSignal holds the per-request weak and strong topics of a student.
type TopicSignal struct {
	WeakTopics   []string `json:"weak_topics"`
	StrongTopics []string `json:"strong_topics"`
}

// Interaction is a weighted user to course engagement record.
type Interaction struct {
	UserID   string  `json:"user_id" yaml:"user_id"`
	CourseID string  `json:"course_id" yaml:"course_id"`
	Weight   float64 `json:"weight" yaml:"weight"`
}

// ScoredCandidate is a course id with a model relative score.
type ScoredCandidate struct {
	CourseID string  `json:"course_id"`
	Score    float64 `json:"score"`
}

// Recommendation is a hydrated course with its final score.
type Recommendation struct {
	Course Course  `json:"course"`
	Score  float64 `json:"score"`
}

// sortCandidates orders candidates by descending score, ascending id on ties.
func sortCandidates(candidates []ScoredCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].CourseID < candidates[j].CourseID
	})
}

func sortByScoreStable(candidates []ScoredCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
}

func truncate(candidates []ScoredCandidate, topN int) []ScoredCandidate {
	if topN > 0 && len(candidates) > topN {
		return candidates[:topN]
	}
	return candidates
}
