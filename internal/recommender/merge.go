package recommender

import (
	"errors"
	"math"
)

// Weights controls the contribution of each signal to the merged score.
type Weights struct {
	Collaborative float64 `json:"collaborative"`
	Content       float64 `json:"content"`
}

// DefaultWeights favours the collaborative signal.
func DefaultWeights() Weights {
	return Weights{Collaborative: 0.6, Content: 0.4}
}

// Validate rejects negative weights and an all-zero pair.
func (w Weights) Validate() error {
	if w.Collaborative < 0 || w.Content < 0 {
		return errors.New("merge weights must be non-negative")
	}
	if w.Collaborative == 0 && w.Content == 0 {
		return errors.New("at least one merge weight must be positive")
	}
	return nil
}

// Merge normalizes both rankings into [0,1] and combines them linearly.
// A course missing from one ranking contributes 0 for that signal.
func Merge(collaborative, content []ScoredCandidate, weights Weights) []ScoredCandidate {
	normCollab := normalize(collaborative)
	normContent := normalize(content)

	merged := make(map[string]float64, len(normCollab)+len(normContent))
	order := make([]string, 0, len(normCollab)+len(normContent))
	add := func(id string, value float64) {
		if _, ok := merged[id]; !ok {
			order = append(order, id)
		}
		merged[id] += value
	}

	for id, score := range normCollab {
		add(id, weights.Collaborative*score)
	}
	for id, score := range normContent {
		add(id, weights.Content*score)
	}

	out := make([]ScoredCandidate, 0, len(order))
	for _, id := range order {
		out = append(out, ScoredCandidate{CourseID: id, Score: merged[id]})
	}
	sortCandidates(out)
	return out
}

// normalize min-max scales the scores. When every score is equal there is no
// range to scale by, so each score is clamped into [0,1] instead. Repeated ids
// keep their highest score.
func normalize(candidates []ScoredCandidate) map[string]float64 {
	out := make(map[string]float64, len(candidates))
	if len(candidates) == 0 {
		return out
	}

	best := make(map[string]float64, len(candidates))
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, candidate := range candidates {
		score := candidate.Score
		if math.IsNaN(score) {
			score = 0
		}
		if prev, ok := best[candidate.CourseID]; ok && prev >= score {
			continue
		}
		best[candidate.CourseID] = score
	}
	for _, score := range best {
		lo = math.Min(lo, score)
		hi = math.Max(hi, score)
	}

	span := hi - lo
	for id, score := range best {
		if span == 0 {
			out[id] = math.Max(0, math.Min(1, score))
			continue
		}
		out[id] = (score - lo) / span
	}
	return out
}
