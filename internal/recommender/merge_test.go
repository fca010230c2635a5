package recommender

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMergeSingleCollaborativeCandidate(t *testing.T) {
	merged := Merge([]ScoredCandidate{{CourseID: "X", Score: 1.0}}, nil, DefaultWeights())

	require.Len(t, merged, 1)
	require.Equal(t, "X", merged[0].CourseID)
	require.InDelta(t, 0.6, merged[0].Score, 1e-9)
}

func TestMergeCombinesNormalizedSignals(t *testing.T) {
	collab := []ScoredCandidate{{CourseID: "A", Score: 3}, {CourseID: "B", Score: 1}}
	content := []ScoredCandidate{{CourseID: "B", Score: 0.9}, {CourseID: "C", Score: 0.1}}

	merged := Merge(collab, content, DefaultWeights())

	require.Equal(t, []ScoredCandidate{
		{CourseID: "A", Score: 0.6},
		{CourseID: "B", Score: 0.4},
		{CourseID: "C", Score: 0},
	}, merged)
}

func TestMergeBreaksTiesByCourseID(t *testing.T) {
	merged := Merge(
		[]ScoredCandidate{{CourseID: "Z", Score: 2}, {CourseID: "M", Score: 2}},
		[]ScoredCandidate{{CourseID: "A", Score: 0}},
		Weights{Collaborative: 0.5, Content: 0.5},
	)

	require.Equal(t, []string{"M", "Z", "A"}, ids(merged))
}

func TestMergeAllZeroContentContributesNothing(t *testing.T) {
	merged := Merge(nil, []ScoredCandidate{{CourseID: "A"}, {CourseID: "B"}}, DefaultWeights())

	require.Equal(t, []ScoredCandidate{{CourseID: "A"}, {CourseID: "B"}}, merged)
}

func TestWeightsValidate(t *testing.T) {
	require.NoError(t, DefaultWeights().Validate())
	require.Error(t, Weights{Collaborative: -1, Content: 1}.Validate())
	require.Error(t, Weights{}.Validate())
}

func ids(candidates []ScoredCandidate) []string {
	out := make([]string, len(candidates))
	for i, candidate := range candidates {
		out[i] = candidate.CourseID
	}
	return out
}
