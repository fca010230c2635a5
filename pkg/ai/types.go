package ai

import "context"

// FallbackExplanation is returned when no explanation can be generated.
const FallbackExplanation = "These courses are based on your recent results and focus on the topics where extra practice will help the most."

// ExplanationInput contains what the model needs to justify a recommendation.
type ExplanationInput struct {
	UserID       string
	CourseTitles []string
	WeakTopics   []string
}

// Explainer describes a language model that writes a short rationale for a
// set of recommended courses.
type Explainer interface {
	Explain(ctx context.Context, input ExplanationInput) (string, error)
}
