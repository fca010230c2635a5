package recommender

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
)

// CandidateFilter selects the courses eligible for ranking with a CEL
// expression. The expression sees `course` (id, title, description, topics,
// platform, difficulty) and `weak_topics`, and must return a bool:
//
//	course.difficulty != "Advanced"
//	course.topics.exists(t, t in weak_topics)
type CandidateFilter struct {
	expr    string
	program cel.Program
}

// NewCandidateFilter compiles expr. An empty expression yields a nil filter
// that admits every course.
func NewCandidateFilter(expr string) (*CandidateFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("course", cel.DynType),
		cel.Variable("weak_topics", cel.ListType(cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("candidate filter env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile candidate filter: %w", issues.Err())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("candidate filter program: %w", err)
	}
	return &CandidateFilter{expr: expr, program: program}, nil
}

// String returns the source expression.
func (f *CandidateFilter) String() string {
	if f == nil {
		return ""
	}
	return f.expr
}

// Match evaluates the expression for one course.
func (f *CandidateFilter) Match(course Course, weakTopics []string) (bool, error) {
	if f == nil {
		return true, nil
	}

	topics := course.Topics
	if topics == nil {
		topics = []string{}
	}
	if weakTopics == nil {
		weakTopics = []string{}
	}

	out, _, err := f.program.Eval(map[string]any{
		"course": map[string]any{
			"id":          course.ID,
			"title":       course.Title,
			"description": course.Description,
			"topics":      topics,
			"platform":    course.Platform,
			"difficulty":  course.Difficulty,
		},
		"weak_topics": weakTopics,
	})
	if err != nil {
		return false, fmt.Errorf("evaluate candidate filter: %w", err)
	}

	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("candidate filter returned %T, want bool", out.Value())
	}
	return matched, nil
}

// Apply returns the courses matching the filter and the number of courses
// whose evaluation failed. Failed courses are excluded.
func (f *CandidateFilter) Apply(courses []Course, weakTopics []string) ([]Course, int) {
	if f == nil {
		return courses, 0
	}
	kept := make([]Course, 0, len(courses))
	failures := 0
	for _, course := range courses {
		matched, err := f.Match(course, weakTopics)
		if err != nil {
			failures++
			continue
		}
		if matched {
			kept = append(kept, course)
		}
	}
	return kept, failures
}
