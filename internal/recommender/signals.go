package recommender

import (
	"sort"
	"strings"
)

const (
	// FailureThreshold is the pass ratio below which an attempt marks a weak topic.
	FailureThreshold = 0.60
	// StrengthThreshold is the pass ratio at or above which an attempt marks a strong topic.
	StrengthThreshold = 0.85

	fivePointScale       = 5.0
	fivePointFailureMark = 3.0
)

// TopicMatcher infers a topic from an assessment name when the record carries no tags.
type TopicMatcher func(itemName string) (string, bool)

type keywordRule struct {
	keywords []string
	topic    string
}

// defaultKeywordRules is checked in order; the first matching rule wins.
var defaultKeywordRules = []keywordRule{
	{keywords: []string{"python"}, topic: "python"},
	{keywords: []string{"c#"}, topic: "c#"},
	{keywords: []string{"web", "html"}, topic: "web"},
	{keywords: []string{"sql", "database", "баз"}, topic: "databases"},
	{keywords: []string{"algorithm"}, topic: "algorithms"},
}

// KeywordMatcher returns a TopicMatcher that looks for a small fixed vocabulary
// in the item name. With fallbackToName the lower-cased name itself becomes the
// topic when no keyword matches.
func KeywordMatcher(fallbackToName bool) TopicMatcher {
	return func(itemName string) (string, bool) {
		name := strings.ToLower(strings.TrimSpace(itemName))
		if name == "" {
			return "", false
		}
		for _, rule := range defaultKeywordRules {
			for _, keyword := range rule.keywords {
				if strings.Contains(name, keyword) {
					return rule.topic, true
				}
			}
		}
		if fallbackToName {
			return name, true
		}
		return "", false
	}
}

// Extractor turns raw grade records into weak and strong topics.
type Extractor struct {
	Matcher TopicMatcher
}

// NewExtractor builds an extractor. A nil matcher falls back to KeywordMatcher(false),
// which drops assessments whose names match no known topic.
func NewExtractor(matcher TopicMatcher) *Extractor {
	if matcher == nil {
		matcher = KeywordMatcher(false)
	}
	return &Extractor{Matcher: matcher}
}

// Extract classifies every scored record and collects its topics.
func (e *Extractor) Extract(records []GradeRecord) TopicSignal {
	weak := make(map[string]struct{})
	strong := make(map[string]struct{})

	for _, record := range records {
		if record.RawScore == nil {
			continue
		}

		failed, passedWell := classify(*record.RawScore, record.MaxScore)
		if !failed && !passedWell {
			continue
		}

		target := strong
		if failed {
			target = weak
		}
		for _, topic := range e.topicsFor(record) {
			target[topic] = struct{}{}
		}
	}

	return TopicSignal{
		WeakTopics:   sortedKeys(weak),
		StrongTopics: sortedKeys(strong),
	}
}

func (e *Extractor) topicsFor(record GradeRecord) []string {
	topics := make([]string, 0, len(record.Tags))
	for _, tag := range record.Tags {
		if normalized := normalizeTopic(tag); normalized != "" {
			topics = append(topics, normalized)
		}
	}
	if len(topics) > 0 || e.Matcher == nil {
		return topics
	}

	if topic, ok := e.Matcher(record.ItemName); ok {
		if normalized := normalizeTopic(topic); normalized != "" {
			topics = append(topics, normalized)
		}
	}
	return topics
}

// classify reports whether the attempt is a failure or a strong pass.
func classify(raw float64, max *float64) (failed bool, strong bool) {
	if max != nil && *max > 0 {
		ratio := raw / *max
		return ratio < FailureThreshold, ratio >= StrengthThreshold
	}
	return raw < fivePointFailureMark, raw/fivePointScale >= StrengthThreshold
}

func normalizeTopic(topic string) string {
	return strings.ToLower(strings.TrimSpace(topic))
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
