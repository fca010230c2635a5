package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	maxExplainedCourses = 3
	maxExplainedTopics  = 5
)

var (
	aiDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gema",
		Subsystem: "ai",
		Name:      "request_duration_seconds",
		Help:      "Duration of AI provider requests",
	}, []string{"model", "operation"})

	aiFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gema",
		Subsystem: "ai",
		Name:      "request_failures_total",
		Help:      "Number of failed AI provider requests",
	}, []string{"model", "operation"})
)

// OpenAIConfig defines configuration options for the OpenAI explainer.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAIExplainer implements Explainer against any OpenAI compatible chat
// completion API.
type OpenAIExplainer struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIExplainer builds a new explainer using the provided configuration.
func NewOpenAIExplainer(cfg OpenAIConfig) (*OpenAIExplainer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 150
	}

	if cfg.Temperature == 0 {
		cfg.Temperature = 0.7
	}

	tracer := otel.Tracer("github.com/noah-isme/gema-recommender/pkg/ai/openai")
	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &OpenAIExplainer{
		client: newClient(cfg.APIKey, cfg.BaseURL),
		cfg:    cfg,
		tracer: tracer,
		logger: logger,
	}, nil
}

func newClient(apiKey, baseURL string) *openai.Client {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return openai.NewClientWithConfig(config)
}

// Explain asks the model for a short rationale.
func (e *OpenAIExplainer) Explain(parent context.Context, input ExplanationInput) (string, error) {
	ctx, span := e.tracer.Start(parent, "openai.explain", trace.WithAttributes(
		attribute.String("model", e.cfg.Model),
		attribute.Int("courses", len(input.CourseTitles)),
	))
	defer span.End()

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       e.cfg.Model,
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: explainerSystemPrompt(),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: buildExplanationPrompt(input),
			},
		},
	}

	resp, err := e.client.CreateChatCompletion(ctx, request)
	aiDuration.WithLabelValues(e.cfg.Model, "explain").Observe(time.Since(start).Seconds())
	if err != nil {
		return "", e.fail(span, fmt.Errorf("openai explain: %w", err))
	}

	if len(resp.Choices) == 0 {
		return "", e.fail(span, fmt.Errorf("no choices returned from openai"))
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", e.fail(span, fmt.Errorf("empty explanation returned from openai"))
	}

	e.logger.Debug().
		Str("user_id", input.UserID).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens).
		Msg("explanation generated")

	return content, nil
}

func (e *OpenAIExplainer) fail(span trace.Span, err error) error {
	aiFailures.WithLabelValues(e.cfg.Model, "explain").Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func explainerSystemPrompt() string {
	return "You are a study advisor for a learning platform. Explain briefly and clearly why the listed courses were recommended, " +
		"focusing on how they help the student improve in the weak topics. Answer in at most 100 words."
}

func buildExplanationPrompt(input ExplanationInput) string {
	titles := input.CourseTitles
	if len(titles) > maxExplainedCourses {
		titles = titles[:maxExplainedCourses]
	}
	topics := input.WeakTopics
	if len(topics) > maxExplainedTopics {
		topics = topics[:maxExplainedTopics]
	}

	builder := strings.Builder{}
	builder.WriteString("Student ")
	builder.WriteString(input.UserID)
	builder.WriteString(" showed weak results in the following topics: ")
	if len(topics) == 0 {
		builder.WriteString("none recorded")
	} else {
		builder.WriteString(strings.Join(topics, ", "))
	}
	builder.WriteString(".\nRecommended courses: ")
	builder.WriteString(strings.Join(titles, ", "))
	builder.WriteString(".")
	return builder.String()
}
